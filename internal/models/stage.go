package models

// Stage is one of the five creative phases an idea moves through.
type Stage string

const (
	StageIdea   Stage = "idea"
	StageScript Stage = "script"
	StageReview Stage = "review"
	StageRecord Stage = "record"
	StageEdit   Stage = "edit"
)

func (s Stage) Valid() bool {
	switch s {
	case StageIdea, StageScript, StageReview, StageRecord, StageEdit:
		return true
	}
	return false
}
