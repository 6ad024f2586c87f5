package session

import "github.com/planloop/planloop/internal/models"

// stageXPBonus is extra XP per minute for the heavier production stages.
var stageXPBonus = map[models.Stage]int64{
	models.StageRecord: 3,
	models.StageEdit:   2,
}

// xpForSession is the pure XP award: 10 XP per full active minute plus the
// per-stage bonus for the stage the session ended on.
func xpForSession(durationSeconds int64, stage models.Stage) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	minutes := durationSeconds / 60
	return minutes * (10 + stageXPBonus[stage])
}
