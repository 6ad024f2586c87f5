package streak

// FreezeCost prices one freeze in XP. The cost grows with the user's
// commitment threshold: a stricter qualifying bar earns XP faster per day, so
// protection scales with it. Strictly monotone in minStreakMinutes.
func FreezeCost(minStreakMinutes int) int64 {
	if minStreakMinutes < 1 {
		minStreakMinutes = 1
	}
	return 100 + int64(minStreakMinutes)*10
}
