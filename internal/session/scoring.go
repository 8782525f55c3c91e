package session

const (
	basePoints     = 100
	maxSpeedBonus  = 100
	msPerBonusStep = 100
)

// Score returns the points for an answer: 100 for being correct plus a speed bonus that
// loses one point per 100ms used and bottoms out at zero. Incorrect answers score nothing.
func Score(isCorrect bool, timeUsedMs int) int {
	if !isCorrect {
		return 0
	}
	if timeUsedMs < 0 {
		timeUsedMs = 0
	}
	bonus := maxSpeedBonus - timeUsedMs/msPerBonusStep
	if bonus < 0 {
		bonus = 0
	}
	return basePoints + bonus
}
