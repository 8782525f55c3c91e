package items

import (
	"time"

	"mln131-quiz/internal/domain"
)

const (
	// TimeBonusUnits is added to the countdown by time_extend.
	TimeBonusUnits = 5
	// TimePenaltyUnits is removed from the target's countdown by time_attack.
	TimePenaltyUnits = 5
	// ScoreBoostMultiplier applies to the next scored answer after score_boost.
	ScoreBoostMultiplier = 2
	// ConfusionDuration bounds the visual degradation caused by confusion.
	ConfusionDuration = 5 * time.Second
)

// Effect describes what an item does to the live question state of the player it lands on.
type Effect struct {
	Kind            domain.ItemKind
	ScoreMultiplier int
	TimeDelta       int
	ClearDebuffs    bool
	ConfuseFor      time.Duration
}

// EffectOf returns the catalog entry for kind.
func EffectOf(kind domain.ItemKind) (Effect, bool) {
	switch kind {
	case domain.ScoreBoost:
		return Effect{Kind: kind, ScoreMultiplier: ScoreBoostMultiplier}, true
	case domain.TimeExtend:
		return Effect{Kind: kind, TimeDelta: TimeBonusUnits}, true
	case domain.Shield:
		return Effect{Kind: kind, ClearDebuffs: true}, true
	case domain.Confusion:
		return Effect{Kind: kind, ConfuseFor: ConfusionDuration}, true
	case domain.TimeAttack:
		return Effect{Kind: kind, TimeDelta: -TimePenaltyUnits}, true
	}
	return Effect{}, false
}

// Target is whatever holds the live state an effect mutates (the session controller).
type Target interface {
	ArmScoreBoost(multiplier int)
	ExtendTime(units int) error
	AttackTime(units int)
	ClearDebuffs()
	Confuse(d time.Duration)
}

// Apply routes an effect to its target.
func (e Effect) Apply(t Target) error {
	switch {
	case e.ScoreMultiplier > 1:
		t.ArmScoreBoost(e.ScoreMultiplier)
	case e.TimeDelta > 0:
		return t.ExtendTime(e.TimeDelta)
	case e.TimeDelta < 0:
		t.AttackTime(-e.TimeDelta)
	case e.ClearDebuffs:
		t.ClearDebuffs()
	case e.ConfuseFor > 0:
		t.Confuse(e.ConfuseFor)
	}
	return nil
}
