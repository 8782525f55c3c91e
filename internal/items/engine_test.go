package items_test

import (
	"context"
	"errors"
	"testing"

	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/infra/memory"
	"mln131-quiz/internal/items"
)

type fixture struct {
	store    *memory.Store
	attacker domain.Player
	defender domain.Player
	next     domain.ItemKind
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{next: domain.Shield}
	store := memory.NewStore(nil, func() domain.ItemKind { return f.next })
	if _, err := store.CreateRoom(ctx, "MLN-01"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, attacker, err := store.JoinRoom(ctx, "MLN-01", "Attacker")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	_, defender, err := store.JoinRoom(ctx, "MLN-01", "Defender")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	f.store, f.attacker, f.defender = store, attacker, defender
	return f
}

// grant gives a player n items of kind by submitting correct answers.
func (f *fixture) grant(t *testing.T, playerID string, kind domain.ItemKind, n int) domain.Inventory {
	t.Helper()
	f.next = kind
	var inv domain.Inventory
	for i := 0; i < n; i++ {
		outcome, err := f.store.SubmitAnswer(context.Background(), domain.AnswerSubmission{PlayerID: playerID, IsCorrect: true, Points: 100})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		inv = outcome.NewInventory
	}
	return inv
}

func TestConsumeWithZeroCountFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	engine := items.NewEngine(f.store, f.attacker.ID, domain.Inventory{}, nil)

	inv, err := engine.Consume(context.Background(), domain.TimeExtend)
	var insufficient *domain.InsufficientItemError
	if !errors.As(err, &insufficient) || insufficient.Kind != domain.TimeExtend {
		t.Fatalf("expected InsufficientItemError, got %v", err)
	}
	if inv.Total() != 0 || engine.Inventory().Total() != 0 {
		t.Fatalf("inventory changed: %v", inv)
	}
	stored, _ := f.store.GetPlayer(context.Background(), f.attacker.ID)
	if stored.Inventory.Total() != 0 {
		t.Fatalf("store changed: %v", stored.Inventory)
	}
}

func TestAutoShieldBlocksIncomingAttack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.grant(t, f.defender.ID, domain.Shield, 1)
	engine := items.NewEngine(f.store, f.defender.ID, inv, nil)

	got, err := engine.Intercept(ctx, domain.ItemUsage{
		FromPlayerID: f.attacker.ID, ToPlayerID: f.defender.ID, Kind: domain.TimeAttack,
	})
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if !got.Blocked || got.Effect != (items.Effect{}) {
		t.Fatalf("expected blocked attack with no effect, got %+v", got)
	}
	if engine.Inventory().Count(domain.Shield) != 0 {
		t.Fatalf("expected local shield spent, got %v", engine.Inventory())
	}
	stored, _ := f.store.GetPlayer(ctx, f.defender.ID)
	if stored.Inventory.Count(domain.Shield) != 0 {
		t.Fatalf("expected stored shield spent, got %v", stored.Inventory)
	}

	second, err := engine.Intercept(ctx, domain.ItemUsage{
		FromPlayerID: f.attacker.ID, ToPlayerID: f.defender.ID, Kind: domain.Confusion,
	})
	if err != nil {
		t.Fatalf("intercept 2: %v", err)
	}
	if second.Blocked || second.Effect.ConfuseFor != items.ConfusionDuration {
		t.Fatalf("expected confusion to land without shield, got %+v", second)
	}
}

func TestInterceptWithStaleShieldViewLetsAttackThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.grant(t, f.defender.ID, domain.Shield, 1)
	engine := items.NewEngine(f.store, f.defender.ID, inv, nil)

	// Another device of the same player spends the shield first.
	if _, err := f.store.ConsumeItem(ctx, f.defender.ID, domain.Shield); err != nil {
		t.Fatalf("consume elsewhere: %v", err)
	}

	got, err := engine.Intercept(ctx, domain.ItemUsage{
		FromPlayerID: f.attacker.ID, ToPlayerID: f.defender.ID, Kind: domain.TimeAttack,
	})
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if got.Blocked || got.Effect.TimeDelta != -items.TimePenaltyUnits {
		t.Fatalf("expected attack to land, got %+v", got)
	}
}

func TestInterceptIgnoresOwnEvents(t *testing.T) {
	f := newFixture(t)
	engine := items.NewEngine(f.store, f.defender.ID, domain.Inventory{}, nil)
	got, err := engine.Intercept(context.Background(), domain.ItemUsage{
		FromPlayerID: f.defender.ID, ToPlayerID: f.defender.ID, Kind: domain.TimeExtend,
	})
	if err != nil || !got.Self || got.Blocked {
		t.Fatalf("expected own buff marked self, got %+v err=%v", got, err)
	}
}

func TestUseBuffAndDebuff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.grant(t, f.attacker.ID, domain.TimeExtend, 1)
	inv := f.grant(t, f.attacker.ID, domain.TimeAttack, 1)
	engine := items.NewEngine(f.store, f.attacker.ID, inv, nil)

	effect, err := engine.Use(ctx, "", domain.TimeExtend, 0)
	if err != nil {
		t.Fatalf("use buff: %v", err)
	}
	if effect.TimeDelta != items.TimeBonusUnits {
		t.Fatalf("expected +%d time, got %+v", items.TimeBonusUnits, effect)
	}

	if _, err := engine.Use(ctx, f.attacker.ID, domain.TimeAttack, 0); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Fatalf("expected invalid target for self debuff, got %v", err)
	}
	if engine.Inventory().Count(domain.TimeAttack) != 1 {
		t.Fatalf("invalid target must not consume, got %v", engine.Inventory())
	}

	if _, err := engine.Use(ctx, f.defender.ID, domain.TimeAttack, 3); err != nil {
		t.Fatalf("use debuff: %v", err)
	}
	usages := f.store.Usages()
	if len(usages) != 2 {
		t.Fatalf("expected 2 usage events, got %d", len(usages))
	}
	last := usages[1]
	if last.ToPlayerID != f.defender.ID || last.Kind != domain.TimeAttack || last.QuestionIndex != 3 {
		t.Fatalf("unexpected usage %+v", last)
	}
	if engine.Inventory().Total() != 0 {
		t.Fatalf("expected all items spent, got %v", engine.Inventory())
	}
}

func TestUseRecordFailureKeepsItemSpent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.grant(t, f.attacker.ID, domain.Confusion, 1)
	failing := &failingUse{Store: f.store}
	engine := items.NewEngine(failing, f.attacker.ID, inv, nil)

	if _, err := engine.Use(ctx, f.defender.ID, domain.Confusion, 0); err == nil {
		t.Fatalf("expected record failure")
	}
	if engine.Inventory().Count(domain.Confusion) != 0 {
		t.Fatalf("expected item spent despite failed delivery, got %v", engine.Inventory())
	}
}

type failingUse struct {
	*memory.Store
}

func (f *failingUse) UseItem(context.Context, domain.ItemUsage) (domain.ItemUsage, error) {
	return domain.ItemUsage{}, errors.New("network down")
}
