package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
)

// Engine is one player's view of the item economy. Every consumption goes through the
// store's atomic decrement; the ledger only shapes what the player sees meanwhile.
type Engine struct {
	store    app.PlayerStore
	playerID string
	ledger   *Ledger
	logger   *slog.Logger
}

func NewEngine(store app.PlayerStore, playerID string, initial domain.Inventory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		playerID: playerID,
		ledger:   NewLedger(initial),
		logger:   logger.With("player_id", playerID),
	}
}

// Inventory returns the optimistic inventory view.
func (e *Engine) Inventory() domain.Inventory {
	return e.ledger.View()
}

// Reconcile feeds an authoritative inventory read (roster fetch, answer outcome) into the view.
func (e *Engine) Reconcile(inv domain.Inventory) {
	e.ledger.Reconcile(inv)
}

// Consume spends one item of kind. With zero held it fails with *domain.InsufficientItemError
// and nothing changes, locally or in the store.
func (e *Engine) Consume(ctx context.Context, kind domain.ItemKind) (domain.Inventory, error) {
	reservation, err := e.ledger.Reserve(kind)
	if err != nil {
		return e.ledger.View(), err
	}
	inv, err := e.store.ConsumeItem(ctx, e.playerID, kind)
	if err != nil {
		e.ledger.Rollback(reservation)
		return e.ledger.View(), err
	}
	e.ledger.Confirm(reservation, inv)
	return inv, nil
}

// Use consumes kind and records the usage event. Buffs must target the user (an empty
// target means self); debuffs must target someone else. The returned effect is for the
// caller to apply locally when the item is a buff; debuffs land when the target observes
// the event.
func (e *Engine) Use(ctx context.Context, targetID string, kind domain.ItemKind, questionIndex int) (Effect, error) {
	if targetID == "" && !kind.IsDebuff() {
		targetID = e.playerID
	}
	usage := domain.ItemUsage{
		FromPlayerID:  e.playerID,
		ToPlayerID:    targetID,
		Kind:          kind,
		QuestionIndex: questionIndex,
	}
	if err := app.CheckItemTarget(usage); err != nil {
		return Effect{}, err
	}
	effect, _ := EffectOf(kind)

	if _, err := e.Consume(ctx, kind); err != nil {
		return Effect{}, err
	}
	if _, err := e.store.UseItem(ctx, usage); err != nil {
		// The item is spent; the effect must not be assumed.
		return Effect{}, fmt.Errorf("record %s usage: %w", kind, err)
	}
	e.logger.Info("item used", "kind", kind, "target_id", targetID, "question_index", questionIndex)
	return effect, nil
}

// Interception is the outcome of processing one inbound usage event.
type Interception struct {
	Usage   domain.ItemUsage
	Self    bool
	Blocked bool
	Effect  Effect
}

// Intercept applies the auto-shield rule to an inbound event. A debuff is blocked when a
// shield is held and the store confirms spending it; if the store reports no shield left
// (another attack got there first) the debuff goes through. Events the player sent to
// themself were already applied locally and are marked Self.
func (e *Engine) Intercept(ctx context.Context, usage domain.ItemUsage) (Interception, error) {
	out := Interception{Usage: usage}
	if usage.FromPlayerID == e.playerID {
		out.Self = true
		return out, nil
	}
	effect, ok := EffectOf(usage.Kind)
	if !ok || !usage.Kind.IsDebuff() {
		return out, nil
	}
	out.Effect = effect

	if e.ledger.View().Count(domain.Shield) <= 0 {
		return out, nil
	}
	_, err := e.Consume(ctx, domain.Shield)
	switch {
	case err == nil:
		out.Blocked = true
		out.Effect = Effect{}
		e.logger.Info("debuff blocked by shield", "kind", usage.Kind, "from_player_id", usage.FromPlayerID)
		return out, nil
	case errors.Is(err, domain.ErrInsufficientItem):
		return out, nil
	default:
		// Shield state unknown: let the debuff through rather than claim a block.
		return out, fmt.Errorf("consume shield: %w", err)
	}
}
