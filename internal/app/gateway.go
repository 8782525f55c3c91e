package app

import (
	"context"
	"strings"

	"mln131-quiz/internal/domain"
)

// RoomStore covers room lifecycle persistence.
type RoomStore interface {
	// ListRooms returns rooms newest first.
	ListRooms(ctx context.Context) ([]domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	CreateRoom(ctx context.Context, code string) (domain.Room, error)
	// JoinRoom adds a fresh player (score 0, empty inventory) to a waiting room.
	JoinRoom(ctx context.Context, code, name string) (domain.Room, domain.Player, error)
	UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	AdvanceQuestion(ctx context.Context, roomID string, nextIndex int) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// QuestionStore is the admin-managed question bank.
type QuestionStore interface {
	// ListQuestions returns questions in creation order.
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	CreateQuestion(ctx context.Context, content domain.QuestionContent) (domain.Question, error)
	UpdateQuestion(ctx context.Context, questionID string, content domain.QuestionContent) error
	DeleteQuestion(ctx context.Context, questionID string) error
}

// PlayerStore covers per-player state: score, inventory and the append-only logs.
type PlayerStore interface {
	// ListPlayers returns a room's roster by score descending, ties in join order.
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	// SubmitAnswer records the answer, adds the points and rolls the item reward in one call.
	SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) (domain.AnswerOutcome, error)
	// ConsumeItem decrements one item or fails with *domain.InsufficientItemError.
	ConsumeItem(ctx context.Context, playerID string, kind domain.ItemKind) (domain.Inventory, error)
	// UseItem appends a usage event; delivery to the target happens through the feed.
	UseItem(ctx context.Context, usage domain.ItemUsage) (domain.ItemUsage, error)
}

// Store is the durable half of the gateway.
type Store interface {
	RoomStore
	QuestionStore
	PlayerStore
}

// Subscription is a live change-feed registration.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Feed is the push half of the gateway.
type Feed interface {
	SubscribeToRoom(ctx context.Context, roomID string, onUpdate func(domain.Room)) (Subscription, error)
	SubscribeToAllRooms(ctx context.Context, onUpdate func(domain.RoomChange)) (Subscription, error)
	SubscribeToPlayers(ctx context.Context, roomID string, onUpdate func([]domain.Player)) (Subscription, error)
	// SubscribeToItems fires once per usage event newly addressed to playerID.
	SubscribeToItems(ctx context.Context, playerID string, onIncoming func(domain.ItemUsage)) (Subscription, error)
}

// Gateway is everything the game core needs from persistence and realtime delivery.
type Gateway interface {
	Store
	Feed
}

type gateway struct {
	Store
	Feed
}

func NewGateway(store Store, feed Feed) Gateway {
	return gateway{Store: store, Feed: feed}
}

type layeredStore struct {
	RoomStore
	PlayerStore
	QuestionStore
}

// WithQuestionStore swaps the question bank of store, e.g. for a caching decorator.
func WithQuestionStore(store Store, questions QuestionStore) Store {
	return layeredStore{RoomStore: store, PlayerStore: store, QuestionStore: questions}
}

// NormalizeRoomCode trims a code and rejects blanks.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", domain.ErrRoomCodeRequired
	}
	return code, nil
}

// NormalizeJoin validates join input before any store lookup.
func NormalizeJoin(code, name string) (string, string, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return "", "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", domain.ErrPlayerNameRequired
	}
	return code, name, nil
}

// CheckItemTarget enforces that buffs target their user and debuffs someone else.
func CheckItemTarget(usage domain.ItemUsage) error {
	if !usage.Kind.Valid() || usage.FromPlayerID == "" || usage.ToPlayerID == "" {
		return domain.ErrInvalidTarget
	}
	if usage.Kind.IsDebuff() == (usage.FromPlayerID == usage.ToPlayerID) {
		return domain.ErrInvalidTarget
	}
	return nil
}
