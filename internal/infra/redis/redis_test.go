package redis

import (
	"context"
	"testing"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := &countingQuestions{QuestionStore: memory.NewStore(nil, nil)}
	cache := NewQuestionCache(newClient(mr), store, time.Minute)

	if _, err := cache.CreateQuestion(ctx, sampleContent()); err != nil {
		t.Fatalf("create: %v", err)
	}
	bank, err := cache.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bank) != 1 || store.calls != 1 {
		t.Fatalf("expected one question from the store, got %d (calls=%d)", len(bank), store.calls)
	}
	if !mr.Exists(bankKey) {
		t.Fatalf("expected bank cached under %s", bankKey)
	}

	// Second call should hit cache, store not incremented.
	bank, _ = cache.ListQuestions(ctx)
	if store.calls != 1 || bank[0].Content.Options[0] != "Surplus value" {
		t.Fatalf("expected cache hit, store calls=%d", store.calls)
	}

	if err := cache.DeleteQuestion(ctx, bank[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(bankKey) {
		t.Fatalf("expected write to invalidate the cached bank")
	}
	bank, _ = cache.ListQuestions(ctx)
	if len(bank) != 0 || store.calls != 2 {
		t.Fatalf("expected refetch after delete, got %d questions, %d calls", len(bank), store.calls)
	}
}

func TestQuestionCacheTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := &countingQuestions{QuestionStore: memory.NewStore(nil, nil)}
	cache := NewQuestionCache(newClient(mr), store, time.Minute)
	_, _ = cache.ListQuestions(context.Background())

	ttl := mr.TTL(bankKey)
	if ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl within jitter window, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	_, _ = cache.ListQuestions(context.Background())
	if store.calls != 2 {
		t.Fatalf("expected expiry to refetch, calls=%d", store.calls)
	}
}

func TestBrokerDeliversToSubscribers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	broker := NewBroker(newClient(mr), nil)
	msgs, cancel, err := broker.Subscribe(ctx, "room:r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := broker.Publish(ctx, "room:r1", []byte(`{"type":"UPDATE"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(ctx, "room:r2", []byte(`ignored`)); err != nil {
		t.Fatalf("publish other: %v", err)
	}

	select {
	case got := <-msgs:
		if string(got) != `{"type":"UPDATE"}` {
			t.Fatalf("unexpected payload %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message delivered")
	}

	cancel()
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatalf("expected no further payloads after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestChangeFeedOverRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	broker := NewBroker(newClient(mr), nil)
	store := memory.NewStore(app.NewNotifier(broker, nil), nil)
	feed := app.NewChangeFeed(broker, store, nil)

	room, err := store.CreateRoom(ctx, "MLN-01")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	updates := make(chan domain.Room, 4)
	sub, err := feed.SubscribeToRoom(ctx, room.ID, func(r domain.Room) { updates <- r })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := store.UpdateRoomStatus(ctx, room.ID, domain.RoomPlaying); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case got := <-updates:
		if got.Status != domain.RoomPlaying {
			t.Fatalf("unexpected room %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("room update not delivered")
	}
}

type countingQuestions struct {
	app.QuestionStore
	calls int
}

func (c *countingQuestions) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	c.calls++
	return c.QuestionStore.ListQuestions(ctx)
}

func sampleContent() domain.QuestionContent {
	return domain.QuestionContent{
		Question:     "Which theory is the cornerstone of Marxist political economy?",
		Options:      []string{"Surplus value", "Class struggle", "Historical materialism", "Mission of the working class"},
		CorrectIndex: 0,
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
