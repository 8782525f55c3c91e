package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/items"
)

func TestJoinRoomScenarios(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, items.FixedPicker(domain.Shield))

	room, err := store.CreateRoom(ctx, " MLN-01 ")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.Code != "MLN-01" || room.Status != domain.RoomWaiting {
		t.Fatalf("unexpected room %+v", room)
	}
	if _, err := store.CreateRoom(ctx, "MLN-01"); !errors.Is(err, domain.ErrRoomCodeTaken) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}

	joined, player, err := store.JoinRoom(ctx, "MLN-01", "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != room.ID || player.Score != 0 || player.Inventory.Total() != 0 {
		t.Fatalf("expected fresh player in room, got %+v", player)
	}

	if _, _, err := store.JoinRoom(ctx, "NOPE", "Bob"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
	if _, _, err := store.JoinRoom(ctx, "MLN-01", "  "); !errors.Is(err, domain.ErrPlayerNameRequired) {
		t.Fatalf("expected name required, got %v", err)
	}

	if err := store.UpdateRoomStatus(ctx, room.ID, domain.RoomPlaying); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := store.JoinRoom(ctx, "MLN-01", "Bob"); !errors.Is(err, domain.ErrRoomAlreadyStarted) {
		t.Fatalf("expected room already started, got %v", err)
	}
}

func TestRoomStatusIsTerminalOnceFinished(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, nil)
	room, _ := store.CreateRoom(ctx, "R1")

	if err := store.UpdateRoomStatus(ctx, room.ID, domain.RoomFinished); err != nil {
		t.Fatalf("finish: %v", err)
	}
	for _, status := range []domain.RoomStatus{domain.RoomWaiting, domain.RoomPlaying, domain.RoomFinished} {
		if err := store.UpdateRoomStatus(ctx, room.ID, status); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("finished -> %s: expected invalid transition, got %v", status, err)
		}
	}
	got, _ := store.GetRoom(ctx, room.ID)
	if got.Status != domain.RoomFinished {
		t.Fatalf("expected finished, got %s", got.Status)
	}
}

func TestSubmitAnswerScoresAndRewards(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, items.FixedPicker(domain.TimeAttack))
	_, _ = store.CreateRoom(ctx, "R1")
	_, player, _ := store.JoinRoom(ctx, "R1", "Alice")

	outcome, err := store.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: player.ID, QuestionID: "q1", IsCorrect: true, TimeUsedMs: 3000, Points: 170,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.NewScore != 170 || outcome.RewardedItem == nil || *outcome.RewardedItem != domain.TimeAttack {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.NewInventory.Count(domain.TimeAttack) != 1 || outcome.NewInventory.Total() != 1 {
		t.Fatalf("expected exactly one time_attack, got %v", outcome.NewInventory)
	}

	outcome, err = store.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: player.ID, QuestionID: "q2", IsCorrect: false, TimeUsedMs: 30000,
	})
	if err != nil {
		t.Fatalf("submit wrong: %v", err)
	}
	if outcome.NewScore != 170 || outcome.RewardedItem != nil || outcome.NewInventory.Total() != 1 {
		t.Fatalf("wrong answer must not change score or inventory, got %+v", outcome)
	}
	if n := len(store.Answers(player.ID)); n != 2 {
		t.Fatalf("expected 2 answer records, got %d", n)
	}

	if _, err := store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: "ghost"}); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestConsumeItemNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, items.FixedPicker(domain.Shield))
	_, _ = store.CreateRoom(ctx, "R1")
	_, player, _ := store.JoinRoom(ctx, "R1", "Alice")
	_, _ = store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: player.ID, IsCorrect: true, Points: 200})

	inv, err := store.ConsumeItem(ctx, player.ID, domain.Shield)
	if err != nil || inv.Count(domain.Shield) != 0 {
		t.Fatalf("consume shield: inv=%v err=%v", inv, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.ConsumeItem(ctx, player.ID, domain.Shield); !errors.Is(err, domain.ErrInsufficientItem) {
			t.Fatalf("expected insufficient item, got %v", err)
		}
	}
	got, _ := store.GetPlayer(ctx, player.ID)
	if got.Inventory.Count(domain.Shield) != 0 {
		t.Fatalf("inventory went negative: %v", got.Inventory)
	}
}

func TestConcurrentConsumeSpendsEachItemOnce(t *testing.T) {
	const held, workers = 3, 10
	ctx := context.Background()
	store := NewStore(nil, items.FixedPicker(domain.TimeAttack))
	_, _ = store.CreateRoom(ctx, "R1")
	_, player, _ := store.JoinRoom(ctx, "R1", "Alice")
	for i := 0; i < held; i++ {
		if _, err := store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: player.ID, IsCorrect: true, Points: 100}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.ConsumeItem(ctx, player.ID, domain.TimeAttack)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientItem):
			insufficient++
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if ok != held || insufficient != workers-held {
		t.Fatalf("expected %d successes and %d refusals, got %d and %d", held, workers-held, ok, insufficient)
	}
	got, _ := store.GetPlayer(ctx, player.ID)
	if got.Inventory.Count(domain.TimeAttack) != 0 {
		t.Fatalf("expected all items spent, got %v", got.Inventory)
	}
}

func TestListPlayersOrdersByScoreThenJoin(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, nil)
	room, _ := store.CreateRoom(ctx, "R1")
	_, a, _ := store.JoinRoom(ctx, "R1", "A")
	_, b, _ := store.JoinRoom(ctx, "R1", "B")
	_, c, _ := store.JoinRoom(ctx, "R1", "C")

	_, _ = store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: c.ID, IsCorrect: true, Points: 500})
	_, _ = store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: a.ID, IsCorrect: true, Points: 300})
	_, _ = store.SubmitAnswer(ctx, domain.AnswerSubmission{PlayerID: b.ID, IsCorrect: true, Points: 500})

	players, err := store.ListPlayers(ctx, room.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	want := []string{b.ID, c.ID, a.ID}
	for i, id := range want {
		if players[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (%+v)", i, id, players[i].ID, players)
		}
	}
}

func TestUseItemValidatesTargets(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, nil)
	_, _ = store.CreateRoom(ctx, "R1")
	_, _ = store.CreateRoom(ctx, "R2")
	_, a, _ := store.JoinRoom(ctx, "R1", "A")
	_, b, _ := store.JoinRoom(ctx, "R1", "B")
	_, other, _ := store.JoinRoom(ctx, "R2", "X")

	cases := []domain.ItemUsage{
		{FromPlayerID: a.ID, ToPlayerID: a.ID, Kind: domain.TimeAttack},
		{FromPlayerID: a.ID, ToPlayerID: b.ID, Kind: domain.Shield},
		{FromPlayerID: a.ID, ToPlayerID: other.ID, Kind: domain.Confusion},
	}
	for i, usage := range cases {
		if _, err := store.UseItem(ctx, usage); !errors.Is(err, domain.ErrInvalidTarget) {
			t.Fatalf("case %d: expected invalid target, got %v", i, err)
		}
	}

	recorded, err := store.UseItem(ctx, domain.ItemUsage{FromPlayerID: a.ID, ToPlayerID: b.ID, Kind: domain.TimeAttack, QuestionIndex: 2})
	if err != nil {
		t.Fatalf("use item: %v", err)
	}
	if recorded.ID == "" || len(store.Usages()) != 1 {
		t.Fatalf("expected recorded usage, got %+v", recorded)
	}
}

func TestStorePublishesChanges(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker(nil)
	store := NewStore(app.NewNotifier(broker, nil), nil)
	room, _ := store.CreateRoom(ctx, "R1")

	roomCh, cancelRoom, _ := broker.Subscribe(ctx, app.RoomTopic(room.ID))
	defer cancelRoom()
	playersCh, cancelPlayers, _ := broker.Subscribe(ctx, app.PlayersTopic(room.ID))
	defer cancelPlayers()

	_, _, _ = store.JoinRoom(ctx, "R1", "Alice")
	_ = store.AdvanceQuestion(ctx, room.ID, 1)

	select {
	case <-playersCh:
	default:
		t.Fatalf("expected roster notification after join")
	}
	select {
	case <-roomCh:
	default:
		t.Fatalf("expected room notification after advance")
	}
}
