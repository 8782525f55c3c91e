package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/infra/memory"
	"mln131-quiz/internal/session"
)

type world struct {
	store *memory.Store
	gw    app.Gateway
	admin *app.AdminService
	room  domain.Room
	next  domain.ItemKind
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	w := &world{next: domain.Shield}
	broker := memory.NewBroker(nil)
	w.store = memory.NewStore(app.NewNotifier(broker, nil), func() domain.ItemKind { return w.next })
	w.gw = app.NewGateway(w.store, app.NewChangeFeed(broker, w.store, nil))
	w.admin = app.NewAdminService(w.store, 0, nil)

	for i, text := range []string{"Value?", "Surplus?", "Capital?"} {
		_, err := w.admin.CreateQuestion(ctx, domain.QuestionContent{
			Question:     text,
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: i,
		})
		if err != nil {
			t.Fatalf("create question: %v", err)
		}
	}
	room, err := w.admin.CreateRoom(ctx, "MLN-01")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	w.room = room
	return w
}

func (w *world) join(t *testing.T, name string) *Session {
	t.Helper()
	s, err := Join(context.Background(), w.gw, "MLN-01", name, Options{
		Countdown:    session.Config{TimeUnit: time.Hour},
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, s *Session, kind NotificationKind) Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n, ok := <-s.Notifications():
			if !ok {
				t.Fatalf("notifications closed while waiting for %s", kind)
			}
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestJoinRequiresWaitingRoom(t *testing.T) {
	w := newWorld(t)
	s := w.join(t, "Alice")
	if p := s.Player(); p.Score != 0 || p.Inventory.Total() != 0 {
		t.Fatalf("expected fresh player, got %+v", p)
	}

	if err := w.admin.StartRoom(context.Background(), w.room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := Join(context.Background(), w.gw, "MLN-01", "Bob", Options{})
	if !errors.Is(err, domain.ErrRoomAlreadyStarted) {
		t.Fatalf("expected room already started, got %v", err)
	}
	if _, err := Join(context.Background(), w.gw, "nope", "Bob", Options{}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
	if _, err := Join(context.Background(), w.gw, "  ", "Bob", Options{}); !errors.Is(err, domain.ErrRoomCodeRequired) {
		t.Fatalf("expected code required, got %v", err)
	}
}

func TestRoundTripThroughRoom(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.join(t, "Alice")
	bob := w.join(t, "Bob")

	if err := w.admin.StartRoom(ctx, w.room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	qa := waitFor(t, alice, NoteQuestion)
	qb := waitFor(t, bob, NoteQuestion)
	if qa.Question.ID != qb.Question.ID {
		t.Fatalf("players see different questions: %s vs %s", qa.Question.ID, qb.Question.ID)
	}

	w.next = domain.TimeAttack
	res, err := alice.Answer(ctx, qa.Question.Content.CorrectIndex)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Points != 200 || res.Outcome.NewScore != 200 {
		t.Fatalf("unexpected result %+v", res)
	}
	reward := waitFor(t, alice, NoteReward)
	if reward.Item != domain.TimeAttack || alice.Inventory().Count(domain.TimeAttack) != 1 {
		t.Fatalf("expected time_attack reward, got %s / %v", reward.Item, alice.Inventory())
	}
	if _, err := alice.Answer(ctx, 0); !errors.Is(err, domain.ErrAnswerLocked) {
		t.Fatalf("expected locked answer, got %v", err)
	}

	if _, err := bob.Answer(ctx, (qb.Question.Content.CorrectIndex+1)%domain.OptionCount); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	if _, err := w.admin.NextQuestion(ctx, w.room.ID); err != nil {
		t.Fatalf("next: %v", err)
	}
	next := waitFor(t, alice, NoteQuestion)
	if next.Room.CurrentQuestionIndex != 1 {
		t.Fatalf("expected question 1, got %d", next.Room.CurrentQuestionIndex)
	}

	if err := w.admin.EndRoom(ctx, w.room.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	waitFor(t, alice, NoteFinished)
	waitFor(t, bob, NoteFinished)

	deadline := time.Now().Add(2 * time.Second)
	for bob.Rank() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if alice.Rank() != 1 || bob.Rank() != 2 {
		t.Fatalf("unexpected ranks alice=%d bob=%d", alice.Rank(), bob.Rank())
	}
	board := bob.Leaderboard()
	if len(board) != 2 || board[0].Player.Name != "Alice" || board[0].Player.Score != 200 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestShieldBlocksIncomingAttack(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	attacker := w.join(t, "Attacker")
	defender := w.join(t, "Defender")

	if err := w.admin.StartRoom(ctx, w.room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	qa := waitFor(t, attacker, NoteQuestion)
	qd := waitFor(t, defender, NoteQuestion)

	w.next = domain.TimeAttack
	if _, err := attacker.Answer(ctx, qa.Question.Content.CorrectIndex); err != nil {
		t.Fatalf("attacker answer: %v", err)
	}
	w.next = domain.Shield
	if _, err := defender.Answer(ctx, qd.Question.Content.CorrectIndex); err != nil {
		t.Fatalf("defender answer: %v", err)
	}
	if _, err := w.admin.NextQuestion(ctx, w.room.ID); err != nil {
		t.Fatalf("next: %v", err)
	}
	waitFor(t, attacker, NoteQuestion)
	waitFor(t, defender, NoteQuestion)

	if _, err := attacker.UseItem(ctx, domain.TimeAttack, "Nobody"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected unknown target error, got %v", err)
	}
	if _, err := attacker.UseItem(ctx, domain.TimeAttack, "Defender"); err != nil {
		t.Fatalf("use time_attack: %v", err)
	}
	blocked := waitFor(t, defender, NoteBlocked)
	if blocked.Item != domain.TimeAttack || blocked.Player != attacker.Player().ID {
		t.Fatalf("unexpected blocked notification %+v", blocked)
	}
	if got := defender.Countdown().Remaining; got != session.DefaultBaseDuration {
		t.Fatalf("countdown changed by blocked attack: %d", got)
	}
	p, err := w.store.GetPlayer(ctx, defender.Player().ID)
	if err != nil || p.Inventory.Count(domain.Shield) != 0 {
		t.Fatalf("expected shield spent, got %v (%v)", p.Inventory, err)
	}
	if _, err := attacker.UseItem(ctx, domain.TimeAttack, "Defender"); !errors.Is(err, domain.ErrInsufficientItem) {
		t.Fatalf("expected insufficient item, got %v", err)
	}
}

func TestTimeExtendAfterAnswerSpendsNothing(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	s := w.join(t, "Alice")

	if err := w.admin.StartRoom(ctx, w.room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	q := waitFor(t, s, NoteQuestion)
	w.next = domain.TimeExtend
	if _, err := s.Answer(ctx, q.Question.Content.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := s.UseItem(ctx, domain.TimeExtend, ""); !errors.Is(err, domain.ErrAnswerLocked) {
		t.Fatalf("expected answer locked, got %v", err)
	}
	if s.Inventory().Count(domain.TimeExtend) != 1 {
		t.Fatalf("time_extend was spent: %v", s.Inventory())
	}

	if _, err := w.admin.NextQuestion(ctx, w.room.ID); err != nil {
		t.Fatalf("next: %v", err)
	}
	waitFor(t, s, NoteQuestion)
	if _, err := s.UseItem(ctx, domain.TimeExtend, ""); err != nil {
		t.Fatalf("use time_extend: %v", err)
	}
	if got := s.Countdown().Remaining; got != session.DefaultBaseDuration+5 {
		t.Fatalf("expected extended countdown, got %d", got)
	}
}

func TestCloseStopsSession(t *testing.T) {
	w := newWorld(t)
	s := w.join(t, "Alice")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected done after close")
	}
	if _, ok := <-s.Notifications(); ok {
		// Buffered notifications may remain; drain until closed.
		for range s.Notifications() {
		}
	}
}
