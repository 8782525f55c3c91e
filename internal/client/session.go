package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/items"
	"mln131-quiz/internal/roomsync"
	"mln131-quiz/internal/session"
	"golang.org/x/sync/errgroup"
)

// Options tune a joined session. Zero values fall back to the game defaults.
type Options struct {
	QuestionLimit int
	Countdown     session.Config
	PollInterval  time.Duration
	Logger        *slog.Logger
}

// Session is everything one joined player owns: the room model, the countdown, the item
// engine and the change-feed subscriptions. It lives from Join until Close.
type Session struct {
	gw         app.Gateway
	room       domain.Room
	player     domain.Player
	limit      int
	model      *roomsync.Model
	controller *session.Controller
	engine     *items.Engine
	poller     *roomsync.Poller
	logger     *slog.Logger

	mu        sync.Mutex
	questions []domain.Question

	notesMu sync.Mutex
	notes   chan Notification
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	subs      []app.Subscription
	closeOnce sync.Once
	err       error
}

// Join adds a new player to the waiting room with the given code and starts syncing it.
func Join(ctx context.Context, gw app.Gateway, code, name string, opts Options) (*Session, error) {
	code, name, err := app.NormalizeJoin(code, name)
	if err != nil {
		return nil, err
	}
	room, player, err := gw.JoinRoom(ctx, code, name)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room_id", room.ID, "player_id", player.ID)
	limit := opts.QuestionLimit
	if limit <= 0 {
		limit = app.DefaultQuestionLimit
	}

	s := &Session{
		gw:     gw,
		room:   room,
		player: player,
		limit:  limit,
		engine: items.NewEngine(gw, player.ID, player.Inventory, logger),
		logger: logger,
		notes:  make(chan Notification, notificationBuffer),
	}
	s.controller = session.NewController(player.ID, gw, opts.Countdown, logger)
	s.model = roomsync.NewModel(room.ID, player.ID, roomsync.Handlers{
		OnQuestion: s.onQuestion,
		OnFinished: s.onFinished,
		OnRoster:   s.onRoster,
	})
	s.poller = roomsync.NewPoller(gw, s.model, opts.PollInterval, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)
	s.ctx, s.cancel, s.group = runCtx, cancel, group

	if _, err := s.loadQuestions(ctx); err != nil {
		s.logger.Warn("load questions", "error", err)
	}
	s.model.ApplyRoom(room)
	s.subscribe()
	if err := s.poller.Poll(ctx); err != nil {
		s.Close()
		return nil, err
	}

	group.Go(func() error {
		return s.controller.Run(runCtx, s.onTimeout)
	})
	group.Go(func() error {
		err := s.poller.Run(runCtx)
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.notify(Notification{Kind: NoteError, Err: err})
		}
		return err
	})
	s.logger.Info("joined room", "code", room.Code, "name", player.Name)
	return s, nil
}

// subscribe registers the change feeds. A feed that fails to register leaves the poller as
// the only source of updates.
func (s *Session) subscribe() {
	register := func(what string, sub app.Subscription, err error) {
		if err != nil {
			s.logger.Warn("subscribe", "feed", what, "error", err)
			return
		}
		s.subs = append(s.subs, sub)
	}
	sub, err := s.gw.SubscribeToRoom(s.ctx, s.room.ID, func(room domain.Room) { s.model.ApplyRoom(room) })
	register("room", sub, err)
	sub, err = s.gw.SubscribeToPlayers(s.ctx, s.room.ID, func(players []domain.Player) { s.model.ApplyRoster(players) })
	register("players", sub, err)
	sub, err = s.gw.SubscribeToItems(s.ctx, s.player.ID, s.onIncoming)
	register("items", sub, err)
}

func (s *Session) loadQuestions(ctx context.Context) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.questions != nil {
		return s.questions, nil
	}
	bank, err := s.gw.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	s.questions = app.RoomQuestionSet(s.room.ID, bank, s.limit)
	return s.questions, nil
}

func (s *Session) onQuestion(room domain.Room) {
	questions, err := s.loadQuestions(s.ctx)
	if err != nil {
		s.notify(Notification{Kind: NoteError, Room: room, Err: fmt.Errorf("load questions: %w", err)})
		return
	}
	index := room.CurrentQuestionIndex
	if index < 0 || index >= len(questions) {
		s.notify(Notification{Kind: NoteError, Room: room, Err: fmt.Errorf("question %d: %w", index, domain.ErrQuestionNotFound)})
		return
	}
	q := questions[index]
	if s.controller.EnterQuestion(index, q) {
		s.notify(Notification{Kind: NoteQuestion, Room: room, Question: &q})
	}
}

func (s *Session) onFinished(room domain.Room) {
	s.controller.Stop()
	s.notify(Notification{Kind: NoteFinished, Room: room})
}

func (s *Session) onRoster(_ []domain.Player, _ int) {
	if me, ok := s.model.Me(); ok {
		s.engine.Reconcile(me.Inventory)
	}
}

func (s *Session) onIncoming(usage domain.ItemUsage) {
	out, err := s.engine.Intercept(s.ctx, usage)
	if err != nil {
		s.logger.Warn("intercept item", "kind", usage.Kind, "error", err)
	}
	switch {
	case out.Self:
		return
	case out.Blocked:
		s.notify(Notification{Kind: NoteBlocked, Item: usage.Kind, Player: usage.FromPlayerID})
		return
	}
	if err := out.Effect.Apply(s.controller); err != nil {
		s.logger.Warn("apply item effect", "kind", usage.Kind, "error", err)
	}
	s.notify(Notification{Kind: NoteItemReceived, Item: usage.Kind, Player: usage.FromPlayerID})
}

func (s *Session) onTimeout(res session.Result, err error) {
	if err != nil {
		s.notify(Notification{Kind: NoteError, Err: err})
		return
	}
	s.answered(res)
}

func (s *Session) answered(res session.Result) {
	s.engine.Reconcile(res.Outcome.NewInventory)
	s.notify(Notification{Kind: NoteAnswered, Result: &res})
	if res.Outcome.RewardedItem != nil {
		s.notify(Notification{Kind: NoteReward, Item: *res.Outcome.RewardedItem})
	}
}

// Answer submits option for the current question.
func (s *Session) Answer(ctx context.Context, option int) (session.Result, error) {
	res, err := s.controller.Select(ctx, option)
	if err != nil {
		return session.Result{}, err
	}
	s.answered(res)
	return res, nil
}

// UseItem spends one item of kind. Debuffs need the display name of another player in the
// room; buffs ignore targetName and land on the local player right away.
func (s *Session) UseItem(ctx context.Context, kind domain.ItemKind, targetName string) (items.Effect, error) {
	if !kind.Valid() {
		return items.Effect{}, domain.ErrInvalidTarget
	}
	var targetID string
	if kind.IsDebuff() {
		target, ok := s.model.Lookup(targetName)
		if !ok {
			return items.Effect{}, fmt.Errorf("%q: %w", targetName, domain.ErrPlayerNotFound)
		}
		targetID = target.ID
	}
	if kind == domain.TimeExtend {
		// The countdown stays paused until the bought seconds land.
		if err := s.controller.HoldExtend(); err != nil {
			return items.Effect{}, err
		}
		defer s.controller.ReleaseExtend()
	}

	room, _ := s.model.Room()
	effect, err := s.engine.Use(ctx, targetID, kind, room.CurrentQuestionIndex)
	if err != nil {
		return items.Effect{}, err
	}
	if !kind.IsDebuff() {
		if err := effect.Apply(s.controller); err != nil {
			return effect, fmt.Errorf("apply %s: %w", kind, err)
		}
	}
	s.notify(Notification{Kind: NoteItemUsed, Item: kind, Player: targetID})
	return effect, nil
}

func (s *Session) Room() domain.Room {
	room, _ := s.model.Room()
	return room
}

func (s *Session) Player() domain.Player { return s.player }

func (s *Session) Inventory() domain.Inventory { return s.engine.Inventory() }

func (s *Session) Countdown() session.State { return s.controller.Snapshot() }

func (s *Session) Leaderboard() []roomsync.Standing { return s.model.Leaderboard() }

func (s *Session) Rank() int { return s.model.Rank() }

// Notifications delivers events in order. The channel is closed by Close.
func (s *Session) Notifications() <-chan Notification { return s.notes }

// Done is closed once the session stops, either through Close or because the room vanished.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Close unsubscribes every feed and stops the countdown and poll loops. Writes already in
// flight complete on their own.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.cancel()
		if err := s.group.Wait(); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			s.err = err
		}
		s.notesMu.Lock()
		s.closed = true
		close(s.notes)
		s.notesMu.Unlock()
		s.logger.Info("left room")
	})
	return s.err
}
