package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/items"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of app.Store. A single mutex serializes every write,
// which gives the same per-row atomicity the SQL store gets from row locks.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]*domain.Room
	roomOrder []string
	players   map[string]*playerRow
	joinSeq   int64
	questions map[string]*domain.Question
	qOrder    []string
	answers   []domain.AnswerRecord
	usages    []domain.ItemUsage

	notifier *app.Notifier
	pick     items.Picker
	now      func() time.Time
}

type playerRow struct {
	player domain.Player
	seq    int64
}

func NewStore(notifier *app.Notifier, pick items.Picker) *Store {
	return NewStoreWithClock(notifier, pick, time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(notifier *app.Notifier, pick items.Picker, now func() time.Time) *Store {
	if pick == nil {
		pick = items.UniformPicker()
	}
	return &Store{
		rooms:     make(map[string]*domain.Room),
		players:   make(map[string]*playerRow),
		questions: make(map[string]*domain.Question),
		notifier:  notifier,
		pick:      pick,
		now:       now,
	}
}

func (s *Store) ListRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.roomOrder))
	for i := len(s.roomOrder) - 1; i >= 0; i-- {
		if room, ok := s.rooms[s.roomOrder[i]]; ok {
			out = append(out, *room)
		}
	}
	return out, nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *room, nil
}

func (s *Store) CreateRoom(ctx context.Context, code string) (domain.Room, error) {
	code, err := app.NormalizeRoomCode(code)
	if err != nil {
		return domain.Room{}, err
	}

	s.mu.Lock()
	if s.roomByCodeLocked(code) != nil {
		s.mu.Unlock()
		return domain.Room{}, domain.ErrRoomCodeTaken
	}
	room := &domain.Room{
		ID:        uuid.NewString(),
		Code:      code,
		Status:    domain.RoomWaiting,
		CreatedAt: s.now(),
	}
	s.rooms[room.ID] = room
	s.roomOrder = append(s.roomOrder, room.ID)
	created := *room
	s.mu.Unlock()

	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomInserted, Room: created})
	return created, nil
}

func (s *Store) JoinRoom(ctx context.Context, code, name string) (domain.Room, domain.Player, error) {
	code, name, err := app.NormalizeJoin(code, name)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	s.mu.Lock()
	room := s.roomByCodeLocked(code)
	if room == nil {
		s.mu.Unlock()
		return domain.Room{}, domain.Player{}, domain.ErrRoomNotFound
	}
	if room.Status != domain.RoomWaiting {
		s.mu.Unlock()
		return domain.Room{}, domain.Player{}, domain.ErrRoomAlreadyStarted
	}
	s.joinSeq++
	row := &playerRow{
		player: domain.Player{
			ID:       uuid.NewString(),
			RoomID:   room.ID,
			Name:     name,
			JoinedAt: s.now(),
		},
		seq: s.joinSeq,
	}
	s.players[row.player.ID] = row
	joinedRoom, player := *room, row.player
	s.mu.Unlock()

	s.notifier.PlayerChanged(ctx, player)
	return joinedRoom, player, nil
}

func (s *Store) UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRoomNotFound
	}
	if !room.Status.CanTransition(status) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, room.Status, status)
	}
	room.Status = status
	updated := *room
	s.mu.Unlock()

	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomUpdated, Room: updated})
	return nil
}

func (s *Store) AdvanceQuestion(ctx context.Context, roomID string, nextIndex int) error {
	if nextIndex < 0 {
		return fmt.Errorf("question index must not be negative, got %d", nextIndex)
	}
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRoomNotFound
	}
	room.CurrentQuestionIndex = nextIndex
	updated := *room
	s.mu.Unlock()

	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomUpdated, Room: updated})
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrRoomNotFound
	}
	deleted := *room
	delete(s.rooms, roomID)
	for i, id := range s.roomOrder {
		if id == roomID {
			s.roomOrder = append(s.roomOrder[:i], s.roomOrder[i+1:]...)
			break
		}
	}
	for id, row := range s.players {
		if row.player.RoomID == roomID {
			delete(s.players, id)
		}
	}
	s.mu.Unlock()

	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomDeleted, Room: deleted})
	return nil
}

func (s *Store) roomByCodeLocked(code string) *domain.Room {
	for _, room := range s.rooms {
		if room.Code == code {
			return room
		}
	}
	return nil
}

func (s *Store) ListQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.qOrder))
	for _, id := range s.qOrder {
		if q, ok := s.questions[id]; ok {
			out = append(out, cloneQuestion(*q))
		}
	}
	return out, nil
}

func (s *Store) CreateQuestion(_ context.Context, content domain.QuestionContent) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := &domain.Question{
		ID:        uuid.NewString(),
		Content:   cloneContent(content),
		CreatedAt: s.now(),
	}
	s.questions[q.ID] = q
	s.qOrder = append(s.qOrder, q.ID)
	return cloneQuestion(*q), nil
}

func (s *Store) UpdateQuestion(_ context.Context, questionID string, content domain.QuestionContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.Content = cloneContent(content)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, questionID)
	for i, id := range s.qOrder {
		if id == questionID {
			s.qOrder = append(s.qOrder[:i], s.qOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.RLock()
	rows := make([]*playerRow, 0)
	for _, row := range s.players {
		if row.player.RoomID == roomID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].player.Score != rows[j].player.Score {
			return rows[i].player.Score > rows[j].player.Score
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]domain.Player, len(rows))
	for i, row := range rows {
		out[i] = row.player
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return row.player, nil
}

func (s *Store) SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	points := submission.Points
	if points < 0 {
		points = 0
	}

	s.mu.Lock()
	row, ok := s.players[submission.PlayerID]
	if !ok {
		s.mu.Unlock()
		return domain.AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	s.answers = append(s.answers, domain.AnswerRecord{
		ID:         uuid.NewString(),
		PlayerID:   submission.PlayerID,
		QuestionID: submission.QuestionID,
		IsCorrect:  submission.IsCorrect,
		TimeUsedMs: submission.TimeUsedMs,
		Points:     points,
		CreatedAt:  s.now(),
	})
	row.player.Score += points
	inv, rewarded := items.RewardOnCorrectAnswer(row.player.Inventory, submission.IsCorrect, s.pick)
	row.player.Inventory = inv
	player := row.player
	s.mu.Unlock()

	s.notifier.PlayerChanged(ctx, player)
	return domain.AnswerOutcome{
		NewScore:     player.Score,
		NewInventory: player.Inventory,
		RewardedItem: rewarded,
	}, nil
}

func (s *Store) ConsumeItem(ctx context.Context, playerID string, kind domain.ItemKind) (domain.Inventory, error) {
	s.mu.Lock()
	row, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return domain.Inventory{}, domain.ErrPlayerNotFound
	}
	inv, err := row.player.Inventory.Take(kind)
	if err != nil {
		s.mu.Unlock()
		return inv, err
	}
	row.player.Inventory = inv
	player := row.player
	s.mu.Unlock()

	s.notifier.PlayerChanged(ctx, player)
	return inv, nil
}

func (s *Store) UseItem(ctx context.Context, usage domain.ItemUsage) (domain.ItemUsage, error) {
	if err := app.CheckItemTarget(usage); err != nil {
		return domain.ItemUsage{}, err
	}

	s.mu.Lock()
	from, ok := s.players[usage.FromPlayerID]
	if !ok {
		s.mu.Unlock()
		return domain.ItemUsage{}, domain.ErrPlayerNotFound
	}
	to, ok := s.players[usage.ToPlayerID]
	if !ok {
		s.mu.Unlock()
		return domain.ItemUsage{}, domain.ErrPlayerNotFound
	}
	if from.player.RoomID != to.player.RoomID {
		s.mu.Unlock()
		return domain.ItemUsage{}, domain.ErrInvalidTarget
	}
	usage.ID = uuid.NewString()
	usage.CreatedAt = s.now()
	s.usages = append(s.usages, usage)
	s.mu.Unlock()

	s.notifier.ItemUsed(ctx, usage)
	return usage, nil
}

// Answers returns a copy of the answer log for a player.
func (s *Store) Answers(playerID string) []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AnswerRecord
	for _, a := range s.answers {
		if a.PlayerID == playerID {
			out = append(out, a)
		}
	}
	return out
}

// Usages returns a copy of the item usage log.
func (s *Store) Usages() []domain.ItemUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ItemUsage(nil), s.usages...)
}

func cloneContent(c domain.QuestionContent) domain.QuestionContent {
	c.Options = append([]string(nil), c.Options...)
	return c
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Content = cloneContent(q.Content)
	return q
}
