package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mln131-quiz/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrNoMoreQuestions is returned when advancing past the last question of a room.
var ErrNoMoreQuestions = errors.New("room is already on its last question")

// AdminService drives room progression and manages the question bank.
type AdminService struct {
	store         Store
	questionLimit int
	logger        *slog.Logger
}

func NewAdminService(store Store, questionLimit int, logger *slog.Logger) *AdminService {
	if questionLimit <= 0 {
		questionLimit = DefaultQuestionLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{store: store, questionLimit: questionLimit, logger: logger}
}

func (s *AdminService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return s.store.ListRooms(ctx)
}

func (s *AdminService) CreateRoom(ctx context.Context, code string) (domain.Room, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := s.store.CreateRoom(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	s.logger.Info("room created", "room_id", room.ID, "code", room.Code)
	return room, nil
}

// StartRoom moves a waiting room to playing.
func (s *AdminService) StartRoom(ctx context.Context, roomID string) error {
	return s.transition(ctx, roomID, domain.RoomPlaying)
}

// EndRoom finishes a room. Finished is terminal.
func (s *AdminService) EndRoom(ctx context.Context, roomID string) error {
	return s.transition(ctx, roomID, domain.RoomFinished)
}

func (s *AdminService) transition(ctx context.Context, roomID string, to domain.RoomStatus) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, room.Status, to)
	}
	if err := s.store.UpdateRoomStatus(ctx, roomID, to); err != nil {
		return err
	}
	s.logger.Info("room status changed", "room_id", roomID, "from", room.Status, "to", to)
	return nil
}

// NextQuestion advances a playing room by one question and returns the new index.
func (s *AdminService) NextQuestion(ctx context.Context, roomID string) (int, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if room.Status != domain.RoomPlaying {
		return room.CurrentQuestionIndex, fmt.Errorf("%w: room is %s", domain.ErrInvalidTransition, room.Status)
	}
	questions, err := s.QuestionSet(ctx, roomID)
	if err != nil {
		return room.CurrentQuestionIndex, err
	}
	next := room.CurrentQuestionIndex + 1
	if next >= len(questions) {
		return room.CurrentQuestionIndex, ErrNoMoreQuestions
	}
	if err := s.store.AdvanceQuestion(ctx, roomID, next); err != nil {
		return room.CurrentQuestionIndex, err
	}
	s.logger.Info("question advanced", "room_id", roomID, "index", next)
	return next, nil
}

func (s *AdminService) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	s.logger.Info("room deleted", "room_id", roomID)
	return nil
}

// QuestionSet returns the questions the given room plays, in order.
func (s *AdminService) QuestionSet(ctx context.Context, roomID string) ([]domain.Question, error) {
	bank, err := s.store.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	return RoomQuestionSet(roomID, bank, s.questionLimit), nil
}

func (s *AdminService) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx)
}

func (s *AdminService) CreateQuestion(ctx context.Context, content domain.QuestionContent) (domain.Question, error) {
	content = content.Normalize()
	if err := content.Validate(); err != nil {
		return domain.Question{}, err
	}
	return s.store.CreateQuestion(ctx, content)
}

func (s *AdminService) UpdateQuestion(ctx context.Context, questionID string, content domain.QuestionContent) error {
	content = content.Normalize()
	if err := content.Validate(); err != nil {
		return err
	}
	return s.store.UpdateQuestion(ctx, questionID, content)
}

func (s *AdminService) DeleteQuestion(ctx context.Context, questionID string) error {
	return s.store.DeleteQuestion(ctx, questionID)
}

// ImportQuestions reads a YAML list of question bodies and creates each one.
// Validation runs over the whole file before anything is written.
func (s *AdminService) ImportQuestions(ctx context.Context, r io.Reader) (int, error) {
	var contents []domain.QuestionContent
	if err := yaml.NewDecoder(r).Decode(&contents); err != nil {
		return 0, fmt.Errorf("decode question bank: %w", err)
	}
	for i := range contents {
		contents[i] = contents[i].Normalize()
		if err := contents[i].Validate(); err != nil {
			return 0, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	for i, content := range contents {
		if _, err := s.store.CreateQuestion(ctx, content); err != nil {
			return i, fmt.Errorf("create question %d: %w", i+1, err)
		}
	}
	s.logger.Info("questions imported", "count", len(contents))
	return len(contents), nil
}
