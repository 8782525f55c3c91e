package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/items"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

const (
	roomColumns   = `id, room_code, status, current_question_index, created_at`
	playerColumns = `id, room_id, name, score, item_inventory, is_admin, joined_at`
)

// Store implements app.Store on Postgres. Inventory and score writes lock the player row, so
// concurrent consumes from several devices serialize instead of losing updates.
type Store struct {
	pool     *pgxpool.Pool
	notifier *app.Notifier
	pick     items.Picker
}

func NewStore(pool *pgxpool.Pool, notifier *app.Notifier, pick items.Picker) *Store {
	if pick == nil {
		pick = items.UniformPicker()
	}
	return &Store{pool: pool, notifier: notifier, pick: pick}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row scanner) (domain.Room, error) {
	var room domain.Room
	var status string
	if err := row.Scan(&room.ID, &room.Code, &status, &room.CurrentQuestionIndex, &room.CreatedAt); err != nil {
		return domain.Room{}, err
	}
	room.Status = domain.RoomStatus(status)
	return room, nil
}

func scanPlayer(row scanner) (domain.Player, error) {
	var p domain.Player
	var inventory []byte
	if err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.Score, &inventory, &p.IsAdmin, &p.JoinedAt); err != nil {
		return domain.Player{}, err
	}
	if err := json.Unmarshal(inventory, &p.Inventory); err != nil {
		return domain.Player{}, fmt.Errorf("decode inventory of %s: %w", p.ID, err)
	}
	return p, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID))
	if err != nil {
		return domain.Room{}, notFound(err, domain.ErrRoomNotFound)
	}
	return room, nil
}

func (s *Store) CreateRoom(ctx context.Context, code string) (domain.Room, error) {
	code, err := app.NormalizeRoomCode(code)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := scanRoom(s.pool.QueryRow(ctx,
		`INSERT INTO rooms (id, room_code, status) VALUES ($1, $2, $3) RETURNING `+roomColumns,
		uuid.NewString(), code, string(domain.RoomWaiting)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Room{}, domain.ErrRoomCodeTaken
		}
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomInserted, Room: room})
	return room, nil
}

func (s *Store) JoinRoom(ctx context.Context, code, name string) (domain.Room, domain.Player, error) {
	code, name, err := app.NormalizeJoin(code, name)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	var room domain.Room
	var player domain.Player
	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		// FOR SHARE keeps the room from starting while the player row is inserted.
		r, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code = $1 FOR SHARE`, code))
		if err != nil {
			return notFound(err, domain.ErrRoomNotFound)
		}
		if r.Status != domain.RoomWaiting {
			return domain.ErrRoomAlreadyStarted
		}
		inventory, err := json.Marshal(domain.Inventory{})
		if err != nil {
			return err
		}
		p, err := scanPlayer(tx.QueryRow(ctx,
			`INSERT INTO players (id, room_id, name, item_inventory) VALUES ($1, $2, $3, $4::jsonb) RETURNING `+playerColumns,
			uuid.NewString(), r.ID, name, string(inventory)))
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		room, player = r, p
		return nil
	})
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	s.notifier.PlayerChanged(ctx, player)
	return room, player, nil
}

func (s *Store) UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	var updated domain.Room
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		room, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, roomID))
		if err != nil {
			return notFound(err, domain.ErrRoomNotFound)
		}
		if !room.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, room.Status, status)
		}
		updated, err = scanRoom(tx.QueryRow(ctx,
			`UPDATE rooms SET status = $2 WHERE id = $1 RETURNING `+roomColumns, roomID, string(status)))
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomUpdated, Room: updated})
	return nil
}

func (s *Store) AdvanceQuestion(ctx context.Context, roomID string, nextIndex int) error {
	if nextIndex < 0 {
		return fmt.Errorf("question index must not be negative, got %d", nextIndex)
	}
	room, err := scanRoom(s.pool.QueryRow(ctx,
		`UPDATE rooms SET current_question_index = $2 WHERE id = $1 RETURNING `+roomColumns, roomID, nextIndex))
	if err != nil {
		return notFound(err, domain.ErrRoomNotFound)
	}
	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomUpdated, Room: room})
	return nil
}

// DeleteRoom removes the room; players, answers and usage events go with it.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := scanRoom(s.pool.QueryRow(ctx, `DELETE FROM rooms WHERE id = $1 RETURNING `+roomColumns, roomID))
	if err != nil {
		return notFound(err, domain.ErrRoomNotFound)
	}
	s.notifier.RoomChanged(ctx, domain.RoomChange{Type: domain.RoomDeleted, Room: room})
	return nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, content, created_at FROM questions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		var content []byte
		if err := rows.Scan(&q.ID, &content, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(content, &q.Content); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, content domain.QuestionContent) (domain.Question, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return domain.Question{}, err
	}
	q := domain.Question{ID: uuid.NewString(), Content: content}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO questions (id, content) VALUES ($1, $2::jsonb) RETURNING created_at`,
		q.ID, string(data)).Scan(&q.CreatedAt)
	if err != nil {
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, questionID string, content domain.QuestionContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE questions SET content = $2::jsonb WHERE id = $1`, questionID, string(data))
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id = $1 ORDER BY score DESC, join_seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	if err != nil {
		return domain.Player{}, notFound(err, domain.ErrPlayerNotFound)
	}
	return p, nil
}

func lockPlayer(ctx context.Context, tx pgx.Tx, playerID string) (domain.Player, error) {
	p, err := scanPlayer(tx.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, playerID))
	if err != nil {
		return domain.Player{}, notFound(err, domain.ErrPlayerNotFound)
	}
	return p, nil
}

func savePlayer(ctx context.Context, tx pgx.Tx, p domain.Player) (domain.Player, error) {
	inventory, err := json.Marshal(p.Inventory)
	if err != nil {
		return domain.Player{}, err
	}
	return scanPlayer(tx.QueryRow(ctx,
		`UPDATE players SET score = $2, item_inventory = $3::jsonb WHERE id = $1 RETURNING `+playerColumns,
		p.ID, p.Score, string(inventory)))
}

// SubmitAnswer records the answer, adds the points and rolls the reward in one transaction.
func (s *Store) SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	points := submission.Points
	if points < 0 {
		points = 0
	}

	var player domain.Player
	var rewarded *domain.ItemKind
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		p, err := lockPlayer(ctx, tx, submission.PlayerID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO answers (id, player_id, question_id, is_correct, time_used_ms, points) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), p.ID, submission.QuestionID, submission.IsCorrect, submission.TimeUsedMs, points)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		p.Score += points
		p.Inventory, rewarded = items.RewardOnCorrectAnswer(p.Inventory, submission.IsCorrect, s.pick)
		player, err = savePlayer(ctx, tx, p)
		return err
	})
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	s.notifier.PlayerChanged(ctx, player)
	return domain.AnswerOutcome{
		NewScore:     player.Score,
		NewInventory: player.Inventory,
		RewardedItem: rewarded,
	}, nil
}

func (s *Store) ConsumeItem(ctx context.Context, playerID string, kind domain.ItemKind) (domain.Inventory, error) {
	var player domain.Player
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		p, err := lockPlayer(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if p.Inventory, err = p.Inventory.Take(kind); err != nil {
			return err
		}
		player, err = savePlayer(ctx, tx, p)
		return err
	})
	if err != nil {
		return domain.Inventory{}, err
	}
	s.notifier.PlayerChanged(ctx, player)
	return player.Inventory, nil
}

func (s *Store) UseItem(ctx context.Context, usage domain.ItemUsage) (domain.ItemUsage, error) {
	if err := app.CheckItemTarget(usage); err != nil {
		return domain.ItemUsage{}, err
	}
	usage.ID = uuid.NewString()
	// Both players must exist and share a room; otherwise nothing is inserted.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO items_used (id, from_player_id, to_player_id, item_type, question_index)
		SELECT $1::text, f.id, t.id, $4::text, $5::integer
		FROM players f JOIN players t ON t.room_id = f.room_id
		WHERE f.id = $2 AND t.id = $3
		RETURNING created_at`,
		usage.ID, usage.FromPlayerID, usage.ToPlayerID, usage.Kind.String(), usage.QuestionIndex).Scan(&usage.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ItemUsage{}, fmt.Errorf("%w: players not found in one room", domain.ErrInvalidTarget)
		}
		return domain.ItemUsage{}, fmt.Errorf("record item usage: %w", err)
	}
	s.notifier.ItemUsed(ctx, usage)
	return usage, nil
}
