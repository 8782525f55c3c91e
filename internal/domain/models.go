package domain

import (
	"strings"
	"time"
)

// RoomStatus is the lifecycle stage of a room. Rooms only move forward.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// Order ranks statuses along the room lifecycle; unknown statuses rank below waiting.
func (s RoomStatus) Order() int {
	switch s {
	case RoomWaiting:
		return 1
	case RoomPlaying:
		return 2
	case RoomFinished:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s RoomStatus) Valid() bool {
	return s.Order() > 0
}

// CanTransition reports whether a room in status s may move to status to.
func (s RoomStatus) CanTransition(to RoomStatus) bool {
	switch s {
	case RoomWaiting:
		return to == RoomPlaying || to == RoomFinished
	case RoomPlaying:
		return to == RoomFinished
	}
	return false
}

// Room is a single game instance addressed by a human-shareable code.
type Room struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"room_code"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	CreatedAt            time.Time  `json:"created_at"`
}

// RoomChangeType mirrors the row-level operation that produced a room change.
type RoomChangeType string

const (
	RoomInserted RoomChangeType = "INSERT"
	RoomUpdated  RoomChangeType = "UPDATE"
	RoomDeleted  RoomChangeType = "DELETE"
)

// RoomChange is delivered to subscribers of the all-rooms feed.
type RoomChange struct {
	Type RoomChangeType `json:"type"`
	Room Room           `json:"room"`
}

// Player is a participant of exactly one room.
type Player struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Inventory Inventory `json:"item_inventory"`
	IsAdmin   bool      `json:"is_admin"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Question difficulty labels.
const (
	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// OptionCount is the fixed number of answer options per question.
const OptionCount = 4

// QuestionContent is the admin-authored body of a question.
type QuestionContent struct {
	Question     string   `json:"question" yaml:"question"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correct_index" yaml:"correct_index"`
	Difficulty   string   `json:"difficulty" yaml:"difficulty"`
}

// Normalize trims text fields and fills in the default difficulty.
func (c QuestionContent) Normalize() QuestionContent {
	out := QuestionContent{
		Question:     strings.TrimSpace(c.Question),
		Options:      make([]string, len(c.Options)),
		CorrectIndex: c.CorrectIndex,
		Difficulty:   strings.ToLower(strings.TrimSpace(c.Difficulty)),
	}
	for i, opt := range c.Options {
		out.Options[i] = strings.TrimSpace(opt)
	}
	if out.Difficulty == "" {
		out.Difficulty = DifficultyNormal
	}
	return out
}

// Validate checks a normalized question body.
func (c QuestionContent) Validate() error {
	if c.Question == "" {
		return invalidQuestion("question text is required")
	}
	if len(c.Options) != OptionCount {
		return invalidQuestion("exactly 4 options are required")
	}
	for _, opt := range c.Options {
		if opt == "" {
			return invalidQuestion("all 4 options must be filled in")
		}
	}
	if c.CorrectIndex < 0 || c.CorrectIndex >= OptionCount {
		return invalidQuestion("correct index must be between 0 and 3")
	}
	switch c.Difficulty {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
	default:
		return invalidQuestion("difficulty must be easy, normal or hard")
	}
	return nil
}

// Question is immutable for the duration of a session.
type Question struct {
	ID        string          `json:"id"`
	Content   QuestionContent `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// AnswerRecord is the append-only record of one submission.
type AnswerRecord struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	QuestionID string    `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
	TimeUsedMs int       `json:"time_used"`
	Points     int       `json:"points_awarded"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnswerSubmission is what a client sends after scoring locally.
type AnswerSubmission struct {
	PlayerID   string `json:"player_id"`
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
	TimeUsedMs int    `json:"time_used"`
	Points     int    `json:"points"`
}

// AnswerOutcome is the persisted result of a submission.
type AnswerOutcome struct {
	NewScore     int       `json:"new_score"`
	NewInventory Inventory `json:"new_inventory"`
	RewardedItem *ItemKind `json:"rewarded_item"`
}

// ItemUsage is the append-only event that records, and delivers, an item use.
type ItemUsage struct {
	ID            string    `json:"id"`
	FromPlayerID  string    `json:"from_player_id"`
	ToPlayerID    string    `json:"to_player_id"`
	Kind          ItemKind  `json:"item_type"`
	QuestionIndex int       `json:"question_index"`
	CreatedAt     time.Time `json:"created_at"`
}
