package client

import (
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/session"
)

type NotificationKind string

const (
	NoteQuestion     NotificationKind = "question"
	NoteAnswered     NotificationKind = "answered"
	NoteReward       NotificationKind = "reward"
	NoteItemUsed     NotificationKind = "item_used"
	NoteItemReceived NotificationKind = "item_received"
	NoteBlocked      NotificationKind = "blocked"
	NoteFinished     NotificationKind = "finished"
	NoteError        NotificationKind = "error"
)

// Notification is one event for the presentation layer.
type Notification struct {
	Kind     NotificationKind
	Room     domain.Room
	Question *domain.Question
	Result   *session.Result
	Item     domain.ItemKind
	// Player is the other side of an item event: the sender for received and blocked items,
	// the target for used ones.
	Player string
	Err    error
}

const notificationBuffer = 64

func (s *Session) notify(n Notification) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notes <- n:
		return
	default:
	}
	// Reader is behind: drop the oldest so the newest state still gets through.
	select {
	case dropped := <-s.notes:
		s.logger.Warn("notification dropped", "kind", dropped.Kind)
	default:
	}
	select {
	case s.notes <- n:
	default:
	}
}
