package roomsync

import (
	"sort"
	"sync"

	"mln131-quiz/internal/domain"
)

// Handlers are invoked after a reconcile changed the model, outside the model lock. Concurrent
// reconciles may deliver their handlers out of order, so receivers must ignore stale values
// themselves (the countdown never goes back to an earlier question). Any of them may be nil.
type Handlers struct {
	// OnRoom fires whenever the local room snapshot changed.
	OnRoom func(domain.Room)
	// OnQuestion fires when a playing room reaches a question index not seen before.
	OnQuestion func(room domain.Room)
	// OnFinished fires exactly once, the first time the room is seen finished.
	OnFinished func(domain.Room)
	// OnRoster fires after every roster reconcile.
	OnRoster func(players []domain.Player, rank int)
}

// Standing is one leaderboard row.
type Standing struct {
	Rank   int
	Player domain.Player
}

// Model is one client's view of a room and its roster. Feed notifications and poll results
// go through the same reconcile functions, so the order they arrive in does not matter.
type Model struct {
	roomID   string
	playerID string
	handlers Handlers

	mu       sync.Mutex
	room     domain.Room
	known    bool
	players  []domain.Player
	rank     int
	asked    int
	finished bool
}

func NewModel(roomID, playerID string, handlers Handlers) *Model {
	return &Model{roomID: roomID, playerID: playerID, handlers: handlers, asked: -1}
}

// Change reports what a single ApplyRoom call altered.
type Change struct {
	Room     bool
	Question bool
	Finished bool
}

// ApplyRoom merges a room read into the model. Status never regresses, the question index never
// decreases and finished is terminal, so stale or repeated reads are no-ops.
func (m *Model) ApplyRoom(in domain.Room) Change {
	if in.ID != m.roomID || !in.Status.Valid() {
		return Change{}
	}

	m.mu.Lock()
	merged := in
	if m.known {
		merged = m.room
		if in.Status.Order() > merged.Status.Order() {
			merged.Status = in.Status
		}
		if in.CurrentQuestionIndex > merged.CurrentQuestionIndex {
			merged.CurrentQuestionIndex = in.CurrentQuestionIndex
		}
		if merged.Code == "" {
			merged.Code = in.Code
		}
	}

	var change Change
	change.Room = !m.known || merged != m.room
	m.room = merged
	m.known = true
	if merged.Status == domain.RoomPlaying && merged.CurrentQuestionIndex > m.asked {
		m.asked = merged.CurrentQuestionIndex
		change.Question = true
	}
	if merged.Status == domain.RoomFinished && !m.finished {
		m.finished = true
		change.Finished = true
	}
	h := m.handlers
	m.mu.Unlock()

	if change.Room && h.OnRoom != nil {
		h.OnRoom(merged)
	}
	if change.Question && h.OnQuestion != nil {
		h.OnQuestion(merged)
	}
	if change.Finished && h.OnFinished != nil {
		h.OnFinished(merged)
	}
	return change
}

// ApplyRoster replaces the roster with a fresh read, ordered by score descending with ties kept
// in fetch order, and recomputes the local player's rank.
func (m *Model) ApplyRoster(players []domain.Player) int {
	sorted := make([]domain.Player, 0, len(players))
	for _, p := range players {
		if p.RoomID == "" || p.RoomID == m.roomID {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	rank := 0
	for i, p := range sorted {
		if p.ID == m.playerID {
			rank = i + 1
			break
		}
	}

	m.mu.Lock()
	m.players = sorted
	m.rank = rank
	h := m.handlers
	m.mu.Unlock()

	if h.OnRoster != nil {
		h.OnRoster(sorted, rank)
	}
	return rank
}

func (m *Model) Room() (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room, m.known
}

// Rank is the local player's 1-based leaderboard position, or 0 when not on the roster.
func (m *Model) Rank() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rank
}

// Me returns the local player's row from the latest roster.
func (m *Model) Me() (domain.Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.ID == m.playerID {
			return p, true
		}
	}
	return domain.Player{}, false
}

// Lookup finds a roster player by display name.
func (m *Model) Lookup(name string) (domain.Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Player{}, false
}

func (m *Model) Leaderboard() []Standing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Standing, len(m.players))
	for i, p := range m.players {
		out[i] = Standing{Rank: i + 1, Player: p}
	}
	return out
}

func (m *Model) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}
