package items

import (
	"sync"

	"mln131-quiz/internal/domain"
)

// Reservation identifies one tentative decrement held by a Ledger.
type Reservation struct {
	id   uint64
	Kind domain.ItemKind
}

// Ledger is a client's optimistic view of its own inventory: the last authoritative
// inventory plus tentative decrements that have not been confirmed yet.
//
// A read that lands between a server-side commit and Confirm under-reports by the
// pending amount until Confirm runs. A read taken before a commit but reconciled after
// Confirm over-reports until the next read; the store's atomic consume still refuses
// the spend, so the view is only a hint.
type Ledger struct {
	mu        sync.Mutex
	confirmed domain.Inventory
	pending   map[uint64]domain.ItemKind
	nextID    uint64
}

func NewLedger(initial domain.Inventory) *Ledger {
	return &Ledger{confirmed: initial, pending: make(map[uint64]domain.ItemKind)}
}

// View returns the inventory the player should see right now.
func (l *Ledger) View() domain.Inventory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

func (l *Ledger) viewLocked() domain.Inventory {
	inv := l.confirmed
	for _, kind := range l.pending {
		inv = inv.Add(kind, -1)
	}
	return inv
}

// Reserve tentatively takes one item of kind.
func (l *Ledger) Reserve(kind domain.ItemKind) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.viewLocked().Take(kind); err != nil {
		return Reservation{}, err
	}
	l.nextID++
	l.pending[l.nextID] = kind
	return Reservation{id: l.nextID, Kind: kind}, nil
}

// Confirm settles a reservation against the inventory the store returned for it.
func (l *Ledger) Confirm(r Reservation, authoritative domain.Inventory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, r.id)
	l.confirmed = authoritative
}

// Rollback drops a reservation whose write failed.
func (l *Ledger) Rollback(r Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, r.id)
}

// Reconcile replaces the authoritative inventory from a confirmed read.
func (l *Ledger) Reconcile(authoritative domain.Inventory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed = authoritative
}

// Pending reports how many reservations are in flight.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
