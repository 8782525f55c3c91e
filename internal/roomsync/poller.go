package roomsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mln131-quiz/internal/domain"
)

// DefaultPollInterval is how often the fallback loop re-reads the room.
const DefaultPollInterval = 2 * time.Second

// Source is the read side of the gateway the poller needs.
type Source interface {
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)
}

// Poller re-fetches room state on a fixed interval, independent of the change feed.
type Poller struct {
	source   Source
	model    *Model
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(source Source, model *Model, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, model: model, interval: interval, logger: logger.With("room_id", model.roomID)}
}

// Poll runs one fetch of room and roster through the model. Only a deleted room is reported;
// other failures are logged and the next poll tries again.
func (p *Poller) Poll(ctx context.Context) error {
	room, err := p.source.GetRoom(ctx, p.model.roomID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return err
	case err != nil:
		p.logger.Warn("poll room", "error", err)
	default:
		p.model.ApplyRoom(room)
	}

	players, err := p.source.ListPlayers(ctx, p.model.roomID)
	if err != nil {
		p.logger.Warn("poll roster", "error", err)
		return nil
	}
	p.model.ApplyRoster(players)
	return nil
}

// Run polls until ctx is done, the room finishes or the room disappears.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				return err
			}
			if p.model.Finished() {
				return nil
			}
		}
	}
}
