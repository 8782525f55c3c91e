package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"mln131-quiz/internal/domain"
)

// Broker moves opaque payloads between publishers and topic subscribers (in-process, Redis, etc).
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a channel of payloads. The caller must invoke cancel to release it.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
}

const TopicRooms = "rooms"

func RoomTopic(roomID string) string    { return "room:" + roomID }
func PlayersTopic(roomID string) string { return "players:" + roomID }
func ItemsTopic(playerID string) string { return "items:" + playerID }

// Notifier publishes row-level changes after a store commits them.
// Publish failures are logged only: the write already happened and pollers will catch up.
type Notifier struct {
	broker Broker
	logger *slog.Logger
}

func NewNotifier(broker Broker, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broker: broker, logger: logger}
}

// RoomChanged fans a room change out to the all-rooms topic and the room's own topic.
func (n *Notifier) RoomChanged(ctx context.Context, change domain.RoomChange) {
	n.publish(ctx, TopicRooms, change)
	n.publish(ctx, RoomTopic(change.Room.ID), change)
}

func (n *Notifier) PlayerChanged(ctx context.Context, player domain.Player) {
	n.publish(ctx, PlayersTopic(player.RoomID), player)
}

func (n *Notifier) ItemUsed(ctx context.Context, usage domain.ItemUsage) {
	n.publish(ctx, ItemsTopic(usage.ToPlayerID), usage)
}

func (n *Notifier) publish(ctx context.Context, topic string, v any) {
	if n == nil || n.broker == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		n.logger.Error("encode change", "topic", topic, "error", err)
		return
	}
	if err := n.broker.Publish(ctx, topic, payload); err != nil {
		n.logger.Warn("publish change", "topic", topic, "error", err)
	}
}

// ChangeFeed implements Feed on top of a Broker.
type ChangeFeed struct {
	broker  Broker
	players PlayerStore
	logger  *slog.Logger
}

func NewChangeFeed(broker Broker, players PlayerStore, logger *slog.Logger) *ChangeFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeed{broker: broker, players: players, logger: logger}
}

// SubscribeToRoom delivers updates of a single room row. Deletions are not delivered;
// pollers observe them as domain.ErrRoomNotFound.
func (f *ChangeFeed) SubscribeToRoom(ctx context.Context, roomID string, onUpdate func(domain.Room)) (Subscription, error) {
	return f.subscribe(ctx, RoomTopic(roomID), func(_ context.Context, payload []byte, _ <-chan []byte) {
		var change domain.RoomChange
		if err := json.Unmarshal(payload, &change); err != nil {
			f.logger.Warn("decode room change", "room_id", roomID, "error", err)
			return
		}
		if change.Type == domain.RoomUpdated {
			onUpdate(change.Room)
		}
	})
}

func (f *ChangeFeed) SubscribeToAllRooms(ctx context.Context, onUpdate func(domain.RoomChange)) (Subscription, error) {
	return f.subscribe(ctx, TopicRooms, func(_ context.Context, payload []byte, _ <-chan []byte) {
		var change domain.RoomChange
		if err := json.Unmarshal(payload, &change); err != nil {
			f.logger.Warn("decode room change", "error", err)
			return
		}
		onUpdate(change)
	})
}

// SubscribeToPlayers re-fetches the whole roster on every change notification.
// Notifications queued behind the one being handled are folded into a single fetch.
func (f *ChangeFeed) SubscribeToPlayers(ctx context.Context, roomID string, onUpdate func([]domain.Player)) (Subscription, error) {
	return f.subscribe(ctx, PlayersTopic(roomID), func(ctx context.Context, _ []byte, pending <-chan []byte) {
		drain(pending)
		players, err := f.players.ListPlayers(ctx, roomID)
		if err != nil {
			f.logger.Warn("refetch roster", "room_id", roomID, "error", err)
			return
		}
		onUpdate(players)
	})
}

func (f *ChangeFeed) SubscribeToItems(ctx context.Context, playerID string, onIncoming func(domain.ItemUsage)) (Subscription, error) {
	return f.subscribe(ctx, ItemsTopic(playerID), func(_ context.Context, payload []byte, _ <-chan []byte) {
		var usage domain.ItemUsage
		if err := json.Unmarshal(payload, &usage); err != nil {
			f.logger.Warn("decode item usage", "player_id", playerID, "error", err)
			return
		}
		if usage.ToPlayerID == playerID {
			onIncoming(usage)
		}
	})
}

// subscribe runs handle on a dedicated goroutine, one payload at a time, until unsubscribed.
func (f *ChangeFeed) subscribe(ctx context.Context, topic string, handle func(context.Context, []byte, <-chan []byte)) (Subscription, error) {
	msgs, cancel, err := f.broker.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	subCtx, stop := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case payload, ok := <-msgs:
				if !ok {
					return
				}
				handle(subCtx, payload, msgs)
			}
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			stop()
			cancel()
		})
	}), nil
}

func drain(ch <-chan []byte) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
