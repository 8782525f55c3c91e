package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler relays a room's change feed to one player's browser and accepts the player's
// gateway writes over the same socket.
type WSHandler struct {
	gw       app.Gateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(gw app.Gateway, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		gw:     gw,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	IsCorrect  bool   `json:"isCorrect"`
	TimeUsedMs int    `json:"timeUsedMs"`
	Points     int    `json:"points"`
}

type consumePayload struct {
	Kind domain.ItemKind `json:"itemType"`
}

type usePayload struct {
	ToPlayerID    string          `json:"toPlayerId"`
	Kind          domain.ItemKind `json:"itemType"`
	QuestionIndex int             `json:"questionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades /ws?roomId=&playerId= and streams room, players and item messages.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	playerID := r.URL.Query().Get("playerId")
	if roomID == "" || playerID == "" {
		http.Error(w, "missing roomId or playerId", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	player, err := h.gw.GetPlayer(ctx, playerID)
	if err != nil || player.RoomID != roomID {
		http.Error(w, "player not found in room", http.StatusNotFound)
		return
	}
	room, err := h.gw.GetRoom(ctx, roomID)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	logger := h.logger.With("room_id", roomID, "player_id", playerID)

	send := make(chan outboundMessage[any], 16)
	updates := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn("ws write error", "error", err)
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case msg := <-updates:
				select {
				case send <- msg:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Feed callbacks run on the feed's goroutines and only ever hand off to updates.
	relay := func(typ string, payload any) {
		select {
		case updates <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-closeSignals:
		}
	}
	subs := h.subscribe(ctx, logger, roomID, playerID, relay)

	push(outboundMessage[any]{Type: "room", Payload: room})
	if players, err := h.gw.ListPlayers(ctx, roomID); err == nil {
		push(outboundMessage[any]{Type: "players", Payload: players})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply, err := h.handle(ctx, playerID, inbound)
		if err != nil {
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			continue
		}
		push(reply)
	}

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) subscribe(ctx context.Context, logger *slog.Logger, roomID, playerID string, relay func(string, any)) []app.Subscription {
	var subs []app.Subscription
	keep := func(feed string, sub app.Subscription, err error) {
		if err != nil {
			// Clients fall back to polling the REST endpoints.
			logger.Warn("ws subscribe", "feed", feed, "error", err)
			return
		}
		subs = append(subs, sub)
	}
	sub, err := h.gw.SubscribeToRoom(ctx, roomID, func(room domain.Room) { relay("room", room) })
	keep("room", sub, err)
	sub, err = h.gw.SubscribeToPlayers(ctx, roomID, func(players []domain.Player) { relay("players", players) })
	keep("players", sub, err)
	sub, err = h.gw.SubscribeToItems(ctx, playerID, func(usage domain.ItemUsage) { relay("item", usage) })
	keep("items", sub, err)
	return subs
}

func (h *WSHandler) handle(ctx context.Context, playerID string, inbound inboundMessage) (outboundMessage[any], error) {
	switch inbound.Type {
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return outboundMessage[any]{}, errors.New("invalid answer payload")
		}
		outcome, err := h.gw.SubmitAnswer(ctx, domain.AnswerSubmission{
			PlayerID:   playerID,
			QuestionID: p.QuestionID,
			IsCorrect:  p.IsCorrect,
			TimeUsedMs: p.TimeUsedMs,
			Points:     p.Points,
		})
		if err != nil {
			return outboundMessage[any]{}, err
		}
		return outboundMessage[any]{Type: "answerResult", Payload: outcome}, nil
	case "consume":
		var p consumePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return outboundMessage[any]{}, errors.New("invalid consume payload")
		}
		inv, err := h.gw.ConsumeItem(ctx, playerID, p.Kind)
		if err != nil {
			return outboundMessage[any]{}, err
		}
		return outboundMessage[any]{Type: "inventory", Payload: inv}, nil
	case "use":
		var p usePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return outboundMessage[any]{}, errors.New("invalid use payload")
		}
		usage, err := h.gw.UseItem(ctx, domain.ItemUsage{
			FromPlayerID:  playerID,
			ToPlayerID:    p.ToPlayerID,
			Kind:          p.Kind,
			QuestionIndex: p.QuestionIndex,
		})
		if err != nil {
			return outboundMessage[any]{}, err
		}
		return outboundMessage[any]{Type: "itemUsed", Payload: usage}, nil
	}
	return outboundMessage[any]{}, errors.New("unsupported message type")
}
