package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"mln131-quiz/internal/domain"
)

type envelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func call(t *testing.T, ts *testServer, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func TestRoomLifecycleOverREST(t *testing.T) {
	ts := newTestServer(t)

	status, env := call(t, ts, http.MethodPost, "/questions/", domain.QuestionContent{
		Question:     "What creates surplus value?",
		Options:      []string{"Labour", "Machines", "Land", "Money"},
		CorrectIndex: 0,
	})
	if status != http.StatusCreated {
		t.Fatalf("create question: %d %s", status, env.Message)
	}

	status, env = call(t, ts, http.MethodPost, "/rooms/", map[string]string{"room_code": "MLN-01"})
	if status != http.StatusCreated {
		t.Fatalf("create room: %d %s", status, env.Message)
	}
	var room domain.Room
	_ = json.Unmarshal(env.Data, &room)

	if status, _ = call(t, ts, http.MethodPost, "/rooms/", map[string]string{"room_code": "MLN-01"}); status != http.StatusConflict {
		t.Fatalf("expected duplicate code conflict, got %d", status)
	}
	if status, _ = call(t, ts, http.MethodPost, "/rooms/", map[string]string{"room_code": "  "}); status != http.StatusBadRequest {
		t.Fatalf("expected missing code rejected, got %d", status)
	}

	status, env = call(t, ts, http.MethodPost, "/rooms/join", map[string]string{"room_code": "MLN-01", "name": "Alice"})
	if status != http.StatusCreated {
		t.Fatalf("join: %d %s", status, env.Message)
	}
	var joined joinResponse
	_ = json.Unmarshal(env.Data, &joined)
	if joined.Player.Score != 0 || joined.Player.Inventory.Total() != 0 {
		t.Fatalf("expected fresh player, got %+v", joined.Player)
	}

	if status, _ = call(t, ts, http.MethodPost, "/rooms/"+room.ID+"/start", nil); status != http.StatusOK {
		t.Fatalf("start: %d", status)
	}
	status, env = call(t, ts, http.MethodPost, "/rooms/join", map[string]string{"room_code": "MLN-01", "name": "Bob"})
	if status != http.StatusConflict || env.Message != domain.ErrRoomAlreadyStarted.Error() {
		t.Fatalf("expected room already started, got %d %q", status, env.Message)
	}

	// One question in the bank: nothing to advance to.
	if status, _ = call(t, ts, http.MethodPost, "/rooms/"+room.ID+"/next", nil); status != http.StatusConflict {
		t.Fatalf("expected no more questions, got %d", status)
	}
	if status, _ = call(t, ts, http.MethodPost, "/rooms/"+room.ID+"/end", nil); status != http.StatusOK {
		t.Fatalf("end: %d", status)
	}
	if status, _ = call(t, ts, http.MethodPost, "/rooms/"+room.ID+"/start", nil); status != http.StatusConflict {
		t.Fatalf("expected finished room to stay finished, got %d", status)
	}
	if status, _ = call(t, ts, http.MethodGet, "/rooms/missing", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestPlayerItemsOverREST(t *testing.T) {
	ts := newTestServer(t)
	call(t, ts, http.MethodPost, "/rooms/", map[string]string{"room_code": "MLN-01"})
	_, env := call(t, ts, http.MethodPost, "/rooms/join", map[string]string{"room_code": "MLN-01", "name": "Alice"})
	var alice joinResponse
	_ = json.Unmarshal(env.Data, &alice)
	_, env = call(t, ts, http.MethodPost, "/rooms/join", map[string]string{"room_code": "MLN-01", "name": "Bob"})
	var bob joinResponse
	_ = json.Unmarshal(env.Data, &bob)

	status, env := call(t, ts, http.MethodPost, "/players/"+alice.Player.ID+"/answers", map[string]any{
		"question_id": "q1", "is_correct": true, "time_used_ms": 3000, "points": 170,
	})
	if status != http.StatusCreated {
		t.Fatalf("submit: %d %s", status, env.Message)
	}
	var outcome domain.AnswerOutcome
	_ = json.Unmarshal(env.Data, &outcome)
	if outcome.NewScore != 170 || outcome.NewInventory.Count(domain.Shield) != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	// Debuffs must target someone else.
	status, _ = call(t, ts, http.MethodPost, "/items", map[string]any{
		"from_player_id": alice.Player.ID, "to_player_id": alice.Player.ID, "item_type": "confusion",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected self-targeted debuff rejected, got %d", status)
	}
	status, _ = call(t, ts, http.MethodPost, "/items", map[string]any{
		"from_player_id": alice.Player.ID, "to_player_id": bob.Player.ID, "item_type": "confusion", "question_index": 0,
	})
	if status != http.StatusCreated {
		t.Fatalf("use item: %d", status)
	}

	if status, _ = call(t, ts, http.MethodPost, "/players/"+alice.Player.ID+"/items/shield/consume", nil); status != http.StatusOK {
		t.Fatalf("consume: %d", status)
	}
	if status, _ = call(t, ts, http.MethodPost, "/players/"+alice.Player.ID+"/items/shield/consume", nil); status != http.StatusConflict {
		t.Fatalf("expected insufficient item conflict, got %d", status)
	}
	if status, _ = call(t, ts, http.MethodPost, "/players/"+alice.Player.ID+"/items/laser/consume", nil); status != http.StatusBadRequest {
		t.Fatalf("expected unknown kind rejected, got %d", status)
	}

	status, env = call(t, ts, http.MethodGet, "/rooms/"+alice.Room.ID+"/players", nil)
	var roster []domain.Player
	_ = json.Unmarshal(env.Data, &roster)
	if status != http.StatusOK || len(roster) != 2 || roster[0].ID != alice.Player.ID {
		t.Fatalf("unexpected roster %d %+v", status, roster)
	}
}
