package http

import (
	"context"
	"log/slog"
	"net/http"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// API exposes the gateway and the admin console over REST.
type API struct {
	gw     app.Gateway
	admin  *app.AdminService
	logger *slog.Logger
}

func NewAPI(gw app.Gateway, admin *app.AdminService, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{gw: gw, admin: admin, logger: logger}
}

// Routes builds the router. An empty origins list allows every origin.
func (a *API) Routes(ws *WSHandler, origins []string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	if len(origins) == 0 {
		mux.Use(cors.AllowAll().Handler)
	} else {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if ws != nil {
		mux.Get("/ws", ws.ServeWS)
	}

	mux.Route("/rooms", func(r chi.Router) {
		r.Get("/", a.listRooms)
		r.Post("/", a.createRoom)
		r.Post("/join", a.joinRoom)
		r.Get("/{roomID}", a.getRoom)
		r.Delete("/{roomID}", a.deleteRoom)
		r.Post("/{roomID}/start", a.startRoom)
		r.Post("/{roomID}/next", a.nextQuestion)
		r.Post("/{roomID}/end", a.endRoom)
		r.Get("/{roomID}/players", a.listPlayers)
		r.Get("/{roomID}/questions", a.roomQuestions)
	})

	mux.Route("/questions", func(r chi.Router) {
		r.Get("/", a.listQuestions)
		r.Post("/", a.createQuestion)
		r.Put("/{questionID}", a.updateQuestion)
		r.Delete("/{questionID}", a.deleteQuestion)
	})

	mux.Route("/players/{playerID}", func(r chi.Router) {
		r.Get("/", a.getPlayer)
		r.Post("/answers", a.submitAnswer)
		r.Post("/items/{kind}/consume", a.consumeItem)
	})

	mux.Post("/items", a.useItem)
	return mux
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.admin.ListRooms(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms, "get rooms successfully")
}

type createRoomRequest struct {
	Code string `json:"room_code"`
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.admin.CreateRoom(r.Context(), req.Code)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, room, "create room successfully")
}

type joinRequest struct {
	Code string `json:"room_code"`
	Name string `json:"name"`
}

type joinResponse struct {
	Room   domain.Room   `json:"room"`
	Player domain.Player `json:"player"`
}

func (a *API) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	code, name, err := app.NormalizeJoin(req.Code, req.Name)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, player, err := a.gw.JoinRoom(r.Context(), code, name)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{Room: room, Player: player}, "joined room")
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.gw.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room, "get room successfully")
}

func (a *API) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteRoom(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "delete room successfully")
}

func (a *API) startRoom(w http.ResponseWriter, r *http.Request) {
	a.roomCommand(w, r, a.admin.StartRoom, "room started")
}

func (a *API) endRoom(w http.ResponseWriter, r *http.Request) {
	a.roomCommand(w, r, a.admin.EndRoom, "room finished")
}

func (a *API) roomCommand(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, roomID string) error, msg string) {
	roomID := chi.URLParam(r, "roomID")
	if err := run(r.Context(), roomID); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.gw.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room, msg)
}

type nextQuestionResponse struct {
	Index int `json:"current_question_index"`
}

func (a *API) nextQuestion(w http.ResponseWriter, r *http.Request) {
	index, err := a.admin.NextQuestion(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nextQuestionResponse{Index: index}, "question advanced")
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.gw.ListPlayers(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, players, "get players successfully")
}

func (a *API) roomQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.admin.QuestionSet(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, questions, "get room questions successfully")
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.admin.ListQuestions(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, questions, "get questions successfully")
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var content domain.QuestionContent
	if err := decodeJSON(w, r, &content); err != nil {
		writeError(w, a.logger, err)
		return
	}
	q, err := a.admin.CreateQuestion(r.Context(), content)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, q, "create question successfully")
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var content domain.QuestionContent
	if err := decodeJSON(w, r, &content); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := a.admin.UpdateQuestion(r.Context(), chi.URLParam(r, "questionID"), content); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "update question successfully")
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "delete question successfully")
}

func (a *API) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := a.gw.GetPlayer(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, player, "get player successfully")
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
	TimeUsedMs int    `json:"time_used_ms"`
	Points     int    `json:"points"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	outcome, err := a.gw.SubmitAnswer(r.Context(), domain.AnswerSubmission{
		PlayerID:   chi.URLParam(r, "playerID"),
		QuestionID: req.QuestionID,
		IsCorrect:  req.IsCorrect,
		TimeUsedMs: req.TimeUsedMs,
		Points:     req.Points,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome, "answer recorded")
}

func (a *API) consumeItem(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseItemKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, a.logger, badRequest{err})
		return
	}
	inv, err := a.gw.ConsumeItem(r.Context(), chi.URLParam(r, "playerID"), kind)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv, "item consumed")
}

func (a *API) useItem(w http.ResponseWriter, r *http.Request) {
	var usage domain.ItemUsage
	if err := decodeJSON(w, r, &usage); err != nil {
		writeError(w, a.logger, err)
		return
	}
	recorded, err := a.gw.UseItem(r.Context(), usage)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recorded, "item used")
}
