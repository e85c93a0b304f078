package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
)

// APIHandler exposes the host dashboard operations: quiz set CRUD, game
// creation and CSV import.
type APIHandler struct {
	content  *app.ContentService
	games    *app.GameService
	importer *app.Importer
}

func NewAPIHandler(content *app.ContentService, games *app.GameService, importer *app.Importer) *APIHandler {
	return &APIHandler{content: content, games: games, importer: importer}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quiz-sets", h.listQuizSets)
	mux.HandleFunc("POST /api/quiz-sets", h.createQuizSet)
	mux.HandleFunc("GET /api/quiz-sets/{id}", h.quizSetContent)
	mux.HandleFunc("DELETE /api/quiz-sets/{id}", h.deleteQuizSet)
	mux.HandleFunc("POST /api/games", h.createGame)
	mux.HandleFunc("POST /api/import", h.importCSV)
	mux.HandleFunc("GET /api/import/template", h.importTemplate)
}

func (h *APIHandler) listQuizSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.content.ListQuizSets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *APIHandler) createQuizSet(w http.ResponseWriter, r *http.Request) {
	var input app.AuthorInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	set, err := h.content.CreateQuizSet(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (h *APIHandler) quizSetContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.content.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (h *APIHandler) deleteQuizSet(w http.ResponseWriter, r *http.Request) {
	if err := h.content.DeleteQuizSet(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGameRequest struct {
	QuizSetID string `json:"quizSetId"`
}

type createGameResponse struct {
	Game     domain.Game `json:"game"`
	JoinPath string      `json:"joinPath"`
}

func (h *APIHandler) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	game, err := h.games.CreateGame(r.Context(), req.QuizSetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createGameResponse{
		Game:     game,
		JoinPath: h.games.JoinPath(game.ID),
	})
}

// importCSV bulk-loads a multipart "file" into a quiz set named by the "name"
// field. The import is best-effort past quiz set creation; per-row failures
// come back in the report rather than a non-2xx status.
func (h *APIHandler) importCSV(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rows, err := h.importer.ParseCSV(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := h.importer.Import(r.Context(), r.FormValue("name"), rows)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) importTemplate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(app.Template))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrQuizSetNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNicknameTaken),
		errors.Is(err, domain.ErrPhaseRegression):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrNicknameInvalid),
		errors.Is(err, domain.ErrUnknownPhase),
		errors.Is(err, domain.ErrCorrectChoiceRequired),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case domain.Retryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
