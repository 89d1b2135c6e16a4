package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Handler serves the session code HTTP API
type Handler struct {
	app *App
}

// NewHandler creates the session code handler
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

type generateRequest struct {
	Code        string `json:"code"`
	PresenterID string `json:"presenterId"`
	TeacherID   string `json:"teacherId"`
	Token       string `json:"token"`
}

type generateResponse struct {
	Message string `json:"message"`
	*Generated
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Code  string `json:"code"`
}

// HandleGenerate handles POST /session/generate. A presenter replacing or
// re-issuing their code sends the current token as a Bearer header.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	presenterID := req.PresenterID
	if presenterID == "" {
		presenterID = req.TeacherID
	}

	token := req.Token
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = strings.TrimSpace(bearer)
	}

	generated, err := h.app.Generate(r.Context(), presenterID, req.Code, token)
	switch {
	case errors.Is(err, ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrCodeTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to generate session code")
		writeError(w, http.StatusInternalServerError, "failed to generate session code")
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{Message: "Session code created", Generated: generated})
}

// HandleValidate handles GET /session/validate/{code}
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	session, err := h.app.Validate(r.Context(), r.PathValue("code"))
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Session code not found")
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to validate session code")
		writeError(w, http.StatusInternalServerError, "failed to validate session code")
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{Valid: true, Code: session.Code})
}

// RegisterRoutes registers the session code routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/generate", h.HandleGenerate)
	mux.HandleFunc("GET /session/validate/{code}", h.HandleValidate)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
