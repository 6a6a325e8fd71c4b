package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/generation"
	"github.com/maauso/genstudio-api/internal/session"
	"github.com/maauso/genstudio-api/internal/storage"
)

// BlobOpener reads locally stored results.
type BlobOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *session.Service
	blobs     BlobOpener
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *session.Service, blobs BlobOpener, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		blobs:     blobs,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create session",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create session", "SESSION_CREATION_FAILED")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess.Snapshot()))
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess.Snapshot()))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectMode handles POST /sessions/{id}/mode requests.
func (h *Handlers) SelectMode(w http.ResponseWriter, r *http.Request) {
	var req SelectModeRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.service.SelectMode(r.Context(), r.PathValue("id"), generation.Mode(req.Mode))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

// Generate handles POST /sessions/{id}/generate requests.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}

	sessionID := r.PathValue("id")
	snap, err := h.service.StartGeneration(r.Context(), sessionID, toGenerationRequest(req))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.logger.Info("generation accepted",
		slog.String("session_id", sessionID),
		slog.String("mode", req.Mode),
	)
	writeJSON(w, http.StatusAccepted, toSessionResponse(snap))
}

// GetCredential handles GET /sessions/{id}/credential requests.
func (h *Handlers) GetCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(sess.Gate(), sess.Gate().State()))
}

// CheckCredential handles POST /sessions/{id}/credential/check requests.
func (h *Handlers) CheckCredential(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	state, err := h.service.CheckCredential(r.Context(), sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	sess, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(sess.Gate(), state))
}

// SelectCredential handles POST /sessions/{id}/credential/select requests.
// The body is optional.
func (h *Handlers) SelectCredential(w http.ResponseWriter, r *http.Request) {
	var req SelectCredentialRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
	}

	sessionID := r.PathValue("id")
	state, err := h.service.SelectCredential(r.Context(), sessionID, strings.TrimSpace(req.APIKey))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		case errors.Is(err, credential.ErrEnvironmentUnsupported):
			writeError(w, http.StatusNotImplemented, generation.MsgSelectionUnsupported, "ENVIRONMENT_UNSUPPORTED")
		default:
			writeError(w, http.StatusBadRequest, err.Error(), "CREDENTIAL_SELECTION_FAILED")
		}
		return
	}

	sess, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(sess.Gate(), state))
}

// GetArtifact handles GET /artifacts/{id} requests by streaming a local video blob.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
		return
	}

	body, err := h.blobs.Open(r.Context(), storage.BlobScheme+r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open artifact",
			slog.String("artifact_id", r.PathValue("id")),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open artifact", "ARTIFACT_FETCH_FAILED")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("artifact stream interrupted",
			slog.String("artifact_id", r.PathValue("id")),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handlers) findSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")
	sess, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, err error) {
	var f *generation.Failure
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrGenerationInFlight):
		writeError(w, http.StatusConflict, "a generation is already in progress", "GENERATION_IN_PROGRESS")
	case errors.Is(err, session.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.As(err, &f) && f.Kind == generation.KindValidation:
		writeError(w, http.StatusBadRequest, f.Message, "VALIDATION_ERROR")
	default:
		h.logger.Error("session operation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

func toGenerationRequest(req GenerateRequest) generation.Request {
	out := generation.Request{Mode: generation.Mode(req.Mode)}
	if out.Mode == generation.ModeVideo {
		out.Video = generation.DefaultVideoParameters(req.Prompt)
		if req.AspectRatio != "" {
			out.Video.AspectRatio = req.AspectRatio
		}
		if req.Resolution != "" {
			out.Video.Resolution = req.Resolution
		}
		return out
	}
	out.Image = generation.DefaultImageParameters(req.Prompt)
	if req.AspectRatio != "" {
		out.Image.AspectRatio = req.AspectRatio
	}
	return out
}

func toSessionResponse(s session.Snapshot) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		Mode:            string(s.Mode),
		Status:          string(s.Status),
		ProgressMessage: s.ProgressMessage,
		ResultReference: s.ResultReference,
		ResultURL:       resultURL(s.ResultReference),
		Error:           s.ErrorMessage,
		ValidationError: s.ValidationError,
		CredentialState: string(s.CredentialState),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// resultURL maps a result reference to an HTTP location. Inline data URIs have none.
func resultURL(ref string) string {
	switch {
	case storage.IsLocalRef(ref):
		return ArtifactPathPrefix + storage.BlobID(ref)
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		return ref
	default:
		return ""
	}
}

func toCredentialResponse(g *credential.Gate, state credential.State) CredentialResponse {
	return CredentialResponse{
		State:              string(state),
		SelectionAvailable: g.HasCapability(),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
