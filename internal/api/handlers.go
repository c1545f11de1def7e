package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/auth"
	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/response"
	"github.com/JuribaDev/juriba-storage/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// BlobService is the part of service.BlobService the handlers use.
type BlobService interface {
	StoreBlob(ctx context.Context, id string, data string, token string) (*blob.Blob, error)
	FindBlob(ctx context.Context, id string) (*blob.Blob, error)
}

type LoginService interface {
	Login(ctx context.Context, username string, password string) (*auth.LoginResult, error)
}

type Handler struct {
	blobs BlobService
	login LoginService
}

func NewHandler(blobs BlobService, login LoginService) *Handler {
	return &Handler{blobs: blobs, login: login}
}

type createBlobRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken          string `json:"access_token"`
	AccessTokenExpiresAt string `json:"access_token_expires_at"`
	Username             string `json:"username"`
}

type uuidResponse struct {
	UUID string `json:"uuid"`
}

// CreateBlob handles POST /api/v1/blobs.
func (h *Handler) CreateBlob(w http.ResponseWriter, r *http.Request) {
	var req createBlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	token := r.Header.Get(IdempotencyKeyHeader)
	if token == "" {
		token = middleware.GetReqID(r.Context())
	}

	b, err := h.blobs.StoreBlob(r.Context(), req.ID, req.Data, token)
	switch {
	case err == nil:
		response.Created(w, b.ToMap())
	case errors.Is(err, service.ErrInvalidBlobData):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrBlobStorage):
		response.Error(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("store blob", "id", req.ID, "err", err)
		response.InternalError(w)
	}
}

// GetBlob handles GET /api/v1/blobs/{id}.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := h.blobs.FindBlob(r.Context(), id)
	switch {
	case err == nil:
		response.OK(w, b.ToMap())
	case errors.Is(err, service.ErrBlobNotFound):
		response.NotFound(w, err.Error())
	default:
		slog.Error("find blob", "id", id, "err", err)
		response.InternalError(w)
	}
}

// GenerateUUID handles GET /api/v1/blobs/generate_uuid.
func (h *Handler) GenerateUUID(w http.ResponseWriter, r *http.Request) {
	response.OK(w, uuidResponse{UUID: uuid.NewString()})
}

// Login handles POST /api/v1/login. A newly created user answers 201.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.login.Login(r.Context(), req.Username, req.Password)
	var rejected *auth.RejectedUserError
	switch {
	case err == nil:
	case errors.As(err, &rejected):
		slog.Error("failed to create user", "username", req.Username, "errors", rejected.Messages)
		response.Errors(w, http.StatusUnprocessableEntity, rejected.Messages...)
		return
	case errors.Is(err, auth.ErrMissingParameter):
		response.BadRequest(w, err.Error())
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Unauthorized(w, err.Error())
		return
	default:
		slog.Error("login", "username", req.Username, "err", err)
		response.Error(w, http.StatusInternalServerError, "Failed to process login. Please try again.")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(w, status, loginResponse{
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		Username:             result.Username,
	})
}

// Up handles GET /api/up.
func Up(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
