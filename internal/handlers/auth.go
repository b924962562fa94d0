package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/assignhub/apiserver/internal/auth"
	"github.com/assignhub/apiserver/internal/logger"
	"github.com/assignhub/apiserver/internal/services"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// TokenIssuer signs identity assertions for authenticated users.
type TokenIssuer interface {
	Issue(subject string, role auth.Role) (string, error)
	TTL() time.Duration
}

// AuthHandler provides registration, login and identity endpoints.
type AuthHandler struct {
	userService *services.UserService
	issuer      TokenIssuer
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, issuer TokenIssuer, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AuthHandler{
		userService: userService,
		issuer:      issuer,
		logger:      log,
	}
}

// AuthRouter registers auth routes on the given router. gate protects /me.
func AuthRouter(
	r chi.Router,
	userService *services.UserService,
	issuer TokenIssuer,
	gate func(http.Handler) http.Handler,
	log *slog.Logger,
) {
	handler := NewAuthHandler(userService, issuer, log)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/admins", handler.ListAdmins)
	r.With(gate).Get("/me", handler.Me)
}

// Register creates a user or admin account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	_, err := h.userService.Register(r.Context(), req.Username, req.Password, auth.Role(req.Role))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "username already exists")
		return
	case errors.Is(err, services.ErrAdminSignupDisabled):
		writeError(w, http.StatusForbidden, err.Error())
		return
	default:
		h.logger.ErrorContext(r.Context(), "register user", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "user created successfully"})
}

// Login verifies credentials and returns a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrLockedOut):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	default:
		h.logger.ErrorContext(r.Context(), "authenticate user", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := h.issuer.Issue(user.ID, auth.Role(user.Role))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issue token", slog.String("user_id", user.ID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.issuer.TTL() / time.Second),
		Message:   "login succeeded",
	})
}

// Me returns the verified identity of the caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		auth.WriteUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Subject: identity.Subject, Role: identity.Role})
}

// ListAdmins returns the admins an assignment can be addressed to.
func (h *AuthHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.userService.ListAdmins(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list admins", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list admins")
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

// RegisterRequest is the body of POST /register. An empty role registers a user.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a signed token and its lifetime in seconds.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Message   string `json:"message"`
}

// MeResponse is the verified identity of the caller.
type MeResponse struct {
	Subject string    `json:"subject"`
	Role    auth.Role `json:"role"`
}
