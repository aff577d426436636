package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/billbatista/acasinha-debts/httpx"
	"github.com/billbatista/acasinha-debts/middleware"
	"github.com/billbatista/acasinha-debts/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type EventLogger interface {
	Log(event eventlogger.Event)
}

type Handler struct {
	users        Repository
	sessions     session.Repository
	events       EventLogger
	validator    *validator.Validate
	secureCookie bool
	log          *slog.Logger
}

func NewHandler(users Repository, sessions session.Repository, events EventLogger, secureCookie bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:        users,
		sessions:     sessions,
		events:       events,
		validator:    validator.New(),
		secureCookie: secureCookie,
		log:          logger,
	}
}

// PublicRoutes mounts the endpoints that create a session.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Post("/user/register", h.register)
	r.Post("/user/login", h.login)
}

// Routes mounts the endpoints that need an authenticated user.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/user/logout", h.logout)
	r.Post("/user/logout/all", h.logoutEverywhere)
	r.Get("/user/me", h.me)
	r.Put("/user/me", h.updateName)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=80"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateNameRequest struct {
	Name string `json:"name" validate:"max=80"`
}

type sessionResponse struct {
	Token   string          `json:"token"`
	Session session.Session `json:"session"`
	User    profile         `json:"user"`
}

type profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func profileOf(u *User) profile {
	return profile{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName()}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	registered, err := h.users.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailExists):
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
		case errors.Is(err, ErrBlankPassword), errors.Is(err, ErrInvalidEmail):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.log.Error("failed to register user", "error", err)
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	sess, ok := h.startSession(w, r, registered)
	if !ok {
		return
	}

	h.logEvent("user.registered", registered, map[string]string{
		"email":      registered.Email,
		"session_id": sess.ID.String(),
	})
	httpx.JSON(w, http.StatusCreated, sessionResponse{Token: sess.Token, Session: *sess, User: profileOf(registered)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	userdb, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		h.log.Error("failed to fetch user", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if userdb == nil || h.users.VerifyPassword(userdb.PasswordHash, req.Password) != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	sess, ok := h.startSession(w, r, userdb)
	if !ok {
		return
	}

	h.logEvent("user.logged_in", userdb, map[string]string{
		"email":      userdb.Email,
		"session_id": sess.ID.String(),
	})
	httpx.JSON(w, http.StatusOK, sessionResponse{Token: sess.Token, Session: *sess, User: profileOf(userdb)})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *User) (*session.Session, bool) {
	sess, err := h.sessions.Create(r.Context(), u.ID)
	if err != nil {
		h.log.Error("failed to create session", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return nil, false
	}
	session.SetCookie(w, sess, h.secureCookie)
	return sess, true
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Error("failed to delete session", "error", err)
		}
	}
	if token, ok := bearerToken(r); ok {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.log.Error("failed to delete session", "error", err)
		}
	}

	session.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// logoutEverywhere ends every session of the current user, on all devices.
func (h *Handler) logoutEverywhere(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(w, r)
	if !ok {
		return
	}

	if err := h.sessions.DeleteByUserID(r.Context(), u.ID); err != nil {
		h.log.Error("failed to delete sessions", "error", err, "user_id", u.ID)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	h.logEvent("user.logged_out_everywhere", u, nil)
	session.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, profileOf(u))
}

func (h *Handler) updateName(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(w, r)
	if !ok {
		return
	}

	var req updateNameRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.users.UpdateName(r.Context(), u.ID, req.Name); err != nil {
		h.log.Error("failed to update name", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	u.Name = req.Name

	h.logEvent("user.name_updated", u, map[string]string{"name": req.Name})
	httpx.JSON(w, http.StatusOK, profileOf(u))
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) (*User, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return nil, false
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to fetch user", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return nil, false
	}
	if u == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "user no longer exists")
		return nil, false
	}
	return u, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) logEvent(eventType string, u *User, data map[string]string) {
	if h.events == nil {
		return
	}
	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithActor(u.ID),
		eventlogger.WithSubject(u.ID),
		eventlogger.WithData(data),
	))
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}
