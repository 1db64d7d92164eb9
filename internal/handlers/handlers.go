package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/internal/http/response"
	"github.com/nexlify/user-accounts/internal/repository"
	"github.com/nexlify/user-accounts/internal/service"
	"github.com/nexlify/user-accounts/pkg/config"
	"github.com/nexlify/user-accounts/pkg/logger"
)

const jwtCookieName = "jwt"

type ctxKey string

const ctxUser ctxKey = "user"

type Handlers struct {
	authService   service.AuthService
	rateLimitRepo repository.RateLimitRepository
	config        *config.Config
}

func New(
	authService service.AuthService,
	rateLimitRepo repository.RateLimitRepository,
	config *config.Config,
) *Handlers {
	return &Handlers{
		authService:   authService,
		rateLimitRepo: rateLimitRepo,
		config:        config,
	}
}

// Routes builds the user-account subtree, mounted at /v1/users.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(httprate.Limit(5, time.Hour)).Post("/signup", h.Signup)
	r.With(httprate.Limit(10, 5*time.Minute)).Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.With(h.Authenticate).Get("/protected", h.Protected)

	r.Post("/forgotPassword", h.ForgotPassword)
	r.Patch("/resetPassword/{code}", h.ResetPassword)
	r.Post("/forgetPasswordNumber", h.ForgotPasswordSMS)
	r.Patch("/resetPasswordNumber/{code}", h.ResetPasswordSMS)

	r.Get("/", h.ListUsers)
	r.Get("/{id}", h.GetUser)
	r.Patch("/{id}", h.UpdateUser)
	r.Delete("/{id}", h.DeleteUser)

	return r
}

// Authenticate gates protected operations. The token comes from the
// Authorization header or the jwt cookie; the resolved user is attached to the
// request context.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			response.Error(w, r, domain.ErrUnauthorized, h.config.IsDevelopment())
			return
		}

		user, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			response.Error(w, r, err, h.config.IsDevelopment())
			return
		}

		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = context.WithValue(ctx, logger.UserIDKey, user.ID.Hex())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the user attached by Authenticate, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(ctxUser).(*domain.User)
	return u
}

func extractToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if c, err := r.Cookie(jwtCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     jwtCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.config.Auth.CookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	// An already-expired replacement makes the client discard its copy; the
	// token itself stays valid until its embedded expiry.
	http.SetCookie(w, &http.Cookie{
		Name:     jwtCookieName,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Millisecond),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
