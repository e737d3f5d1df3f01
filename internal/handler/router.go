package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// no-cache headers, Content-Type validation, and bearer-token sessions on
// every route except health, registration, and login.
func NewRouter(
	authSvc *service.AuthService,
	tradeSvc *service.TradeService,
	portfolioSvc *service.PortfolioService,
	quoteSvc *service.QuoteService,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(noCache)
	r.Use(contentTypeJSON)

	// Create handlers.
	authH := NewAuthHandler(authSvc)
	tradeH := NewTradeHandler(tradeSvc)
	portfolioH := NewPortfolioHandler(portfolioSvc)
	quoteH := NewQuoteHandler(quoteSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Post("/register", authH.Register)
	r.Post("/login", authH.Login)

	r.Group(func(r chi.Router) {
		r.Use(requireSession(authSvc))

		r.Post("/logout", authH.Logout)
		r.Get("/profile", authH.Profile)
		r.Post("/profile/password", authH.ChangePassword)
		r.Delete("/profile", authH.DeleteAccount)

		// Portfolio routes.
		r.Get("/", portfolioH.Valuation)
		r.Get("/positions", portfolioH.Positions)
		r.Get("/history", portfolioH.History)

		// Trade routes.
		r.Post("/buy", tradeH.Buy)
		r.Post("/sell", tradeH.Sell)

		// Quote routes.
		r.Get("/quote/{symbol}", quoteH.Get)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration.
func requestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// noCache marks every response as uncacheable; balances and prices go
// stale immediately.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Expires", "0")
		h.Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT,
// PATCH, and DELETE requests that carry a body. If the Content-Type header
// doesn't start with "application/json", it returns 400 Bad Request before
// the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if r.ContentLength == 0 {
				break
			}
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey int

const (
	userIDKey contextKey = iota
	tokenKey
)

// requireSession resolves the bearer token to a user and stores both in the
// request context. Requests without a live session get 401.
func requireSession(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			userID, err := authSvc.Resolve(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="finance"`)
				WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(),
					"A valid bearer token is required")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// userID returns the authenticated user; only valid behind requireSession.
func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func sessionToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenKey).(string)
	return token
}
