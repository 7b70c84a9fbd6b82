package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"jarvisai/internal/ratelimit"
	"jarvisai/internal/util"
	"jarvisai/services/site/internal/app"
)

const (
	visitorHeader = "X-Visitor-Id"
	maxBodyBytes  = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                          *app.App
	TrustedProxies               *util.TrustedProxies
	RedisAddr                    string
	RedisPassword                string
	ChatRateLimitPerMinute       int
	TTSRateLimitPerMinute        int
	AdminLoginRateLimitPerMinute int
}

// Server exposes the site API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	trustedProxies *util.TrustedProxies
	limiter        *ratelimit.Limiter
	chatQuota      ratelimit.Quota
	speechQuota    ratelimit.Quota
	adminQuota     ratelimit.Quota
	patterns       []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	limiter, err := ratelimit.NewRedis(cfg.RedisAddr, cfg.RedisPassword, "jarvis:site:ratelimit")
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trustedProxies: cfg.TrustedProxies,
		limiter:        limiter,
		chatQuota:      ratelimit.Chat.WithLimit(cfg.ChatRateLimitPerMinute),
		speechQuota:    ratelimit.Speech.WithLimit(cfg.TTSRateLimitPerMinute),
		adminQuota:     ratelimit.AdminLogin.WithLimit(cfg.AdminLoginRateLimitPerMinute),
	}
	s.routes()
	return s, nil
}

// Close releases the rate limiter's Redis client.
func (s *Server) Close() error {
	return s.limiter.Close()
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog("site", h)
	h = util.WithRequestID(h)
	return util.WithSecurityHeaders(util.WithCORS(h))
}

func (s *Server) routes() {
	s.handle("/healthz", http.HandlerFunc(s.handleHealth))
	s.handle("/api/catalog", http.HandlerFunc(s.handleCatalog))

	// visitor scoped
	s.handle("/api/session", s.visitor(s.handleSession))
	s.handle("/api/session/login", s.visitor(s.handleSessionLogin))
	s.handle("/api/session/register", s.visitor(s.handleSessionRegister))
	s.handle("/api/session/logout", s.visitor(s.handleSessionLogout))
	s.handle("/api/cart", s.visitor(s.handleCart))
	s.handle("/api/cart/items", s.visitor(s.handleCartItems))
	s.handle("/api/cart/items/{id}", s.visitor(s.handleCartItem))
	s.handle("/api/cart/panels", s.visitor(s.handleCartPanels))
	s.handle("/api/orders", s.visitor(s.handleOrders))
	s.handle("/api/checkout", s.visitor(s.handleCheckoutStatus))

	// assistant backends
	s.handle("/api/chat", http.HandlerFunc(s.handleChat))
	s.handle("/api/tts", http.HandlerFunc(s.handleTTS))

	// admin
	s.handle("/api/admin/login", http.HandlerFunc(s.handleAdminLogin))
	s.handle("/api/admin/logout", s.adminOnly(s.handleAdminLogout))
	s.handle("/api/admin/orders", s.adminOnly(s.handleAdminOrders))
	s.handle("/api/admin/orders/{id}", s.adminOnly(s.handleAdminOrderByID))
	s.handle("/api/admin/orders/{id}/{action}", s.adminOnly(s.handleAdminOrderAction))
	s.handle("/api/admin/stats", s.adminOnly(s.handleAdminStats))
	s.handle("/api/admin/clear", s.adminOnly(s.handleAdminClear))
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.patterns = append(s.patterns, pattern)
	s.mux.Handle(pattern, h)
}

// Patterns lists the registered route patterns in registration order.
func (s *Server) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type visitorHandler func(http.ResponseWriter, *http.Request, *app.Visitor)

// visitor resolves the X-Visitor-Id header, issuing a new id when absent.
func (s *Server) visitor(next visitorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(visitorHeader))
		if id == "" {
			id = app.NewVisitorID()
		}
		v, err := s.app.Visitor(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+visitorHeader+" header")
			return
		}
		w.Header().Set(visitorHeader, v.ID)
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("visitor_id", v.ID))
		next(w, r.WithContext(ctx), v)
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErrorDetails is the {error, details} shape used by the chat and speech endpoints.
func writeErrorDetails(w http.ResponseWriter, status int, msg string, err error) {
	details := "Unknown error"
	if err != nil {
		details = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg, "details": details})
}

func (s *Server) clientIP(r *http.Request) string {
	return s.trustedProxies.ClientIP(r)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate charges the client IP against q. Visitor ids are client chosen,
// so they are not used as the key.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, q ratelimit.Quota, msg string) bool {
	d := s.limiter.Allow(r.Context(), q, s.clientIP(r))
	if d.Err != nil {
		logger(r).Warn("rate limiter unavailable", "quota", q.Name, "allowed", d.Allowed, "err", d.Err)
	}
	if d.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func logger(r *http.Request) *slog.Logger {
	return util.LoggerFromContext(r.Context())
}
