package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"jarvisai/internal/admin"
	"jarvisai/internal/orders"
	"jarvisai/pkg/domain"
)

type adminLoginRequest struct {
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// adminOnly requires a valid admin bearer token and an unlocked console.
func (s *Server) adminOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "site.admin.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := s.app.AdminTokens().Verify(token); err != nil {
			s.audit(r, "site.admin.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.app.Admin().IsAuthenticated() {
			s.audit(r, "site.admin.authorize", "fail", "reason", "console_locked")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.adminQuota, "too many login attempts") {
		s.audit(r, "site.admin.login", "rate_limited")
		return
	}
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "site.admin.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.Admin().Login(r.Context(), req.Password); err != nil {
		switch {
		case errors.Is(err, admin.ErrInvalidPassword):
			s.audit(r, "site.admin.login", "fail", "reason", "invalid_password")
			writeError(w, http.StatusUnauthorized, "Неверный пароль")
		case errors.Is(err, admin.ErrNotConfigured):
			s.audit(r, "site.admin.login", "fail", "reason", "not_configured")
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.audit(r, "site.admin.login", "fail", "reason", "persist_failed")
			logger(r).Error("admin login failed", "err", err)
			writeError(w, http.StatusInternalServerError, "admin login failed")
		}
		return
	}
	token, err := s.app.AdminTokens().Issue()
	if err != nil {
		logger(r).Error("issue admin token", "err", err)
		writeError(w, http.StatusInternalServerError, "admin login failed")
		return
	}
	s.audit(r, "site.admin.login", "success")
	writeJSON(w, http.StatusOK, adminLoginResponse{Token: token})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Admin().Logout(r.Context()); err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.audit(r, "site.admin.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	all, err := s.app.Admin().Orders()
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		all = lo.Filter(all, func(o domain.Order, _ int) bool { return o.Status == status })
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": all,
		"count": len(all),
	})
}

// handleAdminOrderByID selects the order and reads it back, so the detail
// always reflects the current stored status.
func (s *Server) handleAdminOrderByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	console := s.app.Admin()
	if err := console.Select(r.PathValue("id")); err != nil {
		writeAdminError(w, r, err)
		return
	}
	order, ok, err := console.Selected()
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if !ok {
		console.ClearSelection()
		writeError(w, http.StatusNotFound, admin.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleAdminOrderAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	console := s.app.Admin()
	var (
		order domain.Order
		err   error
	)
	switch r.PathValue("action") {
	case "confirm":
		order, err = console.Confirm(r.Context(), id)
	case "reject":
		order, err = console.Reject(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.audit(r, "site.admin.order_status", "success", "order_id", id, "status", order.Status)
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Admin().Stats()
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Admin().ClearOrders(r.Context()); err != nil {
		writeAdminError(w, r, err)
		return
	}
	s.audit(r, "site.admin.clear_orders", "success")
	w.WriteHeader(http.StatusNoContent)
}

func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, admin.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, admin.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrStatusFinal), errors.Is(err, orders.ErrInvalidStatus):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger(r).Error("admin action failed", "err", err)
		writeError(w, http.StatusInternalServerError, "admin action failed")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Debug("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
