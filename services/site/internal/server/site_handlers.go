package server

import (
	"errors"
	"net/http"

	"jarvisai/internal/cart"
	"jarvisai/internal/checkout"
	"jarvisai/internal/session"
	"jarvisai/pkg/domain"
	"jarvisai/services/site/internal/app"
)

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	tiers := domain.Tiers()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": tiers,
		"count": len(tiers),
	})
}

// session

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *domain.Identity `json:"user"`
}

type loginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func newSessionResponse(v *app.Visitor) sessionResponse {
	identity, ok := v.Session.Current()
	if !ok {
		return sessionResponse{}
	}
	return sessionResponse{Authenticated: true, User: &identity}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(v))
}

func (s *Server) handleSessionLogin(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := v.Session.Login(r.Context(), req.Name, req.Email); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(v))
}

func (s *Server) handleSessionRegister(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := v.Session.Register(r.Context(), req.Name, req.Email, req.Password, req.ConfirmPassword); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(v))
}

func (s *Server) handleSessionLogout(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := v.Session.Logout(r.Context()); err != nil {
		// The in-memory identity is already gone.
		logger(r).Warn("session delete failed", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidIdentity),
		errors.Is(err, session.ErrPasswordRequired),
		errors.Is(err, session.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger(r).Error("session persist failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
	}
}

// cart

type moneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

type cartResponse struct {
	Items         []domain.CartItem `json:"items"`
	TotalItems    int               `json:"totalItems"`
	CartOpen      bool              `json:"cartOpen"`
	OrderFormOpen bool              `json:"orderFormOpen"`
	Total         *moneyResponse    `json:"total,omitempty"`
}

type addItemRequest struct {
	TierID string `json:"tierId"`
}

type panelsRequest struct {
	CartOpen      *bool `json:"cartOpen"`
	OrderFormOpen *bool `json:"orderFormOpen"`
}

func newCartResponse(r *http.Request, c *cart.Store) cartResponse {
	snap := c.Snapshot()
	resp := cartResponse{
		Items:         snap.Items,
		TotalItems:    snap.TotalItems,
		CartOpen:      snap.CartOpen,
		OrderFormOpen: snap.OrderFormOpen,
	}
	if resp.Items == nil {
		resp.Items = []domain.CartItem{}
	}
	if total, err := domain.SumPrices(itemPrices(snap.Items)); err == nil {
		resp.Total = &moneyResponse{
			Amount:   total.Amount.String(),
			Currency: total.Currency.String(),
			Display:  total.Display(),
		}
	} else {
		logger(r).Warn("cart total unavailable", "err", err)
	}
	return resp
}

func itemPrices(items []domain.CartItem) []string {
	prices := make([]string, len(items))
	for i, item := range items {
		prices[i] = item.Price
	}
	return prices
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newCartResponse(r, v.Cart))
	case http.MethodDelete:
		v.Cart.Clear()
		writeJSON(w, http.StatusOK, newCartResponse(r, v.Cart))
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	added, err := v.Cart.AddTier(req.TierID)
	if errors.Is(err, cart.ErrUnknownTier) {
		writeError(w, http.StatusNotFound, "unknown tier")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add item")
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, newCartResponse(r, v.Cart))
}

func (s *Server) handleCartItem(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	v.Cart.RemoveItem(r.PathValue("id"))
	writeJSON(w, http.StatusOK, newCartResponse(r, v.Cart))
}

func (s *Server) handleCartPanels(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req panelsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CartOpen != nil {
		v.Cart.SetCartOpen(*req.CartOpen)
	}
	if req.OrderFormOpen != nil {
		v.Cart.SetOrderFormOpen(*req.OrderFormOpen)
	}
	writeJSON(w, http.StatusOK, newCartResponse(r, v.Cart))
}

// orders

type submitResponse struct {
	OrderID string             `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	switch r.Method {
	case http.MethodGet:
		identity, ok := v.Session.Current()
		if !ok {
			writeError(w, http.StatusUnauthorized, checkout.ErrAuthRequired.Error())
			return
		}
		orders := s.app.Orders().UserOrders(identity.ID)
		writeJSON(w, http.StatusOK, map[string]any{
			"items": orders,
			"count": len(orders),
		})
	case http.MethodPost:
		s.handleSubmitOrder(w, r, v)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	var form checkout.Form
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	orderID, err := v.Checkout.Submit(r.Context(), form)
	var validation *checkout.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{OrderID: orderID, Status: domain.OrderPending})
	case errors.Is(err, checkout.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"fields": validation.Fields,
		})
	case errors.Is(err, checkout.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, checkout.FailureNotice)
	}
}

func (s *Server) handleCheckoutStatus(w http.ResponseWriter, r *http.Request, v *app.Visitor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, v.Checkout.Status())
}
