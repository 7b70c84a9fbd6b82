package domain

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderRejected  OrderStatus = "rejected"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderPending:   {},
	OrderConfirmed: {},
	OrderRejected:  {},
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := validOrderStatuses[status]
	return status, ok
}

// Final reports whether no further transition is allowed from s.
func (s OrderStatus) Final() bool {
	return s == OrderConfirmed || s == OrderRejected
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Identity is the simulated logged-in visitor. It is never verified.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CartItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Subtitle    string   `json:"subtitle"`
	Price       string   `json:"price"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

type OrderItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subtitle string `json:"subtitle"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type CustomerInfo struct {
	FullName        string `json:"fullName"`
	Phone           string `json:"phone"`
	SiteDescription string `json:"siteDescription"`
	ReferenceLink   string `json:"referenceLink,omitempty"`
}

type Order struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	UserEmail    string       `json:"userEmail"`
	Items        []OrderItem  `json:"items"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
	Status       OrderStatus  `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// OrderDraft is an order before the store assigns id, status and timestamps.
type OrderDraft struct {
	UserID       string       `json:"userId"`
	UserEmail    string       `json:"userEmail"`
	Items        []OrderItem  `json:"items"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
}

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItemFromCart drops the presentation-only fields of a cart line.
func OrderItemFromCart(item CartItem) OrderItem {
	return OrderItem{
		ID:       item.ID,
		Name:     item.Name,
		Subtitle: item.Subtitle,
		Price:    item.Price,
		Currency: item.Currency,
	}
}
