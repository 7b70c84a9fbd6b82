package domain

import "golang.org/x/text/currency"

// Tier is a fixed service package offered on the pricing section.
type Tier struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Subtitle    string        `json:"subtitle"`
	Price       string        `json:"price"`
	Currency    string        `json:"currency"`
	ISOCurrency currency.Unit `json:"-"`
	Description string        `json:"description"`
	Features    []string      `json:"features"`
	Highlighted bool          `json:"highlighted"`
	Badge       string        `json:"badge,omitempty"`
}

var tiers = []Tier{
	{
		ID:          "basic",
		Name:        "Basic",
		Subtitle:    "Стартовое решение",
		Price:       "2 500 000",
		Currency:    "сум",
		ISOCurrency: UZS,
		Description: "Идеально для небольших проектов и стартапов",
		Features: []string{
			"До 5 страниц сайта",
			"Современный дизайн",
			"Адаптивная верстка",
			"SEO оптимизация",
			"Техподдержка email",
		},
	},
	{
		ID:          "pro",
		Name:        "Pro",
		Subtitle:    "Лучший выбор",
		Price:       "4 000 000",
		Currency:    "сум",
		ISOCurrency: UZS,
		Description: "Лучший выбор для растущего бизнеса",
		Features: []string{
			"Все из Basic",
			"До 15 страниц сайта",
			"ИИ ассистент интеграция",
			"Продвинутая аналитика",
			"Приоритетная поддержка",
		},
		Highlighted: true,
		Badge:       "Лучший выбор",
	},
	{
		ID:          "max",
		Name:        "Max",
		Subtitle:    "Премиум решение",
		Price:       "5 000 000",
		Currency:    "сум",
		ISOCurrency: UZS,
		Description: "Максимум возможностей для крупного бизнеса",
		Features: []string{
			"Все из Pro",
			"Безлимитные страницы",
			"ДЖАРВИС ИИ полная версия",
			"Индивидуальные решения",
			"VIP поддержка 24 часа в сутки",
		},
	},
}

// Tiers returns the catalog in display order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	for i, t := range tiers {
		t.Features = append([]string(nil), t.Features...)
		out[i] = t
	}
	return out
}

// TierByID looks up a catalog tier.
func TierByID(id string) (Tier, bool) {
	for _, t := range Tiers() {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

// CartItem converts the tier into a cart line item.
func (t Tier) CartItem() CartItem {
	return CartItem{
		ID:          t.ID,
		Name:        t.Name,
		Subtitle:    t.Subtitle,
		Price:       t.Price,
		Currency:    t.Currency,
		Description: t.Description,
		Features:    append([]string(nil), t.Features...),
	}
}
