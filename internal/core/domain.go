package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const dateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar day, sent as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	CategoryRef struct {
		ID    int64           `json:"id"`
		Name  string          `json:"name"`
		Type  TransactionType `json:"type,omitempty"`
		Icon  string          `json:"icon,omitempty"`
		Color string          `json:"color,omitempty"`
	}

	Transaction struct {
		ID          int64           `json:"id"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Type        TransactionType `json:"type"`
		Category    CategoryRef     `json:"category"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	Category struct {
		ID          int64           `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Type        TransactionType `json:"type"`
		IsActive    bool            `json:"isActive"`
	}

	Budget struct {
		ID        int64       `json:"id"`
		Name      string      `json:"name"`
		Amount    Money       `json:"amount"`
		Period    string      `json:"period"`
		Category  CategoryRef `json:"category"`
		CreatedAt time.Time   `json:"createdAt"`
		UpdatedAt time.Time   `json:"updatedAt"`
	}

	BudgetStatus struct {
		BudgetID  int64  `json:"budgetId"`
		Name      string `json:"name"`
		Category  string `json:"category"`
		Period    string `json:"period"`
		Amount    Money  `json:"amount"`
		Spent     Money  `json:"spent"`
		Available Money  `json:"available"`
	}

	Notification struct {
		ID        int64           `json:"id"`
		Title     string          `json:"title"`
		Message   string          `json:"message"`
		Type      string          `json:"type"`
		Priority  string          `json:"priority"`
		Read      bool            `json:"read"`
		Metadata  json.RawMessage `json:"metadata,omitempty"`
		ActionURL string          `json:"actionUrl,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// Page is one page of a paginated listing.
	Page[T any] struct {
		Data     []T `json:"data"`
		Total    int `json:"total"`
		Page     int `json:"page"`
		LastPage int `json:"lastPage"`
	}

	DashboardStats struct {
		TotalIncome   Money `json:"totalIncome"`
		TotalExpenses Money `json:"totalExpenses"`
		Balance       Money `json:"balance"`
	}

	ExpenseByCategory struct {
		Category string `json:"category"`
		Amount   Money  `json:"amount"`
	}

	Settings struct {
		Currency             string `json:"currency"`
		DateFormat           string `json:"dateFormat"`
		Language             string `json:"language"`
		MonthlyBudgetLimit   *Money `json:"monthlyBudgetLimit,omitempty"`
		BudgetAlerts         bool   `json:"budgetAlerts"`
		TransactionReminders bool   `json:"transactionReminders"`
		WeeklyReports        bool   `json:"weeklyReports"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("type must be income or expense")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
)

// Validate checks the type is income or expense
func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or empty for the zero date
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD or a full RFC 3339 timestamp
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Unread returns the notifications not yet read
func Unread(ns []Notification) []Notification {
	var out []Notification
	for _, n := range ns {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}
