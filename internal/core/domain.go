package core

import (
	"errors"
	"strings"
	"time"
)

const (
	SignIncome  = "+"
	SignExpense = "-"
)

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
	CategoryLoan    CategoryType = "loan"
)

const (
	NotificationRecurring = "Recurring"
	NotificationReminder  = "Reminder"

	RecurringNotificationHeader = "Recurring Transaction Added!"
)

type (
	CategoryType string

	Category struct {
		Name  string       `json:"name"`
		Color string       `json:"color,omitempty"`
		Sign  string       `json:"sign"`
		Type  CategoryType `json:"type"`
	}

	Person struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	RecurringDefinition struct {
		ID                 string     `json:"id"`
		UserID             string     `json:"user_id"`
		Amount             Amount     `json:"amount"`
		Note               string     `json:"note,omitempty"`
		Category           Category   `json:"category"`
		Person             *Person    `json:"people,omitempty"`
		Image              string     `json:"image,omitempty"`
		Schedule           Schedule   `json:"schedule"`
		TotalOccurrences   int        `json:"count"`
		OccurrencesPushed  int        `json:"pushed_count"`
		LastMaterializedAt *time.Time `json:"last_pushed_at,omitempty"`
		CreatedAt          time.Time  `json:"created_at"`
	}

	Transaction struct {
		ID                     string     `json:"id"`
		UserID                 string     `json:"user_id"`
		Amount                 Amount     `json:"amount"`
		Note                   string     `json:"note,omitempty"`
		Category               Category   `json:"category"`
		Person                 *Person    `json:"people,omitempty"`
		Image                  string     `json:"image,omitempty"`
		CreatedAt              time.Time  `json:"created_at"`
		PushedIntoTransactions bool       `json:"pushed_into_transactions"`
		SourceDefinitionID     string     `json:"source_definition_id,omitempty"`
		RemindAt               *time.Time `json:"remind_at,omitempty"`
		RemindedAt             *time.Time `json:"reminded_at,omitempty"`
	}

	// Notification carries its transaction by value. The embedded copy is a
	// display payload, never a reference to a stored transaction.
	Notification struct {
		ID          string      `json:"id"`
		UserID      string      `json:"user_id"`
		Header      string      `json:"header"`
		Type        string      `json:"type"`
		Read        bool        `json:"read"`
		Transaction Transaction `json:"transaction"`
		CreatedAt   time.Time   `json:"created_at"`
	}

	Budget struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Category  Category  `json:"category"`
		Limit     Amount    `json:"limit"`
		CreatedAt time.Time `json:"created_at"`
	}

	TrashItem struct {
		Transaction Transaction `json:"transaction"`
		DeletedAt   time.Time   `json:"deleted_at"`
	}

	// User is the per-user aggregate loaded by the materializer and the
	// other per-user passes.
	User struct {
		ID                   string                `json:"id"`
		Name                 string                `json:"name"`
		Email                string                `json:"email,omitempty"`
		CreatedAt            time.Time             `json:"created_at"`
		Categories           []Category            `json:"categories"`
		People               []Person              `json:"people"`
		RecurringDefinitions []RecurringDefinition `json:"recurring"`
		Transactions         []Transaction         `json:"transactions"`
		Notifications        []Notification        `json:"notifications"`
		Budgets              []Budget              `json:"budgets"`
		Trash                []TrashItem           `json:"trash"`
	}
)

var (
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyCategory     = errors.New("empty category")
	ErrInvalidSign       = errors.New("invalid category sign")
	ErrInvalidCategory   = errors.New("invalid category type")
	ErrInvalidOccurrence = errors.New("total occurrences must be at least 1")
	ErrNoteTooLong       = errors.New("note too long (max 500 characters)")
)

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if c.Sign != SignIncome && c.Sign != SignExpense {
		return ErrInvalidSign
	}
	switch c.Type {
	case CategoryExpense, CategoryIncome, CategoryLoan:
	default:
		return ErrInvalidCategory
	}
	return nil
}

// IsIncome reports whether amounts in this category count as money in.
func (c Category) IsIncome() bool {
	return c.Sign == SignIncome
}

func (p Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (d RecurringDefinition) Validate() error {
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if err := d.Category.Validate(); err != nil {
		return err
	}
	if err := d.Schedule.Validate(); err != nil {
		return err
	}
	if d.TotalOccurrences < 1 {
		return ErrInvalidOccurrence
	}
	if len(d.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

// Exhausted reports whether the definition has used up all its occurrences.
func (d RecurringDefinition) Exhausted() bool {
	return d.OccurrencesPushed >= d.TotalOccurrences
}

// MaterializedOn reports whether the last materialization happened on the
// calendar day of t, evaluated in t's location.
func (d RecurringDefinition) MaterializedOn(t time.Time) bool {
	if d.LastMaterializedAt == nil || d.LastMaterializedAt.IsZero() {
		return false
	}
	return SameDay(*d.LastMaterializedAt, t)
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Category.Validate(); err != nil {
		return err
	}
	if len(t.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Category.Validate(); err != nil {
		return err
	}
	return b.Limit.Validate()
}

// SameDay compares the calendar dates of a and b in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
