package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

// ErrQueueUnavailable is returned when asynchronous work is requested but no
// message broker is configured.
var ErrQueueUnavailable = errors.New("materialize queue not available")

// DefaultCategories are given to every new user.
var DefaultCategories = []core.Category{
	{Name: "Groceries", Color: "#4caf50", Sign: core.SignExpense, Type: core.CategoryExpense},
	{Name: "Housing", Color: "#795548", Sign: core.SignExpense, Type: core.CategoryExpense},
	{Name: "Transport", Color: "#2196f3", Sign: core.SignExpense, Type: core.CategoryExpense},
	{Name: "Subscriptions", Color: "#9c27b0", Sign: core.SignExpense, Type: core.CategoryExpense},
	{Name: "Salary", Color: "#ffc107", Sign: core.SignIncome, Type: core.CategoryIncome},
	{Name: "Loan", Color: "#607d8b", Sign: core.SignExpense, Type: core.CategoryLoan},
}

// LedgerService orchestrates the CRUD operations behind the API.
type LedgerService struct {
	store     ports.LedgerStore
	requester ports.MaterializeRequester
	clock     func() time.Time
	newID     func() string
}

// NewLedgerService creates a service over store. requester may be nil, in
// which case asynchronous materialization is unavailable.
func NewLedgerService(store ports.LedgerStore, requester ports.MaterializeRequester) *LedgerService {
	return &LedgerService{
		store:     store,
		requester: requester,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

func (s *LedgerService) CreateUser(ctx context.Context, name, email string) (core.User, error) {
	if strings.TrimSpace(name) == "" {
		return core.User{}, core.ErrEmptyName
	}
	u := core.User{
		ID:         s.newID(),
		Name:       strings.TrimSpace(name),
		Email:      strings.TrimSpace(email),
		CreatedAt:  s.clock(),
		Categories: append([]core.Category(nil), DefaultCategories...),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return u, nil
}

func (s *LedgerService) GetUser(ctx context.Context, userID string) (core.User, error) {
	u, err := s.store.LoadUser(ctx, userID)
	if err != nil {
		return core.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return u, nil
}

func (s *LedgerService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Categories, nil
}

func (s *LedgerService) AddCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.AddCategory(ctx, userID, c); err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	return c, nil
}

// UpdateCategory renames or recolors a category and rewrites every copy held
// by transactions, recurring definitions and budgets.
func (s *LedgerService) UpdateCategory(ctx context.Context, userID, oldName string, c core.Category) (int, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if !strings.EqualFold(c.Name, oldName) {
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		for _, stored := range u.Categories {
			if strings.EqualFold(stored.Name, c.Name) {
				return 0, fmt.Errorf("%w: category %q exists", core.ErrConflict, c.Name)
			}
		}
	}
	n, err := s.store.UpdateCategory(ctx, userID, oldName, c)
	if err != nil {
		return 0, fmt.Errorf("update category %q: %w", oldName, err)
	}
	slog.InfoContext(ctx, "Category updated",
		"user_id", userID,
		"old_name", oldName,
		"new_name", c.Name,
		"rows", n)
	return n, nil
}

func (s *LedgerService) ListPeople(ctx context.Context, userID string) ([]core.Person, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.People, nil
}

func (s *LedgerService) AddPerson(ctx context.Context, userID, name string) (core.Person, error) {
	p := core.Person{ID: s.newID(), Name: strings.TrimSpace(name)}
	if err := p.Validate(); err != nil {
		return core.Person{}, err
	}
	if err := s.store.AddPerson(ctx, userID, p); err != nil {
		return core.Person{}, fmt.Errorf("add person: %w", err)
	}
	return p, nil
}

func (s *LedgerService) ListRecurring(ctx context.Context, userID string) ([]core.RecurringDefinition, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.RecurringDefinitions, nil
}

// AddRecurring validates d, binds it to the user's stored category and person
// and persists it with fresh counters.
func (s *LedgerService) AddRecurring(ctx context.Context, userID string, d core.RecurringDefinition) (core.RecurringDefinition, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	d.ID = s.newID()
	d.UserID = userID
	d.CreatedAt = s.clock()
	d.OccurrencesPushed = 0
	d.LastMaterializedAt = nil
	d.Schedule.Kind = core.ParseScheduleKind(string(d.Schedule.Kind))
	if d.Category, err = resolveCategory(u, d.Category); err != nil {
		return core.RecurringDefinition{}, err
	}
	if d.Person, err = resolvePerson(u, d.Person); err != nil {
		return core.RecurringDefinition{}, err
	}
	if err := d.Validate(); err != nil {
		return core.RecurringDefinition{}, err
	}
	if err := s.store.AddRecurring(ctx, d); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("add recurring: %w", err)
	}
	return d, nil
}

func (s *LedgerService) DeleteRecurring(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteRecurring(ctx, userID, id); err != nil {
		return fmt.Errorf("delete recurring %s: %w", id, err)
	}
	return nil
}

// ListTransactions returns the user's transactions, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	txns := u.Transactions
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
	return txns, nil
}

func (s *LedgerService) AddTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = s.newID()
	t.UserID = userID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock()
	}
	t.PushedIntoTransactions = false
	t.SourceDefinitionID = ""
	t.RemindedAt = nil
	if t.Category, err = resolveCategory(u, t.Category); err != nil {
		return core.Transaction{}, err
	}
	if t.Person, err = resolvePerson(u, t.Person); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.AddTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	return t, nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *LedgerService) ListNotifications(ctx context.Context, userID string) ([]core.Notification, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ns := u.Notifications
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
	return ns, nil
}

func (s *LedgerService) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := s.store.MarkNotificationRead(ctx, userID, id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

func (s *LedgerService) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Budgets, nil
}

func (s *LedgerService) AddBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = s.newID()
	b.UserID = userID
	b.CreatedAt = s.clock()
	if b.Category, err = resolveCategory(u, b.Category); err != nil {
		return core.Budget{}, err
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.store.AddBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("add budget: %w", err)
	}
	return b, nil
}

func (s *LedgerService) DeleteBudget(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteBudget(ctx, userID, id); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return nil
}

// RequestMaterialize queues an asynchronous materialization for userID.
func (s *LedgerService) RequestMaterialize(ctx context.Context, userID string) error {
	if s.requester == nil {
		slog.WarnContext(ctx, "AMQP client not available, cannot queue materialize request")
		return ErrQueueUnavailable
	}
	if _, err := s.store.LoadUser(ctx, userID); err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if err := s.requester.RequestMaterialize(ctx, userID, s.clock()); err != nil {
		return fmt.Errorf("queue materialize request: %w", err)
	}
	return nil
}

// Close releases the store and the requester when they hold resources.
func (s *LedgerService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.requester.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}

// resolveCategory returns the user's stored category with c's name so every
// copy carries the same color, sign and type.
func resolveCategory(u core.User, c core.Category) (core.Category, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategory
	}
	for _, stored := range u.Categories {
		if strings.EqualFold(stored.Name, name) {
			return stored, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, name)
}

func resolvePerson(u core.User, p *core.Person) (*core.Person, error) {
	if p == nil || (p.ID == "" && strings.TrimSpace(p.Name) == "") {
		return nil, nil
	}
	for _, stored := range u.People {
		if (p.ID != "" && stored.ID == p.ID) || (p.ID == "" && strings.EqualFold(stored.Name, strings.TrimSpace(p.Name))) {
			found := stored
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: person %q", core.ErrNotFound, p.Name+p.ID)
}
