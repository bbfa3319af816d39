// Package memory is an in-process implementation of the ledger store. It is
// used by tests and by DATA_BACKEND=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"
)

var _ ports.LedgerStore = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	users map[string]*core.User
}

func New() *Store {
	return &Store{users: map[string]*core.User{}}
}

// Seed replaces the stored aggregate for u.ID. Intended for tests.
func (s *Store) Seed(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneUser(u)
	s.users[u.ID] = &cp
}

func (s *Store) LoadUser(_ context.Context, userID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	return cloneUser(*u), nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// WithinTx applies fn to a copy of the whole store and swaps it in only when
// fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make(map[string]*core.User, len(s.users))
	for id, u := range s.users {
		cp := cloneUser(*u)
		staged[id] = &cp
	}
	if err := fn(&tx{users: staged}); err != nil {
		return err
	}
	s.users = staged
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s exists", core.ErrConflict, u.ID)
	}
	cp := cloneUser(u)
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) AddCategory(_ context.Context, userID string, c core.Category) error {
	return s.mutate(userID, func(u *core.User) error {
		for _, existing := range u.Categories {
			if strings.EqualFold(existing.Name, c.Name) {
				return fmt.Errorf("%w: category %q exists", core.ErrConflict, c.Name)
			}
		}
		u.Categories = append(u.Categories, c)
		return nil
	})
}

func (s *Store) UpdateCategory(_ context.Context, userID, oldName string, c core.Category) (int, error) {
	touched := 0
	err := s.mutate(userID, func(u *core.User) error {
		found := false
		for i := range u.Categories {
			if strings.EqualFold(u.Categories[i].Name, oldName) {
				u.Categories[i] = c
				found = true
				touched++
			}
		}
		if !found {
			return fmt.Errorf("%w: category %q", core.ErrNotFound, oldName)
		}
		for i := range u.Transactions {
			if strings.EqualFold(u.Transactions[i].Category.Name, oldName) {
				u.Transactions[i].Category = c
				touched++
			}
		}
		for i := range u.RecurringDefinitions {
			if strings.EqualFold(u.RecurringDefinitions[i].Category.Name, oldName) {
				u.RecurringDefinitions[i].Category = c
				touched++
			}
		}
		for i := range u.Budgets {
			if strings.EqualFold(u.Budgets[i].Category.Name, oldName) {
				u.Budgets[i].Category = c
				touched++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}

func (s *Store) AddPerson(_ context.Context, userID string, p core.Person) error {
	return s.mutate(userID, func(u *core.User) error {
		u.People = append(u.People, p)
		return nil
	})
}

func (s *Store) AddRecurring(_ context.Context, d core.RecurringDefinition) error {
	return s.mutate(d.UserID, func(u *core.User) error {
		u.RecurringDefinitions = append(u.RecurringDefinitions, d)
		return nil
	})
}

func (s *Store) DeleteRecurring(_ context.Context, userID, id string) error {
	return s.mutate(userID, func(u *core.User) error {
		for i, d := range u.RecurringDefinitions {
			if d.ID == id {
				u.RecurringDefinitions = append(u.RecurringDefinitions[:i], u.RecurringDefinitions[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: recurring definition %s", core.ErrNotFound, id)
	})
}

func (s *Store) AddTransaction(_ context.Context, t core.Transaction) error {
	return s.mutate(t.UserID, func(u *core.User) error {
		return appendTransaction(u, t)
	})
}

func (s *Store) MoveToTrash(_ context.Context, userID, transactionID string, at time.Time) (core.TrashItem, error) {
	var item core.TrashItem
	err := s.mutate(userID, func(u *core.User) error {
		for i, t := range u.Transactions {
			if t.ID == transactionID {
				item = core.TrashItem{Transaction: t, DeletedAt: at}
				u.Transactions = append(u.Transactions[:i], u.Transactions[i+1:]...)
				u.Trash = append(u.Trash, item)
				return nil
			}
		}
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, transactionID)
	})
	return item, err
}

func (s *Store) PurgeTrash(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for _, u := range s.users {
		kept := u.Trash[:0]
		for _, item := range u.Trash {
			if !item.DeletedAt.After(cutoff) {
				purged++
				continue
			}
			kept = append(kept, item)
		}
		u.Trash = kept
	}
	return purged, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) error {
	return s.mutate(userID, func(u *core.User) error {
		for i := range u.Notifications {
			if u.Notifications[i].ID == id {
				u.Notifications[i].Read = true
				return nil
			}
		}
		return fmt.Errorf("%w: notification %s", core.ErrNotFound, id)
	})
}

func (s *Store) AddBudget(_ context.Context, b core.Budget) error {
	return s.mutate(b.UserID, func(u *core.User) error {
		u.Budgets = append(u.Budgets, b)
		return nil
	})
}

func (s *Store) DeleteBudget(_ context.Context, userID, id string) error {
	return s.mutate(userID, func(u *core.User) error {
		for i, b := range u.Budgets {
			if b.ID == id {
				u.Budgets = append(u.Budgets[:i], u.Budgets[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: budget %s", core.ErrNotFound, id)
	})
}

// mutate runs fn against a copy of the user and keeps it only on success.
func (s *Store) mutate(userID string, fn func(*core.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	cp := cloneUser(*u)
	if err := fn(&cp); err != nil {
		return err
	}
	s.users[userID] = &cp
	return nil
}

type tx struct {
	users map[string]*core.User
}

func (t *tx) user(id string) (*core.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	return u, nil
}

func (t *tx) AppendTransaction(_ context.Context, txn core.Transaction) error {
	u, err := t.user(txn.UserID)
	if err != nil {
		return err
	}
	return appendTransaction(u, txn)
}

func (t *tx) AppendNotification(_ context.Context, n core.Notification) error {
	u, err := t.user(n.UserID)
	if err != nil {
		return err
	}
	u.Notifications = append(u.Notifications, n)
	return nil
}

func (t *tx) UpdateDefinitionCounters(_ context.Context, definitionID string, expectedPushed int, pushedAt time.Time) error {
	for _, u := range t.users {
		for i := range u.RecurringDefinitions {
			d := &u.RecurringDefinitions[i]
			if d.ID != definitionID {
				continue
			}
			if d.OccurrencesPushed != expectedPushed || d.MaterializedOn(pushedAt) {
				return fmt.Errorf("%w: definition %s changed concurrently", core.ErrConflict, definitionID)
			}
			d.OccurrencesPushed++
			at := pushedAt
			d.LastMaterializedAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: recurring definition %s", core.ErrNotFound, definitionID)
}

func (t *tx) MarkReminded(_ context.Context, transactionID string, at time.Time) error {
	for _, u := range t.users {
		for i := range u.Transactions {
			if u.Transactions[i].ID == transactionID {
				stamp := at
				u.Transactions[i].RemindedAt = &stamp
				return nil
			}
		}
	}
	return fmt.Errorf("%w: transaction %s", core.ErrNotFound, transactionID)
}

// appendTransaction enforces the (source definition, day) idempotency key.
func appendTransaction(u *core.User, txn core.Transaction) error {
	for _, existing := range u.Transactions {
		if existing.ID == txn.ID {
			return fmt.Errorf("%w: transaction %s exists", core.ErrConflict, txn.ID)
		}
		if txn.SourceDefinitionID != "" && existing.SourceDefinitionID == txn.SourceDefinitionID &&
			core.SameDay(existing.CreatedAt, txn.CreatedAt) {
			return fmt.Errorf("%w: definition %s already materialized on %s",
				core.ErrConflict, txn.SourceDefinitionID, txn.CreatedAt.Format(time.DateOnly))
		}
	}
	u.Transactions = append(u.Transactions, txn)
	return nil
}

func cloneUser(u core.User) core.User {
	cp := u
	cp.Categories = append([]core.Category(nil), u.Categories...)
	cp.People = append([]core.Person(nil), u.People...)
	cp.Budgets = append([]core.Budget(nil), u.Budgets...)
	cp.Notifications = make([]core.Notification, len(u.Notifications))
	for i, n := range u.Notifications {
		n.Transaction = cloneTransaction(n.Transaction)
		cp.Notifications[i] = n
	}
	cp.Trash = make([]core.TrashItem, len(u.Trash))
	for i, item := range u.Trash {
		item.Transaction = cloneTransaction(item.Transaction)
		cp.Trash[i] = item
	}

	cp.RecurringDefinitions = make([]core.RecurringDefinition, len(u.RecurringDefinitions))
	for i, d := range u.RecurringDefinitions {
		d.Person = clonePerson(d.Person)
		d.LastMaterializedAt = cloneTime(d.LastMaterializedAt)
		cp.RecurringDefinitions[i] = d
	}
	cp.Transactions = make([]core.Transaction, len(u.Transactions))
	for i, t := range u.Transactions {
		cp.Transactions[i] = cloneTransaction(t)
	}
	return cp
}

func cloneTransaction(t core.Transaction) core.Transaction {
	t.Person = clonePerson(t.Person)
	t.RemindAt = cloneTime(t.RemindAt)
	t.RemindedAt = cloneTime(t.RemindedAt)
	return t
}

func clonePerson(p *core.Person) *core.Person {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
