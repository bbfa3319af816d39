package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	_ "modernc.org/sqlite"
)

var _ ports.LedgerStore = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// dsn enables WAL, a busy timeout and foreign keys on every connection.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection serializes access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) LoadUser(ctx context.Context, userID string) (core.User, error) {
	q := r.queries
	u, err := q.GetUser(ctx, userID)
	if isNoRows(err) {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.User{}, persistence("get user", err)
	}
	if u.Categories, err = q.ListCategories(ctx, userID); err != nil {
		return core.User{}, persistence("list categories", err)
	}
	if u.People, err = q.ListPeople(ctx, userID); err != nil {
		return core.User{}, persistence("list people", err)
	}
	if u.RecurringDefinitions, err = q.ListRecurring(ctx, userID); err != nil {
		return core.User{}, persistence("list recurring definitions", err)
	}
	if u.Transactions, err = q.ListTransactions(ctx, userID); err != nil {
		return core.User{}, persistence("list transactions", err)
	}
	if u.Notifications, err = q.ListNotifications(ctx, userID); err != nil {
		return core.User{}, persistence("list notifications", err)
	}
	if u.Budgets, err = q.ListBudgets(ctx, userID); err != nil {
		return core.User{}, persistence("list budgets", err)
	}
	if u.Trash, err = q.ListTrash(ctx, userID); err != nil {
		return core.User{}, persistence("list trash", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListUserIDs(ctx)
	if err != nil {
		return nil, persistence("list users", err)
	}
	return ids, nil
}

// WithinTx runs fn inside a database transaction. fn must only touch the
// database through the Tx it receives.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ports.Tx) error) error {
	return r.inTx(ctx, func(q *Queries) error {
		return fn(&sqliteTx{q: q})
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin transaction", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistence("commit transaction", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.InsertUser(ctx, u); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user %s exists", core.ErrConflict, u.ID)
			}
			return persistence("insert user", err)
		}
		for _, c := range u.Categories {
			if err := q.InsertCategory(ctx, u.ID, c); err != nil {
				return persistence("insert category", err)
			}
		}
		for _, p := range u.People {
			if err := q.InsertPerson(ctx, u.ID, p); err != nil {
				return persistence("insert person", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) AddCategory(ctx context.Context, userID string, c core.Category) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		if err := q.InsertCategory(ctx, userID, c); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: category %q exists", core.ErrConflict, c.Name)
			}
			return persistence("insert category", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, userID, oldName string, c core.Category) (int, error) {
	var touched int64
	err := r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		n, err := q.UpdateCategory(ctx, userID, oldName, c)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: category %q exists", core.ErrConflict, c.Name)
			}
			return persistence("update category", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: category %q", core.ErrNotFound, oldName)
		}
		touched += n
		for _, cascade := range []func(context.Context, string, string, core.Category) (int64, error){
			q.CascadeTransactionCategory,
			q.CascadeRecurringCategory,
			q.CascadeBudgetCategory,
		} {
			n, err := cascade(ctx, userID, oldName, c)
			if err != nil {
				return persistence("cascade category", err)
			}
			touched += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(touched), nil
}

func (r *SQLiteRepository) AddPerson(ctx context.Context, userID string, p core.Person) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		if err := q.InsertPerson(ctx, userID, p); err != nil {
			return persistence("insert person", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) AddRecurring(ctx context.Context, d core.RecurringDefinition) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, d.UserID); err != nil {
			return err
		}
		if err := q.InsertRecurring(ctx, d); err != nil {
			return persistence("insert recurring definition", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		n, err := q.DeleteRecurring(ctx, userID, id)
		if err != nil {
			return persistence("delete recurring definition", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: recurring definition %s", core.ErrNotFound, id)
		}
		return nil
	})
}

func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, t.UserID); err != nil {
			return err
		}
		return insertTransaction(ctx, q, t)
	})
}

func (r *SQLiteRepository) MoveToTrash(ctx context.Context, userID, transactionID string, at time.Time) (core.TrashItem, error) {
	var item core.TrashItem
	err := r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		t, err := q.GetTransaction(ctx, userID, transactionID)
		if isNoRows(err) {
			return fmt.Errorf("%w: transaction %s", core.ErrNotFound, transactionID)
		}
		if err != nil {
			return persistence("get transaction", err)
		}
		item = core.TrashItem{Transaction: t, DeletedAt: at}
		if err := q.InsertTrash(ctx, userID, item); err != nil {
			return persistence("insert trash", err)
		}
		if _, err := q.DeleteTransaction(ctx, userID, transactionID); err != nil {
			return persistence("delete transaction", err)
		}
		return nil
	})
	if err != nil {
		return core.TrashItem{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) PurgeTrash(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := r.queries.PurgeTrash(ctx, formatTime(cutoff))
	if err != nil {
		return 0, persistence("purge trash", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		n, err := q.MarkNotificationRead(ctx, userID, id)
		if err != nil {
			return persistence("mark notification read", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: notification %s", core.ErrNotFound, id)
		}
		return nil
	})
}

func (r *SQLiteRepository) AddBudget(ctx context.Context, b core.Budget) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, b.UserID); err != nil {
			return err
		}
		if err := q.InsertBudget(ctx, b); err != nil {
			return persistence("insert budget", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := requireUser(ctx, q, userID); err != nil {
			return err
		}
		n, err := q.DeleteBudget(ctx, userID, id)
		if err != nil {
			return persistence("delete budget", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: budget %s", core.ErrNotFound, id)
		}
		return nil
	})
}

type sqliteTx struct {
	q *Queries
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, txn core.Transaction) error {
	return insertTransaction(ctx, t.q, txn)
}

func (t *sqliteTx) AppendNotification(ctx context.Context, n core.Notification) error {
	if err := t.q.InsertNotification(ctx, n); err != nil {
		return persistence("insert notification", err)
	}
	return nil
}

func (t *sqliteTx) UpdateDefinitionCounters(ctx context.Context, definitionID string, expectedPushed int, pushedAt time.Time) error {
	n, err := t.q.IncrementRecurringCounters(ctx, definitionID, expectedPushed, nullTime(&pushedAt), dateKey(pushedAt))
	if err != nil {
		return persistence("update recurring counters", err)
	}
	if n > 0 {
		return nil
	}
	exists, err := t.q.RecurringExists(ctx, definitionID)
	if err != nil {
		return persistence("check recurring definition", err)
	}
	if !exists {
		return fmt.Errorf("%w: recurring definition %s", core.ErrNotFound, definitionID)
	}
	return fmt.Errorf("%w: definition %s changed concurrently", core.ErrConflict, definitionID)
}

func (t *sqliteTx) MarkReminded(ctx context.Context, transactionID string, at time.Time) error {
	n, err := t.q.MarkTransactionReminded(ctx, transactionID, nullTime(&at))
	if err != nil {
		return persistence("mark reminded", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, transactionID)
	}
	return nil
}

func insertTransaction(ctx context.Context, q *Queries, t core.Transaction) error {
	if err := q.InsertTransaction(ctx, t); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s or its materialization already exists", core.ErrConflict, t.ID)
		}
		return persistence("insert transaction", err)
	}
	return nil
}

func requireUser(ctx context.Context, q *Queries, userID string) error {
	_, err := q.GetUser(ctx, userID)
	if isNoRows(err) {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return persistence("get user", err)
	}
	return nil
}

// persistence tags err as a storage failure.
func persistence(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", core.ErrPersistence, op, err)
}
