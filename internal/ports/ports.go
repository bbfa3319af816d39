// Package ports declares the boundaries between the domain services and the
// adapters that persist, publish and export ledger data.
package ports

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Persistence ports.
type (
	UserReader interface {
		// LoadUser returns the full per-user aggregate or core.ErrUserNotFound.
		LoadUser(ctx context.Context, userID string) (core.User, error)
	}

	UserLister interface {
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// Tx exposes the append-only writes a materialization or reminder pass
	// may perform. Everything written through one Tx commits together.
	Tx interface {
		AppendTransaction(ctx context.Context, t core.Transaction) error
		AppendNotification(ctx context.Context, n core.Notification) error
		// UpdateDefinitionCounters increments the push counter and stamps
		// pushedAt. It returns core.ErrConflict when the stored counter no
		// longer equals expectedPushed or the definition was already pushed
		// on pushedAt's calendar day.
		UpdateDefinitionCounters(ctx context.Context, definitionID string, expectedPushed int, pushedAt time.Time) error
		MarkReminded(ctx context.Context, transactionID string, at time.Time) error
	}

	Store interface {
		UserReader
		UserLister
		// WithinTx runs fn in a single storage transaction. A non-nil error
		// from fn rolls back every write made through the Tx.
		WithinTx(ctx context.Context, fn func(Tx) error) error
	}

	// LedgerStore is the CRUD surface behind the HTTP API.
	LedgerStore interface {
		Store
		CreateUser(ctx context.Context, u core.User) error
		AddCategory(ctx context.Context, userID string, c core.Category) error
		// UpdateCategory rewrites the category named oldName and every
		// denormalized copy of it. It returns how many rows were touched.
		UpdateCategory(ctx context.Context, userID, oldName string, c core.Category) (int, error)
		AddPerson(ctx context.Context, userID string, p core.Person) error
		AddRecurring(ctx context.Context, d core.RecurringDefinition) error
		DeleteRecurring(ctx context.Context, userID, id string) error
		AddTransaction(ctx context.Context, t core.Transaction) error
		MoveToTrash(ctx context.Context, userID, transactionID string, at time.Time) (core.TrashItem, error)
		// PurgeTrash deletes trash items deleted at or before cutoff across
		// all users.
		PurgeTrash(ctx context.Context, cutoff time.Time) (int, error)
		MarkNotificationRead(ctx context.Context, userID, id string) error
		AddBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, userID, id string) error
	}
)

// Outbound ports.
type (
	NotificationPublisher interface {
		PublishNotification(ctx context.Context, n core.Notification) error
	}

	MaterializeRequester interface {
		RequestMaterialize(ctx context.Context, userID string, at time.Time) error
	}

	// TransactionExporter mirrors realized transactions into an external
	// ledger, such as a spreadsheet.
	TransactionExporter interface {
		Export(ctx context.Context, txns []core.Transaction) error
	}
)
