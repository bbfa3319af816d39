package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"fintrack/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Users

const insertUser = `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx, insertUser, u.ID, u.Name, u.Email, formatTime(u.CreatedAt))
	return err
}

const getUser = `SELECT id, name, email, created_at FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	var created string
	if err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Name, &u.Email, &created); err != nil {
		return core.User{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return core.User{}, err
	}
	u.CreatedAt = t
	return u, nil
}

const listUserIDs = `SELECT id FROM users ORDER BY id`

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Categories

const insertCategory = `INSERT INTO categories (user_id, name, color, sign, type, position)
VALUES (?, ?, ?, ?, ?, COALESCE((SELECT MAX(position) + 1 FROM categories WHERE user_id = ?), 0))`

func (q *Queries) InsertCategory(ctx context.Context, userID string, c core.Category) error {
	_, err := q.db.ExecContext(ctx, insertCategory, userID, c.Name, c.Color, c.Sign, string(c.Type), userID)
	return err
}

const listCategories = `SELECT name, color, sign, type FROM categories WHERE user_id = ? ORDER BY position, name`

func (q *Queries) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.Name, &c.Color, &c.Sign, &typ); err != nil {
			return nil, err
		}
		c.Type = core.CategoryType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

const updateCategory = `UPDATE categories SET name = ?, color = ?, sign = ?, type = ? WHERE user_id = ? AND name = ?`

func (q *Queries) UpdateCategory(ctx context.Context, userID, oldName string, c core.Category) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, updateCategory, c.Name, c.Color, c.Sign, string(c.Type), userID, oldName))
}

// cascadeCategory rewrites denormalized category copies in table.
func (q *Queries) cascadeCategory(ctx context.Context, table, userID, oldName string, c core.Category) (int64, error) {
	stmt := fmt.Sprintf(`UPDATE %s SET category_name = ?, category_color = ?, category_sign = ?, category_type = ?
WHERE user_id = ? AND category_name = ? COLLATE NOCASE`, table)
	return rowsAffected(q.db.ExecContext(ctx, stmt, c.Name, c.Color, c.Sign, string(c.Type), userID, oldName))
}

func (q *Queries) CascadeTransactionCategory(ctx context.Context, userID, oldName string, c core.Category) (int64, error) {
	return q.cascadeCategory(ctx, "transactions", userID, oldName, c)
}

func (q *Queries) CascadeRecurringCategory(ctx context.Context, userID, oldName string, c core.Category) (int64, error) {
	return q.cascadeCategory(ctx, "recurring_definitions", userID, oldName, c)
}

func (q *Queries) CascadeBudgetCategory(ctx context.Context, userID, oldName string, c core.Category) (int64, error) {
	return q.cascadeCategory(ctx, "budgets", userID, oldName, c)
}

// People

const insertPerson = `INSERT INTO people (id, user_id, name) VALUES (?, ?, ?)`

func (q *Queries) InsertPerson(ctx context.Context, userID string, p core.Person) error {
	_, err := q.db.ExecContext(ctx, insertPerson, p.ID, userID, p.Name)
	return err
}

const listPeople = `SELECT id, name FROM people WHERE user_id = ? ORDER BY rowid`

func (q *Queries) ListPeople(ctx context.Context, userID string) ([]core.Person, error) {
	rows, err := q.db.QueryContext(ctx, listPeople, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Person
	for rows.Next() {
		var p core.Person
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Recurring definitions

const insertRecurring = `INSERT INTO recurring_definitions (
    id, user_id, amount, note, category_name, category_color, category_sign, category_type,
    person_id, person_name, image, schedule_kind, schedule_weekday, schedule_day, schedule_month,
    total_occurrences, pushed_count, last_pushed_at, last_pushed_on, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRecurring(ctx context.Context, d core.RecurringDefinition) error {
	pid, pname := personColumns(d.Person)
	var lastOn sql.NullString
	if d.LastMaterializedAt != nil {
		lastOn = nullString(dateKey(*d.LastMaterializedAt))
	}
	_, err := q.db.ExecContext(ctx, insertRecurring,
		d.ID, d.UserID, d.Amount.String(), d.Note,
		d.Category.Name, d.Category.Color, d.Category.Sign, string(d.Category.Type),
		pid, pname, d.Image,
		string(d.Schedule.Kind), d.Schedule.Weekday, d.Schedule.DayOfMonth, d.Schedule.Month,
		d.TotalOccurrences, d.OccurrencesPushed, nullTime(d.LastMaterializedAt), lastOn, formatTime(d.CreatedAt))
	return err
}

const listRecurring = `SELECT id, user_id, amount, note, category_name, category_color, category_sign, category_type,
    person_id, person_name, image, schedule_kind, schedule_weekday, schedule_day, schedule_month,
    total_occurrences, pushed_count, last_pushed_at, created_at
FROM recurring_definitions WHERE user_id = ? ORDER BY created_at, id`

func scanRecurring(s rowScanner) (core.RecurringDefinition, error) {
	var (
		d                  core.RecurringDefinition
		amount, typ, kind  string
		created            string
		pid, pname, lastAt sql.NullString
	)
	err := s.Scan(&d.ID, &d.UserID, &amount, &d.Note,
		&d.Category.Name, &d.Category.Color, &d.Category.Sign, &typ,
		&pid, &pname, &d.Image,
		&kind, &d.Schedule.Weekday, &d.Schedule.DayOfMonth, &d.Schedule.Month,
		&d.TotalOccurrences, &d.OccurrencesPushed, &lastAt, &created)
	if err != nil {
		return d, err
	}
	if d.Amount, err = parseAmount(amount); err != nil {
		return d, err
	}
	if d.LastMaterializedAt, err = parseNullTime(lastAt); err != nil {
		return d, err
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return d, err
	}
	d.Category.Type = core.CategoryType(typ)
	d.Schedule.Kind = core.ScheduleKind(kind)
	d.Person = personFromColumns(pid, pname)
	return d, nil
}

func (q *Queries) ListRecurring(ctx context.Context, userID string) ([]core.RecurringDefinition, error) {
	rows, err := q.db.QueryContext(ctx, listRecurring, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.RecurringDefinition
	for rows.Next() {
		d, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const deleteRecurring = `DELETE FROM recurring_definitions WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteRecurring(ctx context.Context, userID, id string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, deleteRecurring, userID, id))
}

// incrementRecurringCounters only succeeds while the stored counter still
// equals the expected value and the definition was not pushed that day.
const incrementRecurringCounters = `UPDATE recurring_definitions
SET pushed_count = pushed_count + 1, last_pushed_at = ?, last_pushed_on = ?
WHERE id = ? AND pushed_count = ? AND pushed_count < total_occurrences
  AND (last_pushed_on IS NULL OR last_pushed_on <> ?)`

func (q *Queries) IncrementRecurringCounters(ctx context.Context, id string, expected int, pushedAt sql.NullString, day string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, incrementRecurringCounters, pushedAt, day, id, expected, day))
}

const recurringExists = `SELECT COUNT(1) FROM recurring_definitions WHERE id = ?`

func (q *Queries) RecurringExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, recurringExists, id).Scan(&n)
	return n > 0, err
}

// Transactions

const insertTransactionQuery = `INSERT INTO transactions (
    id, user_id, amount, note, category_name, category_color, category_sign, category_type,
    person_id, person_name, image, created_at, pushed_into_transactions,
    source_definition_id, materialized_on, remind_at, reminded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	pid, pname := personColumns(t.Person)
	var materializedOn sql.NullString
	if t.SourceDefinitionID != "" {
		materializedOn = nullString(dateKey(t.CreatedAt))
	}
	_, err := q.db.ExecContext(ctx, insertTransactionQuery,
		t.ID, t.UserID, t.Amount.String(), t.Note,
		t.Category.Name, t.Category.Color, t.Category.Sign, string(t.Category.Type),
		pid, pname, t.Image, formatTime(t.CreatedAt), boolToInt(t.PushedIntoTransactions),
		nullString(t.SourceDefinitionID), materializedOn, nullTime(t.RemindAt), nullTime(t.RemindedAt))
	return err
}

const transactionColumns = `id, user_id, amount, note, category_name, category_color, category_sign, category_type,
    person_id, person_name, image, created_at, pushed_into_transactions, source_definition_id, remind_at, reminded_at`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                             core.Transaction
		amount, typ, created          string
		pushed                        int
		pid, pname, source, rAt, rdAt sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &amount, &t.Note,
		&t.Category.Name, &t.Category.Color, &t.Category.Sign, &typ,
		&pid, &pname, &t.Image, &created, &pushed, &source, &rAt, &rdAt)
	if err != nil {
		return t, err
	}
	if t.Amount, err = parseAmount(amount); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if t.RemindAt, err = parseNullTime(rAt); err != nil {
		return t, err
	}
	if t.RemindedAt, err = parseNullTime(rdAt); err != nil {
		return t, err
	}
	t.Category.Type = core.CategoryType(typ)
	t.Person = personFromColumns(pid, pname)
	t.PushedIntoTransactions = pushed != 0
	t.SourceDefinitionID = source.String
	return t, nil
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? AND id = ?`

func (q *Queries) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, userID, id))
}

const deleteTransaction = `DELETE FROM transactions WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, deleteTransaction, userID, id))
}

const markTransactionReminded = `UPDATE transactions SET reminded_at = ? WHERE id = ?`

func (q *Queries) MarkTransactionReminded(ctx context.Context, id string, at sql.NullString) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, markTransactionReminded, at, id))
}

// Notifications

const insertNotification = `INSERT INTO notifications (id, user_id, header, type, read, transaction_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertNotification(ctx context.Context, n core.Notification) error {
	payload, err := json.Marshal(n.Transaction)
	if err != nil {
		return fmt.Errorf("encode notification transaction: %w", err)
	}
	_, err = q.db.ExecContext(ctx, insertNotification,
		n.ID, n.UserID, n.Header, n.Type, boolToInt(n.Read), string(payload), formatTime(n.CreatedAt))
	return err
}

const listNotifications = `SELECT id, user_id, header, type, read, transaction_json, created_at
FROM notifications WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListNotifications(ctx context.Context, userID string) ([]core.Notification, error) {
	rows, err := q.db.QueryContext(ctx, listNotifications, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Notification
	for rows.Next() {
		var (
			n                core.Notification
			payload, created string
			read             int
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Header, &n.Type, &read, &payload, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &n.Transaction); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", n.ID, err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		n.Read = read != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

const markNotificationRead = `UPDATE notifications SET read = 1 WHERE user_id = ? AND id = ?`

func (q *Queries) MarkNotificationRead(ctx context.Context, userID, id string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, markNotificationRead, userID, id))
}

// Budgets

const insertBudget = `INSERT INTO budgets (id, user_id, category_name, category_color, category_sign, category_type, limit_amount, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, insertBudget,
		b.ID, b.UserID, b.Category.Name, b.Category.Color, b.Category.Sign, string(b.Category.Type),
		b.Limit.String(), formatTime(b.CreatedAt))
	return err
}

const listBudgets = `SELECT id, user_id, category_name, category_color, category_sign, category_type, limit_amount, created_at
FROM budgets WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Budget
	for rows.Next() {
		var (
			b                   core.Budget
			typ, limit, created string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Category.Name, &b.Category.Color, &b.Category.Sign, &typ, &limit, &created); err != nil {
			return nil, err
		}
		if b.Limit, err = parseAmount(limit); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		b.Category.Type = core.CategoryType(typ)
		out = append(out, b)
	}
	return out, rows.Err()
}

const deleteBudget = `DELETE FROM budgets WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteBudget(ctx context.Context, userID, id string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, deleteBudget, userID, id))
}

// Trash

const insertTrash = `INSERT INTO trash (transaction_id, user_id, transaction_json, deleted_at) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertTrash(ctx context.Context, userID string, item core.TrashItem) error {
	payload, err := json.Marshal(item.Transaction)
	if err != nil {
		return fmt.Errorf("encode trashed transaction: %w", err)
	}
	_, err = q.db.ExecContext(ctx, insertTrash, item.Transaction.ID, userID, string(payload), formatTime(item.DeletedAt))
	return err
}

const listTrash = `SELECT transaction_json, deleted_at FROM trash WHERE user_id = ? ORDER BY deleted_at`

func (q *Queries) ListTrash(ctx context.Context, userID string) ([]core.TrashItem, error) {
	rows, err := q.db.QueryContext(ctx, listTrash, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.TrashItem
	for rows.Next() {
		var (
			item             core.TrashItem
			payload, deleted string
		)
		if err := rows.Scan(&payload, &deleted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &item.Transaction); err != nil {
			return nil, fmt.Errorf("decode trash item: %w", err)
		}
		if item.DeletedAt, err = parseTime(deleted); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

const purgeTrash = `DELETE FROM trash WHERE deleted_at <= ?`

func (q *Queries) PurgeTrash(ctx context.Context, cutoff string) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, purgeTrash, cutoff))
}
