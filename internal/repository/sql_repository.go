package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sportscarhub/storefront/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Repository is the SQL implementation of Store. The same statements run on
// PostgreSQL and SQLite.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewRepository(cred *Credentials) (*Repository, error) {
	db, err := openPostgres(cred)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, dialect: DialectPostgres}, nil
}

func NewSQLiteRepository(dsn string) (*Repository, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, dialect: DialectSQLite}, nil
}

// NewRepositoryWithDB wraps an already opened database.
func NewRepositoryWithDB(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// ---- catalog ----

const carColumns = `id, make, model, year, price, mileage, color, engine, horsepower, transmission, image_url, description, created_at`

func scanCar(row interface{ Scan(...any) error }) (*domain.Car, error) {
	var c domain.Car
	if err := row.Scan(
		&c.ID,
		&c.Make,
		&c.Model,
		&c.Year,
		&c.Price,
		&c.Mileage,
		&c.Color,
		&c.Engine,
		&c.Horsepower,
		&c.Transmission,
		&c.ImageURL,
		&c.Description,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (r *Repository) ListCars(ctx context.Context) ([]*domain.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars ORDER BY make, model, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cars: %w", err)
	}
	defer rows.Close()

	cars := make([]*domain.Car, 0)
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan car row: %w", err)
		}
		cars = append(cars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cars, nil
}

func (r *Repository) GetCar(ctx context.Context, id string) (*domain.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE id = $1`

	c, err := scanCar(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query car by id: %w", err)
	}
	return c, nil
}

func (r *Repository) UpsertCars(ctx context.Context, cars []*domain.Car) error {
	query := `INSERT INTO cars (` + carColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (id) DO UPDATE SET
	              make = EXCLUDED.make,
	              model = EXCLUDED.model,
	              year = EXCLUDED.year,
	              price = EXCLUDED.price,
	              mileage = EXCLUDED.mileage,
	              color = EXCLUDED.color,
	              engine = EXCLUDED.engine,
	              horsepower = EXCLUDED.horsepower,
	              transmission = EXCLUDED.transmission,
	              image_url = EXCLUDED.image_url,
	              description = EXCLUDED.description`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cars {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			c.ID,
			c.Make,
			c.Model,
			c.Year,
			c.Price,
			c.Mileage,
			c.Color,
			c.Engine,
			c.Horsepower,
			c.Transmission,
			c.ImageURL,
			c.Description,
			createdAt.UTC(),
		); err != nil {
			return fmt.Errorf("upsert car %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ---- cart ----

func (r *Repository) ListItems(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	query := `SELECT id, car_id, make, model, year, unit_price, image_url, quantity, added_at
	          FROM cart_items WHERE owner_id = $1 ORDER BY added_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID,
			&item.CarID,
			&item.Make,
			&item.Model,
			&item.Year,
			&item.UnitPrice,
			&item.ImageURL,
			&item.Quantity,
			&item.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		item.AddedAt = item.AddedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *Repository) AddItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	query := `INSERT INTO cart_items (owner_id, id, car_id, make, model, year, unit_price, image_url, quantity, added_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (owner_id, id) DO UPDATE SET
	              car_id = EXCLUDED.car_id,
	              make = EXCLUDED.make,
	              model = EXCLUDED.model,
	              year = EXCLUDED.year,
	              unit_price = EXCLUDED.unit_price,
	              image_url = EXCLUDED.image_url,
	              quantity = EXCLUDED.quantity,
	              added_at = EXCLUDED.added_at`

	_, err := r.db.ExecContext(ctx, query,
		ownerID,
		item.ID,
		item.CarID,
		item.Make,
		item.Model,
		item.Year,
		item.UnitPrice,
		item.ImageURL,
		item.Quantity,
		item.AddedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (r *Repository) RemoveItems(ctx context.Context, ownerID string, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range itemIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE owner_id = $1 AND id = $2`, ownerID, id); err != nil {
			return fmt.Errorf("delete cart item %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ---- orders ----

const orderColumns = `id, owner_id, owner_email, items, total_amount, status, payment_method, payment_proof_ref, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var (
		order     domain.Order
		itemsJSON []byte
		proofRef  sql.NullString
	)
	if err := row.Scan(
		&order.ID,
		&order.OwnerID,
		&order.OwnerEmail,
		&itemsJSON,
		&order.TotalAmount,
		&order.Status,
		&order.PaymentMethod,
		&proofRef,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if proofRef.Valid {
		ref := proofRef.String
		order.PaymentProofRef = &ref
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return &order, nil
}

func (r *Repository) CommitCheckout(ctx context.Context, order *domain.Order, idempotencyKey string) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	var key sql.NullString
	if idempotencyKey != "" {
		key = sql.NullString{String: idempotencyKey, Valid: true}
	}
	var proofRef sql.NullString
	if order.PaymentProofRef != nil {
		proofRef = sql.NullString{String: *order.PaymentProofRef, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, insertErr := tx.ExecContext(ctx,
		`INSERT INTO orders (id, owner_id, owner_email, items, total_amount, status, payment_method, payment_proof_ref, idempotency_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID,
		order.OwnerID,
		order.OwnerEmail,
		string(itemsJSON),
		order.TotalAmount,
		order.Status,
		order.PaymentMethod,
		proofRef,
		key,
		order.CreatedAt.UTC(),
		order.UpdatedAt.UTC(),
	)
	if insertErr != nil {
		if key.Valid && isUniqueViolation(insertErr) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	for _, id := range order.ItemIDs() {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE owner_id = $1 AND id = $2`, order.OwnerID, id)
		if err != nil {
			return fmt.Errorf("delete cart item %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return ErrCartChanged
		}
	}

	event := domain.NewOrderEvent(uuid.NewString(), domain.OrderEventPlaced, order, order.CreatedAt)
	if err := insertOutboxEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout: %w", err)
	}
	return nil
}

func (r *Repository) FindOrderIDByIdempotencyKey(ctx context.Context, ownerID, key string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE owner_id = $1 AND idempotency_key = $2`, ownerID, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query order by idempotency key: %w", err)
	}
	return id, nil
}

func (r *Repository) GetOrder(ctx context.Context, id string, scope domain.OrderScope) (*domain.Order, error) {
	return getOrder(ctx, r.db, id, scope)
}

func getOrder(ctx context.Context, q querier, id string, scope domain.OrderScope) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	args := []any{id}
	if !scope.All {
		if scope.OwnerID == "" {
			return nil, ErrOrderNotFound
		}
		query += ` AND owner_id = $2`
		args = append(args, scope.OwnerID)
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrders(ctx context.Context, scope domain.OrderScope) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if !scope.All {
		if scope.OwnerID == "" {
			return []*domain.Order{}, nil
		}
		query += ` WHERE owner_id = $1`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at.UTC(), id, from)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("query order status: %w", err)
		}
		return nil, ErrStatusConflict
	}

	order, err := getOrder(ctx, tx, id, domain.OrderScope{All: true})
	if err != nil {
		return nil, err
	}

	event := domain.NewOrderEvent(uuid.NewString(), domain.OrderEventStatusChanged, order, at)
	if err := insertOutboxEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return order, nil
}

// ---- outbox ----

func insertOutboxEvent(ctx context.Context, q querier, event domain.OrderEvent) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID,
		event.OrderID,
		string(event.Type),
		string(payload),
		event.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY seq ASC
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
