package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const orderColumns = `id, order_id, user_id, total_amount, order_time, status, shipping_address`

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreateOrder inserts the order and its items in one transaction and
// writes the generated primary keys back into order.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (order_id, user_id, total_amount, order_time, status, shipping_address)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	insertErr := tx.QueryRowContext(ctx, query,
		order.OrderID,
		order.UserID,
		order.TotalAmount,
		order.OrderTime,
		order.Status,
		order.ShippingAddress).Scan(&order.ID)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderID
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	itemQuery := `INSERT INTO order_items (order_id_fk, position, product_id, product_name, quantity, unit_price)
	              VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	for i := range order.Items {
		item := &order.Items[i]
		if err := tx.QueryRowContext(ctx, itemQuery,
			order.ID,
			i,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetOrderByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
}

func (r *Repository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_time DESC`, userID)
}

func (r *Repository) ListByStatusBefore(ctx context.Context, status domain.OrderStatus, threshold time.Time) ([]*domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND order_time < $2 ORDER BY order_time`,
		status, threshold)
}

// UpdateOrder rewrites the parent row. Items are left as they are.
func (r *Repository) UpdateOrder(ctx context.Context, order *domain.Order) error {
	query := `UPDATE orders SET user_id = $2, total_amount = $3, status = $4, shipping_address = $5
	          WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.Status,
		order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOneRow(res)
}

// DeleteOrder removes the order; its items go with it through ON DELETE CASCADE.
func (r *Repository) DeleteOrder(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) getOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	var order domain.Order
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID,
		&order.OrderID,
		&order.UserID,
		&order.TotalAmount,
		&order.OrderTime,
		&order.Status,
		&order.ShippingAddress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.OrderID,
			&order.UserID,
			&order.TotalAmount,
			&order.OrderTime,
			&order.Status,
			&order.ShippingAddress,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all given orders with a single query.
func (r *Repository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		o.Items = make([]domain.OrderItem, 0)
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `SELECT id, order_id_fk, product_id, product_name, quantity, unit_price
	          FROM order_items WHERE order_id_fk = ANY($1) ORDER BY order_id_fk, position`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var parentID int64
		if err := rows.Scan(
			&item.ID,
			&parentID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return fmt.Errorf("scan order item row: %w", err)
		}
		if o, ok := byID[parentID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}
