package database

import (
	"context"
	"database/sql"

	"github.com/akhouriprakhar/price-monitor-bot/internal/models"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection backing the product catalog.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and creates the schema if needed.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db := &DB{conn: conn}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"path": dbPath}).Info("Database initialized")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		initial_price REAL,
		last_checked_price REAL,
		target_price REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, url)
	);
	`

	if _, err := db.conn.Exec(createTableSQL); err != nil {
		return errors.Wrap(err, "create products table")
	}
	return nil
}

// AddOrUpdate inserts a product for tracking, or refreshes the title if the
// user is already tracking the URL. The monitor remains the only writer of
// last_checked_price, so a re-add never resets it. Returns the row id.
func (db *DB) AddOrUpdate(ctx context.Context, userID int64, url, title string, price float64) (int64, error) {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO products (user_id, url, title, initial_price, last_checked_price)
	VALUES (?, ?, ?, ?, NULL)
	ON CONFLICT(user_id, url) DO UPDATE SET title = excluded.title
	`, userID, url, title, price)
	if err != nil {
		return 0, errors.Wrapf(err, "add product for user %d", userID)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx,
		"SELECT id FROM products WHERE user_id = ? AND url = ?",
		userID, url,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "look up product id")
	}
	return id, nil
}

// GetAllProducts returns every tracked product, for the monitor's check cycle.
func (db *DB) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, url, title, initial_price, last_checked_price, target_price, created_at FROM products")
	if err != nil {
		return nil, errors.Wrap(err, "query all products")
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetUserProducts returns the products tracked by a single user, oldest first.
func (db *DB) GetUserProducts(ctx context.Context, userID int64) ([]models.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, url, title, initial_price, last_checked_price, target_price, created_at FROM products WHERE user_id = ? ORDER BY created_at, id",
		userID)
	if err != nil {
		return nil, errors.Wrapf(err, "query products for user %d", userID)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// UpdateLastCheckedPrice records the price observed by the monitor.
func (db *DB) UpdateLastCheckedPrice(ctx context.Context, id int64, price float64) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE products SET last_checked_price = ? WHERE id = ?",
		price, id)
	return errors.Wrapf(err, "update price for product %d", id)
}

// SetTargetPrice sets the alert threshold for a product owned by userID.
// Returns false when no such product exists for that user.
func (db *DB) SetTargetPrice(ctx context.Context, id, userID int64, price float64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE products SET target_price = ? WHERE id = ? AND user_id = ?",
		price, id, userID)
	if err != nil {
		return false, errors.Wrapf(err, "set target price for product %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// DeleteProduct removes a product permanently. The user_id guard keeps one
// user from deleting another user's rows.
func (db *DB) DeleteProduct(ctx context.Context, id, userID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM products WHERE id = ? AND user_id = ?",
		id, userID)
	return errors.Wrapf(err, "delete product %d", id)
}

func scanProducts(rows *sql.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		var p models.Product
		var title sql.NullString
		var lastChecked, target sql.NullFloat64
		err := rows.Scan(&p.ID, &p.UserID, &p.URL, &title, &p.InitialPrice, &lastChecked, &target, &p.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		if title.Valid {
			p.Title = title.String
		}
		if lastChecked.Valid {
			v := lastChecked.Float64
			p.LastCheckedPrice = &v
		}
		if target.Valid {
			v := target.Float64
			p.TargetPrice = &v
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
