package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-tracking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO bookings(id, customer_id, car_id, status, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6)`,
		b.ID, b.CustomerID, b.CarID, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := p.db.QueryRowContext(ctx,
		`SELECT id, customer_id, car_id, status, created_at, updated_at FROM bookings WHERE id=$1`, id).
		Scan(&b.ID, &b.CustomerID, &b.CarID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, customer_id, car_id, status, created_at, updated_at FROM bookings WHERE customer_id=$1 ORDER BY created_at DESC`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.CarID, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bookings SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
