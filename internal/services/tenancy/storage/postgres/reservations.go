// Package postgres provides a Postgres-backed reservation store for
// deployments that share uniqueness keys across processes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS reservations (
    namespace TEXT NOT NULL,
    reservation_key TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    owner_ref TEXT,
    reserved_at TIMESTAMPTZ NOT NULL,
    confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (namespace, reservation_key)
)`

// ReservationStore persists reservations in Postgres.
type ReservationStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*ReservationStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &ReservationStore{pool: pool}, nil
}

// Close releases the pool. Nil-safe.
func (s *ReservationStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the reservations table when missing.
func (s *ReservationStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure reservations schema: %w", err)
	}
	return nil
}

// InsertUnique implements storage.ReservationStore.
func (s *ReservationStore) InsertUnique(ctx context.Context, r storage.Reservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reservations (namespace, reservation_key, tenant_id, reserved_at, confirmed)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		r.Namespace, r.Key, r.TenantID, r.ReservedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// UpdateConfirm implements storage.ReservationStore.
func (s *ReservationStore) UpdateConfirm(ctx context.Context, namespace, key, ownerRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reservations SET owner_ref = $3, confirmed = TRUE
		 WHERE namespace = $1 AND reservation_key = $2
		   AND (confirmed = FALSE OR owner_ref = $3)`,
		namespace, key, ownerRef,
	)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE namespace = $1 AND reservation_key = $2)`,
		namespace, key,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check reservation: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrDuplicateKey
}

// DeleteIfUnconfirmed implements storage.ReservationStore.
func (s *ReservationStore) DeleteIfUnconfirmed(ctx context.Context, namespace, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM reservations WHERE namespace = $1 AND reservation_key = $2 AND confirmed = FALSE`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// DeleteUnconditional implements storage.ReservationStore.
func (s *ReservationStore) DeleteUnconditional(ctx context.Context, namespace, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM reservations WHERE namespace = $1 AND reservation_key = $2`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// SelectConfirmed implements storage.ReservationStore.
func (s *ReservationStore) SelectConfirmed(ctx context.Context, namespace, key string) (storage.Reservation, error) {
	r := storage.Reservation{Namespace: namespace, Key: key, Confirmed: true}
	var reservedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, owner_ref, reserved_at FROM reservations
		 WHERE namespace = $1 AND reservation_key = $2 AND confirmed = TRUE`,
		namespace, key,
	).Scan(&r.TenantID, &r.OwnerRef, &reservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Reservation{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	r.ReservedAt = reservedAt.UTC()
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ storage.ReservationStore = (*ReservationStore)(nil)
