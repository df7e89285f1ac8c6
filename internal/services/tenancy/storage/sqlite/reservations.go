package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
)

// InsertUnique implements storage.ReservationStore.
func (s *EventStore) InsertUnique(ctx context.Context, r storage.Reservation) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO reservations (namespace, reservation_key, tenant_id, owner_ref, reserved_at, confirmed)
		 VALUES (?, ?, ?, NULL, ?, 0)`,
		r.Namespace, r.Key, r.TenantID, toMillis(r.ReservedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// UpdateConfirm implements storage.ReservationStore.
func (s *EventStore) UpdateConfirm(ctx context.Context, namespace, key, ownerRef string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE reservations SET owner_ref = ?, confirmed = 1
		 WHERE namespace = ? AND reservation_key = ? AND (confirmed = 0 OR owner_ref = ?)`,
		ownerRef, namespace, key, ownerRef,
	)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists int
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM reservations WHERE namespace = ? AND reservation_key = ?`,
		namespace, key,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	return storage.ErrDuplicateKey
}

// DeleteIfUnconfirmed implements storage.ReservationStore.
func (s *EventStore) DeleteIfUnconfirmed(ctx context.Context, namespace, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM reservations WHERE namespace = ? AND reservation_key = ? AND confirmed = 0`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// DeleteUnconditional implements storage.ReservationStore.
func (s *EventStore) DeleteUnconditional(ctx context.Context, namespace, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM reservations WHERE namespace = ? AND reservation_key = ?`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// SelectConfirmed implements storage.ReservationStore.
func (s *EventStore) SelectConfirmed(ctx context.Context, namespace, key string) (storage.Reservation, error) {
	r := storage.Reservation{Namespace: namespace, Key: key}
	var reservedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT tenant_id, owner_ref, reserved_at FROM reservations
		 WHERE namespace = ? AND reservation_key = ? AND confirmed = 1`,
		namespace, key,
	).Scan(&r.TenantID, &r.OwnerRef, &reservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Reservation{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	r.ReservedAt = fromMillis(reservedAt)
	r.Confirmed = true
	return r, nil
}

var _ storage.ReservationStore = (*EventStore)(nil)
