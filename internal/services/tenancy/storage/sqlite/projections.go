package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage"
	"github.com/louisbranch/tenantcore/internal/services/tenancy/storage/sqlite/migrations"
)

// ProjectionStore holds the read models and tracking positions.
type ProjectionStore struct {
	sqlDB *sql.DB
}

// OpenProjections opens the projections store at path, applying migrations.
func OpenProjections(path string) (*ProjectionStore, error) {
	sqlDB, err := openDB(path, migrations.ProjectionsFS, "projections")
	if err != nil {
		return nil, err
	}
	return &ProjectionStore{sqlDB: sqlDB}, nil
}

// Close closes the underlying database. Nil-safe.
func (s *ProjectionStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InTx implements storage.ReadModelStore.
func (s *ProjectionStore) InTx(ctx context.Context, fn func(storage.ReadModelTx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection tx: %w", err)
	}
	defer rollback(tx)
	if err := fn(readModelTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection tx: %w", err)
	}
	return nil
}

// Position implements storage.PositionReader.
func (s *ProjectionStore) Position(ctx context.Context, projection string) (uint64, error) {
	var position int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT notification_id FROM projection_tracking WHERE projection_name = ?`,
		projection,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read tracking position: %w", err)
	}
	return uint64(position), nil
}

// ResetTracking implements storage.TrackingStore.
func (s *ProjectionStore) ResetTracking(ctx context.Context, projection string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projection_tracking (projection_name, notification_id) VALUES (?, 0)
		 ON CONFLICT (projection_name) DO UPDATE SET notification_id = 0`,
		projection,
	); err != nil {
		return fmt.Errorf("reset tracking: %w", err)
	}
	return nil
}

func (s *ProjectionStore) truncate(ctx context.Context, table string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// TruncateTenants implements storage.ReadModelStore.
func (s *ProjectionStore) TruncateTenants(ctx context.Context) error { return s.truncate(ctx, "tenants") }

// TruncateAPIKeys implements storage.ReadModelStore.
func (s *ProjectionStore) TruncateAPIKeys(ctx context.Context) error { return s.truncate(ctx, "api_keys") }

// TruncateUsers implements storage.ReadModelStore.
func (s *ProjectionStore) TruncateUsers(ctx context.Context) error { return s.truncate(ctx, "users") }

// GetTenant returns one tenant row or storage.ErrNotFound.
func (s *ProjectionStore) GetTenant(ctx context.Context, id string) (storage.TenantRecord, error) {
	return getTenant(ctx, s.sqlDB, id)
}

// ListTenants returns all tenant rows ordered by id.
func (s *ProjectionStore) ListTenants(ctx context.Context) ([]storage.TenantRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var out []storage.TenantRecord
	for rows.Next() {
		r, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetUser returns one user row or storage.ErrNotFound.
func (s *ProjectionStore) GetUser(ctx context.Context, id string) (storage.UserRecord, error) {
	return getUser(ctx, s.sqlDB, id)
}

// ListUsers returns a tenant's users ordered by id; an empty tenant lists all.
func (s *ProjectionStore) ListUsers(ctx context.Context, tenantID string) ([]storage.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if strings.TrimSpace(tenantID) != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []storage.UserRecord
	for rows.Next() {
		r, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListAPIKeys returns an agent's keys ordered by issue time; an empty agent
// lists all.
func (s *ProjectionStore) ListAPIKeys(ctx context.Context, agentID string) ([]storage.APIKeyRecord, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys`
	var args []any
	if strings.TrimSpace(agentID) != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY issued_at, key_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	var out []storage.APIKeyRecord
	for rows.Next() {
		r, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type readModelTx struct {
	q queryer
}

// InsertTracking keeps the greater of the stored and given positions.
func (t readModelTx) InsertTracking(ctx context.Context, projection string, notificationID uint64) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO projection_tracking (projection_name, notification_id) VALUES (?, ?)
		 ON CONFLICT (projection_name) DO UPDATE SET
		     notification_id = MAX(projection_tracking.notification_id, excluded.notification_id)`,
		projection, int64(notificationID),
	); err != nil {
		return fmt.Errorf("insert tracking: %w", err)
	}
	return nil
}

func (t readModelTx) GetTenant(ctx context.Context, id string) (storage.TenantRecord, error) {
	return getTenant(ctx, t.q, id)
}

func (t readModelTx) PutTenant(ctx context.Context, r storage.TenantRecord) error {
	config, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("encode tenant config: %w", err)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("encode tenant metadata: %w", err)
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO tenants (id, slug, name, status, suspension_reason, config_json, metadata_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     slug = excluded.slug,
		     name = excluded.name,
		     status = excluded.status,
		     suspension_reason = excluded.suspension_reason,
		     config_json = excluded.config_json,
		     metadata_json = excluded.metadata_json,
		     version = excluded.version,
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at`,
		r.ID, r.Slug, r.Name, r.Status, r.SuspensionReason, string(config), string(metadata),
		int64(r.Version), toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put tenant: %w", err)
	}
	return nil
}

func (t readModelTx) GetUser(ctx context.Context, id string) (storage.UserRecord, error) {
	return getUser(ctx, t.q, id)
}

func (t readModelTx) PutUser(ctx context.Context, r storage.UserRecord) error {
	prefs, err := json.Marshal(r.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, subject, email, display_name, preferences_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     tenant_id = excluded.tenant_id,
		     subject = excluded.subject,
		     email = excluded.email,
		     display_name = excluded.display_name,
		     preferences_json = excluded.preferences_json,
		     version = excluded.version,
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at`,
		r.ID, r.TenantID, r.Subject, r.Email, r.DisplayName, string(prefs),
		int64(r.Version), toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (t readModelTx) GetAPIKey(ctx context.Context, keyID string) (storage.APIKeyRecord, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = ?`, keyID)
	r, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.APIKeyRecord{}, storage.ErrNotFound
	}
	return r, err
}

func (t readModelTx) PutAPIKey(ctx context.Context, r storage.APIKeyRecord) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO api_keys (key_id, agent_id, tenant_id, prefix, secret_hash, status, issued_at, revoked_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key_id) DO UPDATE SET
		     agent_id = excluded.agent_id,
		     tenant_id = excluded.tenant_id,
		     prefix = excluded.prefix,
		     secret_hash = excluded.secret_hash,
		     status = excluded.status,
		     issued_at = excluded.issued_at,
		     revoked_at = excluded.revoked_at,
		     version = excluded.version`,
		r.KeyID, r.AgentID, r.TenantID, r.Prefix, r.SecretHash, r.Status,
		toMillis(r.IssuedAt), toNullMillis(r.RevokedAt), int64(r.Version),
	)
	if err != nil {
		return fmt.Errorf("put api key: %w", err)
	}
	return nil
}

const (
	tenantColumns = `id, slug, name, status, suspension_reason, config_json, metadata_json, version, created_at, updated_at`
	userColumns   = `id, tenant_id, subject, email, display_name, preferences_json, version, created_at, updated_at`
	apiKeyColumns = `key_id, agent_id, tenant_id, prefix, secret_hash, status, issued_at, revoked_at, version`
)

type scanner interface {
	Scan(dest ...any) error
}

func getTenant(ctx context.Context, q queryer, id string) (storage.TenantRecord, error) {
	r, err := scanTenant(q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TenantRecord{}, storage.ErrNotFound
	}
	return r, err
}

func scanTenant(row scanner) (storage.TenantRecord, error) {
	var (
		r                  storage.TenantRecord
		config, metadata   string
		version            int64
		createdAt, updated int64
	)
	if err := row.Scan(&r.ID, &r.Slug, &r.Name, &r.Status, &r.SuspensionReason,
		&config, &metadata, &version, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan tenant: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return r, fmt.Errorf("decode tenant config: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
		return r, fmt.Errorf("decode tenant metadata: %w", err)
	}
	r.Version = uint64(version)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func getUser(ctx context.Context, q queryer, id string) (storage.UserRecord, error) {
	r, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	return r, err
}

func scanUser(row scanner) (storage.UserRecord, error) {
	var (
		r                  storage.UserRecord
		prefs              string
		version            int64
		createdAt, updated int64
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.Subject, &r.Email, &r.DisplayName,
		&prefs, &version, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(prefs), &r.Preferences); err != nil {
		return r, fmt.Errorf("decode preferences: %w", err)
	}
	r.Version = uint64(version)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func scanAPIKey(row scanner) (storage.APIKeyRecord, error) {
	var (
		r         storage.APIKeyRecord
		issuedAt  int64
		revokedAt sql.NullInt64
		version   int64
	)
	if err := row.Scan(&r.KeyID, &r.AgentID, &r.TenantID, &r.Prefix, &r.SecretHash,
		&r.Status, &issuedAt, &revokedAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan api key: %w", err)
	}
	r.IssuedAt = fromMillis(issuedAt)
	r.RevokedAt = fromNullMillis(revokedAt)
	r.Version = uint64(version)
	return r, nil
}

var (
	_ storage.ReadModelStore = (*ProjectionStore)(nil)
	_ storage.ReadModelTx    = readModelTx{}
)
