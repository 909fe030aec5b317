package internal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/cohort"
	"go.uber.org/zap"
)

// typeDefPool is the subset of pgxpool.Pool the store uses. Narrowing the
// dependency keeps the store testable with pgxmock.
type typeDefPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTypeDefStore is the durable cohort.TypeDefStore. Every typedef
// version is one row keyed by (guid, version); the full document is stored
// as jsonb so schema evolution never needs a table migration.
//
// Expected table:
//
//	CREATE TABLE typedefs (
//	    guid     text   NOT NULL,
//	    version  bigint NOT NULL,
//	    name     text   NOT NULL,
//	    category text   NOT NULL,
//	    body     jsonb  NOT NULL,
//	    PRIMARY KEY (guid, version)
//	);
type PostgresTypeDefStore struct {
	pool  typeDefPool
	table string
}

// NewPostgresTypeDefStore creates a store over the given pool. table defaults
// to "typedefs" when empty.
func NewPostgresTypeDefStore(pool typeDefPool, table string) *PostgresTypeDefStore {
	if table == "" {
		table = "typedefs"
	}
	return &PostgresTypeDefStore{pool: pool, table: table}
}

func (s *PostgresTypeDefStore) AddTypeDef(ctx context.Context, td *cohort.TypeDef) error {
	if td == nil {
		return cohort.NewInvalidParameterError(cohort.ErrCodeNullTypeDef, "cannot persist a nil TypeDef")
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE guid = $1", s.table)
	if err := s.pool.QueryRow(ctx, query, td.GUID).Scan(&count); err != nil {
		return storeQueryError("check typedef existence", err)
	}
	if count > 0 {
		return cohort.NewTypeDefAlreadyExistsError(td.GUID, td.Name)
	}
	return s.insertVersion(ctx, td)
}

func (s *PostgresTypeDefStore) AddTypeDefVersion(ctx context.Context, td *cohort.TypeDef) error {
	if td == nil {
		return cohort.NewInvalidParameterError(cohort.ErrCodeNullTypeDef, "cannot persist a nil TypeDef version")
	}

	var maxVersion *int64
	query := fmt.Sprintf("SELECT MAX(version) FROM %s WHERE guid = $1", s.table)
	if err := s.pool.QueryRow(ctx, query, td.GUID).Scan(&maxVersion); err != nil {
		return storeQueryError("read latest typedef version", err)
	}
	if maxVersion == nil {
		return cohort.NewTypeDefNotFoundError(td.GUID)
	}
	if td.Version <= *maxVersion {
		return cohort.NewPatchError(cohort.ErrCodeInvalidPatchVersion,
			fmt.Sprintf("typedef %s already holds version %d; refusing to store version %d",
				td.GUID, *maxVersion, td.Version))
	}
	return s.insertVersion(ctx, td)
}

func (s *PostgresTypeDefStore) insertVersion(ctx context.Context, td *cohort.TypeDef) error {
	body, err := json.Marshal(td)
	if err != nil {
		return cohort.NewInvalidParameterError(cohort.ErrCodeNullTypeDef,
			fmt.Sprintf("cannot encode typedef %s", td.GUID)).WithCause(err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (guid, version, name, category, body) VALUES ($1, $2, $3, $4, $5)", s.table)
	if _, err := s.pool.Exec(ctx, query, td.GUID, td.Version, td.Name, string(td.Category), body); err != nil {
		return storeQueryError("insert typedef version", err)
	}
	zap.S().Debugw("persisted typedef version",
		"guid", td.GUID, "name", td.Name, "version", td.Version)
	return nil
}

func (s *PostgresTypeDefStore) GetLatestTypeDef(ctx context.Context, guid string) (*cohort.TypeDef, error) {
	query := fmt.Sprintf(
		"SELECT body FROM %s WHERE guid = $1 ORDER BY version DESC LIMIT 1", s.table)
	return s.queryOne(ctx, guid, query, guid)
}

func (s *PostgresTypeDefStore) GetTypeDefVersion(ctx context.Context, guid string, version int64) (*cohort.TypeDef, error) {
	query := fmt.Sprintf(
		"SELECT body FROM %s WHERE guid = $1 AND version = $2", s.table)
	return s.queryOne(ctx, guid, query, guid, version)
}

func (s *PostgresTypeDefStore) GetTypeDefByName(ctx context.Context, name string) (*cohort.TypeDef, error) {
	query := fmt.Sprintf(
		"SELECT body FROM %s WHERE name = $1 ORDER BY version DESC LIMIT 1", s.table)
	return s.queryOne(ctx, name, query, name)
}

func (s *PostgresTypeDefStore) queryOne(ctx context.Context, key, query string, args ...any) (*cohort.TypeDef, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, cohort.NewTypeDefNotFoundError(key)
	}
	if err != nil {
		return nil, storeQueryError("read typedef", err)
	}
	var td cohort.TypeDef
	if err := json.Unmarshal(body, &td); err != nil {
		return nil, storeQueryError("decode stored typedef", err)
	}
	return &td, nil
}

func (s *PostgresTypeDefStore) ListTypeDefs(ctx context.Context) ([]*cohort.TypeDef, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT ON (guid) body FROM %s ORDER BY guid, version DESC`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, storeQueryError("list typedefs", err)
	}
	defer rows.Close()

	var out []*cohort.TypeDef
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, storeQueryError("scan typedef row", err)
		}
		var td cohort.TypeDef
		if err := json.Unmarshal(body, &td); err != nil {
			return nil, storeQueryError("decode stored typedef", err)
		}
		out = append(out, &td)
	}
	if err := rows.Err(); err != nil {
		return nil, storeQueryError("iterate typedef rows", err)
	}
	return out, nil
}

func storeQueryError(action string, err error) error {
	return cohort.NewInvalidParameterError(cohort.ErrCodeStoreQueryFailed,
		fmt.Sprintf("typedef store: %s failed", action)).WithCause(err)
}
