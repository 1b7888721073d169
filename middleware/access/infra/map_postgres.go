package infra

import (
	"context"
	"errors"

	"access-gateway/middleware/access/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgDB é o subconjunto de *pgxpool.Pool (ou pgx.Conn) usado pelo store.
type PgDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const kvmSchema = `
CREATE TABLE IF NOT EXISTS access_kvm (
	app_id     TEXT NOT NULL,
	scope      TEXT NOT NULL,
	api        TEXT NOT NULL DEFAULT '',
	revision   TEXT NOT NULL DEFAULT '',
	map_name   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (app_id, scope, api, revision, map_name, key)
)`

// PostgresMapStore guarda os mapas duráveis na tabela access_kvm.
type PostgresMapStore struct {
	DB PgDB
}

func NewPostgresMapStore(db PgDB) *PostgresMapStore {
	return &PostgresMapStore{DB: db}
}

// EnsureSchema cria a tabela se ainda não existir.
func (s *PostgresMapStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, kvmSchema)
	return err
}

func (s *PostgresMapStore) Get(ctx context.Context, ref domain.MapRef, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRow(ctx, `
		SELECT value FROM access_kvm
		WHERE app_id=$1 AND scope=$2 AND api=$3 AND revision=$4 AND map_name=$5 AND key=$6
	`, ref.AppID, ref.Scope, ref.API, ref.Revision, ref.Name, key).Scan(&value)
	if err == nil {
		return value, true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	return "", false, err
}

func (s *PostgresMapStore) Put(ctx context.Context, ref domain.MapRef, key, value string) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO access_kvm (app_id, scope, api, revision, map_name, key, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (app_id, scope, api, revision, map_name, key)
		DO UPDATE SET value=EXCLUDED.value, updated_at=now()
	`, ref.AppID, ref.Scope, ref.API, ref.Revision, ref.Name, key, value)
	return err
}

func (s *PostgresMapStore) Remove(ctx context.Context, ref domain.MapRef, key string) error {
	_, err := s.DB.Exec(ctx, `
		DELETE FROM access_kvm
		WHERE app_id=$1 AND scope=$2 AND api=$3 AND revision=$4 AND map_name=$5 AND key=$6
	`, ref.AppID, ref.Scope, ref.API, ref.Revision, ref.Name, key)
	return err
}

func (s *PostgresMapStore) GetKeys(ctx context.Context, ref domain.MapRef) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT key FROM access_kvm
		WHERE app_id=$1 AND scope=$2 AND api=$3 AND revision=$4 AND map_name=$5
		ORDER BY key
	`, ref.AppID, ref.Scope, ref.API, ref.Revision, ref.Name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
