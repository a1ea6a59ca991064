package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/relay"
	"github.com/hamed0406/pushrelay/internal/repo"
)

var _ repo.TargetSource = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitors (
  id              TEXT PRIMARY KEY,
  monitor_type    TEXT NOT NULL,
  target          TEXT NOT NULL,
  push_url        TEXT NULL,
  request_headers JSONB NULL,
  skip_tls_verify BOOLEAN NOT NULL DEFAULT false,
  enabled         BOOLEAN NOT NULL DEFAULT true,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store reads monitor rows. Rows without push_url are pushed to
// {UpstreamBase}/api/push/{id}.
type Store struct {
	pool         *pgxpool.Pool
	log          *zap.Logger
	UpstreamBase string
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the monitors table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Add inserts or replaces a monitor row.
func (s *Store) Add(ctx context.Context, t domain.Target) error {
	push := null.NewString(t.PushURL, t.PushURL != "")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (id, monitor_type, target, push_url, request_headers, skip_tls_verify)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		   SET monitor_type = EXCLUDED.monitor_type,
		       target = EXCLUDED.target,
		       push_url = EXCLUDED.push_url,
		       request_headers = EXCLUDED.request_headers,
		       skip_tls_verify = EXCLUDED.skip_tls_verify`,
		t.ID, t.Kind.String(), t.Address, push, t.Headers, t.SkipTLSVerify,
	)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

// List returns every enabled monitor. Invalid rows are all reported in one
// error.
func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_type, target, push_url, request_headers, skip_tls_verify
		   FROM monitors
		  WHERE enabled
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var (
		out  []domain.Target
		errs error
	)
	for rows.Next() {
		var (
			id, kind, target string
			push             null.String
			headers          map[string]string
			skip             bool
		)
		if err := rows.Scan(&id, &kind, &target, &push, &headers, &skip); err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		t, err := s.toTarget(id, kind, target, push, headers, skip)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("monitor %s: %w", id, err))
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	if errs != nil {
		return nil, errs
	}
	s.log.Info("monitors_loaded", zap.Int("count", len(out)))
	return out, nil
}

func (s *Store) toTarget(id, kind, target string, push null.String, headers map[string]string, skip bool) (domain.Target, error) {
	k, err := domain.ParseKind(kind)
	if err != nil {
		return domain.Target{}, err
	}
	dest := push.ValueOrZero()
	if dest == "" {
		if dest, err = relay.PushURL(s.UpstreamBase, id); err != nil {
			return domain.Target{}, err
		}
	}
	t := domain.Target{
		ID:            id,
		Kind:          k,
		Address:       target,
		PushURL:       dest,
		Headers:       headers,
		SkipTLSVerify: skip,
	}
	return t, t.Validate()
}
