package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/db"
	"github.com/sells-group/signal-hunter/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	settings
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, settings: newSettings(opts)}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS user_configs (
	user_id    TEXT PRIMARY KEY,
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS account_lists (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS list_accounts (
	list_id      TEXT NOT NULL REFERENCES account_lists(id) ON DELETE CASCADE,
	domain       TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	added_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (list_id, domain)
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	domain     TEXT NOT NULL,
	score      INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'new',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, domain)
);

CREATE TABLE IF NOT EXISTS signal_runs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	stats       JSONB NOT NULL DEFAULT '{}',
	errors      JSONB NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_account_lists_user_type ON account_lists(user_id, type);
CREATE INDEX IF NOT EXISTS idx_list_accounts_domain ON list_accounts(domain);
CREATE INDEX IF NOT EXISTS idx_leads_user_created ON leads(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signal_runs_user_started ON signal_runs(user_id, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Users ---

func (s *PostgresStore) GetUserConfig(ctx context.Context, userID string) (*model.UserConfig, error) {
	var raw []byte
	var updated time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT config, updated_at FROM user_configs WHERE user_id = $1`, userID,
	).Scan(&raw, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "user config %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get user config")
	}

	var cfg model.UserConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal user config")
	}
	cfg.UserID = userID
	cfg.UpdatedAt = updated
	return &cfg, nil
}

func (s *PostgresStore) SaveUserConfig(ctx context.Context, cfg *model.UserConfig) error {
	if cfg.UserID == "" {
		return eris.New("postgres: user config without user id")
	}
	cfg.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal user config")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_configs (user_id, config, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		cfg.UserID, raw, cfg.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save user config")
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM user_configs ORDER BY user_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list users")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, eris.Wrap(err, "postgres: collect users")
}

// --- Lists ---

func (s *PostgresStore) CreateList(ctx context.Context, userID, name string, typ model.ListType) (*model.AccountList, error) {
	l := &model.AccountList{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO account_lists (id, user_id, name, type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.UserID, l.Name, string(l.Type), l.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create list")
	}
	return l, nil
}

func (s *PostgresStore) GetLists(ctx context.Context, userID string, typ model.ListType) ([]model.AccountList, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, type, created_at FROM account_lists
		 WHERE user_id = $1 AND type = $2 ORDER BY created_at`,
		userID, string(typ),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lists")
	}
	lists, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AccountList, error) {
		var l model.AccountList
		var typ string
		err := row.Scan(&l.ID, &l.UserID, &l.Name, &typ, &l.CreatedAt)
		l.Type = model.ListType(typ)
		return l, err
	})
	return lists, eris.Wrap(err, "postgres: collect lists")
}

func (s *PostgresStore) GetListAccounts(ctx context.Context, listID string) ([]model.ListAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT list_id, domain, company_name FROM list_accounts WHERE list_id = $1 ORDER BY added_at, domain`,
		listID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get list accounts")
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ListAccount, error) {
		var a model.ListAccount
		err := row.Scan(&a.ListID, &a.Domain, &a.CompanyName)
		return a, err
	})
	return accounts, eris.Wrap(err, "postgres: collect list accounts")
}

// AddListAccounts bulk-loads accounts through a COPY-staged upsert, so large
// CSV imports stay one round trip.
func (s *PostgresStore) AddListAccounts(ctx context.Context, listID string, accounts []model.ListAccount) (int, error) {
	accounts = normalizeAccounts(listID, accounts)
	rows := make([][]any, len(accounts))
	for i, a := range accounts {
		rows[i] = []any{a.ListID, a.Domain, a.CompanyName}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "list_accounts",
		Columns:      []string{"list_id", "domain", "company_name"},
		ConflictKeys: []string{"list_id", "domain"},
		UpdateCols:   []string{"company_name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: add list accounts")
	}
	return int(n), nil
}

func (s *PostgresStore) IsDoNotContact(ctx context.Context, userID, domain string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM list_accounts a
		 JOIN account_lists l ON l.id = a.list_id
		 WHERE l.user_id = $1 AND l.type = $2 AND a.domain = $3)`,
		userID, string(model.ListTypeDoNotContact), model.NormalizeDomain(domain),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: do-not-contact lookup")
	}
	return exists, nil
}

// --- Leads ---

func (s *PostgresStore) GetStoredLeads(ctx context.Context, userID string, limit int) ([]model.LeadRecord, error) {
	if limit <= 0 {
		limit = s.maxLeads
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data, status, updated_at FROM leads WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get stored leads")
	}
	leads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LeadRecord, error) {
		var raw []byte
		var status string
		var updated time.Time
		var l model.LeadRecord
		if err := row.Scan(&raw, &status, &updated); err != nil {
			return l, err
		}
		if err := json.Unmarshal(raw, &l); err != nil {
			return l, err
		}
		l.Status = model.LeadStatus(status)
		l.UpdatedAt = updated
		return l, nil
	})
	return leads, eris.Wrap(err, "postgres: collect leads")
}

func (s *PostgresStore) AddNewLeads(ctx context.Context, userID string, leads []model.LeadRecord) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	added, skipped := 0, 0
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range leads {
			l := prepareLead(userID, &leads[i])
			raw, err := json.Marshal(l)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal lead")
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO leads (id, user_id, run_id, domain, score, status, data, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (user_id, domain) DO NOTHING`,
				l.ID, userID, l.RunID, l.Domain, l.Score, string(l.Status), raw, l.CreatedAt, l.UpdatedAt,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert lead %s", l.Domain)
			}
			if tag.RowsAffected() > 0 {
				added++
			} else {
				skipped++
			}
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM leads WHERE user_id = $1 AND id NOT IN (
				SELECT id FROM leads WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2)`,
			userID, s.maxLeads,
		)
		return eris.Wrap(err, "postgres: trim leads")
	})
	if err != nil {
		return 0, 0, err
	}
	return added, skipped, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", leadID)
	}
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.SignalRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO signal_runs (id, user_id, mode, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.UserID, string(run.Mode), string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.SignalRun) error {
	stats, errs, err := marshalRunResult(run)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE signal_runs SET status = $1, stats = $2, errors = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(run.Status), stats, errs, run.Error, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

const pgRunColumns = `id, user_id, mode, status, stats, errors, error, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.SignalRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM signal_runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SignalRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM signal_runs
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY started_at DESC LIMIT $3`,
		filter.UserID, string(filter.Status), listLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SignalRun, error) {
		r, err := scanPgRun(row)
		if err != nil {
			return model.SignalRun{}, err
		}
		return *r, nil
	})
	return runs, eris.Wrap(err, "postgres: collect runs")
}

func scanPgRun(row pgx.Row) (*model.SignalRun, error) {
	var r model.SignalRun
	var mode, status string
	var stats, errs []byte
	err := row.Scan(&r.ID, &r.UserID, &mode, &status, &stats, &errs, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.Mode = model.RunModeKind(mode)
	r.Status = model.RunStatus(status)
	if err := unmarshalRunResult(&r, stats, errs); err != nil {
		return nil, err
	}
	return &r, nil
}
