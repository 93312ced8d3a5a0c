package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/signal-hunter/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	settings
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, settings: newSettings(opts)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS user_configs (
	user_id    TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS account_lists (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS list_accounts (
	list_id      TEXT NOT NULL REFERENCES account_lists(id) ON DELETE CASCADE,
	domain       TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (list_id, domain)
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	domain     TEXT NOT NULL,
	score      INTEGER NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (user_id, domain)
);

CREATE TABLE IF NOT EXISTS signal_runs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	stats       TEXT NOT NULL DEFAULT '{}',
	errors      TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_account_lists_user_type ON account_lists(user_id, type);
CREATE INDEX IF NOT EXISTS idx_list_accounts_domain ON list_accounts(domain);
CREATE INDEX IF NOT EXISTS idx_leads_user_created ON leads(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signal_runs_user_started ON signal_runs(user_id, started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) GetUserConfig(ctx context.Context, userID string) (*model.UserConfig, error) {
	var raw string
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT config, updated_at FROM user_configs WHERE user_id = ?`, userID,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "user config %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get user config")
	}

	var cfg model.UserConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal user config")
	}
	cfg.UserID = userID
	cfg.UpdatedAt = updated
	return &cfg, nil
}

func (s *SQLiteStore) SaveUserConfig(ctx context.Context, cfg *model.UserConfig) error {
	if cfg.UserID == "" {
		return eris.New("sqlite: user config without user id")
	}
	cfg.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal user config")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_configs (user_id, config, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		cfg.UserID, string(raw), cfg.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save user config")
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_configs ORDER BY user_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list users")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list users iterate")
}

// --- Lists ---

func (s *SQLiteStore) CreateList(ctx context.Context, userID, name string, typ model.ListType) (*model.AccountList, error) {
	l := &model.AccountList{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account_lists (id, user_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.Name, string(l.Type), l.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create list")
	}
	return l, nil
}

func (s *SQLiteStore) GetLists(ctx context.Context, userID string, typ model.ListType) ([]model.AccountList, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM account_lists
		 WHERE user_id = ? AND type = ? ORDER BY created_at`,
		userID, string(typ),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lists")
	}
	defer rows.Close() //nolint:errcheck

	var lists []model.AccountList
	for rows.Next() {
		var l model.AccountList
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Type, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan list")
		}
		lists = append(lists, l)
	}
	return lists, eris.Wrap(rows.Err(), "sqlite: get lists iterate")
}

func (s *SQLiteStore) GetListAccounts(ctx context.Context, listID string) ([]model.ListAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list_id, domain, company_name FROM list_accounts WHERE list_id = ? ORDER BY rowid`, listID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get list accounts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ListAccount
	for rows.Next() {
		var a model.ListAccount
		if err := rows.Scan(&a.ListID, &a.Domain, &a.CompanyName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan list account")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get list accounts iterate")
}

func (s *SQLiteStore) AddListAccounts(ctx context.Context, listID string, accounts []model.ListAccount) (int, error) {
	accounts = normalizeAccounts(listID, accounts)
	if len(accounts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin add list accounts")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO list_accounts (list_id, domain, company_name) VALUES (?, ?, ?)
		 ON CONFLICT (list_id, domain) DO UPDATE SET company_name = excluded.company_name`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare add list accounts")
	}
	defer stmt.Close() //nolint:errcheck

	n := 0
	for _, a := range accounts {
		res, err := stmt.ExecContext(ctx, a.ListID, a.Domain, a.CompanyName)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: add list account %s", a.Domain)
		}
		affected, _ := res.RowsAffected()
		n += int(affected)
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit add list accounts")
}

func (s *SQLiteStore) IsDoNotContact(ctx context.Context, userID, domain string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM list_accounts a
		 JOIN account_lists l ON l.id = a.list_id
		 WHERE l.user_id = ? AND l.type = ? AND a.domain = ?`,
		userID, string(model.ListTypeDoNotContact), model.NormalizeDomain(domain),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: do-not-contact lookup")
	}
	return n > 0, nil
}

// --- Leads ---

func (s *SQLiteStore) GetStoredLeads(ctx context.Context, userID string, limit int) ([]model.LeadRecord, error) {
	if limit <= 0 {
		limit = s.maxLeads
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, status, updated_at FROM leads WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get stored leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.LeadRecord
	for rows.Next() {
		var raw string
		var status model.LeadStatus
		var updated time.Time
		if err := rows.Scan(&raw, &status, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		var l model.LeadRecord
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal lead")
		}
		l.Status = status
		l.UpdatedAt = updated
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: get stored leads iterate")
}

func (s *SQLiteStore) AddNewLeads(ctx context.Context, userID string, leads []model.LeadRecord) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: begin add leads")
	}
	defer tx.Rollback() //nolint:errcheck

	added, skipped := 0, 0
	for i := range leads {
		l := prepareLead(userID, &leads[i])
		raw, err := json.Marshal(l)
		if err != nil {
			return 0, 0, eris.Wrap(err, "sqlite: marshal lead")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO leads (id, user_id, run_id, domain, score, status, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, domain) DO NOTHING`,
			l.ID, userID, l.RunID, l.Domain, l.Score, string(l.Status), string(raw), l.CreatedAt, l.UpdatedAt,
		)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "sqlite: insert lead %s", l.Domain)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		} else {
			skipped++
		}
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM leads WHERE user_id = ? AND id NOT IN (
			SELECT id FROM leads WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		userID, userID, s.maxLeads,
	)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: trim leads")
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: commit add leads")
	}
	return added, skipped, nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.SignalRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signal_runs (id, user_id, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.Mode), string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.SignalRun) error {
	stats, errs, err := marshalRunResult(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE signal_runs SET status = ?, stats = ?, errors = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(stats), string(errs), run.Error, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

const sqliteRunColumns = `id, user_id, mode, status, stats, errors, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.SignalRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM signal_runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.SignalRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM signal_runs WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.SignalRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.SignalRun, error) {
	var r model.SignalRun
	var stats, errs string
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Mode, &r.Status, &stats, &errs, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	if err := unmarshalRunResult(&r, []byte(stats), []byte(errs)); err != nil {
		return nil, err
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// prepareLead fills identity and timestamps the pipeline may have left empty.
func prepareLead(userID string, l *model.LeadRecord) *model.LeadRecord {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.UserID = userID
	l.Domain = model.NormalizeDomain(l.Domain)
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	return l
}

func marshalRunResult(run *model.SignalRun) (stats, errs []byte, err error) {
	stats, err = json.Marshal(run.Stats)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal run stats")
	}
	list := run.Errors
	if list == nil {
		list = []model.UnitError{}
	}
	errs, err = json.Marshal(list)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal run errors")
	}
	return stats, errs, nil
}

func unmarshalRunResult(r *model.SignalRun, stats, errs []byte) error {
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return eris.Wrap(err, "store: unmarshal run stats")
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.Errors); err != nil {
			return eris.Wrap(err, "store: unmarshal run errors")
		}
	}
	return nil
}

func listLimit(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}
