// Package store persists user configuration, account lists, leads and run
// records. SQLite serves local use; Postgres serves the hosted deployment.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/model"
)

// DefaultMaxLeads caps the leads kept per user, newest first.
const DefaultMaxLeads = 500

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	UserID string          `json:"user_id,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Users
	GetUserConfig(ctx context.Context, userID string) (*model.UserConfig, error)
	SaveUserConfig(ctx context.Context, cfg *model.UserConfig) error
	ListUsers(ctx context.Context) ([]string, error)

	// Lists
	CreateList(ctx context.Context, userID, name string, typ model.ListType) (*model.AccountList, error)
	GetLists(ctx context.Context, userID string, typ model.ListType) ([]model.AccountList, error)
	GetListAccounts(ctx context.Context, listID string) ([]model.ListAccount, error)
	AddListAccounts(ctx context.Context, listID string, accounts []model.ListAccount) (int, error)
	IsDoNotContact(ctx context.Context, userID, domain string) (bool, error)

	// Leads
	GetStoredLeads(ctx context.Context, userID string, limit int) ([]model.LeadRecord, error)
	// AddNewLeads inserts leads whose domain the user does not have yet and
	// skips the rest, in one transaction, then trims the user's leads to
	// the newest MaxLeads.
	AddNewLeads(ctx context.Context, userID string, leads []model.LeadRecord) (added, skipped int, err error)
	UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error

	// Runs
	CreateRun(ctx context.Context, run *model.SignalRun) error
	FinishRun(ctx context.Context, run *model.SignalRun) error
	GetRun(ctx context.Context, runID string) (*model.SignalRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.SignalRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option tunes a store.
type Option func(*settings)

type settings struct {
	maxLeads int
}

// WithMaxLeads overrides DefaultMaxLeads. Non-positive values are ignored.
func WithMaxLeads(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxLeads = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{maxLeads: DefaultMaxLeads}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// normalizeAccounts normalizes domains and drops blanks and repeats.
func normalizeAccounts(listID string, accounts []model.ListAccount) []model.ListAccount {
	seen := make(map[string]bool, len(accounts))
	out := make([]model.ListAccount, 0, len(accounts))
	for _, a := range accounts {
		d := model.NormalizeDomain(a.Domain)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, model.ListAccount{ListID: listID, Domain: d, CompanyName: a.CompanyName})
	}
	return out
}
