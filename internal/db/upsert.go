package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk insert that tolerates existing rows.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns in row order
	ConflictKeys []string // columns of the unique constraint
	// UpdateCols are overwritten on conflict. Empty means DO NOTHING.
	UpdateCols []string
}

// BulkUpsert stages rows in a temp table with COPY, then merges them into the
// target with INSERT ... ON CONFLICT, all in one transaction. It returns the
// number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	temp := "_stage_" + strings.ReplaceAll(cfg.Table, ".", "_")
	cols := quoteAndJoin(cfg.Columns)

	var affected int64
	err := WithTx(ctx, pool, func(tx pgx.Tx) error {
		create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pgx.Identifier{temp}.Sanitize(), sanitizeTable(cfg.Table))
		if _, err := tx.Exec(ctx, create); err != nil {
			return eris.Wrapf(err, "db: upsert: stage table for %s", cfg.Table)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "db: upsert: copy into stage for %s", cfg.Table)
		}

		merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
			sanitizeTable(cfg.Table), cols, cols, pgx.Identifier{temp}.Sanitize(),
			quoteAndJoin(cfg.ConflictKeys), conflictAction(cfg.UpdateCols))
		tag, err := tx.Exec(ctx, merge)
		if err != nil {
			return eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func conflictAction(updateCols []string) string {
	if len(updateCols) == 0 {
		return "DO NOTHING"
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := pgx.Identifier{c}.Sanitize()
		sets[i] = q + " = EXCLUDED." + q
	}
	return "DO UPDATE SET " + strings.Join(sets, ", ")
}

// sanitizeTable quotes a table name that may carry a schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
