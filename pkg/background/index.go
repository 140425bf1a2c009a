// A sqlite index over the background metadata. Building it once makes id
// lookup and from-metadata searches on multi-million row backgrounds cheap;
// when no index exists the resolver falls back to a linear CSV scan.

package background

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"strings"

	_ "modernc.org/sqlite"
)

const indexFile = "background.db"

// IndexPath returns the conventional index location inside a data directory.
func IndexPath(datadir string) string {
	return path.Join(datadir, indexFile)
}

// BuildIndex writes the background metadata into a fresh sqlite database at
// dbPath. Any existing index is replaced.
func (s *Set) BuildIndex(ctx context.Context, dbPath string) (int, error) {
	table, err := s.LoadCSV()
	if err != nil {
		return 0, err
	}
	if !contains(table.Header, s.DataColumn) {
		return 0, fmt.Errorf("background metadata has no %q column", s.DataColumn)
	}

	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("remove stale index %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open index %s: %w", dbPath, err)
	}
	defer db.Close()

	cols := make([]string, len(table.Header))
	marks := make([]string, len(table.Header))
	for i, col := range table.Header {
		cols[i] = quoteIdent(col) + " TEXT"
		marks[i] = "?"
	}

	ddl := fmt.Sprintf(`CREATE TABLE metadata (%s);`, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create metadata table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`INSERT INTO metadata VALUES (%s);`, strings.Join(marks, ", "))
	stm, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stm.Close()

	for _, row := range table.Rows {
		vals := make([]any, len(table.Header))
		for i, col := range table.Header {
			vals[i] = row[col]
		}
		if _, err := stm.ExecContext(ctx, vals...); err != nil {
			return 0, fmt.Errorf("insert metadata row: %w", err)
		}
	}

	idx := fmt.Sprintf(`CREATE INDEX idx_data_column ON metadata (%s);`, quoteIdent(s.DataColumn))
	if _, err := tx.ExecContext(ctx, idx); err != nil {
		return 0, fmt.Errorf("create data column index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit index: %w", err)
	}
	return len(table.Rows), nil
}

// Index reads background metadata back out of a built sqlite index.
type Index struct {
	db         *sql.DB
	header     []string
	dataColumn string
}

// OpenIndex opens an existing index database.
func OpenIndex(dbPath, dataColumn string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", dbPath, err)
	}

	rows, err := db.Query(`SELECT name FROM pragma_table_info('metadata') ORDER BY cid;`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read index schema: %w", err)
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			db.Close()
			return nil, fmt.Errorf("scan index schema: %w", err)
		}
		header = append(header, name)
	}
	if len(header) == 0 {
		db.Close()
		return nil, fmt.Errorf("index %s has no metadata table", dbPath)
	}

	return &Index{db: db, header: header, dataColumn: dataColumn}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Header returns the metadata column names in CSV order.
func (ix *Index) Header() []string {
	return ix.header
}

// Lookup fetches the rows whose data column matches one of the given ids.
// Ids are loaded into a temporary table first so the lookup stays a single
// indexed join however many ids arrive.
func (ix *Index) Lookup(ctx context.Context, ids []string) ([]Row, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lookup tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMPORARY TABLE query_ids (id TEXT);`); err != nil {
		return nil, fmt.Errorf("create query_ids: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO query_ids (id) VALUES (?);`, id); err != nil {
			return nil, fmt.Errorf("populate query_ids: %w", err)
		}
	}

	q := fmt.Sprintf(`SELECT m.* FROM metadata m JOIN query_ids q ON m.%s = q.id ORDER BY m.rowid;`, quoteIdent(ix.dataColumn))
	return ix.scanRows(tx.QueryContext(ctx, q))
}

// Search runs from-metadata terms against the index.
func (ix *Index) Search(ctx context.Context, terms []SearchTerm) ([]Row, error) {
	var conds []string
	var args []any
	for _, t := range terms {
		if !contains(ix.header, t.Column) {
			return nil, fmt.Errorf("search column %q not in background metadata", t.Column)
		}
		if t.Range {
			conds = append(conds, fmt.Sprintf("%s BETWEEN ? AND ?", quoteIdent(t.Column)))
			args = append(args, t.Lo, t.Hi)
		} else {
			conds = append(conds, fmt.Sprintf("%s = ?", quoteIdent(t.Column)))
			args = append(args, t.Value)
		}
	}

	q := fmt.Sprintf(`SELECT * FROM metadata WHERE %s ORDER BY rowid;`, strings.Join(conds, " AND "))
	return ix.scanRows(ix.db.QueryContext(ctx, q, args...))
}

func (ix *Index) scanRows(rows *sql.Rows, err error) ([]Row, error) {
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		vals := make([]any, len(ix.header))
		ptrs := make([]any, len(ix.header))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		row := make(Row, len(ix.header))
		for i, col := range ix.header {
			if s, ok := vals[i].(string); ok {
				row[col] = s
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// sqlite identifier quoting for CSV-derived column names.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
