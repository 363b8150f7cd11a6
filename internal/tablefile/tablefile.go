// Package tablefile stores named N×4 sample tables (t, x, y, z) in a single
// sqlite file.
//
// Tables are addressed by slash-separated paths such as "cf1/pos_ref": the
// last segment is the table name and the rest is its group. The tables
// table lists each table's shape and the samples table holds one row per
// sample in REAL columns, so the file can be queried with plain SQL. Values
// round-trip exactly, except that NaN is stored as NULL and negative zero
// reads back as zero. Each table is written once. String attributes
// describe the file as a whole.
package tablefile

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/banshee-data/swarm.tools/internal/httputil"

	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// Extension is the conventional file name extension.
const Extension = ".sqlite"

var (
	// ErrTableExists is returned when writing a path that is already taken.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned when reading a path that was never written.
	ErrTableNotFound = errors.New("table not found")
	// ErrBadTablePath is returned for paths that are not group/name.
	ErrBadTablePath = errors.New("invalid table path")
	// ErrBadShape is returned for tables that are not Cols wide.
	ErrBadShape = errors.New("invalid table shape")
)

// Cols is the width of every table: t, x, y, z.
const Cols = 4

// File is an open table file.
type File struct {
	db   *sql.DB
	path string
}

// TableInfo describes one stored table.
type TableInfo struct {
	Path  string
	Group string
	Name  string
	Rows  int
	Cols  int
}

// Create creates a table file at path, replacing any existing file.
func Create(path string) (*File, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := f.migrateUp(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Open opens an existing table file for reading and appending.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}

	var n int
	err = f.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&n)
	if err != nil || n == 0 {
		f.Close()
		if err == nil {
			err = errors.New("no schema_migrations table")
		}
		return nil, fmt.Errorf("%s is not a table file: %w", path, err)
	}
	if err := f.migrateUp(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func open(path string) (*File, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &File{db: db, path: path}, nil
}

// Path returns the file name the table file was opened with.
func (f *File) Path() string {
	return f.path
}

// SplitPath splits "a/b/name" into group "a/b" and name "name".
func SplitPath(path string) (group, name string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q has no group", ErrBadTablePath, path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q has an empty segment", ErrBadTablePath, path)
		}
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

// WriteTable stores m under path. A path can only be written once.
func (f *File) WriteTable(path string, m *mat.Dense) error {
	group, name, err := SplitPath(path)
	if err != nil {
		return err
	}
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("%s: refusing to store an empty table", path)
	}
	rows, cols := m.Dims()
	if cols != Cols {
		return fmt.Errorf("%w: %s is %dx%d, want %d columns", ErrBadShape, path, rows, cols, Cols)
	}

	tx, err := f.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO tables (path, grp, name, rows, cols) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO NOTHING`,
		path, group, name, rows, cols,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to write: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTableExists, path)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (path, idx, t, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%s: failed to write: %w", path, err)
	}
	defer stmt.Close()
	for i := 0; i < rows; i++ {
		_, err := stmt.Exec(path, i, cell(m.At(i, 0)), cell(m.At(i, 1)), cell(m.At(i, 2)), cell(m.At(i, 3)))
		if err != nil {
			return fmt.Errorf("%s: failed to write row %d: %w", path, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", path, err)
	}
	return nil
}

// cell maps NaN, which sqlite cannot store as REAL, to NULL.
func cell(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// ReadTable returns the matrix stored under path.
func (f *File) ReadTable(path string) (*mat.Dense, error) {
	var rows, cols int
	err := f.db.QueryRow(`SELECT rows, cols FROM tables WHERE path = ?`, path).Scan(&rows, &cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}
	if rows <= 0 || cols != Cols {
		return nil, fmt.Errorf("%w: %s is recorded as %dx%d", ErrBadShape, path, rows, cols)
	}

	q, err := f.db.Query(`SELECT idx, t, x, y, z FROM samples WHERE path = ? ORDER BY idx`, path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}
	defer q.Close()

	m := mat.NewDense(rows, cols, nil)
	n := 0
	for q.Next() {
		var i int
		var v [Cols]sql.NullFloat64
		if err := q.Scan(&i, &v[0], &v[1], &v[2], &v[3]); err != nil {
			return nil, fmt.Errorf("%s: failed to read: %w", path, err)
		}
		if i != n {
			return nil, fmt.Errorf("%s: row %d missing", path, n)
		}
		for j, c := range v {
			if c.Valid {
				m.Set(i, j, c.Float64)
			} else {
				m.Set(i, j, math.NaN())
			}
		}
		n++
	}
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}
	if n != rows {
		return nil, fmt.Errorf("%s: %d of %d rows stored", path, n, rows)
	}
	return m, nil
}

// Tables lists every table ordered by path.
func (f *File) Tables() ([]TableInfo, error) {
	rows, err := f.db.Query(`SELECT path, grp, name, rows, cols FROM tables ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Path, &t.Group, &t.Name, &t.Rows, &t.Cols); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Groups lists the distinct groups, sorted.
func (f *File) Groups() ([]string, error) {
	rows, err := f.db.Query(`SELECT DISTINCT grp FROM tables ORDER BY grp`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetAttr sets a file attribute, replacing any previous value.
func (f *File) SetAttr(key, value string) error {
	_, err := f.db.Exec(
		`INSERT INTO attributes (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set attribute %s: %w", key, err)
	}
	return nil
}

// Attr returns a file attribute.
func (f *File) Attr(key string) (string, bool, error) {
	var v string
	err := f.db.QueryRow(`SELECT value FROM attributes WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read attribute %s: %w", key, err)
	}
	return v, true, nil
}

// Attrs returns every file attribute.
func (f *File) Attrs() (map[string]string, error) {
	rows, err := f.db.Query(`SELECT key, value FROM attributes`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts a tailsql browser over the file at
// /debug/tailsql/, a plain-text table listing at /debug/tables and the JSON
// contents of one table at /debug/table?path=<group>/<name>.
func (f *File) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+f.path, f.db, &tailsql.DBOptions{
		Label: "Table file",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("tables", "list stored tables", func(w http.ResponseWriter, r *http.Request) {
		tables, err := f.Tables()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, t := range tables {
			fmt.Fprintf(w, "%s\t%dx%d\n", t.Path, t.Rows, t.Cols)
		}
	})
	debug.HandleSilentFunc("table", f.serveTable)
	return nil
}

type tableJSON struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	// Data is row-major; NaN and infinities are null.
	Data [][]*float64 `json:"data"`
}

func (f *File) serveTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.BadRequest(w, "missing path")
		return
	}
	m, err := f.ReadTable(path)
	switch {
	case errors.Is(err, ErrTableNotFound), errors.Is(err, ErrBadTablePath):
		httputil.NotFound(w, err.Error())
		return
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return
	}

	rows, cols := m.Dims()
	out := tableJSON{Path: path, Rows: rows, Cols: cols, Data: make([][]*float64, rows)}
	for i := range out.Data {
		out.Data[i] = make([]*float64, cols)
		for j := range out.Data[i] {
			if v := m.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				out.Data[i][j] = &v
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Close closes the file.
func (f *File) Close() error {
	return f.db.Close()
}
