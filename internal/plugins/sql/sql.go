// Package sql binds SQLite databases for the application, loaded by URL.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"glasspane/internal/capability"
	"glasspane/internal/config"
	"glasspane/internal/logger"
	"glasspane/internal/shutdown"
)

const (
	Name = "sql"

	schemeSQLite    = "sqlite:"
	memoryDatabase  = ":memory:"
	migrationsTable = "_glasspane_migrations"
	connPragmas     = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrInvalidURL        = errors.New("invalid database url")
	ErrNotLoaded         = errors.New("database not loaded")
)

type Result struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

type Plugin struct {
	mu         sync.Mutex
	dataDir    string
	dbs        map[string]*sql.DB
	migrations map[string][]config.Migration
	logger     logger.Logger
}

func New() *Plugin {
	return &Plugin{
		dbs:        make(map[string]*sql.DB),
		migrations: make(map[string][]config.Migration),
		logger:     logger.NoOp{},
	}
}

func (p *Plugin) Name() string { return Name }

type loadArgs struct {
	DB string `json:"db"`
}

type queryArgs struct {
	DB     string `json:"db"`
	Query  string `json:"query"`
	Values []any  `json:"values"`
}

func (p *Plugin) Setup(ctx *capability.Context) error {
	p.mu.Lock()
	p.dataDir = ctx.DataDir
	p.logger = logger.OrNoOp(ctx.Logger)
	for _, db := range ctx.Config.Plugins.SQL.Databases {
		p.migrations[db.URL] = db.Migrations
	}
	p.mu.Unlock()

	for _, db := range ctx.Config.Plugins.SQL.Databases {
		if !db.Preload {
			continue
		}
		if _, err := p.Load(context.Background(), db.URL); err != nil {
			return fmt.Errorf("preload %s: %w", db.URL, err)
		}
	}

	ctx.Handle("load", func(c context.Context, call *capability.Call) (any, error) {
		var args loadArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.Load(c, args.DB)
	})
	ctx.Handle("execute", func(c context.Context, call *capability.Call) (any, error) {
		var args queryArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.Execute(c, args.DB, args.Query, normalizeArgs(args.Values)...)
	})
	ctx.Handle("select", func(c context.Context, call *capability.Call) (any, error) {
		var args queryArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		return p.Select(c, args.DB, args.Query, normalizeArgs(args.Values)...)
	})
	ctx.Handle("close", func(_ context.Context, call *capability.Call) (any, error) {
		var args loadArgs
		if err := call.Bind(&args); err != nil {
			return nil, err
		}
		if args.DB == "" {
			return true, p.CloseAll()
		}
		return true, p.Close(args.DB)
	})

	ctx.Defaults("load", "execute", "select", "close")
	ctx.OnShutdown(shutdown.Func(func() {
		if err := p.CloseAll(); err != nil {
			p.logger.Error("SQL", err, nil)
		}
	}))
	return nil
}

// Load opens url ("sqlite:<file>" or "sqlite::memory:") and applies any
// pending migrations. Loading an open url returns it unchanged.
func (p *Plugin) Load(ctx context.Context, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.dbs[url]; ok {
		return url, nil
	}

	dsn, memory, err := p.dsn(url)
	if err != nil {
		return "", err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", url, err)
	}
	if err := configure(ctx, db, memory); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("configure %s: %w", url, err)
	}
	if err := migrate(ctx, db, p.migrations[url]); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("migrate %s: %w", url, err)
	}

	p.dbs[url] = db
	p.logger.Info("SQL", "database loaded", map[string]interface{}{
		"db":         url,
		"migrations": len(p.migrations[url]),
	})
	return url, nil
}

func (p *Plugin) Execute(ctx context.Context, url, query string, args ...any) (Result, error) {
	db, err := p.db(url)
	if err != nil {
		return Result{}, err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute on %s: %w", url, err)
	}

	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, err
	}
	if out.LastInsertID, err = res.LastInsertId(); err != nil {
		return Result{}, err
	}
	return out, nil
}

// Select returns one map per row keyed by column name. BLOB and TEXT
// values both come back as strings.
func (p *Plugin) Select(ctx context.Context, url, query string, args ...any) ([]map[string]any, error) {
	db, err := p.db(url)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select on %s: %w", url, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Plugin) Close(url string) error {
	p.mu.Lock()
	db, ok := p.dbs[url]
	delete(p.dbs, url)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, url)
	}
	return db.Close()
}

func (p *Plugin) CloseAll() error {
	p.mu.Lock()
	dbs := p.dbs
	p.dbs = make(map[string]*sql.DB)
	p.mu.Unlock()

	var errs []error
	for url, db := range dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// Loaded lists open database urls, sorted.
func (p *Plugin) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.dbs))
	for url := range p.dbs {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

func (p *Plugin) db(url string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	db, ok := p.dbs[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, url)
	}
	return db, nil
}

func (p *Plugin) dsn(url string) (dsn string, memory bool, err error) {
	rest, ok := strings.CutPrefix(url, schemeSQLite)
	if !ok {
		if scheme, _, found := strings.Cut(url, ":"); found && scheme != "" {
			return "", false, fmt.Errorf("%w: %s", ErrUnsupportedDriver, scheme)
		}
		return "", false, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	if rest == "" {
		return "", false, fmt.Errorf("%w: %q has no path", ErrInvalidURL, url)
	}
	if rest == memoryDatabase {
		return memoryDatabase + "?" + connPragmas, true, nil
	}

	path := rest
	if !filepath.IsAbs(path) {
		if p.dataDir == "" {
			return "", false, fmt.Errorf("%w: relative path %q without a data directory", ErrInvalidURL, rest)
		}
		path = filepath.Join(p.dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("create database directory: %w", err)
	}
	return path + "?" + connPragmas, false, nil
}

func configure(ctx context.Context, db *sql.DB, memory bool) error {
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enable WAL mode: %w", err)
		}
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	var fkEnabled int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got %d)", fkEnabled)
	}
	return db.PingContext(ctx)
}

// normalizeArgs turns whole JSON numbers back into integers so they bind
// as INTEGER rather than REAL.
func normalizeArgs(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[i] = int64(f)
			continue
		}
		out[i] = v
	}
	return out
}
