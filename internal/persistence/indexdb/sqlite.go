package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/tuning"
)

// SQLiteIndex is a queryable read-model of generation runs. Writes go
// through a single writer goroutine.
type SQLiteIndex struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

type Option func(*SQLiteIndex)

// WithLogger reports runs dropped by a full queue.
func WithLogger(l *log.Logger) Option {
	return func(s *SQLiteIndex) {
		if l != nil {
			s.logger = l
		}
	}
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind

	run  RunRow
	done chan struct{}
}

// RunRow is one finished generation.
type RunRow struct {
	ID            string   `json:"id"`
	Recipe        string   `json:"recipe"`
	Seed          int64    `json:"seed"`
	LocationType  string   `json:"location_type,omitempty"`
	Digest        string   `json:"digest"`
	Attempts      int      `json:"attempts"`
	Nodes         int      `json:"nodes"`
	Entities      int      `json:"entities"`
	Prebuilt      bool     `json:"prebuilt"`
	Valid         bool     `json:"valid"`
	Missing       []string `json:"missing,omitempty"`
	CatalogDigest string   `json:"catalog_digest"`
	SnapshotPath  string   `json:"snapshot_path,omitempty"`
	RecordedAt    string   `json:"recorded_at"`
}

func OpenSQLite(path string, opts ...Option) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		logger: log.New(io.Discard, "", 0),
		ch:     make(chan req, 4096),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			recipe TEXT NOT NULL,
			seed INTEGER NOT NULL,
			location_type TEXT NOT NULL,
			digest TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			nodes INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			prebuilt INTEGER NOT NULL,
			valid INTEGER NOT NULL,
			missing_json TEXT NOT NULL,
			catalog_digest TEXT NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_recipe_seed ON runs(recipe, seed);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(digest);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun queues a run and returns its id, assigning one when row.ID is
// empty. Runs are dropped and logged if the writer falls behind or the index
// is closed.
func (s *SQLiteIndex) RecordRun(row RunRow) string {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.RecordedAt == "" {
		row.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if s == nil {
		return row.ID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(row, "index closed")
		return row.ID
	}
	select {
	case s.ch <- req{kind: reqRun, run: row}:
	default:
		s.drop(row, "queue full")
	}
	return row.ID
}

func (s *SQLiteIndex) drop(row RunRow, why string) {
	n := s.dropped.Add(1)
	s.logger.Printf("warn: indexdb: dropped run %s (%s seed=%d): %s, %d dropped so far", row.ID, row.Recipe, row.Seed, why, n)
}

// Dropped is the number of runs that never reached the queue.
func (s *SQLiteIndex) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Flush blocks until every queued run is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs lists recorded runs in insertion order, optionally filtered by
// recipe. limit <= 0 means no limit.
func (s *SQLiteIndex) Runs(ctx context.Context, recipe string, limit int) ([]RunRow, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	q := `SELECT id,recipe,seed,location_type,digest,attempts,nodes,entities,prebuilt,valid,missing_json,catalog_digest,snapshot_path,recorded_at
		FROM runs WHERE (? = '' OR recipe = ?) ORDER BY rowid`
	args := []any{recipe, recipe}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var prebuilt, valid int
		var missing string
		if err := rows.Scan(&r.ID, &r.Recipe, &r.Seed, &r.LocationType, &r.Digest, &r.Attempts, &r.Nodes, &r.Entities,
			&prebuilt, &valid, &missing, &r.CatalogDigest, &r.SnapshotPath, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Prebuilt, r.Valid = prebuilt != 0, valid != 0
		if err := json.Unmarshal([]byte(missing), &r.Missing); err != nil {
			return nil, fmt.Errorf("run %s: missing_json: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCatalog stores the canonical JSON and digest of the module catalog,
// the recipes and the tuning in effect.
func (s *SQLiteIndex) UpsertCatalog(ctx context.Context, cat *catalogs.Catalog, rs *recipes.Set, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cat.Modules()); len(b) > 0 {
		rows = append(rows, kv{name: "modules", digest: cat.Digest, json: b})
	}
	if b, _ := json.Marshal(cat.Prebuilt()); len(b) > 0 {
		rows = append(rows, kv{name: "prebuilt", digest: cat.Digest, json: b})
	}
	for name, v := range map[string]any{"recipes": rs.Recipes, "tuning": tune} {
		b, _ := json.Marshal(v)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: name, digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for name, or "".
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(id,recipe,seed,location_type,digest,attempts,nodes,entities,prebuilt,valid,missing_json,catalog_digest,snapshot_path,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 200
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			commit()
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		if r.kind == reqRun && insertRun != nil {
			ru := r.run
			missing, _ := json.Marshal(ru.Missing)
			if ru.Missing == nil {
				missing = []byte("[]")
			}
			if _, err := tx.Stmt(insertRun).Exec(
				ru.ID, ru.Recipe, ru.Seed, ru.LocationType, ru.Digest,
				ru.Attempts, ru.Nodes, ru.Entities,
				boolInt(ru.Prebuilt), boolInt(ru.Valid),
				string(missing), ru.CatalogDigest, ru.SnapshotPath, ru.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
