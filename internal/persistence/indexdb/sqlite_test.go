package indexdb

import (
	"bytes"
	"context"
	"database/sql"
	"log"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"outpostforge.ai/internal/gen/catalogs/catalogtest"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/tuning"
)

func TestSQLiteIndex_RecordRun(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	id1 := idx.RecordRun(RunRow{Recipe: "default", Seed: 1, Digest: "d1", Attempts: 1, Nodes: 4, Entities: 40, Valid: true})
	id2 := idx.RecordRun(RunRow{Recipe: "mining", Seed: 2, Digest: "d2", Attempts: 5, Prebuilt: true, Missing: []string{"shop"}})
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("ids %q %q", id1, id2)
	}

	all, err := idx.Runs(ctx, "", 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(all) != 2 || all[0].ID != id1 || all[1].ID != id2 {
		t.Fatalf("runs %+v", all)
	}
	if !all[0].Valid || all[0].Prebuilt || all[0].Nodes != 4 || len(all[0].Missing) != 0 {
		t.Fatalf("first run %+v", all[0])
	}
	if !all[1].Prebuilt || !reflect.DeepEqual(all[1].Missing, []string{"shop"}) {
		t.Fatalf("second run %+v", all[1])
	}

	mining, err := idx.Runs(ctx, "mining", 0)
	if err != nil {
		t.Fatalf("Runs(mining): %v", err)
	}
	if len(mining) != 1 || mining[0].Seed != 2 {
		t.Fatalf("mining runs %+v", mining)
	}
	if got, _ := idx.Runs(ctx, "", 1); len(got) != 1 {
		t.Fatalf("limit ignored: %d", len(got))
	}
}

func TestSQLiteIndex_CloseCommitsQueuedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	id := idx.RecordRun(RunRow{Recipe: "default", Seed: 42, Digest: "abc", SnapshotPath: "/abs/42.snap.zst"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		seed int64
		snap string
	)
	if err := db.QueryRow(`SELECT seed,snapshot_path FROM runs WHERE id=?`, id).Scan(&seed, &snap); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if seed != 42 || snap != "/abs/42.snap.zst" {
		t.Fatalf("row mismatch: seed=%d snap=%q", seed, snap)
	}
}

func TestSQLiteIndex_RecordRunDuringClose(t *testing.T) {
	var buf syncBuffer
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"), WithLogger(log.New(&buf, "", 0)))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			for j := int64(0); j < 50; j++ {
				idx.RecordRun(RunRow{Recipe: "default", Seed: seed*100 + j})
			}
		}(int64(i))
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	before := idx.Dropped()
	idx.RecordRun(RunRow{Recipe: "default", Seed: 9999})
	if idx.Dropped() != before+1 {
		t.Fatalf("run after Close not counted: %d -> %d", before, idx.Dropped())
	}
	if !strings.Contains(buf.String(), "seed=9999): index closed") {
		t.Fatalf("drop not logged:\n%s", buf.String())
	}
}

func TestSQLiteIndex_FullQueueDropsAndLogs(t *testing.T) {
	var buf syncBuffer
	// No writer goroutine: the one-slot queue fills on the first run.
	idx := &SQLiteIndex{ch: make(chan req, 1), logger: log.New(&buf, "", 0)}
	idx.RecordRun(RunRow{Recipe: "default", Seed: 1})
	id := idx.RecordRun(RunRow{Recipe: "default", Seed: 2})
	if id == "" || idx.Dropped() != 1 {
		t.Fatalf("id=%q dropped=%d", id, idx.Dropped())
	}
	if !strings.Contains(buf.String(), "dropped run "+id) || !strings.Contains(buf.String(), "queue full") {
		t.Fatalf("drop not logged:\n%s", buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSQLiteIndex_UpsertCatalog(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	cat := catalogtest.Standard(t)
	rs, err := recipes.NewSet([]recipes.Recipe{{ID: "default", TotalModuleCount: 3}})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if err := idx.UpsertCatalog(ctx, cat, rs, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	if err := idx.UpsertCatalog(ctx, cat, rs, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalog again: %v", err)
	}

	got, err := idx.CatalogDigest(ctx, "modules")
	if err != nil {
		t.Fatalf("CatalogDigest: %v", err)
	}
	if got != cat.Digest {
		t.Fatalf("modules digest %q, want %q", got, cat.Digest)
	}
	tun, _ := idx.CatalogDigest(ctx, "tuning")
	if tun == "" {
		t.Fatalf("tuning digest missing")
	}
	if none, _ := idx.CatalogDigest(ctx, "nope"); none != "" {
		t.Fatalf("unexpected digest %q", none)
	}
}
