package main

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"outpostforge.ai/internal/gen/catalogs/catalogtest"
	"outpostforge.ai/internal/gen/outpost"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/tuning"
	"outpostforge.ai/internal/persistence/changelog"
	"outpostforge.ai/internal/persistence/indexdb"
	"outpostforge.ai/internal/persistence/snapshot"
	"outpostforge.ai/internal/protocol"
)

type testEnv struct {
	mux     *http.ServeMux
	idx     *indexdb.SQLiteIndex
	changes *changelog.ChangeLog
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cat := catalogtest.Standard(t)
	rs, err := recipes.NewSet([]recipes.Recipe{{
		ID:                            "default",
		TotalModuleCount:              3,
		ModuleCounts:                  []recipes.ModuleCount{{Tag: "airlock", Count: 1}, {Tag: "quarters", Count: 1}},
		MinHallwayLength:              150,
		AppendToReachTotalModuleCount: true,
	}})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	changes := changelog.NewChangeLog(dir, nil)
	t.Cleanup(func() { _ = changes.Close() })

	logger := log.New(io.Discard, "", 0)
	gen := outpost.NewGenerator(cat, rs, tuning.Defaults(), logger)
	rec := &recorder{idx: idx, changes: changes, snapDir: filepath.Join(dir, "snapshots"), catalogDigest: cat.Digest, logger: logger}
	return &testEnv{mux: buildMux(gen, rec, idx, logger), idx: idx, changes: changes, dir: dir}
}

func serve(mux *http.ServeMux, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

func TestBuildMux_GenerateRecordsRun(t *testing.T) {
	env := newTestEnv(t)
	mux := env.mux

	rw := serve(mux, "/v1/outpost?recipe=default&seed=11", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("generate: %d %s", rw.Code, rw.Body.String())
	}
	var got protocol.OutpostMsg
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID == "" || got.Digest == "" {
		t.Fatalf("summary %+v", got)
	}

	rw = serve(mux, "/admin/v1/runs?recipe=default", "127.0.0.1:5555")
	if rw.Code != http.StatusOK {
		t.Fatalf("runs: %d %s", rw.Code, rw.Body.String())
	}
	var runs []indexdb.RunRow
	if err := json.Unmarshal(rw.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != got.RunID || runs[0].Digest != got.Digest || runs[0].Seed != 11 {
		t.Fatalf("runs %+v", runs)
	}
	if _, err := os.Stat(runs[0].SnapshotPath); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	h, err := snapshot.ReadHeader(runs[0].SnapshotPath)
	if err != nil || h.Digest != got.Digest {
		t.Fatalf("snapshot header %+v err=%v", h, err)
	}

	// The change log carries the same run id as the index row.
	if err := env.changes.Close(); err != nil {
		t.Fatalf("close change log: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(env.dir, "changes", "*.jsonl.zst"))
	if len(files) == 0 {
		t.Fatalf("no change log written")
	}
	lines := 0
	for _, path := range files {
		for _, r := range readChangeLog(t, path) {
			if r.Run != got.RunID {
				t.Fatalf("change %d has run %q, want %q", r.Seq, r.Run, got.RunID)
			}
			lines++
		}
	}
	if lines == 0 {
		t.Fatalf("change log is empty")
	}

	rw = serve(mux, "/metrics", "")
	valid := `outpostforge_generations_total{result="valid"} 1`
	prebuilt := `outpostforge_generations_total{result="prebuilt"} 1`
	if body := rw.Body.String(); !strings.Contains(body, valid) && !strings.Contains(body, prebuilt) {
		t.Fatalf("metrics missing generation count:\n%s", body)
	}
	if !strings.Contains(rw.Body.String(), "outpostforge_index_dropped_runs_total 0") {
		t.Fatalf("metrics missing dropped runs:\n%s", rw.Body.String())
	}
}

func readChangeLog(t *testing.T, path string) []changelog.Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	var out []changelog.Record
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var r changelog.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestBuildMux_RunsIsLoopbackOnly(t *testing.T) {
	mux := newTestEnv(t).mux
	if rw := serve(mux, "/admin/v1/runs", "203.0.113.9:4000"); rw.Code != http.StatusForbidden {
		t.Fatalf("remote runs: %d", rw.Code)
	}
	rw := serve(mux, "/admin/v1/runs", "[::1]:4000")
	if rw.Code != http.StatusOK || strings.TrimSpace(rw.Body.String()) != "[]" {
		t.Fatalf("empty runs: %d %q", rw.Code, rw.Body.String())
	}
}

func TestBuildMux_GenerateErrors(t *testing.T) {
	mux := newTestEnv(t).mux
	if rw := serve(mux, "/v1/outpost?recipe=default&seed=x", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad seed: %d", rw.Code)
	}
	if rw := serve(mux, "/v1/outpost?recipe=nope&seed=1", ""); rw.Code != http.StatusNotFound {
		t.Fatalf("unknown recipe: %d", rw.Code)
	}
}
