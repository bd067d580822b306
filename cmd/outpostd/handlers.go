package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"outpostforge.ai/internal/gen/outpost"
	"outpostforge.ai/internal/persistence/changelog"
	"outpostforge.ai/internal/persistence/indexdb"
	"outpostforge.ai/internal/persistence/snapshot"
	"outpostforge.ai/internal/transport/ws"
)

// recorder persists every generated outpost under one run id: a snapshot
// file, an index row and the change log. Each may be disabled.
type recorder struct {
	idx           *indexdb.SQLiteIndex
	changes       *changelog.ChangeLog
	snapDir       string
	catalogDigest string
	logger        *log.Logger

	valid    atomic.Int64
	invalid  atomic.Int64
	prebuilt atomic.Int64
}

func (r *recorder) Record(o *outpost.Outpost) string {
	switch {
	case o.Prebuilt:
		r.prebuilt.Add(1)
	case o.Valid:
		r.valid.Add(1)
	default:
		r.invalid.Add(1)
	}

	runID := uuid.NewString()
	if r.changes != nil {
		if err := r.changes.WriteRun(runID, o.World.Changes()); err != nil {
			r.logger.Printf("error: change log: run %s: %v", runID, err)
		}
	}

	snapPath := ""
	if r.snapDir != "" {
		short := o.Digest
		if len(short) > 12 {
			short = short[:12]
		}
		snapPath = filepath.Join(r.snapDir, fmt.Sprintf("%s-%d-%s.snap.zst", o.Recipe, o.Seed, short))
		if err := snapshot.WriteSnapshot(snapPath, o.Snapshot(r.catalogDigest)); err != nil {
			r.logger.Printf("error: snapshot write: run %s: %v", runID, err)
			snapPath = ""
		}
	}

	row := indexdb.RunRow{
		ID:            runID,
		Recipe:        o.Recipe,
		Seed:          o.Seed,
		LocationType:  o.LocationType,
		Digest:        o.Digest,
		Attempts:      o.Attempts,
		Nodes:         o.Nodes(),
		Entities:      o.World.Len(),
		Prebuilt:      o.Prebuilt,
		Valid:         o.Valid,
		Missing:       o.Missing,
		CatalogDigest: r.catalogDigest,
		SnapshotPath:  snapPath,
	}
	return r.idx.RecordRun(row)
}

func buildMux(gen ws.Generator, rec *recorder, idx *indexdb.SQLiteIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP outpostforge_generations_total Generated outposts by result.\n")
		fmt.Fprintf(rw, "# TYPE outpostforge_generations_total counter\n")
		fmt.Fprintf(rw, "outpostforge_generations_total{result=%q} %d\n", "valid", rec.valid.Load())
		fmt.Fprintf(rw, "outpostforge_generations_total{result=%q} %d\n", "invalid", rec.invalid.Load())
		fmt.Fprintf(rw, "outpostforge_generations_total{result=%q} %d\n", "prebuilt", rec.prebuilt.Load())
		fmt.Fprintf(rw, "# HELP outpostforge_index_dropped_runs_total Runs the index could not queue.\n")
		fmt.Fprintf(rw, "# TYPE outpostforge_index_dropped_runs_total counter\n")
		fmt.Fprintf(rw, "outpostforge_index_dropped_runs_total %d\n", idx.Dropped())
	})

	// Local-only: lists recorded runs.
	mux.HandleFunc("/admin/v1/runs", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := idx.Runs(r.Context(), strings.TrimSpace(r.URL.Query().Get("recipe")), limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []indexdb.RunRow{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(runs)
	})

	mux.HandleFunc("/v1/outpost", func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seed, err := strconv.ParseInt(q.Get("seed"), 10, 64)
		if err != nil {
			http.Error(rw, "bad seed", http.StatusBadRequest)
			return
		}
		o, err := gen.Generate(outpost.Request{
			Recipe:             q.Get("recipe"),
			Seed:               seed,
			LocationType:       q.Get("location_type"),
			Faction:            q.Get("faction"),
			CriticallyRadiated: q.Get("critically_radiated") == "true",
			OnlyEntrance:       q.Get("only_entrance") == "true",
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, outpost.ErrUnknownRecipe) {
				status = http.StatusNotFound
			}
			logger.Printf("warn: http: generate: %v", err)
			http.Error(rw, err.Error(), status)
			return
		}
		resp := ws.Summary(o)
		resp.RunID = rec.Record(o)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})

	mux.HandleFunc("/v1/ws", ws.NewServer(gen, logger, ws.WithRecorder(rec.Record)).Handler())
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
