package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/outpost"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/tuning"
	"outpostforge.ai/internal/persistence/changelog"
	"outpostforge.ai/internal/persistence/indexdb"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		recipesPath = flag.String("recipes", "", "path to recipes.yaml (default: <configs>/recipes.yaml)")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		disableDB   = flag.Bool("disable_db", false, "disable the run index")
		noChanges   = flag.Bool("disable_changes", false, "disable the replication change log")
		snapshots   = flag.Bool("snapshots", true, "write a snapshot of every generated outpost")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[outpostd] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cat, err := catalogs.Load(*configDir, logger)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	rp := strings.TrimSpace(*recipesPath)
	if rp == "" {
		rp = filepath.Join(*configDir, "recipes.yaml")
	}
	rs, err := recipes.Load(rp)
	if err != nil {
		logger.Fatalf("load recipes: %v", err)
	}
	if err := rs.ValidateAll(cat.Tags()); err != nil {
		logger.Printf("error: recipes: %v", err)
	}
	logger.Printf("catalog digest=%s modules=%d prebuilt=%d recipes=%v",
		cat.Digest, len(cat.Modules()), len(cat.Prebuilt()), rs.IDs())

	_ = os.MkdirAll(*dataDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "outposts.sqlite"), indexdb.WithLogger(logger))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := idx.UpsertCatalog(ctx, cat, rs, tune); err != nil {
			logger.Printf("index: upsert catalog: %v", err)
		}
		cancel()
	}

	// Change logs are written by the recorder, under the indexed run id.
	var changes *changelog.ChangeLog
	if !*noChanges {
		changes = changelog.NewChangeLog(*dataDir, nil)
		defer changes.Close()
	}
	gen := outpost.NewGenerator(cat, rs, tune, logger)

	snapDir := ""
	if *snapshots {
		snapDir = filepath.Join(*dataDir, "snapshots")
	}
	rec := &recorder{idx: idx, changes: changes, snapDir: snapDir, catalogDigest: cat.Digest, logger: logger}

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           buildMux(gen, rec, idx, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
