package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/outpost"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/tuning"
	"outpostforge.ai/internal/persistence/changelog"
	"outpostforge.ai/internal/persistence/snapshot"
)

func main() {
	var (
		configDir    = flag.String("configs", "./configs", "config directory")
		recipesPath  = flag.String("recipes", "", "path to recipes.yaml (default: <configs>/recipes.yaml)")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		recipe       = flag.String("recipe", "default", "recipe id")
		seed         = flag.Int64("seed", 1, "first seed")
		count        = flag.Int("count", 1, "number of consecutive seeds to generate")
		location     = flag.String("location", "", "location type")
		faction      = flag.String("faction", "", "owning faction")
		radiated     = flag.Bool("radiated", false, "location is critically radiated")
		onlyEntrance = flag.Bool("only_entrance", false, "generate only the entrance module")
		outDir       = flag.String("out", "", "write a snapshot per outpost into this directory (optional)")
		changesDir   = flag.String("changes", "", "write the replication change log under this directory (optional)")
		verify       = flag.Bool("verify", true, "regenerate every outpost and compare digests")
		verbose      = flag.Bool("v", false, "log generator warnings to stderr")
		readPath     = flag.String("read", "", "print an existing .snap.zst and exit")
	)
	flag.Parse()

	if *readPath != "" {
		if err := printSnapshot(os.Stdout, *readPath); err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		return
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "[outpostgen] ", log.LstdFlags|log.Lmicroseconds)
	}

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cat, err := catalogs.Load(*configDir, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	rp := *recipesPath
	if rp == "" {
		rp = filepath.Join(*configDir, "recipes.yaml")
	}
	rs, err := recipes.Load(rp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load recipes:", err)
		os.Exit(1)
	}
	if err := rs.ValidateAll(cat.Tags()); err != nil {
		fmt.Fprintln(os.Stderr, "recipes:", err)
		os.Exit(1)
	}

	var (
		opts    []outpost.Option
		runID   string
		changes *changelog.ChangeLog
	)
	if *changesDir != "" {
		changes = changelog.NewChangeLog(*changesDir, func() string { return runID })
		opts = append(opts, outpost.WithChangeSink(changes))
	}
	gen := outpost.NewGenerator(cat, rs, tune, logger, opts...)
	check := outpost.NewGenerator(cat, rs, tune, nil)

	failed := false
	for i := 0; i < max(*count, 1); i++ {
		req := outpost.Request{
			Recipe:             *recipe,
			Seed:               *seed + int64(i),
			LocationType:       *location,
			Faction:            *faction,
			CriticallyRadiated: *radiated,
			OnlyEntrance:       *onlyEntrance,
		}
		runID = fmt.Sprintf("%s-%d", req.Recipe, req.Seed)
		o, err := gen.Generate(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed=%d: %v\n", req.Seed, err)
			failed = true
			continue
		}
		printSummary(os.Stdout, o)

		if *verify {
			again, err := check.Generate(req)
			if err != nil || again.Digest != o.Digest {
				fmt.Fprintf(os.Stderr, "seed=%d: determinism check failed: %v\n", req.Seed, err)
				failed = true
			}
		}
		if *outDir != "" {
			path := filepath.Join(*outDir, fmt.Sprintf("%s-%d.snap.zst", o.Recipe, o.Seed))
			if err := snapshot.WriteSnapshot(path, o.Snapshot(cat.Digest)); err != nil {
				fmt.Fprintf(os.Stderr, "seed=%d: write snapshot: %v\n", req.Seed, err)
				failed = true
				continue
			}
			fmt.Printf("  snapshot %s\n", path)
		}
	}
	if changes != nil {
		if err := changes.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close change log:", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printSummary(w io.Writer, o *outpost.Outpost) {
	status := "valid"
	switch {
	case o.Prebuilt:
		status = "prebuilt"
	case !o.Valid:
		status = "invalid missing=" + strings.Join(o.Missing, ",")
	}
	fmt.Fprintf(w, "recipe=%s seed=%d %s attempts=%d modules=%d entities=%d digest=%s\n",
		o.Recipe, o.Seed, status, o.Attempts, o.Nodes(), o.World.Len(), o.Digest)
	fmt.Fprintf(w, "  sequence %s\n", strings.Join(o.Sequence, " "))
	for _, n := range o.Layout.Nodes() {
		off := o.Layout.WorldOffset(n.ID)
		gap := "root"
		if n.Parent >= 0 {
			gap = fmt.Sprintf("%s of #%d", n.ThisGap, n.Parent)
		}
		fmt.Fprintf(w, "  #%d %-20s %-14s at (%d,%d) tags=%s\n",
			n.ID, n.Template.ID, gap, off.X, off.Y, strings.Join(n.Fulfilled, ","))
	}
}

func printSnapshot(w io.Writer, path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	kinds := map[string]int{}
	for _, e := range snap.Entities {
		kinds[e.Kind]++
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "snapshot v%d recipe=%s seed=%d digest=%s valid=%v prebuilt=%v modules=%d catalog=%s\n",
		snap.Header.Version, snap.Recipe, snap.Seed, snap.Header.Digest, snap.Valid, snap.Prebuilt, len(snap.Modules), snap.CatalogHash)
	for _, k := range names {
		fmt.Fprintf(w, "  %-10s %d\n", k, kinds[k])
	}
	return nil
}
