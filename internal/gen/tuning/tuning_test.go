package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_KeepOverlapTolerances(t *testing.T) {
	d := Defaults()
	if d.Resolver.AdjacentShrink != 16 || d.Resolver.RoomShrink != 32 {
		t.Fatalf("shrink constants changed: %+v", d.Resolver)
	}
	if d.Attempts != 5 || d.MaxRetractions != 10 || d.Resolver.Step != 50 || d.Resolver.MaxMove != 2000 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("attempts: 3\nresolver:\n  step: 25\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Attempts != 3 || got.Resolver.Step != 25 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.Resolver.MaxMove != 2000 || got.Connector.MinTwoDoorHallway != 32 {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoad_RejectsInconsistentValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("resolver:\n  step: 500\n  max_move: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from defaults: %+v", got)
	}
}
