package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Recipe  string `json:"recipe"`
	Seed    int64  `json:"seed"`
	Digest  string `json:"digest"`
}

// OutpostV1 is a finished outpost: the placement tree and every entity.
type OutpostV1 struct {
	Header Header `json:"header"`

	Recipe       string   `json:"recipe"`
	Seed         int64    `json:"seed"`
	LocationType string   `json:"location_type,omitempty"`
	Sequence     []string `json:"sequence"`
	Attempts     int      `json:"attempts"`
	Prebuilt     bool     `json:"prebuilt,omitempty"`
	Valid        bool     `json:"valid"`
	Missing      []string `json:"missing,omitempty"`
	CatalogHash  string   `json:"catalog_hash"`

	Visual map[string]string `json:"visual,omitempty"`

	Modules  []ModuleV1 `json:"modules"`
	Entities []EntityV1 `json:"entities"`
}

type ModuleV1 struct {
	Node      int      `json:"node"`
	Template  string   `json:"template"`
	Parent    int      `json:"parent"`
	ThisGap   string   `json:"this_gap,omitempty"`
	Grid      [2]int   `json:"grid"`
	Offset    [2]int   `json:"offset"`
	Fulfilled []string `json:"fulfilled,omitempty"`
	Instance  uint32   `json:"instance"`
	Connector uint32   `json:"connector,omitempty"`
}

type EntityV1 struct {
	ID         uint32   `json:"id"`
	Kind       string   `json:"kind"`
	Module     uint32   `json:"module,omitempty"`
	Name       string   `json:"name,omitempty"`
	Rect       [4]int   `json:"rect"`
	Pos        [2]int   `json:"pos"`
	Tags       []string `json:"tags,omitempty"`
	Links      []uint32 `json:"links,omitempty"`
	Locked     bool     `json:"locked,omitempty"`
	DeviceKind string   `json:"device_kind,omitempty"`
	Wires      int      `json:"wires,omitempty"`
}

func WriteSnapshot(path string, snap OutpostV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (OutpostV1, error) {
	var snap OutpostV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}
