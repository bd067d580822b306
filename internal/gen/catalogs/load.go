package catalogs

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed module.schema.json
var moduleSchemaJSON string

// Load reads configDir/modules/*.json and configDir/outposts/*.json. A file
// that fails to parse or validate is logged and skipped; a missing outposts
// directory is allowed.
func Load(configDir string, logger *log.Logger) (*Catalog, error) {
	schema, err := jsonschema.CompileString("module.schema.json", moduleSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile module schema: %w", err)
	}
	mods, err := loadDir(filepath.Join(configDir, "modules"), schema, logger, false)
	if err != nil {
		return nil, err
	}
	prebuilt, err := loadDir(filepath.Join(configDir, "outposts"), schema, logger, true)
	if err != nil {
		return nil, err
	}
	return New(mods, prebuilt)
}

func loadDir(dir string, schema *jsonschema.Schema, logger *log.Logger, optional bool) ([]*ModuleTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	var out []*ModuleTemplate
	seen := map[string]string{}
	for _, p := range files {
		m, err := loadTemplate(p, schema)
		if err != nil {
			logf(logger, "error: skipping module file %s: %v", filepath.Base(p), err)
			continue
		}
		if prev, dup := seen[m.ID]; dup {
			logf(logger, "error: skipping module file %s: id %q already defined in %s", filepath.Base(p), m.ID, prev)
			continue
		}
		seen[m.ID] = filepath.Base(p)
		out = append(out, m)
	}
	return out, nil
}

func loadTemplate(path string, schema *jsonschema.Schema) (*ModuleTemplate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	var m ModuleTemplate
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	// Validate geometry references now so one bad file does not sink the
	// whole catalog in New.
	probe := m
	if err := probe.init(); err != nil {
		return nil, err
	}
	return &m, nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
