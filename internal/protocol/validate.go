package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/generate.schema.json
var generateSchemaJSON string

var (
	generateOnce   sync.Once
	generateSchema *jsonschema.Schema
	generateErr    error
)

// DecodeGenerate validates raw against the GENERATE schema and decodes it.
func DecodeGenerate(raw []byte) (GenerateMsg, error) {
	generateOnce.Do(func() {
		generateSchema, generateErr = jsonschema.CompileString("generate.schema.json", generateSchemaJSON)
	})
	if generateErr != nil {
		return GenerateMsg{}, fmt.Errorf("compile generate schema: %w", generateErr)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return GenerateMsg{}, err
	}
	if err := generateSchema.Validate(doc); err != nil {
		return GenerateMsg{}, err
	}
	var m GenerateMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return GenerateMsg{}, err
	}
	return m, nil
}
