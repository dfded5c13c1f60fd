package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaLoader     gojsonschema.JSONLoader
	schemaLoaderErr  error
	schemaLoaderOnce sync.Once
)

// Schema returns the configuration file schema as a generic map.
func Schema() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(schemaJSON, &out); err != nil {
		return nil, fmt.Errorf("decode config schema: %w", err)
	}
	return out, nil
}

func loadSchema() (gojsonschema.JSONLoader, error) {
	schemaLoaderOnce.Do(func() {
		schemaMap, err := Schema()
		if err != nil {
			schemaLoaderErr = err
			return
		}
		schemaLoader = gojsonschema.NewGoLoader(schemaMap)
	})
	if schemaLoaderErr != nil {
		return nil, schemaLoaderErr
	}
	return schemaLoader, nil
}

// SchemaError lists every violation found in a configuration document.
type SchemaError struct {
	Source string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Source, strings.Join(e.Issues, "; "))
}

func validateDocument(source string, document []byte) error {
	loader, err := loadSchema()
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, issue.String())
	}
	return &SchemaError{Source: source, Issues: issues}
}
