package export

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

//go:embed schema/meetings.schema.json
var archiveSchema []byte

const schemaURL = "meetings.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Schema returns the JSON schema of archives.
func Schema() []byte {
	return append([]byte(nil), archiveSchema...)
}

func archiveValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(archiveSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks that data is a JSON archive of meeting records.
// Failures wrap mnerrors.ErrValidation.
func Validate(data []byte) error {
	schema, err := archiveValidator()
	if err != nil {
		return err
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: archive is not valid JSON: %v", mnerrors.ErrValidation, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: archive does not match schema: %w", mnerrors.ErrValidation, err)
	}
	return nil
}
