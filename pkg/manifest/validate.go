package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/armlab/ulftrack/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// SchemaID identifies the embedded study-manifest schema.
const SchemaID = "ulftrack/v1.0.0/study-manifest"

var (
	// ErrSchemaNotFound indicates the embedded schema is missing or
	// does not compile.
	ErrSchemaNotFound = errors.New("study manifest schema not available")

	// ErrValidationFailed is the sentinel every ValidationErrors value
	// unwraps to.
	ErrValidationFailed = errors.New("study manifest validation failed")
)

// ValidationError is one schema violation, located by JSON pointer.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every violation found in one document so
// the manifest can be fixed in a single pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ErrValidationFailed.Error()
	case 1:
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("study manifest has %d problems:", len(e)))
	for _, ve := range e {
		lines = append(lines, "  - "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ValidationErrors) Unwrap() error { return ErrValidationFailed }

// Validate checks an already-bound manifest against the schema.
//
// Struct binding drops unknown fields, so the loading path validates
// the raw document via ValidateRaw instead; this entry point serves
// manifests assembled in code.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode study manifest for validation: %w", err)
	}
	return ValidateRaw(data)
}

// ValidateRaw checks a raw JSON document against the embedded schema
// and reports every error-severity diagnostic.
func ValidateRaw(doc []byte) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(doc)
	if err != nil {
		return fmt.Errorf("validate study manifest: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// loadValidator compiles the embedded schema once per process.
var loadValidator = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.StudyManifestSchema) == 0 {
		return nil, ErrSchemaNotFound
	}
	v, err := schema.NewValidator(schemasassets.StudyManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaNotFound, err)
	}
	return v, nil
})
