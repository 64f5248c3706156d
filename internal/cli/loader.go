package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/siniverse/taskbox/internal/replica"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeBadInput    = "E002" // Malformed document
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// State document validation errors
	ErrCodeNotObject       = "E101" // Top-level value is not an object
	ErrCodeNotConcrete     = "E102" // Document contains unresolved CUE values
	ErrCodeSchemaViolation = "E103" // Document fails the schema
)

// LoadError represents an error that occurred during state-file loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadStateFile reads an initial-state document from a .json or .cue file.
// CUE files may use references and expressions but must evaluate to a
// single concrete object.
func LoadStateFile(path string) (replica.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("state file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading state file: %v", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		doc, err := replica.ParseDocument(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadInput, Message: fmt.Sprintf("parsing %s: %v", path, err)}
		}
		return doc, nil
	case ".cue":
		return loadCUEState(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeBadInput, Message: fmt.Sprintf("unsupported state file extension: %s", path)}
	}
}

func loadCUEState(path string, data []byte) (replica.Document, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	if kind := value.IncompleteKind(); kind != cue.StructKind {
		return nil, &LoadError{Code: ErrCodeNotObject, Message: fmt.Sprintf("state document must be an object, got %v", kind), Pos: value.Pos()}
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeNotConcrete, Message: fmt.Sprintf("state document is not concrete: %v", err)}
	}

	var doc replica.Document
	if err := value.Decode(&doc); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("decoding CUE value: %v", err)}
	}
	return doc, nil
}

// ValidateStateFile loads a state document and, when schemaPath is
// non-empty, unifies it with the CUE schema and checks the result.
// Returns the validated document.
func ValidateStateFile(path, schemaPath string) (replica.Document, error) {
	doc, err := LoadStateFile(path)
	if err != nil {
		return nil, err
	}
	if schemaPath == "" {
		return doc, nil
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", schemaPath)}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading schema file: %v", err)}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaData, cue.Filename(schemaPath))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building schema: %v", err)}
	}

	unified := schema.Unify(ctx.Encode(map[string]any(doc)))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeSchemaViolation, Message: fmt.Sprintf("document does not satisfy schema: %v", err)}
	}
	return doc, nil
}
