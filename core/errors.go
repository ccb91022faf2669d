package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the pipeline's failure taxonomy. Callers match
// with errors.Is; the typed errors below carry the specifics.
var (
	ErrSchema          = errors.New("dataset schema violation")
	ErrNoViableModel   = errors.New("no viable model: every combination failed")
	ErrIO              = errors.New("artifact io failure")
	ErrCorruptArtifact = errors.New("corrupt model artifact")
	ErrSchemaMismatch  = errors.New("feature schema mismatch")
)

// SchemaError reports a dataset that cannot enter the pipeline.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("dataset schema violation: %s", e.Reason)
	}
	return fmt.Sprintf("dataset schema violation: column %q: %s", e.Column, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// CorruptArtifactError reports a persisted model that fails integrity or
// consistency checks on load.
type CorruptArtifactError struct {
	Path   string
	Reason string
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("corrupt model artifact at %s: %s", e.Path, e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error { return ErrCorruptArtifact }

// SchemaMismatchError reports a prediction input whose key set differs
// from the persisted feature schema. Both slices are sorted.
type SchemaMismatchError struct {
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("feature schema mismatch")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ", missing [%s]", strings.Join(e.Missing, " "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ", extra [%s]", strings.Join(e.Extra, " "))
	}
	return b.String()
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }
