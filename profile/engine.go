//go:generate mockgen -destination=./engine_mock.go -package=profile -source=engine.go
package profile

import "context"

// Severity of a conformance issue, as defined by OperationOutcome.issue.severity.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Issue is a single finding of the conformance engine.
type Issue struct {
	Severity    Severity
	Diagnostics string
	// Location is the FHIRPath expression of the element the issue relates to, if known.
	Location string
}

// IsError reports whether the issue makes the resource non-conformant.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// Engine validates FHIR resources against the loaded profiles.
// Implementations must be safe for concurrent use.
type Engine interface {
	Validate(ctx context.Context, resource []byte) ([]Issue, error)
}

// EngineFactory creates an Engine that validates against the given FHIR package files.
type EngineFactory func(ctx context.Context, config Config, packageFiles []string) (Engine, error)

var _ Engine = EngineFunc(nil)

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, resource []byte) ([]Issue, error)

func (f EngineFunc) Validate(ctx context.Context, resource []byte) ([]Issue, error) {
	return f(ctx, resource)
}
