package profile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofhir/validator/pkg/validator"
)

// NewGoFHIREngine creates an Engine backed by the gofhir conformance validator, loading the given package files.
func NewGoFHIREngine(_ context.Context, config Config, packageFiles []string) (Engine, error) {
	opts := []validator.Option{validator.WithVersion(config.FHIRVersion)}
	for _, packageFile := range packageFiles {
		absPath, err := filepath.Abs(packageFile)
		if err != nil {
			return nil, fmt.Errorf("resolve package path %s: %w", packageFile, err)
		}
		opts = append(opts, validator.WithPackageURL("file://"+filepath.ToSlash(absPath)))
	}
	v, err := validator.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create gofhir validator: %w", err)
	}
	return EngineFunc(func(ctx context.Context, resource []byte) ([]Issue, error) {
		result, err := v.Validate(ctx, resource)
		if err != nil {
			return nil, err
		}
		issues := make([]Issue, 0, len(result.Issues))
		for _, issue := range result.Issues {
			issues = append(issues, Issue{
				Severity:    Severity(strings.ToLower(fmt.Sprint(issue.Severity))),
				Diagnostics: issue.Diagnostics,
				Location:    expressionString(issue.Expression),
			})
		}
		return issues, nil
	}), nil
}

func expressionString(expression any) string {
	switch e := expression.(type) {
	case []string:
		return strings.Join(e, ", ")
	case string:
		return e
	case nil:
		return ""
	default:
		return fmt.Sprint(e)
	}
}
