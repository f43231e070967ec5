package profile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dhcw/wpas-referral-proxy/lib/debug"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/dhcw/wpas-referral-proxy/lib/otel"
	"github.com/dhcw/wpas-referral-proxy/lib/validation"
	"github.com/rs/zerolog/log"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var tracer = baseotel.Tracer("profile")

//go:embed warmup.json
var warmupResource []byte

var (
	ErrAlreadyInitialized = errors.New("profile validator is already initialized")
	ErrNotInitialized     = fhirerr.ErrValidatorNotInitialized
	ErrNotReady           = fhirerr.ErrValidatorNotReady
	ErrValidationTimeout  = fhirerr.ErrValidationTimeout
	ErrValidationCanceled = fhirerr.ErrValidationCanceled
)

// State is the lifecycle state of the Validator.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	// StateInitialized means the engine is loaded, but the warm-up validation hasn't finished yet.
	StateInitialized
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// Validator checks inbound resources against the FHIR profiles loaded from the package directory.
// At most Config.Concurrency() validations run at the same time; callers wait for a free slot until their timeout expires.
type Validator struct {
	config   Config
	factory  EngineFactory
	state    atomic.Int32
	engine   Engine
	gate     *semaphore.Weighted
	waiting  atomic.Int64
	inFlight atomic.Int64
}

// New creates a Validator. Initialize must be called before resources can be validated.
func New(config Config, factory EngineFactory) *Validator {
	if factory == nil {
		factory = NewGoFHIREngine
	}
	return &Validator{
		config:  config,
		factory: factory,
		gate:    semaphore.NewWeighted(int64(config.Concurrency())),
	}
}

// Initialize loads the FHIR packages into the engine and warms it up by validating an example referral.
// It fails if the package directory doesn't exist or contains no packages. Warm-up failures are logged, not returned.
// Initialize may be called only once.
func (v *Validator) Initialize(ctx context.Context) error {
	if !v.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return ErrAlreadyInitialized
	}
	if !v.config.Enabled {
		log.Ctx(ctx).Info().Msg("Profile validation is disabled")
		v.state.Store(int32(StateReady))
		return nil
	}
	start := time.Now()
	packageFiles, err := findPackages(v.config.PackageDir)
	if err != nil {
		v.state.Store(int32(StateUninitialized))
		return err
	}
	engine, err := v.factory(ctx, v.config, packageFiles)
	if err != nil {
		v.state.Store(int32(StateUninitialized))
		return fmt.Errorf("create profile validation engine: %w", err)
	}
	v.engine = engine
	v.state.Store(int32(StateInitialized))
	log.Ctx(ctx).Info().
		Int(logging.FieldCount, len(packageFiles)).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("Profile validation engine loaded, warming up")

	v.warmUp(ctx)
	v.state.Store(int32(StateReady))
	log.Ctx(ctx).Info().Dur(logging.FieldDuration, time.Since(start)).Msg("Profile validator is ready")
	return nil
}

func (v *Validator) warmUp(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, max(v.config.Timeout, time.Minute))
	defer cancel()
	issues, err := v.engine.Validate(warmupCtx, warmupResource)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Profile validator warm-up failed")
		return
	}
	errorCount := 0
	for _, issue := range issues {
		if issue.IsError() {
			errorCount++
		}
	}
	log.Ctx(ctx).Debug().Int(logging.FieldCount, errorCount).Msg("Profile validator warm-up completed")
}

// Validate checks the resource against the loaded profiles. Each error or fatal issue becomes an error in the returned outcome.
// It returns ErrNotInitialized or ErrNotReady when called before Initialize completed, ErrValidationTimeout when the
// configured timeout expires and ErrValidationCanceled when ctx is canceled.
func (v *Validator) Validate(ctx context.Context, resource []byte) (validation.Outcome, error) {
	if !v.config.Enabled {
		return validation.Outcome{}, nil
	}
	switch v.State() {
	case StateUninitialized, StateInitializing:
		return validation.Outcome{}, ErrNotInitialized
	case StateInitialized:
		return validation.Outcome{}, ErrNotReady
	}

	ctx, span := tracer.Start(ctx, debug.CallerName(), trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	validateCtx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()
	// The semaphore may grant a slot even when the context is already done, so check it first.
	if validateCtx.Err() != nil {
		return validation.Outcome{}, otel.Error(span, v.contextError(ctx))
	}
	v.waiting.Add(1)
	err := v.gate.Acquire(validateCtx, 1)
	v.waiting.Add(-1)
	if err != nil {
		return validation.Outcome{}, otel.Error(span, v.contextError(ctx))
	}

	type engineResult struct {
		issues []Issue
		err    error
	}
	done := make(chan engineResult, 1)
	v.inFlight.Add(1)
	go func() {
		// The slot is held until the engine returns, even if the caller stopped waiting.
		defer v.gate.Release(1)
		defer v.inFlight.Add(-1)
		issues, err := v.engine.Validate(validateCtx, resource)
		done <- engineResult{issues: issues, err: err}
	}()

	var result engineResult
	select {
	case result = <-done:
	case <-validateCtx.Done():
		return validation.Outcome{}, otel.Error(span, v.contextError(ctx))
	}
	if result.err != nil {
		if validateCtx.Err() != nil {
			return validation.Outcome{}, otel.Error(span, v.contextError(ctx))
		}
		return validation.Outcome{}, otel.Error(span, fmt.Errorf("profile validation: %w", result.err))
	}

	var outcome validation.Outcome
	for _, issue := range result.issues {
		if !issue.IsError() {
			continue
		}
		message := issue.Diagnostics
		if issue.Location != "" {
			message = issue.Location + ": " + message
		}
		outcome.Add(fhirerr.Structure, message)
	}
	span.SetAttributes(
		attribute.Bool(otel.ValidationResult, outcome.IsSuccessful()),
		attribute.Int(otel.ValidationIssueCount, len(outcome.Errors)),
	)
	return outcome, nil
}

// contextError tells a caller cancellation apart from the validation timeout.
func (v *Validator) contextError(parent context.Context) error {
	if parent.Err() != nil {
		return ErrValidationCanceled
	}
	return ErrValidationTimeout
}

func (v *Validator) State() State {
	return State(v.state.Load())
}

// IsInitialized reports whether the engine has been loaded (the warm-up may still be running).
func (v *Validator) IsInitialized() bool {
	return v.State() >= StateInitialized
}

// IsReady reports whether resources can be validated.
func (v *Validator) IsReady() bool {
	return v.State() == StateReady
}

// Waiting returns the number of callers waiting for a validation slot.
func (v *Validator) Waiting() int64 {
	return v.waiting.Load()
}

// InFlight returns the number of validations currently running in the engine.
func (v *Validator) InFlight() int64 {
	return v.inFlight.Load()
}

func findPackages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("FHIR package directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("FHIR package directory %s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read FHIR package directory %s: %w", dir, err)
	}
	var result []string
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if !entry.IsDir() && (strings.HasSuffix(name, ".tgz") || strings.HasSuffix(name, ".tar.gz")) {
			result = append(result, filepath.Join(dir, entry.Name()))
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("FHIR package directory %s contains no packages (*.tgz)", dir)
	}
	return result, nil
}
