package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func packageDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uk.nhs.bars.tgz"), []byte("package"), 0644))
	return dir
}

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.PackageDir = packageDir(t)
	config.Timeout = time.Second
	return config
}

func factoryFor(engine Engine) EngineFactory {
	return func(_ context.Context, _ Config, _ []string) (Engine, error) {
		return engine, nil
	}
}

func noIssues(_ context.Context, _ []byte) ([]Issue, error) {
	return nil, nil
}

func initialized(t *testing.T, config Config, engine Engine) *Validator {
	v := New(config, factoryFor(engine))
	require.NoError(t, v.Initialize(context.Background()))
	require.True(t, v.IsReady())
	return v
}

func TestValidator_Initialize(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine := NewMockEngine(ctrl)
		engine.EXPECT().Validate(gomock.Any(), warmupResource).Return(nil, nil)
		var packages []string
		v := New(testConfig(t), func(_ context.Context, _ Config, packageFiles []string) (Engine, error) {
			packages = packageFiles
			return engine, nil
		})

		err := v.Initialize(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateReady, v.State())
		assert.True(t, v.IsInitialized())
		require.Len(t, packages, 1)
		assert.Equal(t, "uk.nhs.bars.tgz", filepath.Base(packages[0]))
	})
	t.Run("second call fails", func(t *testing.T) {
		v := initialized(t, testConfig(t), EngineFunc(noIssues))

		err := v.Initialize(context.Background())

		require.ErrorIs(t, err, ErrAlreadyInitialized)
		assert.Equal(t, StateReady, v.State())
	})
	t.Run("package directory doesn't exist", func(t *testing.T) {
		config := testConfig(t)
		config.PackageDir = filepath.Join(t.TempDir(), "missing")
		v := New(config, factoryFor(EngineFunc(noIssues)))

		err := v.Initialize(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Equal(t, StateUninitialized, v.State())
	})
	t.Run("package directory is a file", func(t *testing.T) {
		config := testConfig(t)
		config.PackageDir = filepath.Join(config.PackageDir, "uk.nhs.bars.tgz")
		v := New(config, factoryFor(EngineFunc(noIssues)))

		err := v.Initialize(context.Background())

		require.EqualError(t, err, "FHIR package directory "+config.PackageDir+" is not a directory")
	})
	t.Run("package directory without packages", func(t *testing.T) {
		config := testConfig(t)
		config.PackageDir = t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(config.PackageDir, "README.md"), []byte("packages go here"), 0644))
		v := New(config, factoryFor(EngineFunc(noIssues)))

		err := v.Initialize(context.Background())

		require.ErrorContains(t, err, "contains no packages")
		assert.False(t, v.IsInitialized())
	})
	t.Run("engine can't be created", func(t *testing.T) {
		v := New(testConfig(t), func(_ context.Context, _ Config, _ []string) (Engine, error) {
			return nil, errors.New("corrupt package")
		})

		err := v.Initialize(context.Background())

		require.EqualError(t, err, "create profile validation engine: corrupt package")
		assert.Equal(t, StateUninitialized, v.State())
	})
	t.Run("warm-up failure is not fatal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine := NewMockEngine(ctrl)
		engine.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(nil, errors.New("snapshot generation failed"))
		v := New(testConfig(t), factoryFor(engine))

		err := v.Initialize(context.Background())

		require.NoError(t, err)
		assert.True(t, v.IsReady())
	})
	t.Run("disabled", func(t *testing.T) {
		config := testConfig(t)
		config.Enabled = false
		config.PackageDir = ""
		v := New(config, func(_ context.Context, _ Config, _ []string) (Engine, error) {
			t.Fatal("engine must not be created")
			return nil, nil
		})

		err := v.Initialize(context.Background())

		require.NoError(t, err)
		assert.True(t, v.IsReady())
	})
}

func TestValidator_Validate(t *testing.T) {
	resource := []byte(`{"resourceType":"Bundle"}`)
	t.Run("not initialized", func(t *testing.T) {
		v := New(testConfig(t), factoryFor(EngineFunc(noIssues)))

		_, err := v.Validate(context.Background(), resource)

		require.ErrorIs(t, err, ErrNotInitialized)
		assert.ErrorIs(t, err, fhirerr.ErrValidatorNotInitialized)
	})
	t.Run("not ready while warming up", func(t *testing.T) {
		warmupStarted := make(chan struct{})
		releaseWarmup := make(chan struct{})
		var once sync.Once
		engine := EngineFunc(func(_ context.Context, _ []byte) ([]Issue, error) {
			once.Do(func() { close(warmupStarted) })
			<-releaseWarmup
			return nil, nil
		})
		v := New(testConfig(t), factoryFor(engine))
		initErr := make(chan error, 1)
		go func() {
			initErr <- v.Initialize(context.Background())
		}()
		<-warmupStarted

		_, err := v.Validate(context.Background(), resource)

		require.ErrorIs(t, err, ErrNotReady)
		assert.True(t, v.IsInitialized())
		assert.False(t, v.IsReady())
		close(releaseWarmup)
		require.NoError(t, <-initErr)
		assert.True(t, v.IsReady())
	})
	t.Run("disabled validator accepts everything", func(t *testing.T) {
		config := testConfig(t)
		config.Enabled = false
		v := New(config, nil)

		outcome, err := v.Validate(context.Background(), []byte("not even JSON"))

		require.NoError(t, err)
		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("only error and fatal issues fail validation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		engine := NewMockEngine(ctrl)
		engine.EXPECT().Validate(gomock.Any(), warmupResource).Return(nil, nil)
		engine.EXPECT().Validate(gomock.Any(), resource).Return([]Issue{
			{Severity: SeverityInformation, Diagnostics: "Best practice recommendation"},
			{Severity: SeverityWarning, Diagnostics: "Unknown extension", Location: "Bundle.entry[1].resource.extension[0]"},
			{Severity: SeverityError, Diagnostics: "Minimum required = 1, but only found 0", Location: "Bundle.entry[0].resource.eventCoding"},
			{Severity: SeverityFatal, Diagnostics: "Unable to parse resource"},
		}, nil)
		v := initialized(t, testConfig(t), engine)

		outcome, err := v.Validate(context.Background(), resource)

		require.NoError(t, err)
		require.False(t, outcome.IsSuccessful())
		assert.Equal(t, []string{
			"Bundle.entry[0].resource.eventCoding: Minimum required = 1, but only found 0",
			"Unable to parse resource",
		}, outcome.Messages())
		assert.Equal(t, fhirerr.Structure, outcome.Errors[0].Kind)
	})
	t.Run("conformant resource", func(t *testing.T) {
		v := initialized(t, testConfig(t), EngineFunc(func(_ context.Context, _ []byte) ([]Issue, error) {
			return []Issue{{Severity: SeverityWarning, Diagnostics: "dom-6"}}, nil
		}))

		outcome, err := v.Validate(context.Background(), resource)

		require.NoError(t, err)
		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("engine error", func(t *testing.T) {
		calls := 0
		v := initialized(t, testConfig(t), EngineFunc(func(_ context.Context, _ []byte) ([]Issue, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("engine crashed")
			}
			return nil, nil
		}))

		_, err := v.Validate(context.Background(), resource)

		require.EqualError(t, err, "profile validation: engine crashed")
	})
	t.Run("zero timeout always times out", func(t *testing.T) {
		config := testConfig(t)
		v := initialized(t, config, EngineFunc(noIssues))
		v.config.Timeout = 0

		for i := 0; i < 3; i++ {
			_, err := v.Validate(context.Background(), resource)
			require.ErrorIs(t, err, ErrValidationTimeout)
		}
	})
	t.Run("slow engine times out", func(t *testing.T) {
		config := testConfig(t)
		v := initialized(t, config, EngineFunc(noIssues))
		v.config.Timeout = 20 * time.Millisecond
		v.engine = EngineFunc(func(ctx context.Context, _ []byte) ([]Issue, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		_, err := v.Validate(context.Background(), resource)

		require.ErrorIs(t, err, ErrValidationTimeout)
	})
	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		v := initialized(t, testConfig(t), EngineFunc(noIssues))
		started := make(chan struct{})
		v.engine = EngineFunc(func(ctx context.Context, _ []byte) ([]Issue, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()

		_, err := v.Validate(ctx, resource)

		require.ErrorIs(t, err, ErrValidationCanceled)
	})
	t.Run("already canceled context", func(t *testing.T) {
		v := initialized(t, testConfig(t), EngineFunc(noIssues))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := v.Validate(ctx, resource)

		require.ErrorIs(t, err, ErrValidationCanceled)
	})
}

func TestValidator_Concurrency(t *testing.T) {
	resource := []byte(`{"resourceType":"Bundle"}`)
	t.Run("callers beyond the limit wait for a slot", func(t *testing.T) {
		config := testConfig(t)
		config.MaxConcurrency = 2
		config.Timeout = 5 * time.Second
		v := initialized(t, config, EngineFunc(noIssues))
		release := make(chan struct{})
		v.engine = EngineFunc(func(_ context.Context, _ []byte) ([]Issue, error) {
			<-release
			return nil, nil
		})

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := v.Validate(context.Background(), resource)
				errs <- err
			}()
		}
		require.Eventually(t, func() bool {
			return v.InFlight() == 2 && v.Waiting() == 1
		}, time.Second, time.Millisecond)
		close(release)
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int64(0), v.Waiting())
		assert.Equal(t, int64(0), v.InFlight())
	})
	t.Run("waiting caller times out", func(t *testing.T) {
		config := testConfig(t)
		config.MaxConcurrency = 1
		v := initialized(t, config, EngineFunc(noIssues))
		v.config.Timeout = 50 * time.Millisecond
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		v.engine = EngineFunc(func(_ context.Context, _ []byte) ([]Issue, error) {
			started <- struct{}{}
			<-release
			return nil, nil
		})
		first := make(chan error, 1)
		go func() {
			_, err := v.Validate(context.Background(), resource)
			first <- err
		}()
		<-started

		_, err := v.Validate(context.Background(), resource)

		require.ErrorIs(t, err, ErrValidationTimeout)
		close(release)
		require.ErrorIs(t, <-first, ErrValidationTimeout)
	})
	t.Run("slot is released after a timeout", func(t *testing.T) {
		config := testConfig(t)
		config.MaxConcurrency = 1
		v := initialized(t, config, EngineFunc(noIssues))
		v.config.Timeout = 20 * time.Millisecond
		v.engine = EngineFunc(func(ctx context.Context, _ []byte) ([]Issue, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		_, err := v.Validate(context.Background(), resource)
		require.ErrorIs(t, err, ErrValidationTimeout)
		require.Eventually(t, func() bool {
			return v.InFlight() == 0
		}, time.Second, time.Millisecond)

		v.engine = EngineFunc(noIssues)
		v.config.Timeout = time.Second
		outcome, err := v.Validate(context.Background(), resource)

		require.NoError(t, err)
		assert.True(t, outcome.IsSuccessful())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
