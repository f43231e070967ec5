package profile

import (
	"errors"
	"runtime"
	"time"
)

const maxConcurrencyLimit = 100

type Config struct {
	// Enabled controls whether inbound Bundles are validated against the FHIR profiles.
	Enabled bool `koanf:"enabled"`
	// PackageDir is the directory holding the FHIR packages (*.tgz) to validate against.
	PackageDir string `koanf:"packagedir"`
	// FHIRVersion is the FHIR core version the packages are built on.
	FHIRVersion string `koanf:"fhirversion"`
	// Timeout is the maximum time a single validation may take, including waiting for a free slot.
	Timeout time.Duration `koanf:"timeout"`
	// MaxConcurrency is the number of validations that may run at the same time.
	// 0 means the number of CPUs. Values are clamped to [1, 100].
	MaxConcurrency int `koanf:"maxconcurrency"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		PackageDir:  "packages",
		FHIRVersion: "4.0.1",
		Timeout:     10 * time.Second,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.PackageDir == "" {
		return errors.New("package directory is not configured")
	}
	if c.Timeout < 0 {
		return errors.New("timeout can't be negative")
	}
	return nil
}

// Concurrency returns the effective number of concurrent validations.
func (c Config) Concurrency() int {
	result := c.MaxConcurrency
	if result <= 0 {
		result = runtime.NumCPU()
	}
	return max(1, min(result, maxConcurrencyLimit))
}
