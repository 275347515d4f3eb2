package config

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/banshee-data/bandfit/internal/eigen"
	"github.com/banshee-data/bandfit/internal/fit"
	"github.com/banshee-data/bandfit/internal/fsutil"
	"github.com/banshee-data/bandfit/internal/params"
)

// DefaultConfigPath is the path to the canonical fit defaults file.
const DefaultConfigPath = "config/fit.defaults.json"

const maxConfigSize = 1 * 1024 * 1024 // 1MB

// FitConfig holds the tunable settings of a band fit. Every field is
// optional; the Get* methods supply defaults for fields left unset.
type FitConfig struct {
	// Objective
	KCutoff            *float64 `json:"k_cutoff,omitempty"`
	HermitianTolerance *float64 `json:"hermitian_tolerance,omitempty"`

	// Optimizer
	MaxEvaluations *int     `json:"max_evaluations,omitempty"`
	FTol           *float64 `json:"ftol,omitempty"`
	XTol           *float64 `json:"xtol,omitempty"`
	GTol           *float64 `json:"gtol,omitempty"`
	JacobianStep   *float64 `json:"jacobian_step,omitempty"` // 0 selects the forward-difference default
	InitialDamping *float64 `json:"initial_damping,omitempty"`

	// Logs every trial parameter vector when set.
	TraceProgress *bool `json:"trace_progress,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultFitConfig returns a FitConfig with every field set to its default.
func DefaultFitConfig() *FitConfig {
	s := fit.DefaultSettings()
	return &FitConfig{
		KCutoff:            ptrFloat64(fit.DefaultCutoff),
		HermitianTolerance: ptrFloat64(eigen.DefaultTolerance),
		MaxEvaluations:     ptrInt(defaultMaxEvaluations),
		FTol:               ptrFloat64(s.FTol),
		XTol:               ptrFloat64(s.XTol),
		GTol:               ptrFloat64(s.GTol),
		InitialDamping:     ptrFloat64(s.InitialDamping),
		TraceProgress:      ptrBool(false),
	}
}

// LoadFitConfig loads a FitConfig from a JSON file on disk.
func LoadFitConfig(path string) (*FitConfig, error) {
	return LoadFitConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadFitConfigFS loads a FitConfig through fsys. The file must have a
// .json extension and be under 1MB. Fields omitted from the file keep
// their defaults, so partial configs are safe.
func LoadFitConfigFS(fsys fsutil.FileSystem, path string) (*FitConfig, error) {
	data, err := fsutil.ReadLimited(fsys, path, ".json", maxConfigSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg := &FitConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. It panics if the file cannot be loaded and is
// intended for test setup.
func MustLoadDefaultConfig() *FitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, *v)
	}
	return nil
}

func nonNegative(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 {
		return fmt.Errorf("%s must be non-negative, got %g", name, *v)
	}
	return nil
}

// Validate checks that the configured values are usable.
func (c *FitConfig) Validate() error {
	for _, check := range []error{
		positive("k_cutoff", c.KCutoff),
		positive("hermitian_tolerance", c.HermitianTolerance),
		positive("ftol", c.FTol),
		positive("xtol", c.XTol),
		nonNegative("gtol", c.GTol),
		nonNegative("jacobian_step", c.JacobianStep),
		positive("initial_damping", c.InitialDamping),
	} {
		if check != nil {
			return check
		}
	}

	if c.MaxEvaluations != nil && *c.MaxEvaluations <= params.Len {
		return fmt.Errorf("max_evaluations must exceed %d, got %d", params.Len, *c.MaxEvaluations)
	}
	return nil
}

// defaultMaxEvaluations is 200·(n+1) for the twelve-parameter model.
const defaultMaxEvaluations = 200 * (params.Len + 1)

// GetKCutoff returns the k_cutoff value or the default.
func (c *FitConfig) GetKCutoff() float64 {
	if c.KCutoff == nil {
		return fit.DefaultCutoff
	}
	return *c.KCutoff
}

// GetHermitianTolerance returns the hermitian_tolerance value or the default.
func (c *FitConfig) GetHermitianTolerance() float64 {
	if c.HermitianTolerance == nil {
		return eigen.DefaultTolerance
	}
	return *c.HermitianTolerance
}

// GetMaxEvaluations returns the max_evaluations value or the default.
func (c *FitConfig) GetMaxEvaluations() int {
	if c.MaxEvaluations == nil {
		return defaultMaxEvaluations
	}
	return *c.MaxEvaluations
}

// GetFTol returns the ftol value or the default.
func (c *FitConfig) GetFTol() float64 {
	if c.FTol == nil {
		return fit.DefaultSettings().FTol
	}
	return *c.FTol
}

// GetXTol returns the xtol value or the default.
func (c *FitConfig) GetXTol() float64 {
	if c.XTol == nil {
		return fit.DefaultSettings().XTol
	}
	return *c.XTol
}

// GetGTol returns the gtol value or the default.
func (c *FitConfig) GetGTol() float64 {
	if c.GTol == nil {
		return 0
	}
	return *c.GTol
}

// GetJacobianStep returns the jacobian_step value, or 0 for the
// forward-difference default.
func (c *FitConfig) GetJacobianStep() float64 {
	if c.JacobianStep == nil {
		return 0
	}
	return *c.JacobianStep
}

// GetInitialDamping returns the initial_damping value or the default.
func (c *FitConfig) GetInitialDamping() float64 {
	if c.InitialDamping == nil {
		return fit.DefaultSettings().InitialDamping
	}
	return *c.InitialDamping
}

// GetTraceProgress returns the trace_progress value or the default.
func (c *FitConfig) GetTraceProgress() bool {
	if c.TraceProgress == nil {
		return false
	}
	return *c.TraceProgress
}

// Settings maps the optimizer fields onto fit.Settings.
func (c *FitConfig) Settings() fit.Settings {
	return fit.Settings{
		MaxEvaluations: c.GetMaxEvaluations(),
		FTol:           c.GetFTol(),
		XTol:           c.GetXTol(),
		GTol:           c.GetGTol(),
		JacobianStep:   c.GetJacobianStep(),
		InitialDamping: c.GetInitialDamping(),
	}
}
