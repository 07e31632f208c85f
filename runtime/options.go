package runtime

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/setup"
	"github.com/sbl8/bdahost/telemetry"
)

// Options configures a Session.
type Options struct {
	// Ports names the kernel's port configuration, e.g. "2r_3r3w_hbm".
	Ports string `json:"ports"`

	// DebugLines is the number of debug buffer lines, status line included.
	DebugLines int `json:"debug_lines"`

	// Emulation lowers the debug buffer limit to what the emulator accepts.
	Emulation bool `json:"emulation"`

	// SampleRate is the number of solver state changes between samples.
	SampleRate int `json:"sample_rate"`

	// AbortCycles is the cycle budget after which the kernel aborts; 0 disables it.
	AbortCycles uint64 `json:"abort_cycles"`

	// MaxIterations bounds the solver in half iterations.
	MaxIterations int `json:"max_iterations"`

	// Precision is the relative residual reduction the solver stops at.
	Precision float64 `json:"precision"`

	// ConfigBits are passed to the kernel through the setup descriptor.
	ConfigBits uint32 `json:"config_bits"`

	// ResetBuffers clears the banks before every load.
	ResetBuffers bool `json:"reset_buffers"`

	// FillResults writes a recognisable pattern into the result vectors
	// before every load so untouched entries stand out in dumps.
	FillResults bool `json:"fill_results"`

	// LUResults also pre-fills and reads back the ILU0 intermediate vectors.
	LUResults bool `json:"lu_results"`

	// Reset timing of configuration queries.
	ResetAssertCycles uint16 `json:"reset_assert_cycles"`
	ResetSettleCycles uint16 `json:"reset_settle_cycles"`

	// PrintLegend logs the overflow legend on the first overflow of a decode.
	PrintLegend bool `json:"print_legend"`

	// KeepSamples retains decoded samples in every Result.
	KeepSamples bool `json:"keep_samples"`

	// Logger receives session logs; nil discards them.
	Logger *slog.Logger `json:"-"`
}

// DefaultOptions provides the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Ports:             model.Ports2r3r3wHBM.String(),
		DebugLines:        telemetry.DefaultLines,
		SampleRate:        1,
		AbortCycles:       0,
		MaxIterations:     200,
		Precision:         1e-3,
		ResetBuffers:      true,
		ResetAssertCycles: 20,
		ResetSettleCycles: 100,
	}
}

// LoadOptions reads options from a JSON file on top of DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "reading options %s", path)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "parsing options %s", path)
	}
	return opts, nil
}

// Topology resolves the configured port selector.
func (o Options) Topology() (model.Topology, error) {
	ports, err := model.ParsePorts(o.Ports)
	if err != nil {
		return model.Topology{}, err
	}
	return model.NewTopology(ports)
}

// KernelParams returns the scalar solve parameters. The options must have
// passed Validate, so every count fits its 16-bit field.
func (o Options) KernelParams() setup.KernelParams {
	return setup.KernelParams{
		AbortCycles:   o.AbortCycles,
		DebugLines:    uint16(o.DebugLines),
		SampleRate:    uint16(o.SampleRate),
		MaxIterations: uint16(o.MaxIterations),
		Precision:     o.Precision,
	}
}

// MaxDebugLines returns the debug buffer limit for the current mode.
func (o Options) MaxDebugLines() int {
	if o.Emulation {
		return telemetry.MaxLinesEmulation
	}
	return telemetry.MaxLines
}

// Validate checks the options. The topology error is the static
// build-versus-host mismatch and is reported as ErrUnsupportedTopology.
func (o Options) Validate() error {
	if _, err := o.Topology(); err != nil {
		return err
	}
	if o.DebugLines < telemetry.MinLines || o.DebugLines > o.MaxDebugLines() {
		return errors.Wrapf(core.ErrInvalidSizes, "debug lines %d outside %d..%d",
			o.DebugLines, telemetry.MinLines, o.MaxDebugLines())
	}
	if o.SampleRate < 0 || o.SampleRate > math.MaxUint16 {
		return errors.Wrapf(core.ErrInvalidSizes, "sample rate %d does not fit 16 bits", o.SampleRate)
	}
	if o.MaxIterations < 1 || o.MaxIterations > math.MaxUint16 {
		return errors.Wrapf(core.ErrInvalidSizes, "max iterations %d outside 1..%d", o.MaxIterations, math.MaxUint16)
	}
	if math.IsNaN(o.Precision) || math.IsInf(o.Precision, 0) || o.Precision < 0 {
		return errors.Wrapf(core.ErrInvalidSizes, "precision %v", o.Precision)
	}
	return nil
}
