package runtime

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/telemetry"
)

// Device moves buffers to and from the accelerator and runs the kernel.
//
// Banks and the debug buffer are shared with the device: results written
// by the kernel are visible in the host slices once ReadDebug returns.
// Implementations must honour ctx only while blocked; a running kernel is
// stopped by its own cycle budget, never by the host.
type Device interface {
	Transfer(ctx context.Context, banks [][]byte, debug []byte) error
	Run(ctx context.Context, args [3]uint64) error
	ReadDebug(ctx context.Context, debug []byte) error
}

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// ErrNotLoaded is returned by Solve before the first Load.
var ErrNotLoaded = errors.New("no system loaded")

func (s *Session) run(ctx context.Context, dev Device, args [3]uint64) error {
	if err := s.PrepareDebug(); err != nil {
		return err
	}
	debug := s.banks.Debug().Bytes()
	steps := []struct {
		name string
		fn   func() error
	}{
		{"transfer", func() error { return dev.Transfer(ctx, s.banks.Banks(), debug) }},
		{"run", func() error { return dev.Run(ctx, args) }},
		{"read debug", func() error { return dev.ReadDebug(ctx, debug) }},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "before %s", step.name)
		}
		if err := step.fn(); err != nil {
			return errors.Wrapf(err, "device %s", step.name)
		}
	}
	return nil
}

// Solve runs one solve of the loaded system and decodes the debug buffer.
// Device-reported failures come back with the result so the caller can
// inspect the diagnostics; there are no retries.
func (s *Session) Solve(ctx context.Context, dev Device) (*telemetry.Result, error) {
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	start := time.Now()
	if err := s.run(ctx, dev, s.KernelArgs()); err != nil {
		s.stats.Failures++
		return nil, err
	}
	res, err := s.Decode()
	s.recordSolve(res, err, time.Since(start))
	return res, err
}

func (s *Session) recordSolve(res *telemetry.Result, err error, elapsed time.Duration) {
	s.stats.Solves++
	if core.IsFatal(err) {
		s.stats.Failures++
	}
	if res != nil {
		s.stats.LastCycles = res.Cycles
		s.stats.TotalCycles += uint64(res.Cycles)
		s.stats.LastIterations = res.SolverIterations()
	}
	n := time.Duration(s.stats.Solves)
	s.stats.AverageLatency = (s.stats.AverageLatency*(n-1) + elapsed) / n
}

// Query asks the kernel for its build-time limits. It does not need a
// loaded system.
func (s *Session) Query(ctx context.Context, dev Device) (*telemetry.Capabilities, error) {
	if err := s.run(ctx, dev, s.QueryArgs()); err != nil {
		return nil, err
	}
	return s.DecodeQuery()
}
