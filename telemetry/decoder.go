package telemetry

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/sbl8/bdahost/core"
)

// Sample is one decoded sample line.
type Sample struct {
	Line        int
	DebugCount  uint16 // sequence number, starts at 1
	Iteration   uint16 // half iterations since start
	Overflow    [NumOverflow]uint8
	Reads       [ReadPorts]uint16
	Writes      [WritePorts]uint16
	Solver      SolverState
	DotAxpy     [2]DotAxpyState
	Partition   PartitionState
	Mode        PartitionMode
	Transitions TransitionMask
	Norms       [4]float64
	Raw         Line
}

// DecodeSample decodes a sample line. It does not check for poison.
func DecodeSample(index int, l Line) Sample {
	s := Sample{Line: index, Raw: l}
	for i, f := range OverflowFields {
		s.Overflow[i] = uint8(f.Get(l[0]))
	}
	for i := 0; i < ReadPorts; i++ {
		s.Reads[i] = uint16(portField[i].Get(l[1]))
	}
	for i := 0; i < WritePorts; i++ {
		s.Writes[i] = uint16(portField[i].Get(l[2]))
	}
	s.Solver = SolverState(solverField.Get(l[2]))
	s.DotAxpy[0] = DotAxpyState(dotAxpyField[0].Get(l[2]))
	s.DotAxpy[1] = DotAxpyState(dotAxpyField[1].Get(l[2]))
	s.Partition = PartitionState(partitionField.Get(l[3]))
	s.Mode = PartitionMode(modeField.Get(l[3]))
	s.Transitions = TransitionMask(transitionField.Get(l[3]))
	s.DebugCount = uint16(dbgCountField.Get(l[3]))
	s.Iteration = uint16(itrCountField.Get(l[3]))
	for i := range s.Norms {
		s.Norms[i] = core.Float64FromBits(l[4+i])
	}
	return s
}

// OverflowSum is the sum of all overflow indicators.
func (s Sample) OverflowSum() int {
	return lo.SumBy(s.Overflow[:], func(v uint8) int { return int(v) })
}

// Overflowed reports whether any overflow indicator is set.
func (s Sample) Overflowed() bool {
	return s.OverflowSum() != 0
}

// NewestNorm is the index of the newest entry of the norm history. Norms[0]
// is always the initial residual; Norms[1..3] are a ring indexed by the
// iteration count.
func (s Sample) NewestNorm() int {
	return int(s.Iteration%3) + 1
}

// Diagnostics are the status flags of a decoded run.
type Diagnostics struct {
	SignatureMismatch bool
	Aborted           bool
	Overflow          bool
	NoResults         bool
	WriteAfterEnd     bool
	DebugFifoFull     bool
}

// Result is the outcome of decoding a debug buffer.
type Result struct {
	Cycles      uint32
	Iterations  uint16
	Norms       [4]float64
	NewestNorm  int
	Diagnostics Diagnostics
	Written     int      // sample lines that were not poisoned
	Samples     []Sample // only when Decoder.KeepSamples is set
}

// Warnings returns the informational conditions of the run as error kinds.
func (r *Result) Warnings() []error {
	var out []error
	if r.Diagnostics.Overflow {
		out = append(out, core.ErrOverflowDetected)
	}
	if r.Diagnostics.NoResults {
		out = append(out, core.ErrNoResultsReturned)
	}
	if r.Diagnostics.WriteAfterEnd {
		out = append(out, core.ErrWriteAfterEnd)
	}
	if r.Diagnostics.DebugFifoFull {
		out = append(out, core.ErrDebugFifoFull)
	}
	return out
}

// SolverIterations converts the half-iteration counter to solver
// iterations: the counter starts at 0 for half an iteration.
func (r *Result) SolverIterations() float64 {
	return float64(r.Iterations)/2.0 + 0.5
}

// NewestNormValue returns the newest residual norm.
func (r *Result) NewestNormValue() float64 {
	if r.NewestNorm < 1 || r.NewestNorm > 3 {
		return r.Norms[0]
	}
	return r.Norms[r.NewestNorm]
}

// Decoder decodes solve debug buffers. The zero value is usable and logs
// nothing.
type Decoder struct {
	// Logger receives error reports and, at debug level, one row per
	// sample. nil discards.
	Logger *slog.Logger

	// PrintLegend logs the overflow legend the first time an overflow is
	// seen in a decode call.
	PrintLegend bool

	// AbortCycles is the budget the run was started with, for reporting.
	AbortCycles uint64

	// KeepSamples retains every decoded sample in the result.
	KeepSamples bool
}

func (d *Decoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Decode interprets a solve debug buffer.
//
// A wrong signature returns ErrSignatureMismatch and a result carrying only
// the diagnostic flag. An aborted run returns ErrAbortedExecution with zero
// cycles, but the samples are still decoded so the caller can see where the
// solver stopped. Overflows and the other status flags never produce an
// error; they are reported through Result.Diagnostics and Warnings.
func (d *Decoder) Decode(buf *Buffer) (*Result, error) {
	if buf == nil || buf.Lines() == 0 {
		return nil, errors.Wrap(core.ErrInvalidSizes, "empty debug buffer")
	}
	log := d.logger()
	ctx := context.Background()
	res := &Result{}

	status := buf.Line(0)
	if sig := statusSignature.Get(status[7]); sig != Signature {
		res.Diagnostics.SignatureMismatch = true
		log.Error("kernel did not return the correct signature", "signature", sig)
		return res, errors.Wrapf(core.ErrSignatureMismatch, "got %#06x", sig)
	}

	var err error
	if statusAbort.Flag(status[0]) {
		res.Diagnostics.Aborted = true
		log.Error("kernel aborted", "abort_cycles", d.AbortCycles)
		err = errors.Wrapf(core.ErrAbortedExecution, "ran for more than %d cycles", d.AbortCycles)
	} else {
		res.Cycles = uint32(statusCycles.Get(status[1]))
	}
	res.Diagnostics.NoResults = statusNoResults.Flag(status[0])
	res.Diagnostics.WriteAfterEnd = statusWriteAfterEnd.Flag(status[0])
	res.Diagnostics.DebugFifoFull = statusFifoFull.Flag(status[0])

	// With fewer than three lines there is at most one sample and nothing
	// to compare sequence numbers against.
	unconditional := buf.Lines() < 3
	var maxCount uint16
	legendPrinted := false

	for i := 1; i < buf.Lines(); i++ {
		line := buf.Line(i)
		if line.Poisoned() {
			continue
		}
		s := DecodeSample(i, line)
		res.Written++

		if s.Overflowed() {
			res.Diagnostics.Overflow = true
			log.Error("kernel reported execution failure",
				"line", i, "dbgcount", s.DebugCount,
				"header", OverflowHeader(), "counters", FormatOverflow(s))
			if d.PrintLegend && !legendPrinted {
				log.Error(Legend())
				legendPrinted = true
			}
		}
		if log.Enabled(ctx, slog.LevelDebug) {
			log.Debug(FormatSample(s))
		}

		// The ring wraps, so keep the sample with the highest sequence number.
		if s.DebugCount > maxCount || unconditional {
			maxCount = s.DebugCount
			res.Iterations = s.Iteration
			res.Norms = s.Norms
			res.NewestNorm = s.NewestNorm()
		}
		if d.KeepSamples {
			res.Samples = append(res.Samples, s)
		}
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		for i := 0; i < buf.Lines(); i++ {
			if l := buf.Line(i); !l.Poisoned() {
				log.Debug("debug line", "index", i, "raw", FormatRaw(l))
			}
		}
	}
	if err == nil {
		log.Info("kernel finished",
			"cycles", res.Cycles,
			"iterations", res.SolverIterations(),
			"initial_norm", res.Norms[0],
			"newest_norm", res.NewestNormValue())
	}
	return res, err
}
