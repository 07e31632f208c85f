package telemetry

import (
	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

// Status is the content of the global status line.
type Status struct {
	Aborted       bool
	NoResults     bool
	WriteAfterEnd bool
	DebugFifoFull bool
	Cycles        uint32
}

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// StatusLine encodes a status line carrying a valid signature. Words the
// device does not define are zero.
func StatusLine(s Status) Line {
	var l Line
	l[0] = statusAbort.Set(l[0], flag(s.Aborted))
	l[0] = statusNoResults.Set(l[0], flag(s.NoResults))
	l[0] = statusWriteAfterEnd.Set(l[0], flag(s.WriteAfterEnd))
	l[0] = statusFifoFull.Set(l[0], flag(s.DebugFifoFull))
	l[1] = statusCycles.Set(0, uint64(s.Cycles))
	l[7] = statusSignature.Set(0, Signature)
	return l
}

// SampleLine encodes a sample. It is the exact inverse of DecodeSample for
// every field except Line and Raw. Overflow values wider than their field
// are rejected.
func SampleLine(s Sample) (Line, error) {
	var l Line
	for i, f := range OverflowFields {
		v := uint64(s.Overflow[i])
		if v > f.Max() {
			return Line{}, errors.Wrapf(core.ErrBitRange, "overflow %s = %d exceeds %d bits", f.Name, v, f.Width)
		}
		l[0] = f.Set(l[0], v)
	}
	for i := 0; i < ReadPorts; i++ {
		l[1] = portField[i].Set(l[1], uint64(s.Reads[i]))
	}
	for i := 0; i < WritePorts; i++ {
		l[2] = portField[i].Set(l[2], uint64(s.Writes[i]))
	}
	for _, check := range []struct {
		f core.Field
		v uint64
	}{
		{solverField, uint64(s.Solver)},
		{dotAxpyField[0], uint64(s.DotAxpy[0])},
		{dotAxpyField[1], uint64(s.DotAxpy[1])},
		{partitionField, uint64(s.Partition)},
		{modeField, uint64(s.Mode)},
		{transitionField, uint64(s.Transitions)},
	} {
		if check.v > check.f.Max() {
			return Line{}, errors.Wrapf(core.ErrBitRange, "state %d exceeds %d bits", check.v, check.f.Width)
		}
	}
	l[2] = solverField.Set(l[2], uint64(s.Solver))
	l[2] = dotAxpyField[0].Set(l[2], uint64(s.DotAxpy[0]))
	l[2] = dotAxpyField[1].Set(l[2], uint64(s.DotAxpy[1]))
	l[3] = partitionField.Set(l[3], uint64(s.Partition))
	l[3] = modeField.Set(l[3], uint64(s.Mode))
	l[3] = transitionField.Set(l[3], uint64(s.Transitions))
	l[3] = dbgCountField.Set(l[3], uint64(s.DebugCount))
	l[3] = itrCountField.Set(l[3], uint64(s.Iteration))
	for i, n := range s.Norms {
		l[4+i] = core.Float64Bits(n)
	}
	if l.Poisoned() {
		return Line{}, errors.Wrap(core.ErrBitRange, "sample encodes to the poison pattern")
	}
	return l, nil
}
