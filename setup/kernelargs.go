package setup

import (
	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

var (
	argIterations = core.MustField(0, 16)
	argSampleRate = core.MustField(16, 16)
	argDebugLines = core.MustField(32, 16)

	argResetAssert = core.MustField(0, 16)
	argResetSettle = core.MustField(16, 16)
	argQueryFlag   = core.MustField(48, 1)
)

// KernelParams are the scalar arguments of a solve invocation.
type KernelParams struct {
	AbortCycles   uint64
	DebugLines    uint16
	SampleRate    uint16
	MaxIterations uint16
	Precision     float64
}

// Encode packs the parameters into the three scalar kernel arguments:
// the abort budget, lines<<32|rate<<16|iterations, and the precision bits.
func (p KernelParams) Encode() [3]uint64 {
	var arg1 uint64
	arg1 = argIterations.Set(arg1, uint64(p.MaxIterations))
	arg1 = argSampleRate.Set(arg1, uint64(p.SampleRate))
	arg1 = argDebugLines.Set(arg1, uint64(p.DebugLines))
	return [3]uint64{p.AbortCycles, arg1, core.Float64Bits(p.Precision)}
}

// DecodeKernelParams is the inverse of Encode. Query invocations are
// rejected since their argument words mean something else.
func DecodeKernelParams(args [3]uint64) (KernelParams, error) {
	if argQueryFlag.Flag(args[1]) {
		return KernelParams{}, errors.Wrap(core.ErrInvalidLayout, "argument words belong to a configuration query")
	}
	return KernelParams{
		AbortCycles:   args[0],
		MaxIterations: uint16(argIterations.Get(args[1])),
		SampleRate:    uint16(argSampleRate.Get(args[1])),
		DebugLines:    uint16(argDebugLines.Get(args[1])),
		Precision:     core.Float64FromBits(args[2]),
	}, nil
}

// QueryParams are the scalar arguments of a configuration query. The device
// holds its reset for the assert cycles and then waits the settle cycles.
type QueryParams struct {
	ResetAssertCycles uint16
	ResetSettleCycles uint16
}

// Encode packs the query into the scalar kernel arguments. Only the middle
// word is used; bit 48 marks the invocation as a query.
func (q QueryParams) Encode() [3]uint64 {
	var arg1 uint64
	arg1 = argResetAssert.Set(arg1, uint64(q.ResetAssertCycles))
	arg1 = argResetSettle.Set(arg1, uint64(q.ResetSettleCycles))
	arg1 = argQueryFlag.Set(arg1, 1)
	return [3]uint64{0, arg1, 0}
}

// IsQuery reports whether scalar arguments encode a configuration query.
func IsQuery(args [3]uint64) bool {
	return argQueryFlag.Flag(args[1])
}
