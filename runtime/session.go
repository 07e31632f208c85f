// Package runtime drives the accelerator from the host side.
//
// A Session is sized once for the largest system it will solve: it plans
// the bank layout, allocates page-aligned host memory for every bank and
// the debug buffer, and writes the setup descriptor into bank 0. After that
// each solve only rewrites the problem sizes and the array contents, so the
// device-side buffer bindings stay valid across solves.
//
// Solve cycle:
//  1. Load the system into the banks
//  2. Poison the debug buffer
//  3. Transfer banks and debug buffer to the device
//  4. Run the kernel with the encoded scalar arguments
//  5. Read the debug buffer back and decode it
//  6. Read the result vectors from the even or odd banks
package runtime

import (
	"encoding/binary"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/hostmem"
	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/setup"
	"github.com/sbl8/bdahost/telemetry"
)

// MatrixData holds the coloring stage's arrays for one matrix bundle.
type MatrixData struct {
	Nonzeros      []float64
	ColumnIndices []uint16
	NewRowOffsets []uint8
	PIndices      []uint32
	ColorSizes    []uint32 // four words per color
}

// SystemData is one linear system ready to be loaded.
type SystemData struct {
	A, L, U   MatrixData
	BlockDiag []float64
	X         []float64 // initial guess
	R         []float64 // initial residual
}

// Stats tracks session activity.
type Stats struct {
	Loads          int64
	Solves         int64
	Failures       int64
	TotalCycles    uint64
	LastCycles     uint32
	LastIterations float64
	AverageLatency time.Duration
}

// Session owns the host side of one accelerator kernel instance.
// It is not safe for concurrent use.
type Session struct {
	opts    Options
	log     *slog.Logger
	topo    model.Topology
	layout  *model.Layout
	banks   *BankSet
	desc    *setup.Descriptor
	decoder telemetry.Decoder
	sizes   model.ProblemSizes
	loaded  bool
	stats   Stats
}

// NewSession validates opts, plans the layout for maxSizes, allocates the
// banks and writes the setup descriptor. alloc may be nil.
func NewSession(opts Options, maxSizes model.ProblemSizes, alloc hostmem.Allocator) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	topo, err := opts.Topology()
	if err != nil {
		return nil, err
	}
	layout, err := model.PlanProblem(topo, maxSizes)
	if err != nil {
		return nil, err
	}
	desc, err := setup.Build(maxSizes, opts.ConfigBits, layout)
	if err != nil {
		return nil, err
	}
	banks, err := NewBankSet(layout, opts.DebugLines, alloc)
	if err != nil {
		return nil, err
	}
	if err := desc.WriteTo(banks.Bank(0)); err != nil {
		_ = banks.Free()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		opts:   opts,
		log:    log,
		topo:   topo,
		layout: layout,
		banks:  banks,
		desc:   desc,
		sizes:  maxSizes,
		decoder: telemetry.Decoder{
			Logger:      log,
			PrintLegend: opts.PrintLegend,
			AbortCycles: opts.AbortCycles,
			KeepSamples: opts.KeepSamples,
		},
	}
	log.Info("session ready",
		"ports", topo.Ports,
		"bank_sizes", layout.BankSizes(),
		"total_bytes", banks.TotalSize(),
		"debug_lines", opts.DebugLines)
	return s, nil
}

// Layout returns the planned layout.
func (s *Session) Layout() *model.Layout {
	return s.layout
}

// Descriptor returns the setup descriptor.
func (s *Session) Descriptor() *setup.Descriptor {
	return s.desc
}

// Sizes returns the sizes of the loaded problem.
func (s *Session) Sizes() model.ProblemSizes {
	return s.sizes
}

// Banks returns the raw bank memory shared with the device, or nil once
// the session is closed.
func (s *Session) Banks() [][]byte {
	if s.banks == nil {
		return nil
	}
	return s.banks.Banks()
}

// DebugBuffer returns the debug buffer shared with the device, or nil once
// the session is closed.
func (s *Session) DebugBuffer() *telemetry.Buffer {
	if s.banks == nil {
		return nil
	}
	return s.banks.Debug()
}

// Stats returns a snapshot of the session statistics.
func (s *Session) Stats() Stats {
	return s.stats
}

func checkLen(what string, got, want int) error {
	if got != want {
		return errors.Wrapf(core.ErrInvalidSizes, "%s has %d elements, sizes say %d", what, got, want)
	}
	return nil
}

func (d *SystemData) validate(sizes model.ProblemSizes) error {
	for _, b := range model.Bundles {
		m := sizes.Bundle(b)
		md := d.bundle(b)
		checks := []struct {
			what      string
			got, want int
		}{
			{"nonzeros", len(md.Nonzeros), m.Nonzeros},
			{"column indices", len(md.ColumnIndices), m.Values},
			{"new row offsets", len(md.NewRowOffsets), m.NewRows},
			{"P indices", len(md.PIndices), m.Columns},
			{"color sizes", len(md.ColorSizes), 4 * m.Colors},
		}
		for _, c := range checks {
			if err := checkLen(b.String()+" "+c.what, c.got, c.want); err != nil {
				return err
			}
		}
	}
	if err := checkLen("block diagonal", len(d.BlockDiag), sizes.A.BlockDiag); err != nil {
		return err
	}
	if err := checkLen("x", len(d.X), sizes.A.Rows); err != nil {
		return err
	}
	return checkLen("r", len(d.R), sizes.A.Rows)
}

func (d *SystemData) bundle(b model.Bundle) *MatrixData {
	switch b {
	case model.BundleL:
		return &d.L
	case model.BundleU:
		return &d.U
	default:
		return &d.A
	}
}

// Load copies a system into the banks. Every check runs before the first
// byte is written, so a failed Load leaves the session as it was.
//
// The color counts are part of the descriptor written at session setup and
// must not change between loads.
func (s *Session) Load(sizes model.ProblemSizes, data *SystemData) error {
	if s.banks == nil {
		return ErrSessionClosed
	}
	if data == nil {
		return errors.Wrap(core.ErrInvalidSizes, "nil system")
	}
	if err := s.layout.Fits(sizes); err != nil {
		return err
	}
	if err := data.validate(sizes); err != nil {
		return err
	}
	for _, b := range model.Bundles {
		if got, want := sizes.Bundle(b).Colors, s.sizes.Bundle(b).Colors; got != want {
			return errors.Wrapf(core.ErrInvalidSizes, "%s colors changed from %d to %d; a new session is required", b, want, got)
		}
	}

	if err := s.desc.UpdateSizes(sizes); err != nil {
		return err
	}
	if s.opts.ResetBuffers {
		s.banks.Clear(setup.Size)
	}
	if s.opts.FillResults {
		s.fillResults(sizes.A.Rows)
	}

	for _, b := range model.Bundles {
		ids := b.Arrays()
		md := data.bundle(b)
		s.putFloat64s(ids.Nonzeros, md.Nonzeros)
		s.putUint16s(ids.ColIndices, md.ColumnIndices)
		s.putBytes(ids.NewRows, md.NewRowOffsets)
		s.putUint32s(ids.PIndices, md.PIndices)
		s.putUint32s(ids.ColorSizes, md.ColorSizes)
	}
	s.putFloat64s(model.ArrayBlockDiag, data.BlockDiag)
	s.putFloat64s(model.ArrayR1, data.R)
	s.putFloat64s(model.ArrayX1, data.X)

	// The even vectors must be initialised before the device maps them.
	zeros := make([]float64, sizes.A.Rows)
	s.putFloat64s(model.ArrayR2, zeros)
	s.putFloat64s(model.ArrayX2, zeros)

	if err := s.desc.WriteTo(s.banks.Bank(0)); err != nil {
		return err
	}
	s.sizes = sizes
	s.loaded = true
	s.stats.Loads++
	s.log.Debug("system loaded", "rows", sizes.A.Rows, "values", sizes.A.Values, "nnz", sizes.A.Nonzeros)
	return nil
}

// resultPattern marks a result entry the device never wrote: the high half
// of the word is 0x69696969 and the low half is the entry index.
func resultPattern(i int) uint64 {
	return core.RepeatNibbles(0x9, 0x6)&0xFFFFFFFF00000000 | uint64(uint32(i))
}

func (s *Session) fillResults(rows int) {
	n := core.AlignSize(rows, core.CacheLineWords)
	targets := []model.ArrayID{model.ArrayX2, model.ArrayR2}
	if s.opts.LUResults {
		targets = append(targets, model.ArrayLRes, model.ArrayURes)
	}
	for _, id := range targets {
		region, err := s.banks.Region(id)
		if err != nil {
			continue
		}
		for i := 0; i < n && (i+1)*8 <= len(region); i++ {
			binary.LittleEndian.PutUint64(region[i*8:], resultPattern(i))
		}
	}
}

// The put helpers are only called after validate and Fits, so the region
// always has room for src.
func (s *Session) putFloat64s(id model.ArrayID, src []float64) {
	dst, _ := s.banks.Region(id)
	for i, v := range src {
		binary.LittleEndian.PutUint64(dst[i*8:], core.Float64Bits(v))
	}
}

func (s *Session) putUint32s(id model.ArrayID, src []uint32) {
	dst, _ := s.banks.Region(id)
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], v)
	}
}

func (s *Session) putUint16s(id model.ArrayID, src []uint16) {
	dst, _ := s.banks.Region(id)
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], v)
	}
}

func (s *Session) putBytes(id model.ArrayID, src []uint8) {
	dst, _ := s.banks.Region(id)
	copy(dst, src)
}

func (s *Session) readFloat64s(kind model.ResultKind) ([]float64, error) {
	if s.banks == nil {
		return nil, ErrSessionClosed
	}
	p, err := s.layout.Result(kind)
	if err != nil {
		return nil, err
	}
	region, err := s.banks.Region(p.ID)
	if err != nil {
		return nil, err
	}
	out := make([]float64, s.sizes.A.Rows)
	for i := range out {
		out[i] = core.Float64FromBits(binary.LittleEndian.Uint64(region[i*8:]))
	}
	return out, nil
}

// Results reads the solution and residual vectors. After an even number of
// half iterations they are in X2/R2, otherwise in X1/R1.
func (s *Session) Results(even bool) (x, r []float64, err error) {
	xk, rk := model.ResultXOdd, model.ResultROdd
	if even {
		xk, rk = model.ResultXEven, model.ResultREven
	}
	if x, err = s.readFloat64s(xk); err != nil {
		return nil, nil, err
	}
	if r, err = s.readFloat64s(rk); err != nil {
		return nil, nil, err
	}
	return x, r, nil
}

// ResultsFor picks the even or odd vectors from a decoded run's iteration count.
func (s *Session) ResultsFor(res *telemetry.Result) (x, r []float64, err error) {
	return s.Results(res.Iterations%2 == 0)
}

// LUResults reads the intermediate ILU0 forward and backward substitution
// vectors.
func (s *Session) LUResults() (l, u []float64, err error) {
	if l, err = s.readFloat64s(model.ResultL); err != nil {
		return nil, nil, err
	}
	if u, err = s.readFloat64s(model.ResultU); err != nil {
		return nil, nil, err
	}
	return l, u, nil
}

// PrepareDebug poisons the debug buffer before a run.
func (s *Session) PrepareDebug() error {
	if s.banks == nil {
		return ErrSessionClosed
	}
	s.banks.Debug().Fill()
	return nil
}

// KernelParams returns the scalar parameters of a solve.
func (s *Session) KernelParams() setup.KernelParams {
	return s.opts.KernelParams()
}

// KernelArgs returns the encoded scalar arguments of a solve.
func (s *Session) KernelArgs() [3]uint64 {
	return s.KernelParams().Encode()
}

// QueryArgs returns the encoded scalar arguments of a configuration query.
func (s *Session) QueryArgs() [3]uint64 {
	return setup.QueryParams{
		ResetAssertCycles: s.opts.ResetAssertCycles,
		ResetSettleCycles: s.opts.ResetSettleCycles,
	}.Encode()
}

// Decode decodes the debug buffer as left by the last run.
func (s *Session) Decode() (*telemetry.Result, error) {
	if s.banks == nil {
		return nil, ErrSessionClosed
	}
	return s.decoder.Decode(s.banks.Debug())
}

// DecodeQuery decodes the debug buffer as left by a configuration query.
func (s *Session) DecodeQuery() (*telemetry.Capabilities, error) {
	if s.banks == nil {
		return nil, ErrSessionClosed
	}
	return telemetry.DecodeQuery(s.banks.Debug(), s.log)
}

// Close releases the bank memory.
func (s *Session) Close() error {
	if s.banks == nil {
		return nil
	}
	err := s.banks.Free()
	s.banks = nil
	s.loaded = false
	return err
}
