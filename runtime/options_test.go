package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/hostmem"
	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/setup"
	"github.com/sbl8/bdahost/telemetry"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	topo, err := opts.Topology()
	require.NoError(t, err)
	require.Equal(t, model.Ports2r3r3wHBM, topo.Ports)
	require.Equal(t, telemetry.DefaultLines, opts.DebugLines)
	require.Equal(t, telemetry.MaxLines, opts.MaxDebugLines())

	opts.Emulation = true
	require.Equal(t, telemetry.MaxLinesEmulation, opts.MaxDebugLines())
}

func TestOptionsKernelParams(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.SampleRate = 4
	want := setup.KernelParams{
		AbortCycles:   1 << 20,
		DebugLines:    16,
		SampleRate:    4,
		MaxIterations: 50,
		Precision:     1e-6,
	}
	require.Equal(t, want, opts.KernelParams())

	got, err := setup.DecodeKernelParams(opts.KernelParams().Encode())
	require.NoError(t, err)
	require.Equal(t, want, got)

	s := newTestSession(t, opts)
	require.Equal(t, want, s.KernelParams())
	require.Equal(t, want.Encode(), s.KernelArgs())
}

func TestLoadOptions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "options.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ports":"2r_3r3w_ddr","debug_lines":64,"fill_results":true}`), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	require.Equal(t, "2r_3r3w_ddr", opts.Ports)
	require.Equal(t, 64, opts.DebugLines)
	require.True(t, opts.FillResults)
	// Unset fields keep their defaults.
	require.True(t, opts.ResetBuffers)
	require.Equal(t, 200, opts.MaxIterations)
	require.NoError(t, opts.Validate())

	_, err = LoadOptions(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"debug_lines":`), 0o600))
	_, err = LoadOptions(bad)
	require.Error(t, err)
}

// countingAllocator fails after limit allocations and counts live buffers.
type countingAllocator struct {
	limit int
	live  int
	calls int
}

var errOutOfMemory = errors.New("out of memory")

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	a.calls++
	if a.calls > a.limit {
		return nil, errOutOfMemory
	}
	a.live++
	return hostmem.HeapAllocator{}.Alloc(size)
}

func (a *countingAllocator) Free([]byte) error {
	a.live--
	return nil
}

func testLayout(t testing.TB) *model.Layout {
	t.Helper()
	topo, err := model.NewTopology(model.Ports2r3r3wHBM)
	require.NoError(t, err)
	layout, err := model.PlanProblem(topo, maxSizes)
	require.NoError(t, err)
	return layout
}

func TestBankSet(t *testing.T) {
	t.Parallel()
	layout := testLayout(t)
	alloc := &countingAllocator{limit: 100}
	bs, err := NewBankSet(layout, 8, alloc)
	require.NoError(t, err)
	require.Equal(t, model.RWBanks+1, alloc.live)

	require.Equal(t, layout.NumBanks(), bs.NumBanks())
	require.Equal(t, layout.TotalSize()+8*telemetry.LineBytes, bs.TotalSize())
	require.Equal(t, 8, bs.Debug().Lines())

	for id := model.ArrayID(0); id < model.NumArrays; id++ {
		p, ok := layout.Placement(id)
		require.True(t, ok, "%s", id)
		region, err := bs.Region(id)
		require.NoError(t, err)
		require.Equal(t, p.Size, len(region), "%s", id)
		require.Equal(t, p.Size, cap(region), "%s", id)
	}

	for i := 0; i < bs.NumBanks(); i++ {
		for j := range bs.Bank(i) {
			bs.Bank(i)[j] = 0xFF
		}
	}
	bs.Clear(setup.Size)
	require.Equal(t, byte(0xFF), bs.Bank(0)[setup.Size-1])
	require.Zero(t, bs.Bank(0)[setup.Size])
	require.Zero(t, bs.Bank(4)[0])

	require.NoError(t, bs.Free())
	require.Zero(t, alloc.live)
}

func TestBankSetAllocationFailure(t *testing.T) {
	t.Parallel()
	layout := testLayout(t)
	for limit := 0; limit <= model.RWBanks; limit++ {
		alloc := &countingAllocator{limit: limit}
		_, err := NewBankSet(layout, 8, alloc)
		require.ErrorIs(t, err, errOutOfMemory, "limit %d", limit)
		require.ErrorIs(t, err, core.ErrAllocationFailure, "limit %d", limit)
		require.True(t, core.IsFatal(err), "limit %d", limit)
		require.Zero(t, alloc.live, "limit %d", limit)
	}
}

func TestNewSessionAllocationFailure(t *testing.T) {
	t.Parallel()
	alloc := &countingAllocator{limit: 2}
	_, err := NewSession(testOptions(), maxSizes, alloc)
	require.ErrorIs(t, err, core.ErrAllocationFailure)
	require.Zero(t, alloc.live)
}

func TestBankSetErrors(t *testing.T) {
	t.Parallel()
	_, err := NewBankSet(nil, 8, nil)
	require.ErrorIs(t, err, core.ErrInvalidLayout)
	_, err = NewBankSet(testLayout(t), 1, nil)
	require.ErrorIs(t, err, core.ErrInvalidSizes)
	_, err = NewBankSet(testLayout(t), telemetry.MaxLines+1, nil)
	require.ErrorIs(t, err, core.ErrInvalidSizes)
}
