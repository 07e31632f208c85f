package model

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/samber/lo"

	"github.com/sbl8/bdahost/core"
)

func testSizes() ProblemSizes {
	return ProblemSizes{
		A: Matrix{Rows: 100, Values: 300, Colors: 2, Columns: 64, NewRows: 50, BlockDiag: 100, Nonzeros: 400},
		L: Matrix{Rows: 100, Values: 150, Colors: 2, Columns: 32, NewRows: 20, Nonzeros: 200},
		U: Matrix{Rows: 100, Values: 150, Colors: 2, Columns: 32, NewRows: 20, Nonzeros: 200},
	}
}

func testTopology(t *testing.T) Topology {
	t.Helper()
	topo, err := NewTopology(Ports2r3r3wHBM)
	if err != nil {
		t.Fatalf("NewTopology failed: %v", err)
	}
	return topo
}

func TestTopologyValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ports PortsConfig
		ok    bool
	}{
		{Ports2r3r3wDDR, true},
		{Ports2r3r3wHBM, true},
		{Ports2r3r3w, false},
		{Ports3r1w, false},
		{PortsHLS5r1w, false},
		{PortsConfig(42), false},
	}
	for _, tt := range tests {
		_, err := NewTopology(tt.ports)
		if tt.ok && err != nil {
			t.Errorf("NewTopology(%s) failed: %v", tt.ports, err)
		}
		if !tt.ok && !errors.Is(err, core.ErrUnsupportedTopology) {
			t.Errorf("NewTopology(%s) error = %v, want ErrUnsupportedTopology", tt.ports, err)
		}
	}

	bad := testTopology(t)
	bad.Banks = 4
	if err := bad.Validate(); !errors.Is(err, core.ErrUnsupportedTopology) {
		t.Errorf("Validate with 4 banks = %v", err)
	}
}

func TestParsePorts(t *testing.T) {
	t.Parallel()
	p, err := ParsePorts(" 2R_3R3W_HBM ")
	if err != nil || p != Ports2r3r3wHBM {
		t.Errorf("ParsePorts = %v, %v", p, err)
	}
	if _, err := ParsePorts("7r7w"); !errors.Is(err, core.ErrUnsupportedTopology) {
		t.Errorf("ParsePorts(7r7w) error = %v", err)
	}
	if got := PortsConfig(99).String(); got != "ports(99)" {
		t.Errorf("String = %q", got)
	}
}

func TestMemoryBank(t *testing.T) {
	t.Parallel()
	ddr, _ := NewTopology(Ports2r3r3wDDR)
	hbm, _ := NewTopology(Ports2r3r3wHBM)

	wantDDR := []string{"DDR[0]", "DDR[1]", "HBM[2]", "HBM[4]", "HBM[6]"}
	wantHBM := []string{"HBM[2]", "HBM[4]", "HBM[6]", "HBM[8]", "HBM[10]"}
	for b := 0; b < RWBanks; b++ {
		m, err := ddr.MemoryBank(b)
		if err != nil || m.String() != wantDDR[b] {
			t.Errorf("ddr bank %d = %v, %v; want %s", b, m, err, wantDDR[b])
		}
		m, err = hbm.MemoryBank(b)
		if err != nil || m.String() != wantHBM[b] {
			t.Errorf("hbm bank %d = %v, %v; want %s", b, m, err, wantHBM[b])
		}
	}
	if _, err := hbm.MemoryBank(5); err == nil {
		t.Error("expected error for bank 5")
	}
	if got := hbm.DebugMemory().TopologyIndex(); got != 34 {
		t.Errorf("debug topology index = %d, want 34", got)
	}
	if got := (MemoryTarget{Kind: MemoryDDR, Index: 1}).TopologyIndex(); got != 33 {
		t.Errorf("DDR[1] topology index = %d, want 33", got)
	}
	if got := len(hbm.KernelArgBanks()); got != KernelArgDebug-3 {
		t.Errorf("kernel arg banks = %d", got)
	}
}

func TestSizesFromProcessed(t *testing.T) {
	t.Parallel()
	want := testSizes()
	got, err := SizesFromProcessed(want.Processed(), [3]int{400, 200, 200})
	if err != nil {
		t.Fatalf("SizesFromProcessed failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}

	if _, err := SizesFromProcessed(make([]int, 17), [3]int{}); !errors.Is(err, core.ErrInvalidSizes) {
		t.Errorf("short vector error = %v", err)
	}
	neg := want.Processed()
	neg[7] = -1
	if _, err := SizesFromProcessed(neg, [3]int{}); !errors.Is(err, core.ErrInvalidSizes) {
		t.Errorf("negative size error = %v", err)
	}
}

func TestSizesDescriptorFieldLimit(t *testing.T) {
	t.Parallel()
	s := testSizes()
	s.U.Nonzeros = math.MaxInt32
	if err := s.Validate(); err != nil {
		t.Errorf("MaxInt32 nonzeros rejected: %v", err)
	}
	if strconv.IntSize < 64 {
		t.Skip("int cannot hold values past 32 bits")
	}
	limit := int64(math.MaxUint32)
	s.U.Nonzeros = int(limit)
	if err := s.Validate(); err != nil {
		t.Errorf("MaxUint32 nonzeros rejected: %v", err)
	}
	s.U.Nonzeros = int(limit + 1)
	if err := s.Validate(); !errors.Is(err, core.ErrInvalidSizes) {
		t.Errorf("MaxUint32+1 nonzeros error = %v", err)
	}
}

func TestSizesMax(t *testing.T) {
	t.Parallel()
	a := testSizes()
	b := testSizes()
	b.A.Rows = 500
	b.U.Nonzeros = 10
	m := a.Max(b)
	if m.A.Rows != 500 || m.U.Nonzeros != 200 || m.L.Values != 150 {
		t.Errorf("Max = %+v", m)
	}
}

func TestPlanOffsets(t *testing.T) {
	t.Parallel()
	l, err := PlanProblem(testTopology(t), testSizes())
	if err != nil {
		t.Fatalf("PlanProblem failed: %v", err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if diff := cmp.Diff([]int{7744, 1984, 1664, 4160, 3328}, l.BankSizes()); diff != "" {
		t.Errorf("bank sizes (-want +got):\n%s", diff)
	}

	tests := []struct {
		id     ArrayID
		bank   int
		offset int
		size   int
	}{
		{ArraySetup, 0, 0, 320},
		{ArrayNonzeros, 0, 320, 3200},
		{ArrayLNonzeros, 0, 3520, 1600},
		{ArrayUNonzeros, 0, 5120, 1600},
		{ArrayColorSizes, 0, 6720, 64},
		{ArrayBlockDiag, 0, 6912, 832},
		{ArrayPIndices, 1, 0, 256},
		{ArrayColIndices, 1, 512, 640},
		{ArrayNewRows, 1, 1792, 64},
		{ArrayR1, 2, 832, 832},
		{ArrayRT, 3, 3328, 832},
		{ArrayURes, 4, 2496, 832},
	}
	for _, tt := range tests {
		p, ok := l.Placement(tt.id)
		if !ok {
			t.Errorf("%s not planned", tt.id)
			continue
		}
		if p.Bank != tt.bank || p.Offset != tt.offset || p.Size != tt.size {
			t.Errorf("%s = bank %d offset %d size %d, want %d/%d/%d",
				tt.id, p.Bank, p.Offset, p.Size, tt.bank, tt.offset, tt.size)
		}
	}

	want := [NumResults]uint32{0, 832, 0, 832, 1664, 2496}
	if diff := cmp.Diff(want, l.ResultOffsets()); diff != "" {
		t.Errorf("result offsets (-want +got):\n%s", diff)
	}
	if l.TotalSize() != lo.Sum(l.BankSizes()) {
		t.Errorf("TotalSize = %d", l.TotalSize())
	}
}

func TestPlanProperties(t *testing.T) {
	t.Parallel()
	topo := testTopology(t)
	for rows := 0; rows < 40; rows += 7 {
		s := testSizes()
		s.A.Rows = rows
		s.A.Nonzeros = rows * 3
		s.L.Values = rows + 1
		l, err := PlanProblem(topo, s)
		if err != nil {
			t.Fatalf("rows %d: %v", rows, err)
		}
		for b := 0; b < l.NumBanks(); b++ {
			bank, _ := l.Bank(b)
			end := 0
			for _, p := range bank.Arrays {
				if p.Offset%core.CacheLineSize != 0 {
					t.Errorf("rows %d: %s offset %d unaligned", rows, p.ID, p.Offset)
				}
				if p.Offset != end {
					t.Errorf("rows %d: %s offset %d, want packed at %d", rows, p.ID, p.Offset, end)
				}
				end = p.End()
			}
			if end != l.BankSize(b) {
				t.Errorf("rows %d bank %d: size %d, arrays end at %d", rows, b, l.BankSize(b), end)
			}
		}
	}
}

func TestPlanEmptyArraysShareOffset(t *testing.T) {
	t.Parallel()
	s := testSizes()
	s.L = Matrix{}
	l, err := PlanProblem(testTopology(t), s)
	if err != nil {
		t.Fatalf("PlanProblem failed: %v", err)
	}
	lnz, _ := l.Placement(ArrayLNonzeros)
	unz, _ := l.Placement(ArrayUNonzeros)
	if lnz.Size != 0 || lnz.Offset != unz.Offset {
		t.Errorf("empty L nnz = %+v, U nnz offset %d", lnz, unz.Offset)
	}
}

func TestPlanErrors(t *testing.T) {
	t.Parallel()
	topo := testTopology(t)
	decls := DeclareBanks(testSizes())

	if _, err := Plan(topo, decls[:4]); !errors.Is(err, core.ErrUnsupportedTopology) {
		t.Errorf("4 banks error = %v", err)
	}

	bad := DeclareBanks(testSizes())
	bad[1].Arrays[0].Width = 3
	if _, err := Plan(topo, bad); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("width 3 error = %v", err)
	}

	if strconv.IntSize == 64 {
		huge := DeclareBanks(testSizes())
		last := len(huge[4].Arrays) - 1
		huge[4].Arrays[last].Count = int(int64(math.MaxUint32)/8 + 1)
		if _, err := Plan(topo, huge); !errors.Is(err, core.ErrInvalidLayout) {
			t.Errorf("oversized bank error = %v", err)
		}
	}

	dup := DeclareBanks(testSizes())
	dup[4].Arrays = append(dup[4].Arrays, ArraySpec{ID: ArrayX2, Count: 1, Width: 8})
	if _, err := Plan(topo, dup); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("duplicate error = %v", err)
	}
}

func TestLayoutFits(t *testing.T) {
	t.Parallel()
	l, err := PlanProblem(testTopology(t), testSizes())
	if err != nil {
		t.Fatal(err)
	}

	smaller := testSizes()
	smaller.A.Rows = 90
	if err := l.Fits(smaller); err != nil {
		t.Errorf("smaller problem does not fit: %v", err)
	}

	// 104 rows still fit the 832 bytes reserved for 100 rows.
	padded := testSizes()
	padded.A.Rows = 104
	if err := l.Fits(padded); err != nil {
		t.Errorf("padded problem does not fit: %v", err)
	}

	larger := testSizes()
	larger.A.Rows = 105
	if err := l.Fits(larger); !errors.Is(err, core.ErrCapacityExceeded) {
		t.Errorf("larger problem error = %v", err)
	}
}

func TestResultLookup(t *testing.T) {
	t.Parallel()
	l, _ := PlanProblem(testTopology(t), testSizes())
	p, err := l.Result(ResultROdd)
	if err != nil || p.ID != ArrayR1 || p.Bank != 2 {
		t.Errorf("Result(ROdd) = %+v, %v", p, err)
	}
	if _, err := l.Result(NumResults); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("Result(NumResults) error = %v", err)
	}
}

func TestLayoutFormat(t *testing.T) {
	t.Parallel()
	l, _ := PlanProblem(testTopology(t), testSizes())
	var buf bytes.Buffer
	if err := l.Format(&buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"bank 4", "HBM[10]", "L_res", "blkdiag"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format output missing %q", want)
		}
	}
}

func BenchmarkPlanProblem(b *testing.B) {
	topo, _ := NewTopology(Ports2r3r3wHBM)
	s := testSizes()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := PlanProblem(topo, s); err != nil {
			b.Fatal(err)
		}
	}
}
