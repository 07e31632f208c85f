package setup

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/model"
)

func testSizes() model.ProblemSizes {
	return model.ProblemSizes{
		A: model.Matrix{Rows: 100, Values: 300, Colors: 2, Columns: 64, NewRows: 50, BlockDiag: 100, Nonzeros: 400},
		L: model.Matrix{Rows: 100, Values: 150, Colors: 3, Columns: 32, NewRows: 20, Nonzeros: 200},
		U: model.Matrix{Rows: 100, Values: 160, Colors: 4, Columns: 32, NewRows: 20, Nonzeros: 210},
	}
}

func testLayout(t testing.TB) *model.Layout {
	t.Helper()
	topo, err := model.NewTopology(model.Ports2r3r3wDDR)
	if err != nil {
		t.Fatal(err)
	}
	l, err := model.PlanProblem(topo, testSizes())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBuildWords(t *testing.T) {
	t.Parallel()
	l := testLayout(t)
	d, err := Build(testSizes(), 0x7, l)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tests := []struct {
		word int
		want uint64
	}{
		{0, 300<<32 | 100},
		{1, 0x7<<32 | 2},
		{2, 832 / 64},  // R1 in bank 2
		{3, 832 / 64},  // R2 in bank 3
		{4, 0},         // X1
		{5, 0},         // X2
		{8, 150<<32 | 100},
		{9, 3},
		{12, 320 / 64}, // A nonzeros follow the descriptor
		{16, 160<<32 | 100},
		{17, 4},
		{30, 832 / 64}, // V
		{31, PoisonWord},
		{39, PoisonWord},
	}
	for _, tt := range tests {
		got, err := d.Word(tt.word)
		if err != nil {
			t.Fatalf("Word(%d): %v", tt.word, err)
		}
		if got != tt.want {
			t.Errorf("word %d = %#x, want %#x", tt.word, got, tt.want)
		}
	}
	if _, err := d.Word(Words); err == nil {
		t.Error("expected error for word 40")
	}
}

func TestPointersMatchLayout(t *testing.T) {
	t.Parallel()
	l := testLayout(t)
	d, err := Build(testSizes(), 0, l)
	if err != nil {
		t.Fatal(err)
	}
	pointers := 0
	for _, spec := range WordMap() {
		if spec.Kind != KindPointer {
			continue
		}
		pointers++
		p, ok := l.Placement(spec.Array)
		if !ok {
			t.Fatalf("%s not planned", spec.Array)
		}
		got, _ := d.Pointer(spec.Array)
		if got != uint64(p.Offset/core.CacheLineSize) {
			t.Errorf("%s pointer = %d, want %d", spec.Array, got, p.Offset/core.CacheLineSize)
		}
	}
	if pointers != 25 {
		t.Errorf("pointer words = %d, want 25", pointers)
	}
	if _, ok := d.Pointer(model.ArrayLRes); ok {
		t.Error("L results should have no descriptor word")
	}
}

func TestUpdateSizesKeepsPointers(t *testing.T) {
	t.Parallel()
	d, err := Build(testSizes(), 0x3, testLayout(t))
	if err != nil {
		t.Fatal(err)
	}
	before := d.Words()

	s := testSizes()
	s.A.Rows, s.A.Values = 90, 250
	s.L.Rows, s.L.Values = 90, 120
	s.U.Rows, s.U.Values = 90, 130
	s.A.Colors = 9
	if err := d.UpdateSizes(s); err != nil {
		t.Fatalf("UpdateSizes failed: %v", err)
	}
	after := d.Words()

	for i := range after {
		switch i {
		case 0:
			if after[i] != 250<<32|90 {
				t.Errorf("word 0 = %#x", after[i])
			}
		case 8:
			if after[i] != 120<<32|90 {
				t.Errorf("word 8 = %#x", after[i])
			}
		case 16:
			if after[i] != 130<<32|90 {
				t.Errorf("word 16 = %#x", after[i])
			}
		default:
			if after[i] != before[i] {
				t.Errorf("word %d changed: %#x -> %#x", i, before[i], after[i])
			}
		}
	}

	bad := s
	bad.U.Rows = -1
	if err := d.UpdateSizes(bad); !errors.Is(err, core.ErrInvalidSizes) {
		t.Errorf("negative rows error = %v", err)
	}
	if d.Words() != after {
		t.Error("failed UpdateSizes modified the descriptor")
	}
}

func TestBinaryImage(t *testing.T) {
	t.Parallel()
	d, err := Build(testSizes(), 0xABC, testLayout(t))
	if err != nil {
		t.Fatal(err)
	}
	img, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(img) != Size || Size != 320 {
		t.Fatalf("image size = %d", len(img))
	}
	if got := binary.LittleEndian.Uint64(img[31*8:]); got != PoisonWord {
		t.Errorf("word 31 in image = %#x", got)
	}

	var back Descriptor
	if err := back.UnmarshalBinary(img); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if diff := cmp.Diff(d.Words(), back.Words()); diff != "" {
		t.Errorf("words (-want +got):\n%s", diff)
	}
	if back.ConfigBits() != 0xABC {
		t.Errorf("config bits = %#x", back.ConfigBits())
	}
	if err := back.UnmarshalBinary(img[:319]); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("short image error = %v", err)
	}

	bank0 := make([]byte, 1024)
	if err := d.WriteTo(bank0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bank0[:Size], img) {
		t.Error("WriteTo differs from MarshalBinary")
	}
	if err := d.WriteTo(make([]byte, 64)); !errors.Is(err, core.ErrCapacityExceeded) {
		t.Errorf("small bank error = %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	if _, err := Build(testSizes(), 0, nil); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("nil layout error = %v", err)
	}

	topo, _ := model.NewTopology(model.Ports2r3r3wHBM)
	decls := model.DeclareBanks(testSizes())
	decls[0].Arrays = decls[0].Arrays[1:]
	l, err := model.Plan(topo, decls)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Build(testSizes(), 0, l); !errors.Is(err, core.ErrInvalidLayout) {
		t.Errorf("missing setup error = %v", err)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	d, _ := Build(testSizes(), 0, testLayout(t))
	var buf bytes.Buffer
	if err := d.Format(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != Words {
		t.Errorf("Format wrote %d lines", len(lines))
	}
	if !strings.Contains(lines[23], "blkdiag line") {
		t.Errorf("line 23 = %q", lines[23])
	}
}

func TestKernelParams(t *testing.T) {
	t.Parallel()
	p := KernelParams{
		AbortCycles:   1_000_000,
		DebugLines:    512,
		SampleRate:    4,
		MaxIterations: 1000,
		Precision:     1e-9,
	}
	args := p.Encode()
	if args[0] != 1_000_000 {
		t.Errorf("arg0 = %d", args[0])
	}
	if want := uint64(512)<<32 | 4<<16 | 1000; args[1] != want {
		t.Errorf("arg1 = %#x, want %#x", args[1], want)
	}
	if args[2] != math.Float64bits(1e-9) {
		t.Errorf("arg2 = %#x", args[2])
	}
	back, err := DecodeKernelParams(args)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, back); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
	if IsQuery(args) {
		t.Error("solve arguments reported as query")
	}
}

func TestQueryParams(t *testing.T) {
	t.Parallel()
	args := QueryParams{ResetAssertCycles: 20, ResetSettleCycles: 100}.Encode()
	if want := uint64(1)<<48 | 100<<16 | 20; args[1] != want {
		t.Errorf("arg1 = %#x, want %#x", args[1], want)
	}
	if args[0] != 0 || args[2] != 0 {
		t.Errorf("args = %v", args)
	}
	if !IsQuery(args) {
		t.Error("IsQuery = false")
	}
	if _, err := DecodeKernelParams(args); err == nil {
		t.Error("DecodeKernelParams accepted query arguments")
	}
}

func BenchmarkBuild(b *testing.B) {
	l := testLayout(b)
	s := testSizes()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Build(s, 0, l); err != nil {
			b.Fatal(err)
		}
	}
}
