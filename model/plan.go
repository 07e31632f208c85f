package model

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/sbl8/bdahost/core"
)

// Placement is the planned position of one array.
type Placement struct {
	ID     ArrayID
	Bank   int
	Offset int // byte offset inside the bank, cacheline aligned
	Size   int // reserved bytes, cacheline aligned
	Bytes  int // unrounded payload bytes at plan time
	Count  int
	Width  int
}

// End is the first byte after the reserved region.
func (p Placement) End() int {
	return p.Offset + p.Size
}

// Line is the placement's offset in cachelines, the unit the device uses.
func (p Placement) Line() uint64 {
	return uint64(p.Offset / core.CacheLineSize)
}

// BankLayout is the planned content of one bank.
type BankLayout struct {
	Index  int
	Size   int
	Arrays []Placement
}

// ResultKind selects one of the device result vectors.
type ResultKind int

// Result vectors in result-offset order. The solver alternates between the
// two x/r copies on every half iteration.
const (
	ResultXEven ResultKind = iota
	ResultREven
	ResultXOdd
	ResultROdd
	ResultL
	ResultU

	NumResults
)

var resultArrays = [NumResults]ArrayID{
	ResultXEven: ArrayX2,
	ResultREven: ArrayR2,
	ResultXOdd:  ArrayX1,
	ResultROdd:  ArrayR1,
	ResultL:     ArrayLRes,
	ResultU:     ArrayURes,
}

// Array returns the array that holds result k.
func (k ResultKind) Array() ArrayID {
	if k < 0 || k >= NumResults {
		return NumArrays
	}
	return resultArrays[k]
}

func (k ResultKind) String() string {
	return k.Array().String()
}

// Layout is the planned image of every bank. A Layout is immutable once
// planned and safe to share between goroutines.
type Layout struct {
	topo  Topology
	banks []BankLayout
	index map[ArrayID]Placement
}

// Plan assigns every declared array a cacheline-aligned offset inside its
// bank. Arrays are packed in declaration order starting at offset 0 and each
// one reserves its byte size rounded up to a whole cacheline, so an empty
// array takes no space and shares its offset with the next one.
func Plan(topo Topology, decls []BankDecl) (*Layout, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if len(decls) != topo.Banks {
		return nil, errors.Wrapf(core.ErrUnsupportedTopology, "%d bank declarations for %d banks", len(decls), topo.Banks)
	}

	l := &Layout{
		topo:  topo,
		banks: make([]BankLayout, len(decls)),
		index: make(map[ArrayID]Placement),
	}
	for b, decl := range decls {
		bank := BankLayout{Index: b, Arrays: make([]Placement, 0, len(decl.Arrays))}
		offset := 0
		for _, spec := range decl.Arrays {
			if err := spec.Validate(); err != nil {
				return nil, err
			}
			if _, dup := l.index[spec.ID]; dup {
				return nil, errors.Wrapf(core.ErrInvalidLayout, "%s declared twice", spec.ID)
			}
			size, err := core.RoundUpTo(spec.Bytes(), core.CacheLineSize)
			if err != nil {
				return nil, err
			}
			p := Placement{
				ID:     spec.ID,
				Bank:   b,
				Offset: offset,
				Size:   size,
				Bytes:  spec.Bytes(),
				Count:  spec.Count,
				Width:  spec.Width,
			}
			offset += size
			bank.Arrays = append(bank.Arrays, p)
			l.index[spec.ID] = p
		}
		if int64(offset) > math.MaxUint32 {
			return nil, errors.Wrapf(core.ErrInvalidLayout, "bank %d needs %d bytes, more than 32-bit offsets allow", b, offset)
		}
		bank.Size = offset
		l.banks[b] = bank
	}
	return l, nil
}

// PlanProblem declares and plans the banks for a problem in one step.
func PlanProblem(topo Topology, sizes ProblemSizes) (*Layout, error) {
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	return Plan(topo, DeclareBanks(sizes))
}

// Topology returns the topology the layout was planned for.
func (l *Layout) Topology() Topology {
	return l.topo
}

// NumBanks returns the number of planned banks.
func (l *Layout) NumBanks() int {
	return len(l.banks)
}

// Bank returns the planned content of bank b.
func (l *Layout) Bank(b int) (BankLayout, error) {
	if b < 0 || b >= len(l.banks) {
		return BankLayout{}, errors.Wrapf(core.ErrInvalidLayout, "bank %d out of range", b)
	}
	bank := l.banks[b]
	bank.Arrays = append([]Placement(nil), bank.Arrays...)
	return bank, nil
}

// BankSize returns the planned byte size of bank b, or 0 if b is out of range.
func (l *Layout) BankSize(b int) int {
	if b < 0 || b >= len(l.banks) {
		return 0
	}
	return l.banks[b].Size
}

// BankSizes returns the planned byte size of every bank.
func (l *Layout) BankSizes() []int {
	return lo.Map(l.banks, func(b BankLayout, _ int) int { return b.Size })
}

// TotalSize is the sum of all bank sizes.
func (l *Layout) TotalSize() int {
	return lo.SumBy(l.banks, func(b BankLayout) int { return b.Size })
}

// Placement looks up the planned position of an array.
func (l *Layout) Placement(id ArrayID) (Placement, bool) {
	p, ok := l.index[id]
	return p, ok
}

// Result returns the placement of a result vector.
func (l *Layout) Result(kind ResultKind) (Placement, error) {
	if kind < 0 || kind >= NumResults {
		return Placement{}, errors.Wrapf(core.ErrInvalidLayout, "result kind %d", int(kind))
	}
	p, ok := l.index[kind.Array()]
	if !ok {
		return Placement{}, errors.Wrapf(core.ErrInvalidLayout, "result %s not planned", kind)
	}
	return p, nil
}

// ResultOffsets returns the byte offsets of the six result vectors in
// ResultKind order. Vectors that were not planned report offset 0.
func (l *Layout) ResultOffsets() [NumResults]uint32 {
	var out [NumResults]uint32
	for k := ResultKind(0); k < NumResults; k++ {
		if p, ok := l.index[k.Array()]; ok {
			out[k] = uint32(p.Offset)
		}
	}
	return out
}

// Validate checks the layout invariants: every offset and size is cacheline
// aligned, arrays in a bank do not overlap, and no array runs past its bank.
func (l *Layout) Validate() error {
	for _, bank := range l.banks {
		if bank.Size%core.CacheLineSize != 0 {
			return errors.Wrapf(core.ErrInvalidLayout, "bank %d size %d not aligned", bank.Index, bank.Size)
		}
		prevEnd := 0
		for _, p := range bank.Arrays {
			switch {
			case p.Offset%core.CacheLineSize != 0 || p.Size%core.CacheLineSize != 0:
				return errors.Wrapf(core.ErrInvalidLayout, "%s: offset %d size %d not aligned", p.ID, p.Offset, p.Size)
			case p.Offset < prevEnd:
				return errors.Wrapf(core.ErrInvalidLayout, "%s overlaps the previous array", p.ID)
			case p.End() > bank.Size:
				return errors.Wrapf(core.ErrInvalidLayout, "%s ends at %d past bank size %d", p.ID, p.End(), bank.Size)
			case p.Bytes > p.Size:
				return errors.Wrapf(core.ErrInvalidLayout, "%s holds %d bytes in %d reserved", p.ID, p.Bytes, p.Size)
			}
			prevEnd = p.End()
		}
	}
	return nil
}

// Fits reports whether a problem of the given sizes can be loaded into the
// banks planned for this layout without re-planning. Every array must fit in
// its reserved region; offsets stay where they were planned.
func (l *Layout) Fits(sizes ProblemSizes) error {
	if err := sizes.Validate(); err != nil {
		return err
	}
	for _, decl := range DeclareBanks(sizes) {
		for _, spec := range decl.Arrays {
			p, ok := l.index[spec.ID]
			if !ok {
				return errors.Wrapf(core.ErrInvalidLayout, "%s not planned", spec.ID)
			}
			if spec.Bytes() > p.Size {
				return errors.Wrapf(core.ErrCapacityExceeded, "%s needs %d bytes, %d reserved", spec.ID, spec.Bytes(), p.Size)
			}
		}
	}
	return nil
}

// Format writes a table of every bank and its placements.
func (l *Layout) Format(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	for _, bank := range l.banks {
		mem, err := l.topo.MemoryBank(bank.Index)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(tw, "bank %d\t%s\t%d bytes\t\t\n", bank.Index, mem, bank.Size); err != nil {
			return err
		}
		for _, p := range bank.Arrays {
			if _, err := fmt.Fprintf(tw, "\t%s\t%#x\t%d\t%d x %d\n", p.ID, p.Offset, p.Size, p.Count, p.Width); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
