package model

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

// Matrix holds the sizes of one matrix bundle as produced by the coloring stage.
type Matrix struct {
	Rows      int // row count (not rounded)
	Values    int // column index entries (not rounded)
	Colors    int // number of colors
	Columns   int // P indices over all colors (each color padded by the coloring stage)
	NewRows   int // new-row offset bytes (each color padded by the coloring stage)
	BlockDiag int // block-diagonal values
	Nonzeros  int // nonzero values
}

// ProblemSizes holds the sizes of the A, L and U bundles.
type ProblemSizes struct {
	A, L, U Matrix
}

// ProcessedSizesLen is the length of the flat size vector produced by the
// coloring stage: rows, values, colors, columns, newrows, blkdiag for A, L, U.
const ProcessedSizesLen = 18

// SizesFromProcessed builds ProblemSizes from the coloring stage's flat size
// vector and the three nonzero array lengths.
func SizesFromProcessed(processed []int, nonzeros [3]int) (ProblemSizes, error) {
	if len(processed) != ProcessedSizesLen {
		return ProblemSizes{}, errors.Wrapf(core.ErrInvalidSizes, "expected %d processed sizes, got %d",
			ProcessedSizesLen, len(processed))
	}
	bundle := func(base, nnz int) Matrix {
		return Matrix{
			Rows:      processed[base+0],
			Values:    processed[base+1],
			Colors:    processed[base+2],
			Columns:   processed[base+3],
			NewRows:   processed[base+4],
			BlockDiag: processed[base+5],
			Nonzeros:  nnz,
		}
	}
	p := ProblemSizes{
		A: bundle(0, nonzeros[0]),
		L: bundle(6, nonzeros[1]),
		U: bundle(12, nonzeros[2]),
	}
	return p, p.Validate()
}

// Processed flattens the sizes back into the coloring stage's order.
func (p ProblemSizes) Processed() []int {
	out := make([]int, 0, ProcessedSizesLen)
	for _, m := range []Matrix{p.A, p.L, p.U} {
		out = append(out, m.Rows, m.Values, m.Colors, m.Columns, m.NewRows, m.BlockDiag)
	}
	return out
}

// Bundle returns the sizes of one bundle.
func (p ProblemSizes) Bundle(b Bundle) Matrix {
	switch b {
	case BundleL:
		return p.L
	case BundleU:
		return p.U
	default:
		return p.A
	}
}

// Validate checks that every size is non-negative and fits the 32-bit fields
// of the setup descriptor.
func (p ProblemSizes) Validate() error {
	for _, b := range Bundles {
		m := p.Bundle(b)
		for _, f := range []struct {
			name string
			v    int
		}{
			{"rows", m.Rows}, {"values", m.Values}, {"colors", m.Colors},
			{"columns", m.Columns}, {"newrows", m.NewRows}, {"blkdiag", m.BlockDiag},
			{"nonzeros", m.Nonzeros},
		} {
			if f.v < 0 || int64(f.v) > math.MaxUint32 {
				return errors.Wrapf(core.ErrInvalidSizes, "%s %s = %d", b, f.name, f.v)
			}
		}
	}
	return nil
}

// Max returns the element-wise maximum of p and o. Sessions are sized for the
// largest system they will ever see so banks are allocated once.
func (p ProblemSizes) Max(o ProblemSizes) ProblemSizes {
	m := func(a, b Matrix) Matrix {
		return Matrix{
			Rows:      max(a.Rows, b.Rows),
			Values:    max(a.Values, b.Values),
			Colors:    max(a.Colors, b.Colors),
			Columns:   max(a.Columns, b.Columns),
			NewRows:   max(a.NewRows, b.NewRows),
			BlockDiag: max(a.BlockDiag, b.BlockDiag),
			Nonzeros:  max(a.Nonzeros, b.Nonzeros),
		}
	}
	return ProblemSizes{A: m(p.A, o.A), L: m(p.L, o.L), U: m(p.U, o.U)}
}
