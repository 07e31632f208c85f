package model

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

// ArrayID names one array of the solver's memory image.
type ArrayID uint8

const (
	ArraySetup ArrayID = iota

	ArrayNonzeros
	ArrayLNonzeros
	ArrayUNonzeros
	ArrayColorSizes
	ArrayLColorSizes
	ArrayUColorSizes
	ArrayBlockDiag

	ArrayPIndices
	ArrayLPIndices
	ArrayUPIndices
	ArrayColIndices
	ArrayLColIndices
	ArrayUColIndices
	ArrayNewRows
	ArrayLNewRows
	ArrayUNewRows

	ArrayX2
	ArrayR1
	ArrayX1
	ArrayR2
	ArrayP1
	ArrayP2
	ArrayRT
	ArrayT
	ArrayV
	ArrayLRes
	ArrayURes

	NumArrays
)

var arrayNames = [NumArrays]string{
	ArraySetup:       "setup",
	ArrayNonzeros:    "nnz_vals",
	ArrayLNonzeros:   "L_nnz_vals",
	ArrayUNonzeros:   "U_nnz_vals",
	ArrayColorSizes:  "color_sizes",
	ArrayLColorSizes: "L_color_sizes",
	ArrayUColorSizes: "U_color_sizes",
	ArrayBlockDiag:   "blkdiag",
	ArrayPIndices:    "p_indices",
	ArrayLPIndices:   "L_p_indices",
	ArrayUPIndices:   "U_p_indices",
	ArrayColIndices:  "col_inds",
	ArrayLColIndices: "L_col_inds",
	ArrayUColIndices: "U_col_inds",
	ArrayNewRows:     "newrows",
	ArrayLNewRows:    "L_newrows",
	ArrayUNewRows:    "U_newrows",
	ArrayX2:          "x2",
	ArrayR1:          "r1",
	ArrayX1:          "x1",
	ArrayR2:          "r2",
	ArrayP1:          "p1",
	ArrayP2:          "p2",
	ArrayRT:          "rt",
	ArrayT:           "t",
	ArrayV:           "v",
	ArrayLRes:        "L_res",
	ArrayURes:        "U_res",
}

func (id ArrayID) String() string {
	if id < NumArrays {
		return arrayNames[id]
	}
	return fmt.Sprintf("array(%d)", uint8(id))
}

// IsVector reports whether the array is one of the row-sized float vectors.
func (id ArrayID) IsVector() bool {
	return id >= ArrayX2 && id < NumArrays
}

// Bundle identifies one of the three matrix bundles.
type Bundle int

const (
	BundleA Bundle = iota
	BundleL
	BundleU
)

// Bundles lists the bundles in descriptor order.
var Bundles = []Bundle{BundleA, BundleL, BundleU}

func (b Bundle) String() string {
	switch b {
	case BundleA:
		return "A"
	case BundleL:
		return "L"
	case BundleU:
		return "U"
	default:
		return "?"
	}
}

// BundleArrays is the set of arrays that make up one matrix bundle.
type BundleArrays struct {
	Nonzeros   ArrayID
	ColorSizes ArrayID
	PIndices   ArrayID
	ColIndices ArrayID
	NewRows    ArrayID
}

// Arrays returns the arrays of bundle b.
func (b Bundle) Arrays() BundleArrays {
	switch b {
	case BundleL:
		return BundleArrays{ArrayLNonzeros, ArrayLColorSizes, ArrayLPIndices, ArrayLColIndices, ArrayLNewRows}
	case BundleU:
		return BundleArrays{ArrayUNonzeros, ArrayUColorSizes, ArrayUPIndices, ArrayUColIndices, ArrayUNewRows}
	default:
		return BundleArrays{ArrayNonzeros, ArrayColorSizes, ArrayPIndices, ArrayColIndices, ArrayNewRows}
	}
}

// ArraySpec declares one array: Count elements of Width bytes each.
type ArraySpec struct {
	ID    ArrayID
	Count int
	Width int
}

// Bytes is the unrounded byte size of the array.
func (s ArraySpec) Bytes() int {
	return s.Count * s.Width
}

// Validate checks the element width and count.
func (s ArraySpec) Validate() error {
	if s.ID >= NumArrays {
		return errors.Wrapf(core.ErrInvalidLayout, "unknown array id %d", uint8(s.ID))
	}
	switch s.Width {
	case 1, 2, 4, 8:
	default:
		return errors.Wrapf(core.ErrInvalidLayout, "%s: width %d", s.ID, s.Width)
	}
	if s.Count < 0 {
		return errors.Wrapf(core.ErrInvalidLayout, "%s: negative count %d", s.ID, s.Count)
	}
	return nil
}

// BankDecl is the ordered list of arrays placed in one bank.
type BankDecl struct {
	Arrays []ArraySpec
}

// DeclareBanks returns the fixed per-bank array declarations for a problem.
// The order within each bank is part of the device contract.
func DeclareBanks(sizes ProblemSizes) []BankDecl {
	a, l, u := sizes.A, sizes.L, sizes.U
	vec := func(id ArrayID) ArraySpec { return ArraySpec{ID: id, Count: a.Rows, Width: 8} }

	return []BankDecl{
		{Arrays: []ArraySpec{
			{ID: ArraySetup, Count: SetupWords, Width: 8},
			{ID: ArrayNonzeros, Count: a.Nonzeros, Width: 8},
			{ID: ArrayLNonzeros, Count: l.Nonzeros, Width: 8},
			{ID: ArrayUNonzeros, Count: u.Nonzeros, Width: 8},
			{ID: ArrayColorSizes, Count: 4 * a.Colors, Width: 4},
			{ID: ArrayLColorSizes, Count: 4 * l.Colors, Width: 4},
			{ID: ArrayUColorSizes, Count: 4 * u.Colors, Width: 4},
			{ID: ArrayBlockDiag, Count: a.BlockDiag, Width: 8},
		}},
		{Arrays: []ArraySpec{
			{ID: ArrayPIndices, Count: a.Columns, Width: 4},
			{ID: ArrayLPIndices, Count: l.Columns, Width: 4},
			{ID: ArrayUPIndices, Count: u.Columns, Width: 4},
			{ID: ArrayColIndices, Count: a.Values, Width: 2},
			{ID: ArrayLColIndices, Count: l.Values, Width: 2},
			{ID: ArrayUColIndices, Count: u.Values, Width: 2},
			{ID: ArrayNewRows, Count: a.NewRows, Width: 1},
			{ID: ArrayLNewRows, Count: l.NewRows, Width: 1},
			{ID: ArrayUNewRows, Count: u.NewRows, Width: 1},
		}},
		{Arrays: []ArraySpec{vec(ArrayX2), vec(ArrayR1)}},
		{Arrays: []ArraySpec{vec(ArrayX1), vec(ArrayR2), vec(ArrayP1), vec(ArrayP2), vec(ArrayRT)}},
		{Arrays: []ArraySpec{vec(ArrayT), vec(ArrayV), vec(ArrayLRes), vec(ArrayURes)}},
	}
}
