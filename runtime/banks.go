package runtime

import (
	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/hostmem"
	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/telemetry"
)

// BankSet owns the host memory of every bank of a layout plus the debug
// buffer. Regions are views into the banks at their planned offsets.
type BankSet struct {
	layout *model.Layout
	alloc  hostmem.Allocator
	raw    [][]byte // exactly as returned by the allocator
	banks  [][]byte
	debug  *telemetry.Buffer
}

// NewBankSet allocates page-aligned memory for every planned bank and a
// debug buffer of debugLines lines. Either everything is allocated or
// nothing is: on failure the banks allocated so far are freed again.
func NewBankSet(layout *model.Layout, debugLines int, alloc hostmem.Allocator) (*BankSet, error) {
	if layout == nil {
		return nil, errors.Wrap(core.ErrInvalidLayout, "nil layout")
	}
	if alloc == nil {
		alloc = hostmem.Default()
	}
	if debugLines < telemetry.MinLines || debugLines > telemetry.MaxLines {
		return nil, errors.Wrapf(core.ErrInvalidSizes, "debug buffer of %d lines", debugLines)
	}

	bs := &BankSet{layout: layout, alloc: alloc}
	// The device maps whole pages, so even an empty bank gets one.
	sizes := append(layout.BankSizes(), debugLines*telemetry.LineBytes)
	for i, size := range sizes {
		buf, err := alloc.Alloc(core.AlignPage(max(size, 1)))
		if err != nil {
			_ = bs.Free()
			return nil, errors.Mark(errors.Wrapf(err, "allocating bank %d (%d bytes)", i, size), core.ErrAllocationFailure)
		}
		bs.raw = append(bs.raw, buf)
	}

	n := layout.NumBanks()
	bs.banks = make([][]byte, n)
	for i := 0; i < n; i++ {
		bs.banks[i] = bs.raw[i][:sizes[i]:sizes[i]]
	}
	debug, err := telemetry.BufferFromBytes(bs.raw[n][:sizes[n]])
	if err != nil {
		_ = bs.Free()
		return nil, err
	}
	debug.Fill()
	bs.debug = debug
	return bs, nil
}

// Layout returns the layout the banks were sized for.
func (b *BankSet) Layout() *model.Layout {
	return b.layout
}

// NumBanks returns the number of data banks.
func (b *BankSet) NumBanks() int {
	return len(b.banks)
}

// Bank returns the memory of bank i at its planned size.
func (b *BankSet) Bank(i int) []byte {
	return b.banks[i]
}

// Banks returns every data bank in index order.
func (b *BankSet) Banks() [][]byte {
	return append([][]byte(nil), b.banks...)
}

// Region returns the reserved region of an array.
func (b *BankSet) Region(id model.ArrayID) ([]byte, error) {
	p, ok := b.layout.Placement(id)
	if !ok {
		return nil, errors.Wrapf(core.ErrInvalidLayout, "%s not planned", id)
	}
	return b.banks[p.Bank][p.Offset:p.End():p.End()], nil
}

// Debug returns the debug buffer.
func (b *BankSet) Debug() *telemetry.Buffer {
	return b.debug
}

// TotalSize is the number of bytes handed to the device, debug buffer included.
func (b *BankSet) TotalSize() int {
	total := len(b.debug.Bytes())
	for _, bank := range b.banks {
		total += len(bank)
	}
	return total
}

// Clear zeroes every bank from byte keep of bank 0 onwards.
func (b *BankSet) Clear(keep int) {
	for i, bank := range b.banks {
		start := 0
		if i == 0 {
			start = min(keep, len(bank))
		}
		clear(bank[start:])
	}
}

// Free releases all memory. The BankSet must not be used afterwards.
func (b *BankSet) Free() error {
	var errs error
	for _, buf := range b.raw {
		if err := b.alloc.Free(buf); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	b.raw, b.banks, b.debug = nil, nil, nil
	return errs
}
