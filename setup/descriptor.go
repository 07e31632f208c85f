// Package setup encodes the setup descriptor the accelerator reads at the
// start of bank 0, and the scalar kernel argument words that accompany it.
//
// The descriptor is five cachelines of little-endian 64-bit words. The first
// 31 words carry the problem sizes and, for every array the device reads or
// writes, the array's offset inside its bank in cachelines. The rest is
// poison so a misaligned read is easy to spot in a dump.
package setup

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/model"
)

const (
	// Lines is the descriptor length in cachelines.
	Lines = model.SetupLines

	// Words is the descriptor length in 64-bit words.
	Words = model.SetupWords

	// Size is the descriptor length in bytes.
	Size = Words * 8

	// UsedWords is the number of words the device interprets.
	UsedWords = 31

	// PoisonWord fills every unused descriptor word.
	PoisonWord uint64 = 0xDEADC0DEDEADC0DE
)

// WordKind tells what a descriptor word carries.
type WordKind int

const (
	KindPoison WordKind = iota
	KindSizePair
	KindColorsConfig
	KindColors
	KindPointer
)

// WordSpec describes one entry of the descriptor word map.
type WordSpec struct {
	Index  int
	Kind   WordKind
	Bundle model.Bundle  // size pair and color words
	Array  model.ArrayID // pointer words
}

func (s WordSpec) String() string {
	switch s.Kind {
	case KindSizePair:
		return fmt.Sprintf("%s values<<32|rows", s.Bundle)
	case KindColorsConfig:
		return fmt.Sprintf("config<<32|%s colors", s.Bundle)
	case KindColors:
		return fmt.Sprintf("%s colors", s.Bundle)
	case KindPointer:
		return fmt.Sprintf("%s line", s.Array)
	default:
		return "poison"
	}
}

var wordMap = func() [Words]WordSpec {
	var m [Words]WordSpec
	for i := range m {
		m[i] = WordSpec{Index: i, Kind: KindPoison}
	}
	size := func(i int, b model.Bundle) { m[i] = WordSpec{Index: i, Kind: KindSizePair, Bundle: b} }
	ptr := func(i int, id model.ArrayID) { m[i] = WordSpec{Index: i, Kind: KindPointer, Array: id} }

	size(0, model.BundleA)
	m[1] = WordSpec{Index: 1, Kind: KindColorsConfig, Bundle: model.BundleA}
	ptr(2, model.ArrayR1)
	ptr(3, model.ArrayR2)
	ptr(4, model.ArrayX1)
	ptr(5, model.ArrayX2)
	ptr(6, model.ArrayP1)
	ptr(7, model.ArrayP2)
	size(8, model.BundleL)
	m[9] = WordSpec{Index: 9, Kind: KindColors, Bundle: model.BundleL}
	ptr(10, model.ArrayColorSizes)
	ptr(11, model.ArrayPIndices)
	ptr(12, model.ArrayNonzeros)
	ptr(13, model.ArrayColIndices)
	ptr(14, model.ArrayNewRows)
	ptr(15, model.ArrayRT)
	size(16, model.BundleU)
	m[17] = WordSpec{Index: 17, Kind: KindColors, Bundle: model.BundleU}
	ptr(18, model.ArrayLColorSizes)
	ptr(19, model.ArrayLPIndices)
	ptr(20, model.ArrayLNonzeros)
	ptr(21, model.ArrayLColIndices)
	ptr(22, model.ArrayLNewRows)
	ptr(23, model.ArrayBlockDiag)
	ptr(24, model.ArrayUColorSizes)
	ptr(25, model.ArrayUPIndices)
	ptr(26, model.ArrayUNonzeros)
	ptr(27, model.ArrayUColIndices)
	ptr(28, model.ArrayUNewRows)
	ptr(29, model.ArrayT)
	ptr(30, model.ArrayV)
	return m
}()

// sizeWords are the descriptor words UpdateSizes rewrites.
var sizeWords = [3]int{0, 8, 16}

// WordMap returns the descriptor word map.
func WordMap() []WordSpec {
	return append([]WordSpec(nil), wordMap[:]...)
}

// Descriptor is the setup descriptor image. It is built once per session;
// only the size-pair words change afterwards.
type Descriptor struct {
	words      [Words]uint64
	configBits uint32
}

func sizePair(m model.Matrix) uint64 {
	return uint64(uint32(m.Values))<<32 | uint64(uint32(m.Rows))
}

// Build encodes the descriptor for a planned layout.
func Build(sizes model.ProblemSizes, configBits uint32, layout *model.Layout) (*Descriptor, error) {
	if layout == nil {
		return nil, errors.Wrap(core.ErrInvalidLayout, "nil layout")
	}
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	if p, ok := layout.Placement(model.ArraySetup); !ok || p.Bank != 0 || p.Offset != 0 || p.Size < Size {
		return nil, errors.Wrap(core.ErrInvalidLayout, "setup descriptor must start bank 0")
	}

	d := &Descriptor{configBits: configBits}
	for i := range d.words {
		d.words[i] = PoisonWord
	}
	for _, spec := range wordMap {
		switch spec.Kind {
		case KindSizePair:
			d.words[spec.Index] = sizePair(sizes.Bundle(spec.Bundle))
		case KindColorsConfig:
			d.words[spec.Index] = uint64(configBits)<<32 | uint64(uint32(sizes.Bundle(spec.Bundle).Colors))
		case KindColors:
			d.words[spec.Index] = uint64(uint32(sizes.Bundle(spec.Bundle).Colors))
		case KindPointer:
			p, ok := layout.Placement(spec.Array)
			if !ok {
				return nil, errors.Wrapf(core.ErrInvalidLayout, "descriptor word %d: %s not planned", spec.Index, spec.Array)
			}
			d.words[spec.Index] = p.Line()
		}
	}
	return d, nil
}

// UpdateSizes rewrites the three size-pair words for a new problem. Pointer
// and color words keep the values they were built with.
func (d *Descriptor) UpdateSizes(sizes model.ProblemSizes) error {
	if err := sizes.Validate(); err != nil {
		return err
	}
	for _, i := range sizeWords {
		d.words[i] = sizePair(sizes.Bundle(wordMap[i].Bundle))
	}
	return nil
}

// ConfigBits returns the configuration bits stored in word 1.
func (d *Descriptor) ConfigBits() uint32 {
	return d.configBits
}

// Word returns descriptor word i.
func (d *Descriptor) Word(i int) (uint64, error) {
	if i < 0 || i >= Words {
		return 0, errors.Wrapf(core.ErrInvalidLayout, "descriptor word %d out of range", i)
	}
	return d.words[i], nil
}

// Words returns a copy of all descriptor words.
func (d *Descriptor) Words() [Words]uint64 {
	return d.words
}

// Pointer returns the cacheline offset the descriptor holds for an array.
func (d *Descriptor) Pointer(id model.ArrayID) (uint64, bool) {
	for _, spec := range wordMap {
		if spec.Kind == KindPointer && spec.Array == id {
			return d.words[spec.Index], true
		}
	}
	return 0, false
}

// MarshalBinary returns the 320-byte little-endian image.
func (d *Descriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	d.put(buf)
	return buf, nil
}

// UnmarshalBinary loads a descriptor image. The configuration bits are
// recovered from word 1.
func (d *Descriptor) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return errors.Wrapf(core.ErrInvalidLayout, "descriptor image is %d bytes, want %d", len(data), Size)
	}
	for i := range d.words {
		d.words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	d.configBits = uint32(d.words[1] >> 32)
	return nil
}

// WriteTo stores the descriptor at the start of bank 0.
func (d *Descriptor) WriteTo(bank0 []byte) error {
	if len(bank0) < Size {
		return errors.Wrapf(core.ErrCapacityExceeded, "bank 0 has %d bytes, descriptor needs %d", len(bank0), Size)
	}
	d.put(bank0)
	return nil
}

func (d *Descriptor) put(buf []byte) {
	for i, w := range d.words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
}

// Format writes one line per descriptor word.
func (d *Descriptor) Format(w io.Writer) error {
	for _, spec := range wordMap {
		if _, err := fmt.Fprintf(w, "%2d  %016x  %s\n", spec.Index, d.words[spec.Index], spec); err != nil {
			return err
		}
	}
	return nil
}
