package telemetry

import (
	"strings"

	"github.com/sbl8/bdahost/core"
)

// Status line fields.
var (
	statusAbort         = core.MustField(0, 1)
	statusNoResults     = core.MustField(1, 1)
	statusWriteAfterEnd = core.MustField(2, 1)
	statusFifoFull      = core.MustField(3, 1)
	statusCycles        = core.MustField(0, 32)  // word 1
	statusSignature     = core.MustField(40, 24) // word 7
)

// Sample line fields outside word 0.
var (
	portField = [4]core.Field{
		core.MustField(0, 16),
		core.MustField(16, 16),
		core.MustField(32, 16),
		core.MustField(48, 16),
	}
	solverField     = core.MustField(48, 4) // word 2
	dotAxpyField    = [2]core.Field{core.MustField(56, 2), core.MustField(60, 2)}
	partitionField  = core.MustField(0, 3) // word 3
	modeField       = core.MustField(4, 2)
	transitionField = core.MustField(8, 7)
	dbgCountField   = core.MustField(16, 16)
	itrCountField   = core.MustField(32, 16)
)

const (
	// ReadPorts is the number of read port counters in a sample.
	ReadPorts = 4

	// WritePorts is the number of write port counters in a sample.
	WritePorts = 3

	// NumOverflow is the number of overflow indicators in word 0 of a sample.
	NumOverflow = 21
)

// OverflowField is one overflow or underflow indicator of a sample line.
type OverflowField struct {
	core.Field
	Name string // five-letter column name
	Help string
}

// OverflowFields lists the indicators in word-0 bit order.
var OverflowFields = [NumOverflow]OverflowField{
	{core.MustField(0, 1), "nnzvn", "reduce unit overflow (no. nnz values per column too large)"},
	{core.MustField(4, 1), "ilu0f", "ilu0 fifo overflow (unable to use ilu0 results as inputs during the next color)"},
	{core.MustField(8, 8), "mrge2", "overflows in the merge2 modules of the write_merge unit (1 bit per stage)"},
	{core.MustField(16, 4), "splt2", "overflows in the split2 modules of the write_merge unit (1 bit per stage)"},
	{core.MustField(20, 4), "wrmgf", "overflows in the output fifos of the write_merge unit"},
	{core.MustField(24, 4), "wuBRA", "overflows of the spmv results BRAMs in the write unit"},
	{core.MustField(32, 1), "rd0uf", "read fifo underflow for port 0"},
	{core.MustField(33, 1), "rd1uf", "read fifo underflow for port 1"},
	{core.MustField(34, 1), "rd2uf", "read fifo underflow for port 2"},
	{core.MustField(35, 1), "rd3uf", "read fifo underflow for port 3"},
	{core.MustField(36, 1), "rd4uf", "read fifo underflow for port 4"},
	{core.MustField(40, 1), "vf0of", "vector fifo overflow for vector 0"},
	{core.MustField(41, 1), "vf1of", "vector fifo overflow for vector 1"},
	{core.MustField(42, 1), "vf2of", "vector fifo overflow for vector 2"},
	{core.MustField(44, 1), "vf0uf", "vector fifo underflow for vector read 0"},
	{core.MustField(45, 1), "vf1uf", "vector fifo underflow for vector read 1"},
	{core.MustField(46, 1), "vf2uf", "vector fifo underflow for vector read 2"},
	{core.MustField(48, 5), "rdbef", "read requests on ports 0..4 given before previous read request finished"},
	{core.MustField(53, 3), "wrbef", "write requests on ports 0..2 given before previous write request finished"},
	{core.MustField(56, 4), "daiov", "overwritten dot_axpy inputs"},
	{core.MustField(60, 4), "spadr", "result on one of the spmvp outputs has a lower address than the done-up-to address"},
}

// Overflow indices used by callers that inject or inspect specific counters.
const (
	OverflowReduce = iota
	OverflowILU0Fifo
	OverflowMerge2
	OverflowSplit2
	OverflowWriteMergeFifo
	OverflowWriteBRAM
)

// Legend returns the human-readable description of every overflow column.
func Legend() string {
	var sb strings.Builder
	sb.WriteString("LEGEND\n")
	for _, f := range OverflowFields {
		sb.WriteString("  ")
		sb.WriteString(f.Name)
		sb.WriteString(strings.Repeat(".", 8))
		sb.WriteString(": ")
		sb.WriteString(f.Help)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// OverflowHeader is the column header matching FormatOverflow.
func OverflowHeader() string {
	names := make([]string, NumOverflow)
	for i, f := range OverflowFields {
		names[i] = f.Name
	}
	return strings.Join(names, " ")
}
