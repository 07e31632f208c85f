package telemetry

import (
	"fmt"
	"strings"
)

// SampleHeader is the column header matching FormatSample.
const SampleHeader = " count kiter read0 read1 read2 read3 writ0 writ1 writ2   solver       axpy1       axpy2       sparstition           sp.mode      trans.     | o/u-flow + err"

// FormatSample renders a sample as one fixed-width table row.
func FormatSample(s Sample) string {
	return fmt.Sprintf("%6d:%5d|%5d|%5d|%5d|%5d|%5d|%5d|%5d|| %-10s | %-9s | %-9s | %-19s | %-9s || %s 0x%02x | 0x%016x %13e %13e %13e %13e",
		s.DebugCount, s.Iteration,
		s.Reads[0], s.Reads[1], s.Reads[2], s.Reads[3],
		s.Writes[0], s.Writes[1], s.Writes[2],
		s.Solver, s.DotAxpy[0], s.DotAxpy[1], s.Partition, s.Mode,
		s.Transitions, uint8(s.Transitions), s.Raw[0],
		s.Norms[0], s.Norms[1], s.Norms[2], s.Norms[3])
}

// FormatOverflow renders the overflow counters aligned under OverflowHeader.
func FormatOverflow(s Sample) string {
	parts := make([]string, NumOverflow)
	for i, v := range s.Overflow {
		parts[i] = fmt.Sprintf("%5d", v)
	}
	return strings.Join(parts, " ")
}

// FormatRaw renders a line as hex words, most significant word first.
func FormatRaw(l Line) string {
	var sb strings.Builder
	sb.WriteString("0x")
	for i := LineWords - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%016x", l[i])
		if i > 0 {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
