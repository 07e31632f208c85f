package telemetry

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/model"
)

var (
	capXVectorElems   = core.MustField(0, 32)  // word 0
	capMaxRows        = core.MustField(32, 32) // word 0
	capMaxColumns     = core.MustField(0, 32)  // word 1
	capMaxColors      = core.MustField(32, 32) // word 1
	capMaxNnzPerRow   = core.MustField(0, 16)  // word 2
	capMaxMatrix      = core.MustField(16, 32) // word 2
	capResetCycles    = core.MustField(0, 16)  // word 5
	capResetSettle    = core.MustField(16, 16) // word 5
	capUseURAM        = core.MustField(0, 1)   // word 6
	capWriteILU0      = core.MustField(1, 1)
	capDataWidth      = core.MustField(16, 16)
	capXVectorLatency = core.MustField(32, 8)
	capAddLatency     = core.MustField(40, 8)
	capMultLatency    = core.MustField(48, 8)
	capMultNum        = core.MustField(56, 8)
	capReadPorts      = core.MustField(0, 4) // word 7, below the signature
	capWritePorts     = core.MustField(4, 4)
)

// Capabilities are the build-time limits and configuration a kernel reports
// in response to a configuration query.
type Capabilities struct {
	XVectorElems   uint32 `json:"x_vector_elem"`
	MaxRows        uint32 `json:"max_row_size"`
	MaxColumns     uint32 `json:"max_column_size"`
	MaxColors      uint32 `json:"max_colors_size"`
	MaxNnzPerRow   uint16 `json:"max_nnzs_per_row"`
	MaxMatrix      uint32 `json:"max_matrix_size"`
	UseURAM        bool   `json:"use_uram"`
	WriteILU0      bool   `json:"write_ilu0_results"`
	DataWidth      uint16 `json:"dma_data_width"`
	MultNum        uint8  `json:"mult_num"`
	XVectorLatency uint8  `json:"x_vector_latency"`
	AddLatency     uint8  `json:"add_latency"`
	MultLatency    uint8  `json:"mult_latency"`
	ReadPorts      uint8  `json:"num_read_ports"`
	WritePorts     uint8  `json:"num_write_ports"`
	ResetCycles    uint16 `json:"reset_cycles"`
	ResetSettle    uint16 `json:"reset_settle"`
}

// DecodeQuery decodes the configuration record in line 0 of a query
// response. A poisoned first word means the kernel answered without any
// configuration data and yields ErrMissingConfig.
func DecodeQuery(buf *Buffer, logger *slog.Logger) (*Capabilities, error) {
	if buf == nil || buf.Lines() == 0 {
		return nil, errors.Wrap(core.ErrInvalidSizes, "empty debug buffer")
	}
	l := buf.Line(0)
	if sig := statusSignature.Get(l[7]); sig != Signature {
		return nil, errors.Wrapf(core.ErrSignatureMismatch, "got %#06x", sig)
	}
	if l.Poisoned() {
		return nil, errors.Wrap(core.ErrMissingConfig, "kernel did not return valid configuration data")
	}
	c := &Capabilities{
		XVectorElems:   uint32(capXVectorElems.Get(l[0])),
		MaxRows:        uint32(capMaxRows.Get(l[0])),
		MaxColumns:     uint32(capMaxColumns.Get(l[1])),
		MaxColors:      uint32(capMaxColors.Get(l[1])),
		MaxNnzPerRow:   uint16(capMaxNnzPerRow.Get(l[2])),
		MaxMatrix:      uint32(capMaxMatrix.Get(l[2])),
		ResetCycles:    uint16(capResetCycles.Get(l[5])),
		ResetSettle:    uint16(capResetSettle.Get(l[5])),
		UseURAM:        capUseURAM.Flag(l[6]),
		WriteILU0:      capWriteILU0.Flag(l[6]),
		DataWidth:      uint16(capDataWidth.Get(l[6])),
		XVectorLatency: uint8(capXVectorLatency.Get(l[6])),
		AddLatency:     uint8(capAddLatency.Get(l[6])),
		MultLatency:    uint8(capMultLatency.Get(l[6])),
		MultNum:        uint8(capMultNum.Get(l[6])),
		ReadPorts:      uint8(capReadPorts.Get(l[7])),
		WritePorts:     uint8(capWritePorts.Get(l[7])),
	}
	if logger != nil {
		logger.Info("kernel limits/configuration",
			"x_vector_elem", c.XVectorElems,
			"max_row_size", c.MaxRows,
			"max_column_size", c.MaxColumns,
			"max_colors_size", c.MaxColors,
			"max_nnzs_per_row", c.MaxNnzPerRow,
			"max_matrix_size", c.MaxMatrix,
			"use_uram", c.UseURAM,
			"write_ilu0_results", c.WriteILU0,
			"dma_data_width", c.DataWidth,
			"mult_num", c.MultNum,
			"read_ports", c.ReadPorts,
			"write_ports", c.WritePorts)
	}
	return c, nil
}

// CapabilityLine encodes c into a line 0 that DecodeQuery accepts. Words
// 3 and 4 are unused by the device and left zero.
func CapabilityLine(c Capabilities) Line {
	var l Line
	l[0] = capXVectorElems.Set(l[0], uint64(c.XVectorElems))
	l[0] = capMaxRows.Set(l[0], uint64(c.MaxRows))
	l[1] = capMaxColumns.Set(l[1], uint64(c.MaxColumns))
	l[1] = capMaxColors.Set(l[1], uint64(c.MaxColors))
	l[2] = capMaxNnzPerRow.Set(l[2], uint64(c.MaxNnzPerRow))
	l[2] = capMaxMatrix.Set(l[2], uint64(c.MaxMatrix))
	l[5] = capResetCycles.Set(l[5], uint64(c.ResetCycles))
	l[5] = capResetSettle.Set(l[5], uint64(c.ResetSettle))
	l[6] = capUseURAM.Set(l[6], flag(c.UseURAM))
	l[6] = capWriteILU0.Set(l[6], flag(c.WriteILU0))
	l[6] = capDataWidth.Set(l[6], uint64(c.DataWidth))
	l[6] = capXVectorLatency.Set(l[6], uint64(c.XVectorLatency))
	l[6] = capAddLatency.Set(l[6], uint64(c.AddLatency))
	l[6] = capMultLatency.Set(l[6], uint64(c.MultLatency))
	l[6] = capMultNum.Set(l[6], uint64(c.MultNum))
	l[7] = capReadPorts.Set(l[7], uint64(c.ReadPorts))
	l[7] = capWritePorts.Set(l[7], uint64(c.WritePorts))
	l[7] = statusSignature.Set(l[7], Signature)
	return l
}

// Check rejects problems that exceed the kernel's limits. Zero limits are
// treated as unreported and skipped.
func (c *Capabilities) Check(sizes model.ProblemSizes) error {
	limits := []struct {
		name  string
		value int
		limit uint32
	}{
		{"rows", sizes.A.Rows, c.MaxRows},
		{"x vector elements", sizes.A.Rows, c.XVectorElems},
		{"columns", sizes.A.Columns, c.MaxColumns},
		{"colors", sizes.A.Colors, c.MaxColors},
		{"matrix size", sizes.A.Nonzeros, c.MaxMatrix},
	}
	for _, l := range limits {
		if l.limit != 0 && l.value > int(l.limit) {
			return errors.Wrapf(core.ErrCapacityExceeded, "%s %d exceeds kernel limit %d", l.name, l.value, l.limit)
		}
	}
	return nil
}
