package main

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/sbl8/bdahost/telemetry"
)

type synthConfig struct {
	lines      int
	iterations int
	cycles     uint32
	aborted    bool
	overflow   bool
	query      bool
}

// synthesize builds a debug buffer the way a run of the kernel would leave
// it: a status line followed by one sample per half iteration, with the
// residual norm halving every step. Unused lines stay poisoned.
func synthesize(cfg synthConfig) (*telemetry.Buffer, error) {
	buf, err := telemetry.NewBuffer(cfg.lines)
	if err != nil {
		return nil, err
	}
	if cfg.query {
		return buf, buf.SetLine(0, telemetry.CapabilityLine(telemetry.Capabilities{
			XVectorElems: 1 << 16,
			MaxRows:      1 << 16,
			MaxColumns:   1 << 16,
			MaxColors:    256,
			MaxNnzPerRow: 64,
			MaxMatrix:    1 << 22,
			UseURAM:      true,
			DataWidth:    512,
			MultNum:      8,
			ReadPorts:    5,
			WritePorts:   3,
		}))
	}
	if err := buf.SetLine(0, telemetry.StatusLine(telemetry.Status{
		Aborted: cfg.aborted,
		Cycles:  cfg.cycles,
	})); err != nil {
		return nil, err
	}

	norms := [4]float64{1}
	for itr := 0; itr < cfg.iterations && itr+1 < buf.Lines(); itr++ {
		if itr > 0 {
			norms[itr%3+1] = math.Ldexp(1, -itr)
		}
		s := telemetry.Sample{
			DebugCount: uint16(itr + 1),
			Iteration:  uint16(itr),
			Norms:      norms,
			Solver:     telemetry.SolverState(itr % 13),
			Mode:       telemetry.PartitionMode(itr%3 + 1),
			Reads:      [telemetry.ReadPorts]uint16{uint16(itr), uint16(itr), uint16(itr), uint16(itr)},
			Writes:     [telemetry.WritePorts]uint16{uint16(itr), uint16(itr), uint16(itr)},
		}
		if cfg.overflow && itr == cfg.iterations-1 {
			s.Overflow[telemetry.OverflowILU0Fifo] = 1
		}
		l, err := telemetry.SampleLine(s)
		if err != nil {
			return nil, err
		}
		if err := buf.SetLine(itr+1, l); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func newSynthCmd(c *cli) *cobra.Command {
	var (
		cfg  synthConfig
		path string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic debug buffer dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("--out is required")
			}
			buf, err := synthesize(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return errors.Wrapf(err, "writing %s", path)
			}
			c.log.Info("wrote synthetic dump", "file", path, "lines", buf.Lines())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&path, "out", "o", "", "output file")
	f.IntVar(&cfg.lines, "lines", telemetry.DefaultLines, "debug buffer lines")
	f.IntVar(&cfg.iterations, "iterations", 10, "half iterations to record")
	f.Uint32Var(&cfg.cycles, "cycles", 100000, "reported cycle count")
	f.BoolVar(&cfg.aborted, "aborted", false, "set the abort flag")
	f.BoolVar(&cfg.overflow, "overflow", false, "flag an overflow in the last sample")
	f.BoolVar(&cfg.query, "query", false, "write a configuration query response instead")
	return cmd
}
