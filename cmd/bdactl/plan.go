package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/setup"
	"github.com/sbl8/bdahost/telemetry"
)

// exampleSizes is a small three-color problem used when no sizes are given.
var exampleSizes = []int{
	1024, 4096, 3, 1024, 1024, 1024,
	1024, 2048, 3, 1024, 512, 0,
	1024, 2048, 3, 1024, 512, 0,
}

func newPlanCmd(c *cli) *cobra.Command {
	var (
		sizes    []int
		nonzeros []int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the bank layout and setup descriptor for a problem",
		Long: "plan lays out the solver arrays across the memory banks for the given\n" +
			"problem sizes and prints the placement table, the setup descriptor and\n" +
			"the kernel arguments a solve would be started with.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := c.options(cmd)
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			if len(nonzeros) != 3 {
				return errors.Newf("--nnz needs 3 values, got %d", len(nonzeros))
			}
			ps, err := model.SizesFromProcessed(sizes, [3]int{nonzeros[0], nonzeros[1], nonzeros[2]})
			if err != nil {
				return err
			}
			topo, err := opts.Topology()
			if err != nil {
				return err
			}
			layout, err := model.PlanProblem(topo, ps)
			if err != nil {
				return err
			}
			desc, err := setup.Build(ps, opts.ConfigBits, layout)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "%s, %d banks\n", topo.Ports, topo.Banks)
			for b := 0; b < topo.Banks; b++ {
				mem, err := topo.MemoryBank(b)
				if err != nil {
					return err
				}
				c.p.Fprintf(c.out, "  bank %d -> %s (%d bytes)\n", b, mem, layout.BankSize(b))
			}
			c.p.Fprintf(c.out, "  debug -> %s (%d bytes)\n\n", topo.DebugMemory(), opts.DebugLines*telemetry.LineBytes)
			if err := layout.Format(c.out); err != nil {
				return err
			}
			fmt.Fprintln(c.out)
			if err := desc.Format(c.out); err != nil {
				return err
			}
			args := opts.KernelParams().Encode()
			fmt.Fprintf(c.out, "\nkernel args: %#016x %#016x %#016x\n", args[0], args[1], args[2])
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&sizes, "sizes", exampleSizes,
		"rows,values,colors,columns,newrows,blkdiag for A, L and U")
	cmd.Flags().IntSliceVar(&nonzeros, "nnz", []int{4096, 2048, 2048}, "nonzero counts of A, L and U")
	return cmd
}
