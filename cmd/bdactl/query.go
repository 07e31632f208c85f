package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/telemetry"
)

func newQueryCmd(c *cli) *cobra.Command {
	var sizes, nonzeros []int
	cmd := &cobra.Command{
		Use:   "query FILE",
		Short: "Decode a kernel configuration query dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readBuffer(args[0])
			if err != nil {
				return err
			}
			caps, err := telemetry.DecodeQuery(buf, c.log)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(caps); err != nil {
				return err
			}
			if !cmd.Flags().Changed("sizes") {
				return nil
			}
			var nnz [3]int
			copy(nnz[:], nonzeros)
			ps, err := model.SizesFromProcessed(sizes, nnz)
			if err != nil {
				return err
			}
			if err := caps.Check(ps); err != nil {
				return err
			}
			c.p.Fprintf(c.out, "problem with %d rows fits the kernel\n", ps.A.Rows)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&sizes, "sizes", nil, "check a problem against the limits (same format as plan)")
	cmd.Flags().IntSliceVar(&nonzeros, "nnz", nil, "nonzero counts of A, L and U for --sizes")
	return cmd
}
