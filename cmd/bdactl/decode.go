package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/telemetry"
)

type decoded struct {
	path string
	buf  *telemetry.Buffer
	res  *telemetry.Result
	err  error
}

func readBuffer(path string) (*telemetry.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	buf, err := telemetry.BufferFromBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return buf, nil
}

func newDecodeCmd(c *cli) *cobra.Command {
	var samples, raw bool
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode solve debug buffer dumps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options(cmd)
			if err != nil {
				return err
			}
			dec := telemetry.Decoder{
				Logger:      opts.Logger,
				PrintLegend: opts.PrintLegend,
				AbortCycles: opts.AbortCycles,
				KeepSamples: samples,
			}

			out := make([]decoded, len(args))
			var g errgroup.Group
			g.SetLimit(goruntime.NumCPU())
			for i, path := range args {
				g.Go(func() error {
					buf, err := readBuffer(path)
					if err != nil {
						return err
					}
					if buf.Lines() > opts.MaxDebugLines() {
						c.log.Warn("dump is larger than the kernel's debug buffer limit",
							"file", path, "lines", buf.Lines(), "limit", opts.MaxDebugLines())
					}
					res, err := dec.Decode(buf)
					out[i] = decoded{path: path, buf: buf, res: res, err: err}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			var fatal error
			for _, d := range out {
				c.report(d, samples, raw)
				if core.IsFatal(d.err) {
					fatal = errors.CombineErrors(fatal, errors.Wrapf(d.err, "%s", d.path))
				}
			}
			return fatal
		},
	}
	cmd.Flags().BoolVarP(&samples, "samples", "s", false, "print every sample as a table row")
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, "print every written line as hex")
	return cmd
}

func (c *cli) report(d decoded, samples, raw bool) {
	fmt.Fprintf(c.out, "%s:\n", d.path)
	if d.err != nil {
		fmt.Fprintf(c.out, "  error: %v\n", d.err)
	}
	if d.res == nil {
		return
	}
	res := d.res
	if !res.Diagnostics.SignatureMismatch {
		c.p.Fprintf(c.out, "  cycles %d, iterations %.1f, %d samples\n",
			res.Cycles, res.SolverIterations(), res.Written)
		fmt.Fprintf(c.out, "  norms %e -> %e\n", res.Norms[0], res.NewestNormValue())
	}
	for _, w := range res.Warnings() {
		fmt.Fprintf(c.out, "  warning: %v\n", w)
	}
	if samples && len(res.Samples) > 0 {
		fmt.Fprintln(c.out, telemetry.SampleHeader)
		for _, s := range res.Samples {
			fmt.Fprintln(c.out, telemetry.FormatSample(s))
		}
	}
	if raw {
		for i := 0; i < d.buf.Lines(); i++ {
			if l := d.buf.Line(i); !l.Poisoned() {
				fmt.Fprintf(c.out, "%5d %s\n", i, telemetry.FormatRaw(l))
			}
		}
	}
}
