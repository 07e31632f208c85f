// Command bdactl inspects the host side of the BiCGStab accelerator: it
// plans bank layouts, decodes debug buffer dumps and kernel configuration
// queries, and writes synthetic dumps for testing.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sbl8/bdahost/model"
	"github.com/sbl8/bdahost/runtime"
)

const version = "1.0.0"

type cli struct {
	optionsPath string
	ports       string
	abortCycles uint64
	legend      bool
	emulation   bool
	verbose     bool
	quiet       bool

	out io.Writer
	err io.Writer
	log *slog.Logger
	p   *message.Printer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{
		out: stdout,
		err: stderr,
		p:   message.NewPrinter(language.English),
	}
	root := &cobra.Command{
		Use:           "bdactl",
		Short:         "Host tooling for the BiCGStab accelerator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			switch {
			case c.verbose:
				level = slog.LevelDebug
			case c.quiet:
				level = slog.LevelWarn
			}
			c.log = slog.New(slog.NewTextHandler(c.err, &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.optionsPath, "options", "", "JSON options file")
	pf.StringVar(&c.ports, "ports", model.Ports2r3r3wHBM.String(), "kernel port configuration")
	pf.Uint64Var(&c.abortCycles, "abort-cycles", 0, "cycle budget the kernel ran with")
	pf.BoolVar(&c.legend, "legend", false, "print the overflow legend on the first overflow")
	pf.BoolVar(&c.emulation, "emulation", false, "apply the emulator's debug buffer limit")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log every sample and raw line")
	pf.BoolVarP(&c.quiet, "quiet", "q", false, "only log warnings and errors")

	root.AddCommand(
		newPlanCmd(c),
		newDecodeCmd(c),
		newQueryCmd(c),
		newSynthCmd(c),
		newVersionCmd(c),
	)
	return root
}

// options merges the options file with the flags set on the command line.
func (c *cli) options(cmd *cobra.Command) (runtime.Options, error) {
	opts := runtime.DefaultOptions()
	if c.optionsPath != "" {
		var err error
		if opts, err = runtime.LoadOptions(c.optionsPath); err != nil {
			return opts, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("ports") {
		opts.Ports = c.ports
	}
	if flags.Changed("abort-cycles") {
		opts.AbortCycles = c.abortCycles
	}
	if flags.Changed("legend") {
		opts.PrintLegend = c.legend
	}
	if flags.Changed("emulation") {
		opts.Emulation = c.emulation
	}
	opts.Logger = c.log
	return opts, nil
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.out, "bdactl v%s\n", version)
			fmt.Fprintf(c.out, "kernel %s\n", model.KernelName)
			fmt.Fprintf(c.out, "Built with Go %s\n", goruntime.Version())
		},
	}
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bdactl: %v\n", err)
		os.Exit(1)
	}
}
