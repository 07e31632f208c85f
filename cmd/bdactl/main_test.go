package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbl8/bdahost/core"
	"github.com/sbl8/bdahost/telemetry"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestSynthDecode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.bin")
	aborted := filepath.Join(dir, "aborted.bin")

	_, err := run(t, "synth", "-q", "-o", ok, "--lines", "32", "--iterations", "7", "--cycles", "1234567", "--overflow")
	require.NoError(t, err)
	_, err = run(t, "synth", "-q", "-o", aborted, "--lines", "16", "--aborted")
	require.NoError(t, err)

	out, err := run(t, "decode", "-q", "--samples", ok)
	require.NoError(t, err)
	require.Contains(t, out, "cycles 1,234,567, iterations 3.5, 7 samples")
	require.Contains(t, out, "warning: "+core.ErrOverflowDetected.Error())
	require.Contains(t, out, telemetry.SampleHeader)

	out, err = run(t, "decode", "-q", ok, aborted)
	require.ErrorIs(t, err, core.ErrAbortedExecution)
	// Both files are reported, in argument order.
	require.Less(t, strings.Index(out, ok+":"), strings.Index(out, aborted+":"))
}

func TestSynthDecodeRaw(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dump.bin")
	_, err := run(t, "synth", "-q", "-o", path, "--lines", "8", "--iterations", "2")
	require.NoError(t, err)

	out, err := run(t, "decode", "-q", "--raw", path)
	require.NoError(t, err)
	// Status line plus two samples.
	require.Equal(t, 3, strings.Count(out, " 0x"))
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	_, err := run(t, "decode", "-q", filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	_, err = run(t, "decode")
	require.Error(t, err)
}

func TestQuery(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "query.bin")
	_, err := run(t, "synth", "-q", "-o", path, "--lines", "2", "--query")
	require.NoError(t, err)

	out, err := run(t, "query", "-q", path)
	require.NoError(t, err)
	var caps telemetry.Capabilities
	require.NoError(t, json.Unmarshal([]byte(out), &caps))
	require.Equal(t, uint32(1<<16), caps.MaxRows)
	require.True(t, caps.UseURAM)

	_, err = run(t, "query", "-q", path, "--sizes", "70000,1,1,1,1,1,1,1,1,1,1,0,1,1,1,1,1,0", "--nnz", "1,1,1")
	require.ErrorIs(t, err, core.ErrCapacityExceeded)

	// Dumps are whole lines.
	short := filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, os.WriteFile(short, make([]byte, 10), 0o600))
	_, err = run(t, "query", "-q", short)
	require.Error(t, err)
}

func TestPlan(t *testing.T) {
	t.Parallel()
	out, err := run(t, "plan", "-q")
	require.NoError(t, err)
	require.Contains(t, out, "2r_3r3w_hbm, 5 banks")
	require.Contains(t, out, "bank 0 -> HBM[2]")
	require.Contains(t, out, "kernel args:")

	out, err = run(t, "plan", "-q", "--ports", "2r_3r3w_ddr")
	require.NoError(t, err)
	require.Contains(t, out, "bank 0 -> DDR[0]")

	_, err = run(t, "plan", "-q", "--ports", "4r3w")
	require.ErrorIs(t, err, core.ErrUnsupportedTopology)
	_, err = run(t, "plan", "-q", "--sizes", "1,2,3")
	require.ErrorIs(t, err, core.ErrInvalidSizes)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "bdactl v"+version)
}
