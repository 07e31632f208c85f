// Package bdahost is the host side of a BiCGStab solver accelerator.
//
// The accelerator reads a sparse linear system from five memory banks and
// reports its progress through a circular buffer of 64-byte debug lines.
// This module plans where every solver array lives in those banks, encodes
// the setup descriptor and kernel arguments the device starts from, and
// decodes what the device writes back.
//
// # Solve cycle
//
//	opts := runtime.DefaultOptions()
//	s, err := runtime.NewSession(opts, maxSizes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Load(sizes, system); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := s.Solve(ctx, device)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	x, r, err := s.ResultsFor(res)
//
// # Package Structure
//
//   - core: alignment math, bit fields and the error taxonomy
//   - model: port topologies, solver arrays and the bank layout planner
//   - setup: setup descriptor and kernel argument words
//   - telemetry: debug buffer, sample decoder and configuration queries
//   - hostmem: page-aligned host allocation
//   - runtime: sessions, data loading and the device interface
//   - cmd/bdactl: layout planning and dump inspection from the shell
package bdahost
