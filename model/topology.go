// Package model describes how the solver's input and working arrays are laid
// out across the accelerator's memory banks.
//
// The accelerator is built for one port configuration, which fixes how many
// independently addressed banks it reads and writes. Every array of the three
// matrix bundles (A and its ILU0 factors L and U) and every shared vector is
// assigned to one bank in a fixed declared order; the planner walks those
// declarations and produces cacheline-aligned byte offsets and bank sizes.
//
// Key data structures:
//   - Topology: the validated port configuration and its bank bindings
//   - ProblemSizes: row/value/color counts for the A, L and U bundles
//   - ArraySpec, BankDecl: declarative per-bank array lists
//   - Layout: planned placements, bank sizes and result offsets
package model

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sbl8/bdahost/core"
)

// PortsConfig selects the accelerator port configuration a kernel was built for.
type PortsConfig int

// Known port configurations. Only the 2r_3r3w variants are supported by this host.
const (
	Ports3r1w      PortsConfig = 0
	Ports4r3w      PortsConfig = 1
	Ports2r3r3w    PortsConfig = 2
	Ports3r3w      PortsConfig = 3
	Ports3r3wU200  PortsConfig = 4
	Ports4r1w      PortsConfig = 5
	Ports6r1w      PortsConfig = 6
	Ports2r3r3wDDR PortsConfig = 7
	Ports2r3r3wHBM PortsConfig = 8
	PortsHLS5r1w   PortsConfig = 10
)

var portsNames = map[PortsConfig]string{
	Ports3r1w:      "3r1w",
	Ports4r3w:      "4r3w",
	Ports2r3r3w:    "2r_3r3w",
	Ports3r3w:      "3r3w",
	Ports3r3wU200:  "3r3w_u200",
	Ports4r1w:      "4r1w",
	Ports6r1w:      "6r1w",
	Ports2r3r3wDDR: "2r_3r3w_ddr",
	Ports2r3r3wHBM: "2r_3r3w_hbm",
	PortsHLS5r1w:   "hls_5r1w",
}

func (p PortsConfig) String() string {
	if name, ok := portsNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ports(%d)", int(p))
}

// ParsePorts maps a configuration name such as "2r_3r3w_hbm" to its selector.
func ParsePorts(name string) (PortsConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range portsNames {
		if n == name {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownPorts, "%q", name)
}

// ErrUnknownPorts is returned by ParsePorts for names outside the known set.
var ErrUnknownPorts = errors.Mark(errors.New("unknown ports configuration"), core.ErrUnsupportedTopology)

const (
	// RWBanks is the number of data banks of the supported configuration.
	RWBanks = 5

	// SetupLines is the number of cachelines holding the setup descriptor.
	SetupLines = 5

	// SetupWords is the number of 64-bit words in the setup descriptor.
	SetupWords = SetupLines * core.CacheLineWords

	// KernelName is the device kernel built for the supported configuration.
	KernelName = "bicgstab_2r_3r3w_rtl_v1"
)

// MemoryKind is the type of device memory a bank is bound to.
type MemoryKind int

const (
	MemoryHBM MemoryKind = iota
	MemoryDDR
	MemoryPLRAM
)

func (k MemoryKind) String() string {
	switch k {
	case MemoryHBM:
		return "HBM"
	case MemoryDDR:
		return "DDR"
	case MemoryPLRAM:
		return "PLRAM"
	default:
		return "MEM?"
	}
}

// MemoryTarget is one device memory bank, e.g. HBM[4].
type MemoryTarget struct {
	Kind  MemoryKind
	Index int
}

func (m MemoryTarget) String() string {
	return fmt.Sprintf("%s[%d]", m.Kind, m.Index)
}

// TopologyIndex is the flat index of the target in the device's memory
// topology: HBM 0-31, DDR 32-33, PLRAM 34-36.
func (m MemoryTarget) TopologyIndex() int {
	switch m.Kind {
	case MemoryDDR:
		return 32 + m.Index
	case MemoryPLRAM:
		return 34 + m.Index
	default:
		return m.Index
	}
}

// Topology is a validated port configuration.
type Topology struct {
	Ports      PortsConfig
	Banks      int
	ReadPorts  int
	WritePorts int
}

// NewTopology returns the topology of a supported port configuration.
func NewTopology(ports PortsConfig) (Topology, error) {
	t := Topology{Ports: ports, Banks: RWBanks, ReadPorts: 5, WritePorts: 3}
	if err := t.Validate(); err != nil {
		return Topology{}, err
	}
	return t, nil
}

// Validate rejects anything but the single supported configuration. This is a
// static build-versus-host mismatch and is never worth retrying.
func (t Topology) Validate() error {
	switch t.Ports {
	case Ports2r3r3wDDR, Ports2r3r3wHBM:
	default:
		return errors.Wrapf(core.ErrUnsupportedTopology, "ports configuration %s", t.Ports)
	}
	if t.Banks != RWBanks {
		return errors.Wrapf(core.ErrUnsupportedTopology, "%s expects %d banks, got %d", t.Ports, RWBanks, t.Banks)
	}
	if t.ReadPorts != 5 || t.WritePorts != 3 {
		return errors.Wrapf(core.ErrUnsupportedTopology, "%s expects 5 read / 3 write ports, got %d/%d",
			t.Ports, t.ReadPorts, t.WritePorts)
	}
	return nil
}

// KernelArgBanks lists the data bank bound to each buffer argument of the
// kernel, starting at argument 3. The three read/write ports alias banks 2-4.
func (t Topology) KernelArgBanks() []int {
	return []int{0, 1, 2, 3, 4, 2, 3, 4}
}

// KernelArgDebug is the kernel argument index of the debug buffer.
const KernelArgDebug = 11

// MemoryBank returns the device memory a data bank is mapped to.
func (t Topology) MemoryBank(bank int) (MemoryTarget, error) {
	if bank < 0 || bank >= t.Banks {
		return MemoryTarget{}, errors.Wrapf(core.ErrUnsupportedTopology, "bank %d out of range", bank)
	}
	switch t.Ports {
	case Ports2r3r3wDDR:
		if bank < 2 {
			return MemoryTarget{Kind: MemoryDDR, Index: bank}, nil
		}
		return MemoryTarget{Kind: MemoryHBM, Index: (bank - 1) * 2}, nil
	case Ports2r3r3wHBM:
		return MemoryTarget{Kind: MemoryHBM, Index: (bank + 1) * 2}, nil
	}
	return MemoryTarget{}, errors.Wrapf(core.ErrUnsupportedTopology, "ports configuration %s", t.Ports)
}

// DebugMemory returns the device memory the debug buffer is mapped to.
func (t Topology) DebugMemory() MemoryTarget {
	return MemoryTarget{Kind: MemoryPLRAM, Index: 0}
}
