package telemetry

import "fmt"

const unknownState = "*UNKNOWN*"

// SolverState is the main solver state machine's encoded state.
type SolverState uint8

const (
	SolverIdle SolverState = iota
	SolverInitRead
	SolverReadX
	SolverSpMV
	SolverWaitWrite
	SolverILU0Forward
	SolverILU0Backward
	SolverCalcP
	SolverDot1
	SolverDot2
	SolverAxpy1
	SolverAxpy2
	SolverWaitDebug
)

var solverNames = [...]string{
	"idle", "init_read", "read_x", "SpMV", "wait_write", "ILU0_L_fs", "ILU0_U_bs",
	"calc_p", "dot1", "dot2", "axpy1", "axpy2", "wait_debug",
}

func (s SolverState) String() string {
	if int(s) < len(solverNames) {
		return solverNames[s]
	}
	return unknownState
}

// DotAxpyState is the state of one dot product / axpy unit.
type DotAxpyState uint8

const (
	DotAxpyIdle DotAxpyState = iota
	DotAxpyDot
	DotAxpyAxpy
)

func (s DotAxpyState) String() string {
	switch s {
	case DotAxpyIdle:
		return "idle"
	case DotAxpyDot:
		return "dot"
	case DotAxpyAxpy:
		return "axpy"
	}
	return unknownState
}

// PartitionState is the sparse partition unit's state.
type PartitionState uint8

const (
	PartitionIdle PartitionState = iota
	PartitionWaitSizesRead
	PartitionWaitFirstVecRead
	PartitionWaitTransfer
	PartitionWaitPVectorRead
	PartitionRunning
	PartitionInitU
	PartitionFinished
)

var partitionNames = [...]string{
	"idle", "wait_sizes_read", "wait_first_vec_read", "wait_transfer",
	"wait_P_vector_read", "running", "init_U", "finished",
}

func (s PartitionState) String() string {
	if int(s) < len(partitionNames) {
		return partitionNames[s]
	}
	return unknownState
}

// PartitionMode is what the partition unit is currently computing.
type PartitionMode uint8

const (
	ModeForwardSubst  PartitionMode = 1
	ModeBackwardSubst PartitionMode = 2
	ModeSpMV          PartitionMode = 3
)

func (m PartitionMode) String() string {
	switch m {
	case ModeForwardSubst:
		return "fwd_subst"
	case ModeBackwardSubst:
		return "bck_subst"
	case ModeSpMV:
		return "SpMV"
	}
	return unknownState
}

// TransitionMask holds the 7 state-change bits of a sample.
type TransitionMask uint8

// String renders bit 6 first, 'x' for set and '.' for clear.
func (m TransitionMask) String() string {
	var b [7]byte
	for i := 0; i < 7; i++ {
		if m&(1<<i) != 0 {
			b[6-i] = 'x'
		} else {
			b[6-i] = '.'
		}
	}
	return string(b[:])
}

// GoString is used by %#v in debug dumps.
func (m TransitionMask) GoString() string {
	return fmt.Sprintf("0x%02x", uint8(m))
}
