// Package ports implements the deterministic, conflict-avoiding
// port-range allocator used to assign each concurrent work order its own
// block of TCP ports for dev servers started inside its sandbox.
package ports

import (
	"fmt"
	"hash/fnv"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/agentworkd/orchestrator/internal/woerrors"
)

const (
	// BasePort is the first port of slot 0.
	BasePort = 9000
	// RangeSize is the number of ports per slot.
	RangeSize = 10
	// SlotCount is the number of slots the port space is divided into.
	SlotCount = 20
	// minFreePorts is the minimum number of free ports in a range for it
	// to be accepted.
	minFreePorts = RangeSize / 2
)

// Range describes one allocated block of ports.
type Range struct {
	StartPort      int
	EndPort        int
	AvailablePorts []int
}

// initialSlot derives the deterministic starting slot for an id: the
// first up-to-8 alphanumeric characters parsed as base-36, mod
// SlotCount, falling back to an FNV hash of the id if no alphanumeric
// prefix is present.
func initialSlot(id string) int {
	var prefix strings.Builder
	for _, r := range id {
		if prefix.Len() >= 8 {
			break
		}
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			prefix.WriteRune(r)
		}
	}

	if prefix.Len() > 0 {
		if v, err := strconv.ParseInt(prefix.String(), 36, 64); err == nil {
			return int(v % SlotCount)
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % SlotCount)
}

// portBinder probes whether a TCP port is free on localhost. Extracted
// as a variable so tests can substitute a fake without binding real
// sockets.
var portBinder = func(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FindAvailableRange finds a contiguous 10-port range for workOrderID,
// starting at its deterministic slot and trying up to SlotCount
// candidates in modular order. The first range with at least half its
// ports free is accepted.
func FindAvailableRange(workOrderID string) (Range, error) {
	start := initialSlot(workOrderID)

	for i := 0; i < SlotCount; i++ {
		slot := (start + i) % SlotCount
		rangeStart := BasePort + slot*RangeSize
		rangeEnd := rangeStart + RangeSize - 1

		var free []int
		for p := rangeStart; p <= rangeEnd; p++ {
			if portBinder(p) {
				free = append(free, p)
			}
		}

		if len(free) >= minFreePorts {
			return Range{StartPort: rangeStart, EndPort: rangeEnd, AvailablePorts: free}, nil
		}
	}

	return Range{}, &woerrors.SandboxSetupError{Reason: fmt.Sprintf("no port range available for %s", workOrderID)}
}

// WritePortsEnvFile writes the ".ports.env" key-value file at
// worktreeRoot/.ports.env, exporting PORT_RANGE_START, PORT_RANGE_END,
// PORT_RANGE_SIZE, PORT_0..PORT_N for each available port, plus the
// backward-compatible BACKEND_PORT, FRONTEND_PORT, and
// VITE_BACKEND_URL keys.
func WritePortsEnvFile(worktreeRoot string, r Range) error {
	var b strings.Builder
	fmt.Fprintf(&b, "PORT_RANGE_START=%d\n", r.StartPort)
	fmt.Fprintf(&b, "PORT_RANGE_END=%d\n", r.EndPort)
	fmt.Fprintf(&b, "PORT_RANGE_SIZE=%d\n", RangeSize)
	for i, p := range r.AvailablePorts {
		fmt.Fprintf(&b, "PORT_%d=%d\n", i, p)
	}
	if len(r.AvailablePorts) > 0 {
		fmt.Fprintf(&b, "BACKEND_PORT=%d\n", r.AvailablePorts[0])
		fmt.Fprintf(&b, "VITE_BACKEND_URL=http://localhost:%d\n", r.AvailablePorts[0])
	}
	if len(r.AvailablePorts) > 1 {
		fmt.Fprintf(&b, "FRONTEND_PORT=%d\n", r.AvailablePorts[1])
	}

	path := worktreeRoot + "/.ports.env"
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// AllocateAndWrite is a convenience wrapper combining FindAvailableRange
// and WritePortsEnvFile, used by the worktree sandbox backend.
func AllocateAndWrite(workOrderID, worktreeRoot string) (Range, error) {
	r, err := FindAvailableRange(workOrderID)
	if err != nil {
		return Range{}, err
	}
	if err := WritePortsEnvFile(worktreeRoot, r); err != nil {
		return Range{}, &woerrors.SandboxSetupError{Reason: "writing .ports.env", Err: err}
	}
	return r, nil
}
