//go:build linux || darwin

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// WasmPageSize is 64KiB, the unit linear memory is sized and grown in.
const WasmPageSize = 65536

// GuardedMemory backs a WebAssembly linear memory with a single large virtual reservation: the
// committed region (Min..currently-grown pages) is readable/writable, and everything up to the
// reservation's ceiling is mapped PROT_NONE, so any i32-offset access that would otherwise run past
// the committed pages faults instead of touching unrelated process memory. The fault, in turn, is
// translated into a Trap by the interpreter's bounds check before any native SIGSEGV handler would
// ever see it — the guard region is a second line of defense, not the only one.
type GuardedMemory struct {
	// reservation is the full mmap'd range, PROT_NONE beyond the committed prefix.
	reservation []byte
	// committedBytes is the length of the prefix currently mapped PROT_READ|PROT_WRITE.
	committedBytes int
}

// guardSizeBytes reserves 8GiB beyond the maximum addressable linear memory, matching spec.md's
// instruction that the guard region be "≥ 8 GiB on 64-bit hosts" so that no 32-bit offset plus a
// bounded access width can ever reach unmapped-but-unreserved address space.
const guardSizeBytes = 8 << 30

// NewGuardedMemory reserves enough address space for maxPages (or, if unbounded, the implementation's
// ceiling) plus the guard region, and commits the first minPages as read-write.
func NewGuardedMemory(minPages, maxPages uint32) (*GuardedMemory, error) {
	reserveBytes := int64(maxPages) * WasmPageSize
	total := reserveBytes + guardSizeBytes
	b, err := unix.Mmap(-1, 0, int(total), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap guarded memory reservation of %d bytes: %w", total, err)
	}
	g := &GuardedMemory{reservation: b}
	if minPages > 0 {
		if err := g.commit(int64(minPages) * WasmPageSize); err != nil {
			_ = unix.Munmap(b)
			return nil, err
		}
	}
	return g, nil
}

// Bytes returns the currently committed (readable/writable) prefix of the reservation.
func (g *GuardedMemory) Bytes() []byte { return g.reservation[:g.committedBytes] }

// Grow extends the committed prefix to newPages worth of bytes, mprotecting the newly committed
// range to PROT_READ|PROT_WRITE. It does not move the underlying allocation, so pointers/slices into
// Bytes() taken before Grow become stale only in the sense that their length is now out of date, never
// because the backing array relocated.
func (g *GuardedMemory) Grow(newPages uint32) error {
	return g.commit(int64(newPages) * WasmPageSize)
}

func (g *GuardedMemory) commit(newCommittedBytes int64) error {
	if newCommittedBytes < int64(g.committedBytes) {
		return fmt.Errorf("cannot shrink guarded memory from %d to %d bytes", g.committedBytes, newCommittedBytes)
	}
	if int(newCommittedBytes) > len(g.reservation)-guardSizeBytes {
		return fmt.Errorf("requested %d bytes exceeds the reservation's maximum of %d", newCommittedBytes, len(g.reservation)-guardSizeBytes)
	}
	if newCommittedBytes == int64(g.committedBytes) {
		return nil
	}
	region := g.reservation[g.committedBytes:newCommittedBytes]
	if len(region) > 0 {
		if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return fmt.Errorf("mprotect %d bytes read-write: %w", len(region), err)
		}
	}
	g.committedBytes = int(newCommittedBytes)
	return nil
}

// Close releases the entire reservation, including the guard region.
func (g *GuardedMemory) Close() error {
	if g.reservation == nil {
		return nil
	}
	err := unix.Munmap(g.reservation)
	g.reservation = nil
	g.committedBytes = 0
	return err
}
