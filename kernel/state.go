package kernel

// Bitmask is one of the five scheduler state vectors (spec.md §3):
// NEXT, READY, PENDING, RUNNING, EJECTED. Bit position 31-taskNum holds
// task taskNum's membership, so task 0 sits at the MSB, the
// convention that makes a plain count-leading-zeros scan visit task 0
// first and, among a tie, pick the lowest task number.
type Bitmask uint32

// bitFor returns the single-bit mask for taskNum.
func bitFor(taskNum uint8) Bitmask {
	return 1 << (31 - Bitmask(taskNum))
}

// Set adds taskNum to the set.
func (m *Bitmask) Set(taskNum uint8) {
	*m |= bitFor(taskNum)
}

// Clear removes taskNum from the set.
func (m *Bitmask) Clear(taskNum uint8) {
	*m &^= bitFor(taskNum)
}

// Test reports whether taskNum is a member.
func (m Bitmask) Test(taskNum uint8) bool {
	return m&bitFor(taskNum) != 0
}

// IsEmpty reports whether no task is a member.
func (m Bitmask) IsEmpty() bool {
	return m == 0
}

// PopCount returns the number of member tasks.
func (m Bitmask) PopCount() int {
	count := 0
	for x := uint32(m); x != 0; x &= x - 1 {
		count++
	}
	return count
}

// clzScanner drives the highest-bit-first (task-0-first) iteration the
// wake scan, the preemption decision, and yield all perform. It reads a
// working copy so the caller can clear the live bit independently
// without disturbing the scan in progress, see spec.md §4.3's note
// that the wake scan mutates the live PENDING bit inside the same loop
// that walks the working copy.
type clzScanner struct {
	remaining Bitmask
	clz       func(uint32) uint32
}

func newClzScanner(mask Bitmask, clz func(uint32) uint32) clzScanner {
	return clzScanner{remaining: mask, clz: clz}
}

// next returns the next task number in highest-bit-first order and
// clears it from the working copy. ok is false once the mask is empty.
func (c *clzScanner) next() (taskNum uint8, ok bool) {
	if c.remaining == 0 {
		return 0, false
	}
	lz := c.clz(uint32(c.remaining))
	taskNum = uint8(lz)
	c.remaining &^= bitFor(taskNum)
	return taskNum, true
}

// singleton returns the sole task number set in m, or ok=false if m
// does not hold exactly one bit. Used to decode NEXT, RUNNING, and
// EJECTED, each of which carries at most one member outside of
// transient moments inside the interrupt handlers (spec.md §3).
func singleton(m Bitmask, clz func(uint32) uint32) (taskNum uint8, ok bool) {
	if m == 0 || m&(m-1) != 0 {
		return 0, false
	}
	return uint8(clz(uint32(m))), true
}

// StateVectors groups the five bitmasks the scheduler maintains. The
// zero value is all-empty, matching an unstarted scheduler.
type StateVectors struct {
	Next    Bitmask
	Ready   Bitmask
	Pending Bitmask
	Running Bitmask
	Ejected Bitmask
}

// snapshot returns a copy, used by tests to assert on state without
// racing the scheduler's own mutations.
func (s StateVectors) snapshot() StateVectors {
	return s
}
