package routing

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// leadLockStripes is the number of mutex stripes backing the per-lead
// lock (spec §5: "Routing decisions for a given lead are serialized
// via a per-lead lock ... held only for the scoring-to-reservation
// step"). A striped lock avoids an unbounded map of mutexes while
// still serializing same-lead routing attempts.
const leadLockStripes = 256

type leadLockTable struct {
	stripes [leadLockStripes]sync.Mutex
}

func newLeadLockTable() *leadLockTable {
	return &leadLockTable{}
}

func (t *leadLockTable) lock(leadID uuid.UUID) func() {
	h := fnv.New32a()
	_, _ = h.Write(leadID[:])
	idx := h.Sum32() % leadLockStripes
	t.stripes[idx].Lock()
	return t.stripes[idx].Unlock
}
