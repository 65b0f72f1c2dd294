package ledger

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// leadLockStripes mirrors internal/routing's striping: the ledger is
// append-only but writes are serialized per lead id (spec §5 "The
// revenue ledger is append-only; writes are serialized per lead id").
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
