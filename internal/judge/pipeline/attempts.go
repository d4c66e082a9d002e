package pipeline

import "sync"

// attemptGate enforces a contest's attempt limit across concurrent judges
// of the same (contest, contestant, problem). Admission counts recorded
// attempts plus the ones still being judged; recording an attempt and
// giving up its reservation happen under the same key lock, so no
// admission ever sees an attempt twice or not at all.
type attemptGate struct {
	mu    sync.Mutex
	slots map[string]*attemptSlot
}

type attemptSlot struct {
	mu       sync.Mutex
	inflight int
	// refs counts callers holding mu or a reservation; guarded by the gate.
	refs int
}

func newAttemptGate() *attemptGate {
	return &attemptGate{slots: make(map[string]*attemptSlot)}
}

func attemptKey(contestID, contestantID, problemID string) string {
	return contestID + "\x00" + contestantID + "\x00" + problemID
}

func (g *attemptGate) ref(key string) *attemptSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[key]
	if !ok {
		slot = &attemptSlot{}
		g.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (g *attemptGate) unref(key string, slot *attemptSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, key)
	}
}

// reserve admits one more attempt when recorded attempts plus reservations
// stay under limit. A successful reservation must be settled exactly once.
func (g *attemptGate) reserve(key string, limit int, recorded func() (int, error)) (bool, error) {
	slot := g.ref(key)
	slot.mu.Lock()
	used, err := recorded()
	if err == nil && used+slot.inflight < limit {
		slot.inflight++
		slot.mu.Unlock()
		return true, nil
	}
	slot.mu.Unlock()
	g.unref(key, slot)
	return false, err
}

// settle runs record, which may be nil, and drops the reservation.
func (g *attemptGate) settle(key string, record func() error) error {
	g.mu.Lock()
	slot := g.slots[key]
	g.mu.Unlock()

	slot.mu.Lock()
	var err error
	if record != nil {
		err = record()
	}
	slot.inflight--
	slot.mu.Unlock()
	g.unref(key, slot)
	return err
}
