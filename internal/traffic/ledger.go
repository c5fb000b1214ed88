package traffic

// ledgerKey identifies one (track, kind) pair in the deduplication ledger.
type ledgerKey struct {
	trackID string
	kind    ViolationKind
}

// Ledger is the single gate every ViolationEvent passes before being
// reported. It suppresses repeat events for the same (track id, kind) pair
// and guarantees the emitted sequence is non-decreasing in frame index.
// One instance per stream; discarded when the stream ends.
type Ledger struct {
	emitted    map[ledgerKey]bool
	events     []ViolationEvent
	lastFrame  int64
	suppressed int64
}

// NewLedger creates an empty ledger for a new stream.
func NewLedger() *Ledger {
	return &Ledger{emitted: make(map[ledgerKey]bool)}
}

// Admit records the event unless a (track, kind) event already exists or the
// event would break frame ordering. True means the caller should forward the
// event; false means it was suppressed.
func (l *Ledger) Admit(event ViolationEvent) bool {
	key := ledgerKey{trackID: event.TrackID, kind: event.Kind}
	if l.emitted[key] || event.FrameIndex < l.lastFrame {
		l.suppressed++
		return false
	}
	l.emitted[key] = true
	l.lastFrame = event.FrameIndex
	l.events = append(l.events, event)
	return true
}

// Events returns a copy of the emitted sequence, in emission order.
func (l *Ledger) Events() []ViolationEvent {
	out := make([]ViolationEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Count returns the number of emitted events.
func (l *Ledger) Count() int {
	return len(l.events)
}

// Suppressed returns how many duplicate or out-of-order events were dropped.
func (l *Ledger) Suppressed() int64 {
	return l.suppressed
}

// CountByKind returns emitted event counts grouped by violation kind.
func (l *Ledger) CountByKind() map[ViolationKind]int {
	counts := make(map[ViolationKind]int, 4)
	for _, e := range l.events {
		counts[e.Kind]++
	}
	return counts
}
