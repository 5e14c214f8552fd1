package rpc

import (
	"sort"
)

// MaxPendingCalls bounds the table of calls awaiting their reply. A trace
// that was cut mid-flight can leave arbitrarily many calls open; past the
// bound the oldest entries are evicted, which turns their eventual replies
// into unmatched ones rather than growing without limit.
const MaxPendingCalls = 8192

// IsTransientProgram reports whether prog lies in the transient range
// [0x40000000, 0x60000000). NFSv4.0 callback services register there, so a
// call to a transient program is tried as CB_COMPOUND.
func IsTransientProgram(prog uint32) bool {
	return prog >= 0x40000000 && prog < 0x60000000
}

// CallKey identifies a pending call: XIDs are only unique per connection.
type CallKey struct {
	Conn string
	XID  uint32
}

// PendingCall records what a reply needs to know about its call: which
// program and procedure to decode the results as, and where in the trace
// the call sits.
type PendingCall struct {
	Key          CallKey
	Program      uint32
	Version      uint32
	Procedure    uint32
	Callback     bool
	MinorVersion uint32
	Frame        int

	seq uint64
}

// PendingTable pairs replies with calls by (connection, XID). Not safe for
// concurrent use; one table serves one trace walk.
type PendingTable struct {
	calls   map[CallKey]*PendingCall
	nextSeq uint64
}

// NewPendingTable returns an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{calls: make(map[CallKey]*PendingCall)}
}

// Add records a call awaiting its reply. A retransmitted XID replaces the
// earlier entry. When the table is full the oldest entry is evicted.
func (t *PendingTable) Add(call *PendingCall) {
	if len(t.calls) >= MaxPendingCalls {
		if _, exists := t.calls[call.Key]; !exists {
			t.evictOldest()
		}
	}
	call.seq = t.nextSeq
	t.nextSeq++
	t.calls[call.Key] = call
}

// Match removes and returns the pending call for key, or nil when the call
// was never seen (or already matched).
func (t *PendingTable) Match(key CallKey) *PendingCall {
	call, ok := t.calls[key]
	if !ok {
		return nil
	}
	delete(t.calls, key)
	return call
}

// Len returns the number of calls still awaiting a reply.
func (t *PendingTable) Len() int {
	return len(t.calls)
}

// Unanswered returns the calls that never got a reply, oldest first.
func (t *PendingTable) Unanswered() []*PendingCall {
	out := make([]*PendingCall, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (t *PendingTable) evictOldest() {
	var oldest *PendingCall
	for _, c := range t.calls {
		if oldest == nil || c.seq < oldest.seq {
			oldest = c
		}
	}
	if oldest != nil {
		delete(t.calls, oldest.Key)
	}
}
