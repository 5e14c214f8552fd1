package trace

import "fmt"

// Position identifies where a record begins inside a capture file. Positions
// are strictly monotonically increasing along a trace, equality-comparable,
// and orderable; they are meaningless across different traces.
//
// The zero Position addresses the first record (immediately after the pcap
// global header) -- see Reader.Seek.
type Position int64

// Start addresses the first record of any trace.
const Start Position = 0

// Before reports whether p is strictly before q in the trace.
func (p Position) Before(q Position) bool { return p < q }

// After reports whether p is strictly after q in the trace.
func (p Position) After(q Position) bool { return p > q }

func (p Position) String() string {
	return fmt.Sprintf("@%d", int64(p))
}
