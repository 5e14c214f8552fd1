package trace

import (
	"fmt"
	"time"
)

// RawRecord is one capture-file record: the per-record pcap header plus the
// captured bytes. It is owned by the Reader's caller until decoded; the
// decode chain copies whatever it keeps, so the record itself can be dropped
// after decoding to bound memory.
type RawRecord struct {
	// Index is the 1-based frame number within the trace.
	Index int

	// Pos is the byte offset of this record's header in the capture file.
	// Feeding it back to Reader.Seek (or search.Iterate) resumes the trace
	// immediately before this record.
	Pos Position

	// Time is the capture timestamp, at microsecond or nanosecond resolution
	// depending on the trace's magic number.
	Time time.Time

	// CapLen is the number of bytes actually stored in the trace.
	CapLen uint32

	// OrigLen is the length of the packet as it appeared on the wire.
	// CapLen < OrigLen means the capture was truncated by the snapshot
	// length; layer decoders treat missing tail bytes as a truncated layer,
	// not as a malformed one.
	OrigLen uint32

	// Data holds the captured bytes (CapLen of them).
	Data []byte
}

// Truncated reports whether the capture dropped bytes from the original
// packet.
func (r *RawRecord) Truncated() bool {
	return r.CapLen < r.OrigLen
}

func (r *RawRecord) String() string {
	return fmt.Sprintf("frame %d %s, %d bytes on wire, %d bytes captured",
		r.Index, r.Pos, r.OrigLen, r.CapLen)
}
