package trace

import (
	"errors"
	"fmt"
)

// ErrAwaitingData is returned by Reader.Next when the capture file ends in the
// middle of a record. tcpdump writes records atomically only from the
// decoder's point of view once they are complete; a live capture that is
// still being written routinely exposes a partial record header or payload at
// the current end of file. The read cursor is not advanced, so the caller can
// wait for the file to grow (see Reader.Await) and call Next again.
//
// A truly truncated (dead) capture also surfaces as ErrAwaitingData; a caller
// that knows capture has stopped treats it as truncation.
var ErrAwaitingData = errors.New("trace: awaiting more capture data")

// ErrClosed is returned by operations on a closed Reader.
var ErrClosed = errors.New("trace: reader is closed")

// FormatError indicates the capture file is not a recognized pcap file or its
// framing is corrupt. It is fatal to the trace: no further records can be
// located once framing is lost.
type FormatError struct {
	// Offset is the byte offset at which the problem was detected.
	Offset int64

	// Reason describes what was wrong.
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("trace: bad capture format at offset %d: %s", e.Offset, e.Reason)
}

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
