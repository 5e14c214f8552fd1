// Package trace reads tcpdump capture files (pcap format) as a lazy stream
// of records.
//
// The reader never materializes the file: it keeps exactly one record in
// memory, bounded by the trace's snapshot length, and exposes the byte offset
// of every record as an opaque, orderable Position so iteration can be
// resumed from any previously observed record.
//
// Exactly one cursor is active per Reader. Concurrent Next calls on the same
// Reader are rejected rather than interleaved; callers that want concurrency
// open the file twice.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nfstrace/nfstrace/internal/logger"
)

// pcap global header magic numbers. The writing host stores the header in its
// native byte order, so each resolution has a straight and a byte-swapped
// form.
const (
	magicMicro        = 0xa1b2c3d4 // microsecond timestamps, reader-native order
	magicMicroSwapped = 0xd4c3b2a1
	magicNano         = 0xa1b23c4d // nanosecond timestamps (LibPCAP >= 1.5)
	magicNanoSwapped  = 0x4d3cb2a1
)

const (
	fileHeaderLen   = 24
	recordHeaderLen = 16

	// maxSaneCapLen guards record framing: a per-record length beyond any
	// plausible snapshot length means the framing is lost and the rest of
	// the file cannot be interpreted.
	maxSaneCapLen = 256 * 1024 * 1024
)

// LinkTypeEthernet is the only link-layer type the decode chain interprets.
// The reader itself accepts any link type and records it in the header.
const LinkTypeEthernet = 1

// Header is the parsed pcap global header. Byte order, timestamp resolution,
// and snapshot length are fixed for the lifetime of the trace and apply to
// every record.
type Header struct {
	ByteOrder    binary.ByteOrder
	NanoRes      bool // true when timestamps carry nanoseconds
	VersionMajor uint16
	VersionMinor uint16
	SnapLen      uint32
	LinkType     uint32
}

// Reader is a streaming pcap reader with a single read cursor.
type Reader struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	hdr    Header
	offset int64 // file offset of the next record header
	index  int   // frames handed out so far
	closed bool
}

// Open opens a capture file and validates its global header. It fails with a
// *FormatError when the file is not a recognized pcap variant, and with the
// underlying I/O error when the file cannot be read.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}

	r := &Reader{f: f, path: path, offset: fileHeaderLen}
	if err := r.readFileHeader(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Debug("trace opened",
		logger.KeyTrace, path,
		logger.KeyLinkType, r.hdr.LinkType,
		logger.KeySnapLen, r.hdr.SnapLen)
	return r, nil
}

// readFileHeader parses and validates the 24-byte pcap global header.
func (r *Reader) readFileHeader() error {
	var raw [fileHeaderLen]byte
	if _, err := io.ReadFull(r.f, raw[:]); err != nil {
		return &FormatError{Offset: 0, Reason: fmt.Sprintf("short global header: %v", err)}
	}

	// The magic number determines both the byte order of every header in the
	// file and the timestamp resolution of every record.
	magic := binary.BigEndian.Uint32(raw[0:4])
	switch magic {
	case magicMicro:
		r.hdr.ByteOrder = binary.BigEndian
	case magicMicroSwapped:
		r.hdr.ByteOrder = binary.LittleEndian
	case magicNano:
		r.hdr.ByteOrder = binary.BigEndian
		r.hdr.NanoRes = true
	case magicNanoSwapped:
		r.hdr.ByteOrder = binary.LittleEndian
		r.hdr.NanoRes = true
	default:
		return &FormatError{Offset: 0, Reason: fmt.Sprintf("unrecognized magic number 0x%08x", magic)}
	}

	bo := r.hdr.ByteOrder
	r.hdr.VersionMajor = bo.Uint16(raw[4:6])
	r.hdr.VersionMinor = bo.Uint16(raw[6:8])
	// raw[8:16]: thiszone and sigfigs, unused in practice and ignored here.
	r.hdr.SnapLen = bo.Uint32(raw[16:20])
	r.hdr.LinkType = bo.Uint32(raw[20:24])

	if r.hdr.VersionMajor != 2 {
		return &FormatError{Offset: 4,
			Reason: fmt.Sprintf("unsupported pcap version %d.%d", r.hdr.VersionMajor, r.hdr.VersionMinor)}
	}
	if r.hdr.SnapLen == 0 || r.hdr.SnapLen > maxSaneCapLen {
		return &FormatError{Offset: 16,
			Reason: fmt.Sprintf("implausible snapshot length %d", r.hdr.SnapLen)}
	}
	return nil
}

// Header returns the parsed global header.
func (r *Reader) Header() Header {
	return r.hdr
}

// Path returns the capture file path.
func (r *Reader) Path() string {
	return r.path
}

// Next reads the next record. It returns:
//   - (*RawRecord, nil) for a complete record,
//   - (nil, io.EOF) at a clean record boundary with no bytes beyond it,
//   - (nil, ErrAwaitingData) when a partial record sits at the end of the
//     file (still-growing capture, or a dead truncated one),
//   - (nil, *FormatError) when record framing is corrupt (fatal),
//   - (nil, err) for underlying I/O failures (fatal).
//
// On io.EOF and ErrAwaitingData the cursor does not advance, so Next can be
// retried after the file has grown.
func (r *Reader) Next() (*RawRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	var rh [recordHeaderLen]byte
	n, err := r.f.ReadAt(rh[:], r.offset)
	if err == io.EOF {
		if n == 0 {
			return nil, io.EOF
		}
		return nil, ErrAwaitingData
	}
	if err != nil {
		return nil, fmt.Errorf("read record header: %w", err)
	}

	bo := r.hdr.ByteOrder
	sec := bo.Uint32(rh[0:4])
	frac := bo.Uint32(rh[4:8])
	capLen := bo.Uint32(rh[8:12])
	origLen := bo.Uint32(rh[12:16])

	// A record longer than the snapshot length cannot have been produced by
	// the capture that wrote this header; framing is lost.
	if capLen > r.hdr.SnapLen || capLen > maxSaneCapLen {
		return nil, &FormatError{Offset: r.offset + 8,
			Reason: fmt.Sprintf("record length %d exceeds snapshot length %d", capLen, r.hdr.SnapLen)}
	}

	data := make([]byte, capLen)
	if _, err := r.f.ReadAt(data, r.offset+recordHeaderLen); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrAwaitingData
		}
		return nil, fmt.Errorf("read record payload: %w", err)
	}

	var ts time.Time
	if r.hdr.NanoRes {
		ts = time.Unix(int64(sec), int64(frac))
	} else {
		ts = time.Unix(int64(sec), int64(frac)*1000)
	}

	rec := &RawRecord{
		Index:   r.index + 1,
		Pos:     Position(r.offset),
		Time:    ts,
		CapLen:  capLen,
		OrigLen: origLen,
		Data:    data,
	}

	r.index++
	r.offset += recordHeaderLen + int64(capLen)
	return rec, nil
}

// Seek repositions the cursor to the record starting at p, typically a
// Position observed from an earlier RawRecord. Seeking to Start (or any
// position inside the global header) rewinds to the first record.
//
// Frame indices are not recomputed across a seek: records produced after a
// rewind carry indices continuing from the prior count. Callers that need
// stable indices track them by Position, which is what the search engine
// does.
func (r *Reader) Seek(p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if int64(p) < fileHeaderLen {
		r.offset = fileHeaderLen
		return nil
	}
	r.offset = int64(p)
	return nil
}

// Close releases the underlying file. The Reader is unusable afterwards.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}
