package nfs

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// Stateid
// ============================================================================

// Stateid4 identifies open, lock, delegation, and layout state (RFC 7530
// Section 3.3.5).
//
//	struct stateid4 {
//	    uint32_t  seqid;
//	    opaque    other[NFS4_OTHER_SIZE];
//	};
type Stateid4 struct {
	Seqid uint32
	Other [NFS4_OTHER_SIZE]byte
}

// Decode reads a stateid4 from r.
func (s *Stateid4) Decode(r io.Reader) error {
	var err error
	if s.Seqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("stateid seqid: %w", err)
	}
	if err := xdr.DecodeFixedOpaque(r, s.Other[:]); err != nil {
		return fmt.Errorf("stateid other: %w", err)
	}
	return nil
}

// Encode writes the stateid4 to buf.
func (s *Stateid4) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, s.Seqid)
	return xdr.WriteFixedOpaque(buf, s.Other[:])
}

// IsZero reports whether this is the special anonymous stateid
// (all fields zero, RFC 7530 Section 9.1.4.3).
func (s *Stateid4) IsZero() bool {
	if s.Seqid != 0 {
		return false
	}
	return s.Other == [NFS4_OTHER_SIZE]byte{}
}

// IsAllOnes reports whether this is the special READ bypass stateid
// (all bits set, RFC 7530 Section 9.1.4.3).
func (s *Stateid4) IsAllOnes() bool {
	if s.Seqid != 0xffffffff {
		return false
	}
	for _, b := range s.Other {
		if b != 0xff {
			return false
		}
	}
	return true
}

// IsCurrent reports whether this is the NFSv4.1 current stateid
// (seqid 1, other all zero, RFC 8881 Section 16.2.3.1.2).
func (s *Stateid4) IsCurrent() bool {
	if s.Seqid != 1 {
		return false
	}
	return s.Other == [NFS4_OTHER_SIZE]byte{}
}

func (s *Stateid4) String() string {
	switch {
	case s.IsZero():
		return "stateid(anonymous)"
	case s.IsAllOnes():
		return "stateid(bypass)"
	}
	return fmt.Sprintf("stateid(seqid=%d, other=%s)", s.Seqid, hex.EncodeToString(s.Other[:]))
}

// ============================================================================
// Fixed-Size Identifiers
// ============================================================================

// SessionID4 identifies an NFSv4.1 session (RFC 8881 Section 1.7).
type SessionID4 [NFS4_SESSIONID_SIZE]byte

func (s *SessionID4) Decode(r io.Reader) error {
	return xdr.DecodeFixedOpaque(r, s[:])
}

func (s *SessionID4) Encode(buf *bytes.Buffer) error {
	return xdr.WriteFixedOpaque(buf, s[:])
}

func (s SessionID4) String() string {
	return hex.EncodeToString(s[:])
}

// Verifier4 is an opaque cookie used to detect server restarts (RFC 7530).
type Verifier4 [NFS4_VERIFIER_SIZE]byte

func (v *Verifier4) Decode(r io.Reader) error {
	return xdr.DecodeFixedOpaque(r, v[:])
}

func (v *Verifier4) Encode(buf *bytes.Buffer) error {
	return xdr.WriteFixedOpaque(buf, v[:])
}

func (v Verifier4) String() string {
	return hex.EncodeToString(v[:])
}

// DeviceID4 identifies a pNFS storage device (RFC 8881 Section 3.3.14).
type DeviceID4 [NFS4_DEVICEID4_SIZE]byte

func (d *DeviceID4) Decode(r io.Reader) error {
	return xdr.DecodeFixedOpaque(r, d[:])
}

func (d *DeviceID4) Encode(buf *bytes.Buffer) error {
	return xdr.WriteFixedOpaque(buf, d[:])
}

func (d DeviceID4) String() string {
	return hex.EncodeToString(d[:])
}

// ============================================================================
// Filehandle
// ============================================================================

// FileHandle is an opaque NFSv4 filehandle, at most NFS4_FHSIZE bytes.
type FileHandle []byte

func decodeFileHandle(r io.Reader) (FileHandle, error) {
	fh, err := xdr.DecodeOpaqueMax(r, NFS4_FHSIZE)
	if err != nil {
		return nil, fmt.Errorf("filehandle: %w", err)
	}
	return FileHandle(fh), nil
}

func (fh FileHandle) String() string {
	return hex.EncodeToString(fh)
}

// ============================================================================
// Attributes
// ============================================================================

// Bitmap4 is a variable-length bit array identifying attributes
// (RFC 7530 Section 2.2).
type Bitmap4 []uint32

// Decode reads a bitmap4 from r.
func (b *Bitmap4) Decode(r io.Reader) error {
	// Attribute numbers top out below 96; 16 words is far past any real
	// bitmap while still rejecting corrupt counts.
	words, err := xdr.DecodeUint32Array(r, 16)
	if err != nil {
		return fmt.Errorf("bitmap: %w", err)
	}
	*b = Bitmap4(words)
	return nil
}

// Encode writes the bitmap4 to buf.
func (b Bitmap4) Encode(buf *bytes.Buffer) error {
	return xdr.WriteUint32Array(buf, []uint32(b))
}

// IsSet reports whether attribute number attr is present in the bitmap.
func (b Bitmap4) IsSet(attr uint32) bool {
	word := attr / 32
	if word >= uint32(len(b)) {
		return false
	}
	return b[word]&(1<<(attr%32)) != 0
}

// Fattr4 carries file attributes (RFC 7530 Section 2.2.2). Attribute values
// stay as raw XDR: the mask plus the length-prefixed blob is enough to walk
// past the structure and to compare attribute payloads byte-for-byte, and
// trace assertions rarely need more.
type Fattr4 struct {
	Mask  Bitmap4
	Attrs []byte
}

func (f *Fattr4) Decode(r io.Reader) error {
	if err := f.Mask.Decode(r); err != nil {
		return fmt.Errorf("fattr mask: %w", err)
	}
	attrs, err := xdr.DecodeOpaque(r)
	if err != nil {
		return fmt.Errorf("fattr values: %w", err)
	}
	f.Attrs = attrs
	return nil
}

func (f *Fattr4) Encode(buf *bytes.Buffer) error {
	if err := f.Mask.Encode(buf); err != nil {
		return err
	}
	return xdr.WriteOpaque(buf, f.Attrs)
}

// ============================================================================
// Change Info
// ============================================================================

// ChangeInfo4 reports directory change attributes around a mutating
// operation (RFC 7530 Section 2.2.6).
type ChangeInfo4 struct {
	Atomic bool
	Before uint64
	After  uint64
}

func (c *ChangeInfo4) Decode(r io.Reader) error {
	var err error
	if c.Atomic, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("change_info atomic: %w", err)
	}
	if c.Before, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("change_info before: %w", err)
	}
	if c.After, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("change_info after: %w", err)
	}
	return nil
}

func (c *ChangeInfo4) Encode(buf *bytes.Buffer) error {
	xdr.WriteBool(buf, c.Atomic)
	xdr.WriteUint64(buf, c.Before)
	xdr.WriteUint64(buf, c.After)
	return nil
}

// ============================================================================
// Time
// ============================================================================

// NFSTime4 is the NFSv4 timestamp (RFC 7530 Section 2.2.1).
type NFSTime4 struct {
	Seconds  int64
	Nseconds uint32
}

func (t *NFSTime4) Decode(r io.Reader) error {
	var err error
	if t.Seconds, err = xdr.DecodeInt64(r); err != nil {
		return fmt.Errorf("nfstime seconds: %w", err)
	}
	if t.Nseconds, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("nfstime nseconds: %w", err)
	}
	return nil
}

func (t *NFSTime4) Encode(buf *bytes.Buffer) error {
	xdr.WriteInt64(buf, t.Seconds)
	xdr.WriteUint32(buf, t.Nseconds)
	return nil
}

// ============================================================================
// ACE
// ============================================================================

// NFSACE4 is an access control entry, carried inside delegation grants
// (RFC 7530 Section 6.2).
type NFSACE4 struct {
	Type       uint32
	Flag       uint32
	AccessMask uint32
	Who        string
}

func (a *NFSACE4) Decode(r io.Reader) error {
	var err error
	if a.Type, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("ace type: %w", err)
	}
	if a.Flag, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("ace flag: %w", err)
	}
	if a.AccessMask, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("ace access mask: %w", err)
	}
	if a.Who, err = xdr.DecodeString(r); err != nil {
		return fmt.Errorf("ace who: %w", err)
	}
	return nil
}

func (a *NFSACE4) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.Type)
	xdr.WriteUint32(buf, a.Flag)
	xdr.WriteUint32(buf, a.AccessMask)
	return xdr.WriteString(buf, a.Who)
}
