// Package rpc decodes ONC RPC messages (RFC 5531) from reassembled TCP
// streams: record-marking defragmentation, call and reply headers,
// credential bodies, and the XID table that pairs replies with their calls.
package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// Constants
// ============================================================================

// RPCVersion is the only ONC RPC protocol version in use (RFC 5531).
const RPCVersion = 2

// Message types (msg_type).
const (
	TypeCall  = 0
	TypeReply = 1
)

// Reply dispositions (reply_stat).
const (
	MsgAccepted = 0
	MsgDenied   = 1
)

// Accept status (accept_stat).
const (
	Success      = 0
	ProgUnavail  = 1
	ProgMismatch = 2
	ProcUnavail  = 3
	GarbageArgs  = 4
	SystemErr    = 5
)

// Reject status (reject_stat).
const (
	RPCMismatch = 0
	AuthError   = 1
)

// Authentication flavors (auth_flavor).
const (
	AuthNone  = 0
	AuthSys   = 1
	AuthShort = 2
	AuthDH    = 3
	RPCSecGSS = 6
)

// MaxAuthBody is the opaque_auth body limit fixed by RFC 5531.
const MaxAuthBody = 400

// ============================================================================
// Record Marking
// ============================================================================

// Record marking (RFC 5531 Section 11) frames RPC messages on a byte
// stream: each fragment is preceded by a 4-byte header whose top bit marks
// the final fragment and whose low 31 bits carry the fragment length.

const (
	lastFragmentFlag   = 0x80000000
	fragmentLengthMask = 0x7fffffff

	// MaxFragmentSize rejects fragment lengths no sane peer produces.
	// NFS WRITEs commonly reach 1MB; the slack covers headers around a
	// maximum-size payload.
	MaxFragmentSize = 1<<20 + 256<<10

	// MaxMessageSize bounds a fully defragmented message.
	MaxMessageSize = 8 << 20
)

// FragmentHeader is the decoded record-marking word.
type FragmentHeader uint32

// Last reports whether this fragment completes the message.
func (h FragmentHeader) Last() bool {
	return uint32(h)&lastFragmentFlag != 0
}

// Length returns the fragment payload length.
func (h FragmentHeader) Length() uint32 {
	return uint32(h) & fragmentLengthMask
}

func (h FragmentHeader) String() string {
	return fmt.Sprintf("fragment(len=%d, last=%v)", h.Length(), h.Last())
}

// ErrStreamCorrupt is returned by StreamDecoder when the record-marking
// framing is implausible. The surrounding flow state is unrecoverable at
// that point and should be discarded.
var ErrStreamCorrupt = errors.New("rpc: record marking corrupt")

// StreamDecoder extracts complete RPC messages from a TCP byte stream. Feed
// contiguous stream data with Push, then drain complete messages with Next.
type StreamDecoder struct {
	buf     []byte
	pending []byte // accumulated fragments of the message in progress
}

// Push appends contiguous stream bytes.
func (d *StreamDecoder) Push(b []byte) {
	d.buf = append(d.buf, b...)
}

// Buffered returns the number of bytes held, both unframed stream bytes
// and accumulated fragments.
func (d *StreamDecoder) Buffered() int {
	return len(d.buf) + len(d.pending)
}

// Next returns the next complete message body, nil when more stream data is
// needed, or ErrStreamCorrupt when the framing is broken.
func (d *StreamDecoder) Next() ([]byte, error) {
	for {
		if len(d.buf) < 4 {
			return nil, nil
		}
		hdr := FragmentHeader(uint32(d.buf[0])<<24 | uint32(d.buf[1])<<16 | uint32(d.buf[2])<<8 | uint32(d.buf[3]))
		length := hdr.Length()
		if length == 0 || length > MaxFragmentSize {
			return nil, fmt.Errorf("%w: fragment length %d", ErrStreamCorrupt, length)
		}
		if len(d.pending)+int(length) > MaxMessageSize {
			return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrStreamCorrupt, MaxMessageSize)
		}
		if len(d.buf) < 4+int(length) {
			return nil, nil
		}

		frag := d.buf[4 : 4+length]
		rest := d.buf[4+length:]

		if hdr.Last() && len(d.pending) == 0 {
			// Common case: single-fragment message. Hand out the bytes
			// without copying them into the pending buffer.
			msg := frag
			d.buf = append([]byte(nil), rest...)
			return msg, nil
		}

		d.pending = append(d.pending, frag...)
		d.buf = append([]byte(nil), rest...)
		if hdr.Last() {
			msg := d.pending
			d.pending = nil
			return msg, nil
		}
	}
}

// Reset discards all buffered state, used after framing corruption.
func (d *StreamDecoder) Reset() {
	d.buf = nil
	d.pending = nil
}

// ============================================================================
// Message
// ============================================================================

// OpaqueAuth is the credential/verifier container (RFC 5531 Section 8.2).
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

func (a *OpaqueAuth) Decode(r io.Reader) error {
	var err error
	if a.Flavor, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("auth flavor: %w", err)
	}
	if a.Body, err = xdr.DecodeOpaqueMax(r, MaxAuthBody); err != nil {
		return fmt.Errorf("auth body: %w", err)
	}
	return nil
}

func (a *OpaqueAuth) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.Flavor)
	return xdr.WriteOpaque(buf, a.Body)
}

// Message is one decoded RPC call or reply header plus its undecoded
// procedure payload. Which fields are meaningful depends on Type and, for
// replies, on ReplyStat/AcceptStat.
type Message struct {
	XID  uint32
	Type uint32

	// Call fields.
	RPCVers   uint32
	Program   uint32
	Version   uint32
	Procedure uint32
	Cred      OpaqueAuth
	Verf      OpaqueAuth
	AuthSys   *AuthSysCred // decoded view of Cred when flavor is AUTH_SYS
	GSS       *GSSCred     // decoded view of Cred when flavor is RPCSEC_GSS

	// Reply fields.
	ReplyStat    uint32
	AcceptStat   uint32
	RejectStat   uint32
	AuthStat     uint32
	MismatchLow  uint32
	MismatchHigh uint32

	// Unmatched is set on replies whose call never appeared in the trace.
	// Program/Version/Procedure are unknown for such replies.
	Unmatched bool

	// Payload holds the procedure arguments or results.
	Payload []byte
}

// IsCall reports whether the message is a call.
func (m *Message) IsCall() bool { return m.Type == TypeCall }

// Accepted reports whether a reply was accepted with SUCCESS.
func (m *Message) Accepted() bool {
	return m.Type == TypeReply && m.ReplyStat == MsgAccepted && m.AcceptStat == Success
}

func (m *Message) String() string {
	if m.IsCall() {
		return fmt.Sprintf("CALL xid=%#08x prog=%d vers=%d proc=%d", m.XID, m.Program, m.Version, m.Procedure)
	}
	switch m.ReplyStat {
	case MsgAccepted:
		return fmt.Sprintf("REPLY xid=%#08x accepted stat=%d", m.XID, m.AcceptStat)
	default:
		return fmt.Sprintf("REPLY xid=%#08x denied stat=%d", m.XID, m.RejectStat)
	}
}

// DecodeMessage parses a defragmented RPC message. The header is validated
// strictly enough that callers can probe arbitrary payloads and treat an
// error as "not RPC".
func DecodeMessage(data []byte) (*Message, error) {
	r := bytes.NewReader(data)
	m := &Message{}

	var err error
	if m.XID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("xid: %w", err)
	}
	if m.Type, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("msg_type: %w", err)
	}

	switch m.Type {
	case TypeCall:
		if err := m.decodeCallHeader(r); err != nil {
			return nil, err
		}
	case TypeReply:
		if err := m.decodeReplyHeader(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("msg_type %d is neither call nor reply", m.Type)
	}

	m.Payload = data[len(data)-r.Len():]
	return m, nil
}

func (m *Message) decodeCallHeader(r *bytes.Reader) error {
	var err error
	if m.RPCVers, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("rpcvers: %w", err)
	}
	if m.RPCVers != RPCVersion {
		return fmt.Errorf("rpcvers %d is not %d", m.RPCVers, RPCVersion)
	}
	if m.Program, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("prog: %w", err)
	}
	if m.Version, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("vers: %w", err)
	}
	if m.Procedure, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("proc: %w", err)
	}
	if err := m.Cred.Decode(r); err != nil {
		return fmt.Errorf("cred: %w", err)
	}
	if err := m.Verf.Decode(r); err != nil {
		return fmt.Errorf("verf: %w", err)
	}

	// Credential bodies are best-effort detail: a body that does not parse
	// leaves the raw bytes in Cred without failing the message.
	switch m.Cred.Flavor {
	case AuthSys:
		if cred, err := decodeAuthSys(m.Cred.Body); err == nil {
			m.AuthSys = cred
		}
	case RPCSecGSS:
		if cred, err := decodeGSSCred(m.Cred.Body); err == nil {
			m.GSS = cred
		}
	}
	return nil
}

func (m *Message) decodeReplyHeader(r *bytes.Reader) error {
	var err error
	if m.ReplyStat, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("reply_stat: %w", err)
	}
	switch m.ReplyStat {
	case MsgAccepted:
		if err := m.Verf.Decode(r); err != nil {
			return fmt.Errorf("verf: %w", err)
		}
		if m.AcceptStat, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("accept_stat: %w", err)
		}
		switch m.AcceptStat {
		case Success, ProgUnavail, ProcUnavail, GarbageArgs, SystemErr:
		case ProgMismatch:
			if m.MismatchLow, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("mismatch low: %w", err)
			}
			if m.MismatchHigh, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("mismatch high: %w", err)
			}
		default:
			return fmt.Errorf("accept_stat %d has no defined arm", m.AcceptStat)
		}
	case MsgDenied:
		if m.RejectStat, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("reject_stat: %w", err)
		}
		switch m.RejectStat {
		case RPCMismatch:
			if m.MismatchLow, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("mismatch low: %w", err)
			}
			if m.MismatchHigh, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("mismatch high: %w", err)
			}
		case AuthError:
			if m.AuthStat, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("auth_stat: %w", err)
			}
		default:
			return fmt.Errorf("reject_stat %d has no defined arm", m.RejectStat)
		}
	default:
		return fmt.Errorf("reply_stat %d has no defined arm", m.ReplyStat)
	}
	return nil
}

// ============================================================================
// Message Encoding
// ============================================================================
//
// Encoding exists for wire fixtures in tests, mirroring the decode paths.

// EncodeCall writes a call message for m, including the payload.
func (m *Message) EncodeCall(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, m.XID)
	xdr.WriteUint32(buf, TypeCall)
	xdr.WriteUint32(buf, RPCVersion)
	xdr.WriteUint32(buf, m.Program)
	xdr.WriteUint32(buf, m.Version)
	xdr.WriteUint32(buf, m.Procedure)
	if err := m.Cred.Encode(buf); err != nil {
		return err
	}
	if err := m.Verf.Encode(buf); err != nil {
		return err
	}
	buf.Write(m.Payload)
	return nil
}

// EncodeReply writes a reply message for m, including the payload.
func (m *Message) EncodeReply(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, m.XID)
	xdr.WriteUint32(buf, TypeReply)
	xdr.WriteUint32(buf, m.ReplyStat)
	switch m.ReplyStat {
	case MsgAccepted:
		if err := m.Verf.Encode(buf); err != nil {
			return err
		}
		xdr.WriteUint32(buf, m.AcceptStat)
		if m.AcceptStat == ProgMismatch {
			xdr.WriteUint32(buf, m.MismatchLow)
			xdr.WriteUint32(buf, m.MismatchHigh)
		}
	case MsgDenied:
		xdr.WriteUint32(buf, m.RejectStat)
		switch m.RejectStat {
		case RPCMismatch:
			xdr.WriteUint32(buf, m.MismatchLow)
			xdr.WriteUint32(buf, m.MismatchHigh)
		case AuthError:
			xdr.WriteUint32(buf, m.AuthStat)
		}
	}
	buf.Write(m.Payload)
	return nil
}

// Frame wraps an encoded message in a single record-marking fragment.
func Frame(msg []byte) []byte {
	out := make([]byte, 4+len(msg))
	word := uint32(len(msg)) | lastFragmentFlag
	out[0] = byte(word >> 24)
	out[1] = byte(word >> 16)
	out[2] = byte(word >> 8)
	out[3] = byte(word)
	copy(out[4:], msg)
	return out
}

// FrameFragments wraps msg in count fragments of roughly equal size, for
// exercising defragmentation.
func FrameFragments(msg []byte, count int) []byte {
	if count <= 1 {
		return Frame(msg)
	}
	var out []byte
	chunk := (len(msg) + count - 1) / count
	for off := 0; off < len(msg); off += chunk {
		end := off + chunk
		last := false
		if end >= len(msg) {
			end = len(msg)
			last = true
		}
		word := uint32(end - off)
		if last {
			word |= lastFragmentFlag
		}
		out = append(out, byte(word>>24), byte(word>>16), byte(word>>8), byte(word))
		out = append(out, msg[off:end]...)
	}
	return out
}
