package nfs

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// Operation Interfaces
// ============================================================================

// OpArgs is the argument body of one COMPOUND operation. Implementations
// decode exactly the bytes their XDR definition covers: operation bodies
// carry no length framing, so over- or under-reading desynchronizes every
// operation that follows.
type OpArgs interface {
	OpCode() uint32
	Decode(r io.Reader) error
	Encode(buf *bytes.Buffer) error
}

// OpRes is the result body of one COMPOUND operation. The walker reads the
// per-operation status before calling Decode, because several result unions
// have non-void error arms (LOCK4denied, LAYOUTGET's will_signal_layout_avail)
// that only the operation itself knows about.
type OpRes interface {
	OpCode() uint32
	Decode(r io.Reader, status uint32) error
	Encode(buf *bytes.Buffer, status uint32) error
}

// StateidCarrier is implemented by operation bodies whose primary field is a
// stateid, letting callers pull the stateid out of any operation without
// switching on the concrete type.
type StateidCarrier interface {
	OpStateid() *Stateid4
}

// ============================================================================
// Operation Registry
// ============================================================================

type opEntry struct {
	args func() OpArgs
	res  func() OpRes
}

var opRegistry = map[uint32]opEntry{}
var cbOpRegistry = map[uint32]opEntry{}

// RegisterOp installs decoders for a forward-channel operation code. The
// built-in operations are registered at package init; callers can extend the
// set (vendor ops, newer minor versions) before decoding starts. Not safe
// for concurrent use with decoding.
func RegisterOp(code uint32, args func() OpArgs, res func() OpRes) {
	opRegistry[code] = opEntry{args: args, res: res}
}

// RegisterCBOp installs decoders for a callback operation code.
func RegisterCBOp(code uint32, args func() OpArgs, res func() OpRes) {
	cbOpRegistry[code] = opEntry{args: args, res: res}
}

func init() {
	RegisterOp(OP_ACCESS, func() OpArgs { return new(AccessArgs) }, func() OpRes { return new(AccessRes) })
	RegisterOp(OP_CLOSE, func() OpArgs { return new(CloseArgs) }, func() OpRes { return new(CloseRes) })
	RegisterOp(OP_COMMIT, func() OpArgs { return new(CommitArgs) }, func() OpRes { return new(CommitRes) })
	RegisterOp(OP_CREATE, func() OpArgs { return new(CreateArgs) }, func() OpRes { return new(CreateRes) })
	RegisterOp(OP_DELEGRETURN, func() OpArgs { return new(DelegReturnArgs) }, func() OpRes { return new(DelegReturnRes) })
	RegisterOp(OP_GETATTR, func() OpArgs { return new(GetAttrArgs) }, func() OpRes { return new(GetAttrRes) })
	RegisterOp(OP_GETFH, func() OpArgs { return new(GetFHArgs) }, func() OpRes { return new(GetFHRes) })
	RegisterOp(OP_LOCK, func() OpArgs { return new(LockArgs) }, func() OpRes { return new(LockRes) })
	RegisterOp(OP_LOCKT, func() OpArgs { return new(LockTArgs) }, func() OpRes { return new(LockTRes) })
	RegisterOp(OP_LOCKU, func() OpArgs { return new(LockUArgs) }, func() OpRes { return new(LockURes) })
	RegisterOp(OP_LOOKUP, func() OpArgs { return new(LookupArgs) }, func() OpRes { return new(LookupRes) })
	RegisterOp(OP_OPEN, func() OpArgs { return new(OpenArgs) }, func() OpRes { return new(OpenRes) })
	RegisterOp(OP_OPEN_CONFIRM, func() OpArgs { return new(OpenConfirmArgs) }, func() OpRes { return new(OpenConfirmRes) })
	RegisterOp(OP_PUTFH, func() OpArgs { return new(PutFHArgs) }, func() OpRes { return new(PutFHRes) })
	RegisterOp(OP_PUTROOTFH, func() OpArgs { return new(PutRootFHArgs) }, func() OpRes { return new(PutRootFHRes) })
	RegisterOp(OP_READ, func() OpArgs { return new(ReadArgs) }, func() OpRes { return new(ReadRes) })
	RegisterOp(OP_READDIR, func() OpArgs { return new(ReadDirArgs) }, func() OpRes { return new(ReadDirRes) })
	RegisterOp(OP_REMOVE, func() OpArgs { return new(RemoveArgs) }, func() OpRes { return new(RemoveRes) })
	RegisterOp(OP_RENEW, func() OpArgs { return new(RenewArgs) }, func() OpRes { return new(RenewRes) })
	RegisterOp(OP_RESTOREFH, func() OpArgs { return new(RestoreFHArgs) }, func() OpRes { return new(RestoreFHRes) })
	RegisterOp(OP_SAVEFH, func() OpArgs { return new(SaveFHArgs) }, func() OpRes { return new(SaveFHRes) })
	RegisterOp(OP_SETATTR, func() OpArgs { return new(SetAttrArgs) }, func() OpRes { return new(SetAttrRes) })
	RegisterOp(OP_SETCLIENTID, func() OpArgs { return new(SetClientIDArgs) }, func() OpRes { return new(SetClientIDRes) })
	RegisterOp(OP_SETCLIENTID_CONFIRM, func() OpArgs { return new(SetClientIDConfirmArgs) }, func() OpRes { return new(SetClientIDConfirmRes) })
	RegisterOp(OP_WRITE, func() OpArgs { return new(WriteArgs) }, func() OpRes { return new(WriteRes) })

	RegisterOp(OP_EXCHANGE_ID, func() OpArgs { return new(ExchangeIDArgs) }, func() OpRes { return new(ExchangeIDRes) })
	RegisterOp(OP_CREATE_SESSION, func() OpArgs { return new(CreateSessionArgs) }, func() OpRes { return new(CreateSessionRes) })
	RegisterOp(OP_DESTROY_SESSION, func() OpArgs { return new(DestroySessionArgs) }, func() OpRes { return new(DestroySessionRes) })
	RegisterOp(OP_SEQUENCE, func() OpArgs { return new(SequenceArgs) }, func() OpRes { return new(SequenceRes) })
	RegisterOp(OP_RECLAIM_COMPLETE, func() OpArgs { return new(ReclaimCompleteArgs) }, func() OpRes { return new(ReclaimCompleteRes) })
	RegisterOp(OP_GETDEVICEINFO, func() OpArgs { return new(GetDeviceInfoArgs) }, func() OpRes { return new(GetDeviceInfoRes) })
	RegisterOp(OP_LAYOUTCOMMIT, func() OpArgs { return new(LayoutCommitArgs) }, func() OpRes { return new(LayoutCommitRes) })
	RegisterOp(OP_LAYOUTGET, func() OpArgs { return new(LayoutGetArgs) }, func() OpRes { return new(LayoutGetRes) })
	RegisterOp(OP_LAYOUTRETURN, func() OpArgs { return new(LayoutReturnArgs) }, func() OpRes { return new(LayoutReturnRes) })

	RegisterCBOp(OP_CB_RECALL, func() OpArgs { return new(CBRecallArgs) }, func() OpRes { return new(CBRecallRes) })
	RegisterCBOp(OP_CB_LAYOUTRECALL, func() OpArgs { return new(CBLayoutRecallArgs) }, func() OpRes { return new(CBLayoutRecallRes) })
	RegisterCBOp(OP_CB_SEQUENCE, func() OpArgs { return new(CBSequenceArgs) }, func() OpRes { return new(CBSequenceRes) })
}

// ============================================================================
// Message Model
// ============================================================================

// Op is one decoded operation of a COMPOUND. For a call Args is set; for a
// reply Res and Status are set. Exactly one of Args/Res is non-nil.
type Op struct {
	Code     uint32
	Callback bool
	Status   uint32
	Args     OpArgs
	Res      OpRes
}

// Name returns the RFC name of the operation.
func (o *Op) Name() string {
	if o.Callback {
		return CBOpName(o.Code)
	}
	return OpName(o.Code)
}

// Stateid returns the operation's stateid when its body carries one
// (OPEN results, CLOSE, READ, WRITE, DELEGRETURN, LAYOUTGET, ...), or nil.
func (o *Op) Stateid() *Stateid4 {
	if c, ok := o.Args.(StateidCarrier); ok {
		return c.OpStateid()
	}
	if c, ok := o.Res.(StateidCarrier); ok {
		return c.OpStateid()
	}
	return nil
}

// MalformedOp marks the point at which COMPOUND decoding stopped. Because
// operation bodies are not length-framed, nothing after a body that cannot
// be decoded is recoverable; the operations before it are still valid.
type MalformedOp struct {
	Code   uint32
	Index  int
	Reason string
}

func (m *MalformedOp) String() string {
	return fmt.Sprintf("op %d (code %d): %s", m.Index, m.Code, m.Reason)
}

// Message is one decoded COMPOUND or CB_COMPOUND procedure body.
//
// A Message is immutable after decoding. Ops holds the operations decoded in
// wire order; if Malformed is non-nil the array is the prefix that decoded
// cleanly and the remainder of the payload was skipped.
type Message struct {
	// Call is true for COMPOUND4args/CB_COMPOUND4args, false for results.
	Call bool

	// Callback is true for CB_COMPOUND traffic on the backchannel.
	Callback bool

	// Tag is the client-chosen compound tag.
	Tag string

	// MinorVersion is taken from the call arguments. Results do not carry
	// one on the wire; the RPC layer fills it in from the matched call.
	MinorVersion uint32

	// Status is the overall compound status (results only).
	Status uint32

	Ops       []Op
	Malformed *MalformedOp
}

// Op returns the first operation with the given code, or nil.
func (m *Message) Op(code uint32) *Op {
	for i := range m.Ops {
		if m.Ops[i].Code == code {
			return &m.Ops[i]
		}
	}
	return nil
}

// HasOp reports whether the compound contains the given operation code.
func (m *Message) HasOp(code uint32) bool {
	return m.Op(code) != nil
}

// IsSessionful reports whether the compound starts with SEQUENCE
// (or CB_SEQUENCE), the NFSv4.1 pattern.
func (m *Message) IsSessionful() bool {
	if len(m.Ops) == 0 {
		return false
	}
	if m.Callback {
		return m.Ops[0].Code == OP_CB_SEQUENCE
	}
	return m.Ops[0].Code == OP_SEQUENCE
}

func (m *Message) String() string {
	var sb strings.Builder
	if m.Callback {
		sb.WriteString("CB_COMPOUND ")
	} else {
		sb.WriteString("COMPOUND ")
	}
	if m.Call {
		sb.WriteString("call")
	} else {
		fmt.Fprintf(&sb, "reply status=%d", m.Status)
	}
	if m.Tag != "" {
		fmt.Fprintf(&sb, " tag=%q", m.Tag)
	}
	sb.WriteString(" [")
	for i := range m.Ops {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(m.Ops[i].Name())
	}
	if m.Malformed != nil {
		if len(m.Ops) > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString("?")
	}
	sb.WriteByte(']')
	return sb.String()
}

// ============================================================================
// Compound Decoding
// ============================================================================

// DecodeCall decodes a COMPOUND4args (or CB_COMPOUND4args when callback is
// set) procedure body. An error is returned only when the compound header
// itself cannot be read; an undecodable operation instead sets
// Message.Malformed and returns the prefix that decoded.
func DecodeCall(r io.Reader, callback bool) (*Message, error) {
	m := &Message{Call: true, Callback: callback}

	var err error
	if m.Tag, err = xdr.DecodeString(r); err != nil {
		return nil, fmt.Errorf("compound tag: %w", err)
	}
	if m.MinorVersion, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("compound minorversion: %w", err)
	}
	if callback {
		// CB_COMPOUND4args carries a callback_ident between minorversion
		// and the op array (RFC 7530 Section 17.2). It is meaningful only
		// to the client that registered it.
		if _, err := xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("compound callback_ident: %w", err)
		}
	}

	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("compound op count: %w", err)
	}
	if count > MaxCompoundOps {
		return nil, fmt.Errorf("compound op count %d exceeds limit %d", count, MaxCompoundOps)
	}

	registry := opRegistry
	if callback {
		registry = cbOpRegistry
	}

	m.Ops = make([]Op, 0, count)
	for i := 0; i < int(count); i++ {
		code, err := xdr.DecodeUint32(r)
		if err != nil {
			m.Malformed = &MalformedOp{Index: i, Reason: fmt.Sprintf("opcode: %v", err)}
			return m, nil
		}
		entry, ok := registry[code]
		if !ok {
			m.Malformed = &MalformedOp{Code: code, Index: i, Reason: "unregistered operation"}
			return m, nil
		}
		args := entry.args()
		if err := args.Decode(r); err != nil {
			m.Malformed = &MalformedOp{Code: code, Index: i, Reason: err.Error()}
			return m, nil
		}
		m.Ops = append(m.Ops, Op{Code: code, Callback: callback, Args: args})
	}
	return m, nil
}

// DecodeReply decodes a COMPOUND4res (or CB_COMPOUND4res) procedure body.
// The minor version is not on the wire for results; callers that matched the
// reply to its call should set Message.MinorVersion afterwards.
func DecodeReply(r io.Reader, callback bool) (*Message, error) {
	m := &Message{Callback: callback}

	var err error
	if m.Status, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("compound status: %w", err)
	}
	if m.Tag, err = xdr.DecodeString(r); err != nil {
		return nil, fmt.Errorf("compound tag: %w", err)
	}

	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("compound op count: %w", err)
	}
	if count > MaxCompoundOps {
		return nil, fmt.Errorf("compound op count %d exceeds limit %d", count, MaxCompoundOps)
	}

	registry := opRegistry
	if callback {
		registry = cbOpRegistry
	}

	m.Ops = make([]Op, 0, count)
	for i := 0; i < int(count); i++ {
		code, err := xdr.DecodeUint32(r)
		if err != nil {
			m.Malformed = &MalformedOp{Index: i, Reason: fmt.Sprintf("opcode: %v", err)}
			return m, nil
		}
		entry, ok := registry[code]
		if !ok {
			m.Malformed = &MalformedOp{Code: code, Index: i, Reason: "unregistered operation"}
			return m, nil
		}
		status, err := xdr.DecodeUint32(r)
		if err != nil {
			m.Malformed = &MalformedOp{Code: code, Index: i, Reason: fmt.Sprintf("status: %v", err)}
			return m, nil
		}
		res := entry.res()
		if err := res.Decode(r, status); err != nil {
			m.Malformed = &MalformedOp{Code: code, Index: i, Reason: err.Error()}
			return m, nil
		}
		m.Ops = append(m.Ops, Op{Code: code, Callback: callback, Status: status, Res: res})
	}
	return m, nil
}

// ============================================================================
// Compound Encoding
// ============================================================================
//
// Encoding exists for building wire fixtures; the trace pipeline itself only
// decodes.

// EncodeCall writes a COMPOUND4args (or CB_COMPOUND4args) body for m.
func (m *Message) EncodeCall(buf *bytes.Buffer) error {
	if err := xdr.WriteString(buf, m.Tag); err != nil {
		return err
	}
	xdr.WriteUint32(buf, m.MinorVersion)
	if m.Callback {
		xdr.WriteUint32(buf, 0) // callback_ident
	}
	xdr.WriteUint32(buf, uint32(len(m.Ops)))
	for i := range m.Ops {
		xdr.WriteUint32(buf, m.Ops[i].Code)
		if err := m.Ops[i].Args.Encode(buf); err != nil {
			return fmt.Errorf("%s args: %w", m.Ops[i].Name(), err)
		}
	}
	return nil
}

// EncodeReply writes a COMPOUND4res (or CB_COMPOUND4res) body for m.
func (m *Message) EncodeReply(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, m.Status)
	if err := xdr.WriteString(buf, m.Tag); err != nil {
		return err
	}
	xdr.WriteUint32(buf, uint32(len(m.Ops)))
	for i := range m.Ops {
		xdr.WriteUint32(buf, m.Ops[i].Code)
		xdr.WriteUint32(buf, m.Ops[i].Status)
		if err := m.Ops[i].Res.Encode(buf, m.Ops[i].Status); err != nil {
			return fmt.Errorf("%s res: %w", m.Ops[i].Name(), err)
		}
	}
	return nil
}
