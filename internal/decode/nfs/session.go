package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// EXCHANGE_ID flags per RFC 8881 Section 18.35 (EXCHGID4_FLAG_*).
const (
	EXCHGID4_FLAG_SUPP_MOVED_REFER    = 0x00000001
	EXCHGID4_FLAG_SUPP_MOVED_MIGR     = 0x00000002
	EXCHGID4_FLAG_BIND_PRINC_STATEID  = 0x00000100
	EXCHGID4_FLAG_USE_NON_PNFS        = 0x00010000
	EXCHGID4_FLAG_USE_PNFS_MDS        = 0x00020000
	EXCHGID4_FLAG_USE_PNFS_DS         = 0x00040000
	EXCHGID4_FLAG_UPD_CONFIRMED_REC_A = 0x40000000
	EXCHGID4_FLAG_CONFIRMED_R         = 0x80000000
)

// State protection modes per RFC 8881 Section 18.35 (state_protect_how4).
const (
	SP4_NONE      = 0
	SP4_MACH_CRED = 1
	SP4_SSV       = 2
)

// CREATE_SESSION flags per RFC 8881 Section 18.36.
const (
	CREATE_SESSION4_FLAG_PERSIST        = 1
	CREATE_SESSION4_FLAG_CONN_BACK_CHAN = 2
	CREATE_SESSION4_FLAG_CONN_RDMA      = 4
)

// SEQUENCE status flags per RFC 8881 Section 18.46 (SEQ4_STATUS_*). Only the
// ones trace assertions commonly check are named.
const (
	SEQ4_STATUS_CB_PATH_DOWN              = 0x00000001
	SEQ4_STATUS_EXPIRED_ALL_STATE_REVOKED = 0x00000004
	SEQ4_STATUS_RECALLABLE_STATE_REVOKED  = 0x00000040
	SEQ4_STATUS_LEASE_MOVED               = 0x00000080
	SEQ4_STATUS_RESTART_RECLAIM_NEEDED    = 0x00000100
)

// maxAlgCount bounds the SSV algorithm lists in EXCHANGE_ID.
const maxAlgCount = 16

// ============================================================================
// EXCHANGE_ID (RFC 8881 Section 18.35)
// ============================================================================

// StateProtectOps is state_protect_ops4.
type StateProtectOps struct {
	Enforce Bitmap4
	Allow   Bitmap4
}

func (s *StateProtectOps) decode(r io.Reader) error {
	if err := s.Enforce.Decode(r); err != nil {
		return fmt.Errorf("state_protect enforce: %w", err)
	}
	if err := s.Allow.Decode(r); err != nil {
		return fmt.Errorf("state_protect allow: %w", err)
	}
	return nil
}

func (s *StateProtectOps) encode(buf *bytes.Buffer) error {
	if err := s.Enforce.Encode(buf); err != nil {
		return err
	}
	return s.Allow.Encode(buf)
}

// StateProtect is the state_protect4_a/_r union. Ops is valid for
// SP4_MACH_CRED and SP4_SSV; the SSV fields only for SP4_SSV.
type StateProtect struct {
	How           uint32
	Ops           StateProtectOps
	HashAlgs      [][]byte
	EncrAlgs      [][]byte
	Window        uint32
	NumGSSHandles uint32
	SSVLen        uint32 // reply side only; zero on calls
	reply         bool
}

func (s *StateProtect) decode(r io.Reader, reply bool) error {
	how, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("state_protect how: %w", err)
	}
	s.How = how
	s.reply = reply
	switch how {
	case SP4_NONE:
		return nil
	case SP4_MACH_CRED:
		return s.Ops.decode(r)
	case SP4_SSV:
		if err := s.Ops.decode(r); err != nil {
			return err
		}
		if s.HashAlgs, err = decodeOpaqueList(r, maxAlgCount); err != nil {
			return fmt.Errorf("state_protect hash_algs: %w", err)
		}
		if s.EncrAlgs, err = decodeOpaqueList(r, maxAlgCount); err != nil {
			return fmt.Errorf("state_protect encr_algs: %w", err)
		}
		if reply {
			// ssv_prot_info4 additionally carries ssv_len.
			if s.SSVLen, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("state_protect ssv_len: %w", err)
			}
		}
		if s.Window, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("state_protect window: %w", err)
		}
		if s.NumGSSHandles, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("state_protect num_gss_handles: %w", err)
		}
		return nil
	}
	return fmt.Errorf("state_protect how %d has no defined arm", how)
}

func (s *StateProtect) encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, s.How)
	switch s.How {
	case SP4_MACH_CRED:
		return s.Ops.encode(buf)
	case SP4_SSV:
		if err := s.Ops.encode(buf); err != nil {
			return err
		}
		if err := encodeOpaqueList(buf, s.HashAlgs); err != nil {
			return err
		}
		if err := encodeOpaqueList(buf, s.EncrAlgs); err != nil {
			return err
		}
		if s.reply {
			xdr.WriteUint32(buf, s.SSVLen)
		}
		xdr.WriteUint32(buf, s.Window)
		xdr.WriteUint32(buf, s.NumGSSHandles)
	}
	return nil
}

func decodeOpaqueList(r io.Reader, max uint32) ([][]byte, error) {
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if count > max {
		return nil, fmt.Errorf("list length %d exceeds maximum %d", count, max)
	}
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := xdr.DecodeOpaqueMax(r, 1024)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func encodeOpaqueList(buf *bytes.Buffer, list [][]byte) error {
	xdr.WriteUint32(buf, uint32(len(list)))
	for _, b := range list {
		if err := xdr.WriteOpaque(buf, b); err != nil {
			return err
		}
	}
	return nil
}

// ImplID is nfs_impl_id4, the optional implementation identity.
type ImplID struct {
	Domain string
	Name   string
	Date   NFSTime4
}

func decodeImplID(r io.Reader) (*ImplID, error) {
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("impl_id count: %w", err)
	}
	switch count {
	case 0:
		return nil, nil
	case 1:
		id := new(ImplID)
		if id.Domain, err = xdr.DecodeString(r); err != nil {
			return nil, fmt.Errorf("impl_id domain: %w", err)
		}
		if id.Name, err = xdr.DecodeString(r); err != nil {
			return nil, fmt.Errorf("impl_id name: %w", err)
		}
		if err := id.Date.Decode(r); err != nil {
			return nil, fmt.Errorf("impl_id date: %w", err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("impl_id count %d exceeds maximum 1", count)
}

func encodeImplID(buf *bytes.Buffer, id *ImplID) error {
	if id == nil {
		xdr.WriteUint32(buf, 0)
		return nil
	}
	xdr.WriteUint32(buf, 1)
	if err := xdr.WriteString(buf, id.Domain); err != nil {
		return err
	}
	if err := xdr.WriteString(buf, id.Name); err != nil {
		return err
	}
	return id.Date.Encode(buf)
}

// ExchangeIDArgs establishes the NFSv4.1 client identity.
type ExchangeIDArgs struct {
	Verifier     Verifier4
	OwnerID      []byte
	Flags        uint32
	StateProtect StateProtect
	ImplID       *ImplID
}

func (*ExchangeIDArgs) OpCode() uint32 { return OP_EXCHANGE_ID }

func (a *ExchangeIDArgs) Decode(r io.Reader) error {
	if err := a.Verifier.Decode(r); err != nil {
		return fmt.Errorf("exchange_id verifier: %w", err)
	}
	var err error
	if a.OwnerID, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("exchange_id ownerid: %w", err)
	}
	if a.Flags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("exchange_id flags: %w", err)
	}
	if err := a.StateProtect.decode(r, false); err != nil {
		return err
	}
	if a.ImplID, err = decodeImplID(r); err != nil {
		return err
	}
	return nil
}

func (a *ExchangeIDArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Verifier.Encode(buf); err != nil {
		return err
	}
	if err := xdr.WriteOpaque(buf, a.OwnerID); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.Flags)
	if err := a.StateProtect.encode(buf); err != nil {
		return err
	}
	return encodeImplID(buf, a.ImplID)
}

// ServerOwner4 identifies the server for trunking detection.
type ServerOwner4 struct {
	MinorID uint64
	MajorID []byte
}

// ExchangeIDRes is EXCHANGE_ID4resok.
type ExchangeIDRes struct {
	ClientID     uint64
	SequenceID   uint32
	Flags        uint32
	StateProtect StateProtect
	ServerOwner  ServerOwner4
	ServerScope  []byte
	ServerImplID *ImplID
}

func (*ExchangeIDRes) OpCode() uint32 { return OP_EXCHANGE_ID }

func (res *ExchangeIDRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	var err error
	if res.ClientID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("exchange_id clientid: %w", err)
	}
	if res.SequenceID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("exchange_id sequenceid: %w", err)
	}
	if res.Flags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("exchange_id flags: %w", err)
	}
	if err := res.StateProtect.decode(r, true); err != nil {
		return err
	}
	if res.ServerOwner.MinorID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("exchange_id server_owner minor: %w", err)
	}
	if res.ServerOwner.MajorID, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("exchange_id server_owner major: %w", err)
	}
	if res.ServerScope, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("exchange_id server_scope: %w", err)
	}
	if res.ServerImplID, err = decodeImplID(r); err != nil {
		return err
	}
	return nil
}

func (res *ExchangeIDRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteUint64(buf, res.ClientID)
	xdr.WriteUint32(buf, res.SequenceID)
	xdr.WriteUint32(buf, res.Flags)
	if err := res.StateProtect.encode(buf); err != nil {
		return err
	}
	xdr.WriteUint64(buf, res.ServerOwner.MinorID)
	if err := xdr.WriteOpaque(buf, res.ServerOwner.MajorID); err != nil {
		return err
	}
	if err := xdr.WriteOpaque(buf, res.ServerScope); err != nil {
		return err
	}
	return encodeImplID(buf, res.ServerImplID)
}

// ============================================================================
// CREATE_SESSION (RFC 8881 Section 18.36)
// ============================================================================

// ChannelAttrs is channel_attrs4.
type ChannelAttrs struct {
	HeaderPadSize         uint32
	MaxRequestSize        uint32
	MaxResponseSize       uint32
	MaxResponseSizeCached uint32
	MaxOperations         uint32
	MaxRequests           uint32
	RDMAIRD               []uint32 // zero or one element
}

func (c *ChannelAttrs) Decode(r io.Reader) error {
	var err error
	if c.HeaderPadSize, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel headerpadsize: %w", err)
	}
	if c.MaxRequestSize, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel maxrequestsize: %w", err)
	}
	if c.MaxResponseSize, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel maxresponsesize: %w", err)
	}
	if c.MaxResponseSizeCached, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel maxresponsesize_cached: %w", err)
	}
	if c.MaxOperations, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel maxoperations: %w", err)
	}
	if c.MaxRequests, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("channel maxrequests: %w", err)
	}
	if c.RDMAIRD, err = xdr.DecodeUint32Array(r, 1); err != nil {
		return fmt.Errorf("channel rdma_ird: %w", err)
	}
	return nil
}

func (c *ChannelAttrs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, c.HeaderPadSize)
	xdr.WriteUint32(buf, c.MaxRequestSize)
	xdr.WriteUint32(buf, c.MaxResponseSize)
	xdr.WriteUint32(buf, c.MaxResponseSizeCached)
	xdr.WriteUint32(buf, c.MaxOperations)
	xdr.WriteUint32(buf, c.MaxRequests)
	return xdr.WriteUint32Array(buf, c.RDMAIRD)
}

// CallbackSecParms is one callback_sec_parms4 element. For AUTH_SYS the
// authsys_parms fields are valid; for RPCSEC_GSS the handle fields.
type CallbackSecParms struct {
	Flavor uint32

	// AUTH_SYS
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32

	// RPCSEC_GSS
	Service          uint32
	HandleFromServer []byte
	HandleFromClient []byte
}

func (p *CallbackSecParms) Decode(r io.Reader) error {
	flavor, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("cb_sec_parms flavor: %w", err)
	}
	p.Flavor = flavor
	switch flavor {
	case 0: // AUTH_NONE
		return nil
	case 1: // AUTH_SYS
		if p.Stamp, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("cb_sec_parms stamp: %w", err)
		}
		if p.MachineName, err = xdr.DecodeString(r); err != nil {
			return fmt.Errorf("cb_sec_parms machinename: %w", err)
		}
		if p.UID, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("cb_sec_parms uid: %w", err)
		}
		if p.GID, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("cb_sec_parms gid: %w", err)
		}
		if p.GIDs, err = xdr.DecodeUint32Array(r, 16); err != nil {
			return fmt.Errorf("cb_sec_parms gids: %w", err)
		}
		return nil
	case 6: // RPCSEC_GSS
		if p.Service, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("cb_sec_parms gss service: %w", err)
		}
		if p.HandleFromServer, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
			return fmt.Errorf("cb_sec_parms gss server handle: %w", err)
		}
		if p.HandleFromClient, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
			return fmt.Errorf("cb_sec_parms gss client handle: %w", err)
		}
		return nil
	}
	return fmt.Errorf("cb_sec_parms flavor %d has no defined arm", flavor)
}

func (p *CallbackSecParms) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, p.Flavor)
	switch p.Flavor {
	case 1:
		xdr.WriteUint32(buf, p.Stamp)
		if err := xdr.WriteString(buf, p.MachineName); err != nil {
			return err
		}
		xdr.WriteUint32(buf, p.UID)
		xdr.WriteUint32(buf, p.GID)
		return xdr.WriteUint32Array(buf, p.GIDs)
	case 6:
		xdr.WriteUint32(buf, p.Service)
		if err := xdr.WriteOpaque(buf, p.HandleFromServer); err != nil {
			return err
		}
		return xdr.WriteOpaque(buf, p.HandleFromClient)
	}
	return nil
}

// CreateSessionArgs is CREATE_SESSION4args.
type CreateSessionArgs struct {
	ClientID      uint64
	Sequence      uint32
	Flags         uint32
	ForeChanAttrs ChannelAttrs
	BackChanAttrs ChannelAttrs
	CBProgram     uint32
	SecParms      []CallbackSecParms
}

func (*CreateSessionArgs) OpCode() uint32 { return OP_CREATE_SESSION }

func (a *CreateSessionArgs) Decode(r io.Reader) error {
	var err error
	if a.ClientID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("create_session clientid: %w", err)
	}
	if a.Sequence, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create_session sequence: %w", err)
	}
	if a.Flags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create_session flags: %w", err)
	}
	if err := a.ForeChanAttrs.Decode(r); err != nil {
		return err
	}
	if err := a.BackChanAttrs.Decode(r); err != nil {
		return err
	}
	if a.CBProgram, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create_session cb_program: %w", err)
	}
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("create_session sec_parms count: %w", err)
	}
	if count > maxAlgCount {
		return fmt.Errorf("create_session sec_parms count %d exceeds limit", count)
	}
	a.SecParms = make([]CallbackSecParms, count)
	for i := range a.SecParms {
		if err := a.SecParms[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

func (a *CreateSessionArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.ClientID)
	xdr.WriteUint32(buf, a.Sequence)
	xdr.WriteUint32(buf, a.Flags)
	if err := a.ForeChanAttrs.Encode(buf); err != nil {
		return err
	}
	if err := a.BackChanAttrs.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.CBProgram)
	xdr.WriteUint32(buf, uint32(len(a.SecParms)))
	for i := range a.SecParms {
		if err := a.SecParms[i].Encode(buf); err != nil {
			return err
		}
	}
	return nil
}

// CreateSessionRes is CREATE_SESSION4resok.
type CreateSessionRes struct {
	SessionID     SessionID4
	Sequence      uint32
	Flags         uint32
	ForeChanAttrs ChannelAttrs
	BackChanAttrs ChannelAttrs
}

func (*CreateSessionRes) OpCode() uint32 { return OP_CREATE_SESSION }

func (res *CreateSessionRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.SessionID.Decode(r); err != nil {
		return fmt.Errorf("create_session sessionid: %w", err)
	}
	var err error
	if res.Sequence, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create_session sequence: %w", err)
	}
	if res.Flags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create_session flags: %w", err)
	}
	if err := res.ForeChanAttrs.Decode(r); err != nil {
		return err
	}
	return res.BackChanAttrs.Decode(r)
}

func (res *CreateSessionRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.SessionID.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, res.Sequence)
	xdr.WriteUint32(buf, res.Flags)
	if err := res.ForeChanAttrs.Encode(buf); err != nil {
		return err
	}
	return res.BackChanAttrs.Encode(buf)
}

// ============================================================================
// DESTROY_SESSION (RFC 8881 Section 18.37)
// ============================================================================

// DestroySessionArgs tears down the session.
type DestroySessionArgs struct {
	SessionID SessionID4
}

func (*DestroySessionArgs) OpCode() uint32 { return OP_DESTROY_SESSION }

func (a *DestroySessionArgs) Decode(r io.Reader) error {
	return a.SessionID.Decode(r)
}

func (a *DestroySessionArgs) Encode(buf *bytes.Buffer) error {
	return a.SessionID.Encode(buf)
}

// DestroySessionRes is the void DESTROY_SESSION result.
type DestroySessionRes struct{}

func (*DestroySessionRes) OpCode() uint32                     { return OP_DESTROY_SESSION }
func (*DestroySessionRes) Decode(io.Reader, uint32) error     { return nil }
func (*DestroySessionRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// SEQUENCE (RFC 8881 Section 18.46)
// ============================================================================

// SequenceArgs is SEQUENCE4args, the first operation of every sessionful
// NFSv4.1 compound.
type SequenceArgs struct {
	SessionID     SessionID4
	SequenceID    uint32
	SlotID        uint32
	HighestSlotID uint32
	CacheThis     bool
}

func (*SequenceArgs) OpCode() uint32 { return OP_SEQUENCE }

func (a *SequenceArgs) Decode(r io.Reader) error {
	if err := a.SessionID.Decode(r); err != nil {
		return fmt.Errorf("sequence sessionid: %w", err)
	}
	var err error
	if a.SequenceID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence sequenceid: %w", err)
	}
	if a.SlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence slotid: %w", err)
	}
	if a.HighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence highest_slotid: %w", err)
	}
	if a.CacheThis, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("sequence cachethis: %w", err)
	}
	return nil
}

func (a *SequenceArgs) Encode(buf *bytes.Buffer) error {
	if err := a.SessionID.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.SequenceID)
	xdr.WriteUint32(buf, a.SlotID)
	xdr.WriteUint32(buf, a.HighestSlotID)
	xdr.WriteBool(buf, a.CacheThis)
	return nil
}

func (a *SequenceArgs) String() string {
	return fmt.Sprintf("SEQUENCE(session=%s, seq=%d, slot=%d)", a.SessionID, a.SequenceID, a.SlotID)
}

// SequenceRes is SEQUENCE4resok.
type SequenceRes struct {
	SessionID           SessionID4
	SequenceID          uint32
	SlotID              uint32
	HighestSlotID       uint32
	TargetHighestSlotID uint32
	StatusFlags         uint32
}

func (*SequenceRes) OpCode() uint32 { return OP_SEQUENCE }

func (res *SequenceRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.SessionID.Decode(r); err != nil {
		return fmt.Errorf("sequence sessionid: %w", err)
	}
	var err error
	if res.SequenceID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence sequenceid: %w", err)
	}
	if res.SlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence slotid: %w", err)
	}
	if res.HighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence highest_slotid: %w", err)
	}
	if res.TargetHighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence target_highest_slotid: %w", err)
	}
	if res.StatusFlags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("sequence status_flags: %w", err)
	}
	return nil
}

func (res *SequenceRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.SessionID.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, res.SequenceID)
	xdr.WriteUint32(buf, res.SlotID)
	xdr.WriteUint32(buf, res.HighestSlotID)
	xdr.WriteUint32(buf, res.TargetHighestSlotID)
	xdr.WriteUint32(buf, res.StatusFlags)
	return nil
}

// ============================================================================
// RECLAIM_COMPLETE (RFC 8881 Section 18.51)
// ============================================================================

// ReclaimCompleteArgs signals the end of reclaim after a server restart.
type ReclaimCompleteArgs struct {
	OneFS bool
}

func (*ReclaimCompleteArgs) OpCode() uint32 { return OP_RECLAIM_COMPLETE }

func (a *ReclaimCompleteArgs) Decode(r io.Reader) error {
	v, err := xdr.DecodeBool(r)
	if err != nil {
		return fmt.Errorf("reclaim_complete one_fs: %w", err)
	}
	a.OneFS = v
	return nil
}

func (a *ReclaimCompleteArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteBool(buf, a.OneFS)
	return nil
}

// ReclaimCompleteRes is the void RECLAIM_COMPLETE result.
type ReclaimCompleteRes struct{}

func (*ReclaimCompleteRes) OpCode() uint32                     { return OP_RECLAIM_COMPLETE }
func (*ReclaimCompleteRes) Decode(io.Reader, uint32) error     { return nil }
func (*ReclaimCompleteRes) Encode(*bytes.Buffer, uint32) error { return nil }
