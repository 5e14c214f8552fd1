package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// Share reservation bits per RFC 7530 Section 16.16 (OPEN4_SHARE_*).
const (
	OPEN4_SHARE_ACCESS_READ  = 1
	OPEN4_SHARE_ACCESS_WRITE = 2
	OPEN4_SHARE_ACCESS_BOTH  = 3

	OPEN4_SHARE_DENY_NONE  = 0
	OPEN4_SHARE_DENY_READ  = 1
	OPEN4_SHARE_DENY_WRITE = 2
	OPEN4_SHARE_DENY_BOTH  = 3
)

// OPEN result flags per RFC 7530 Section 16.16.
const (
	OPEN4_RESULT_CONFIRM        = 2
	OPEN4_RESULT_LOCKTYPE_POSIX = 4
)

// Space limit discriminants per RFC 7530 Section 16.16 (limit_by4).
const (
	NFS_LIMIT_SIZE   = 1
	NFS_LIMIT_BLOCKS = 2
)

// why_no_delegation4 discriminants per RFC 8881 Section 18.16.
const (
	WND4_NOT_WANTED                 = 0
	WND4_CONTENTION                 = 1
	WND4_RESOURCE                   = 2
	WND4_NOT_SUPP_FTYPE             = 3
	WND4_WRITE_DELEG_NOT_SUPP_FTYPE = 4
	WND4_NOT_SUPP_UPGRADE           = 5
	WND4_NOT_SUPP_DOWNGRADE         = 6
	WND4_CANCELLED                  = 7
	WND4_IS_DIR                     = 8
)

// ============================================================================
// OPEN (RFC 7530 Section 16.16, RFC 8881 Section 18.16)
// ============================================================================

// OpenOwner4 identifies the open-owner within a client.
type OpenOwner4 struct {
	ClientID uint64
	Owner    []byte
}

func (o *OpenOwner4) Decode(r io.Reader) error {
	var err error
	if o.ClientID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("open_owner clientid: %w", err)
	}
	if o.Owner, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("open_owner owner: %w", err)
	}
	return nil
}

func (o *OpenOwner4) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, o.ClientID)
	return xdr.WriteOpaque(buf, o.Owner)
}

// CreateHow is the createhow4 union, populated when OpenType is OPEN4_CREATE.
// Attrs is valid for UNCHECKED4/GUARDED4, Verifier for EXCLUSIVE4, and both
// for EXCLUSIVE4_1.
type CreateHow struct {
	Mode     uint32
	Attrs    Fattr4
	Verifier Verifier4
}

func (c *CreateHow) decode(r io.Reader) error {
	mode, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("createhow mode: %w", err)
	}
	c.Mode = mode
	switch mode {
	case UNCHECKED4, GUARDED4:
		return c.Attrs.Decode(r)
	case EXCLUSIVE4:
		return c.Verifier.Decode(r)
	case EXCLUSIVE4_1:
		if err := c.Verifier.Decode(r); err != nil {
			return err
		}
		return c.Attrs.Decode(r)
	}
	return fmt.Errorf("createhow mode %d has no defined arm", mode)
}

func (c *CreateHow) encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, c.Mode)
	switch c.Mode {
	case UNCHECKED4, GUARDED4:
		return c.Attrs.Encode(buf)
	case EXCLUSIVE4:
		return c.Verifier.Encode(buf)
	case EXCLUSIVE4_1:
		if err := c.Verifier.Encode(buf); err != nil {
			return err
		}
		return c.Attrs.Encode(buf)
	}
	return nil
}

// OpenClaim is the open_claim4 union. Which fields are meaningful depends on
// Type: File for CLAIM_NULL/CLAIM_DELEGATE_CUR/CLAIM_DELEGATE_PREV,
// DelegateType for CLAIM_PREVIOUS, DelegateStateid for CLAIM_DELEGATE_CUR
// and CLAIM_DELEG_CUR_FH.
type OpenClaim struct {
	Type            uint32
	File            string
	DelegateType    uint32
	DelegateStateid Stateid4
}

func (c *OpenClaim) decode(r io.Reader) error {
	typ, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("open claim type: %w", err)
	}
	c.Type = typ
	switch typ {
	case CLAIM_NULL, CLAIM_DELEGATE_PREV:
		c.File, err = xdr.DecodeString(r)
		if err != nil {
			return fmt.Errorf("open claim file: %w", err)
		}
	case CLAIM_PREVIOUS:
		c.DelegateType, err = xdr.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("open claim delegate_type: %w", err)
		}
	case CLAIM_DELEGATE_CUR:
		if err := c.DelegateStateid.Decode(r); err != nil {
			return fmt.Errorf("open claim delegate_stateid: %w", err)
		}
		c.File, err = xdr.DecodeString(r)
		if err != nil {
			return fmt.Errorf("open claim file: %w", err)
		}
	case CLAIM_DELEG_CUR_FH:
		if err := c.DelegateStateid.Decode(r); err != nil {
			return fmt.Errorf("open claim delegate_stateid: %w", err)
		}
	case CLAIM_FH, CLAIM_DELEG_PREV_FH:
		// void arms
	default:
		return fmt.Errorf("open claim type %d has no defined arm", typ)
	}
	return nil
}

func (c *OpenClaim) encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, c.Type)
	switch c.Type {
	case CLAIM_NULL, CLAIM_DELEGATE_PREV:
		return xdr.WriteString(buf, c.File)
	case CLAIM_PREVIOUS:
		xdr.WriteUint32(buf, c.DelegateType)
	case CLAIM_DELEGATE_CUR:
		if err := c.DelegateStateid.Encode(buf); err != nil {
			return err
		}
		return xdr.WriteString(buf, c.File)
	case CLAIM_DELEG_CUR_FH:
		return c.DelegateStateid.Encode(buf)
	}
	return nil
}

// OpenArgs is OPEN4args.
type OpenArgs struct {
	Seqid       uint32
	ShareAccess uint32
	ShareDeny   uint32
	Owner       OpenOwner4
	OpenType    uint32
	How         CreateHow // OPEN4_CREATE only
	Claim       OpenClaim
}

func (*OpenArgs) OpCode() uint32 { return OP_OPEN }

func (a *OpenArgs) Decode(r io.Reader) error {
	var err error
	if a.Seqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open seqid: %w", err)
	}
	if a.ShareAccess, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open share_access: %w", err)
	}
	if a.ShareDeny, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open share_deny: %w", err)
	}
	if err := a.Owner.Decode(r); err != nil {
		return err
	}
	if a.OpenType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open opentype: %w", err)
	}
	switch a.OpenType {
	case OPEN4_NOCREATE:
	case OPEN4_CREATE:
		if err := a.How.decode(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("open opentype %d has no defined arm", a.OpenType)
	}
	return a.Claim.decode(r)
}

func (a *OpenArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.Seqid)
	xdr.WriteUint32(buf, a.ShareAccess)
	xdr.WriteUint32(buf, a.ShareDeny)
	if err := a.Owner.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.OpenType)
	if a.OpenType == OPEN4_CREATE {
		if err := a.How.encode(buf); err != nil {
			return err
		}
	}
	return a.Claim.encode(buf)
}

func (a *OpenArgs) String() string {
	return fmt.Sprintf("OPEN(claim=%d, access=%d, owner client=%#x)",
		a.Claim.Type, a.ShareAccess, a.Owner.ClientID)
}

// SpaceLimit is nfs_space_limit4, carried by write delegations.
type SpaceLimit struct {
	LimitBy       uint32
	Filesize      uint64 // NFS_LIMIT_SIZE
	NumBlocks     uint32 // NFS_LIMIT_BLOCKS
	BytesPerBlock uint32 // NFS_LIMIT_BLOCKS
}

func (s *SpaceLimit) decode(r io.Reader) error {
	limitBy, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("space_limit limitby: %w", err)
	}
	s.LimitBy = limitBy
	switch limitBy {
	case NFS_LIMIT_SIZE:
		if s.Filesize, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("space_limit filesize: %w", err)
		}
	case NFS_LIMIT_BLOCKS:
		if s.NumBlocks, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("space_limit num_blocks: %w", err)
		}
		if s.BytesPerBlock, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("space_limit bytes_per_block: %w", err)
		}
	default:
		return fmt.Errorf("space_limit limitby %d has no defined arm", limitBy)
	}
	return nil
}

func (s *SpaceLimit) encode(buf *bytes.Buffer) {
	xdr.WriteUint32(buf, s.LimitBy)
	switch s.LimitBy {
	case NFS_LIMIT_SIZE:
		xdr.WriteUint64(buf, s.Filesize)
	case NFS_LIMIT_BLOCKS:
		xdr.WriteUint32(buf, s.NumBlocks)
		xdr.WriteUint32(buf, s.BytesPerBlock)
	}
}

// OpenDelegation is the open_delegation4 union of an OPEN result. Stateid,
// Recall, and Permissions are valid for READ and WRITE grants; SpaceLimit
// for WRITE; WhyNone and WillNotify for the NFSv4.1 NONE_EXT arm.
type OpenDelegation struct {
	Type        uint32
	Stateid     Stateid4
	Recall      bool
	SpaceLimit  SpaceLimit
	Permissions NFSACE4
	WhyNone     uint32
	WillNotify  bool
}

func (d *OpenDelegation) decode(r io.Reader) error {
	typ, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("delegation type: %w", err)
	}
	d.Type = typ
	switch typ {
	case OPEN_DELEGATE_NONE:
		return nil
	case OPEN_DELEGATE_READ:
		if err := d.Stateid.Decode(r); err != nil {
			return fmt.Errorf("delegation stateid: %w", err)
		}
		if d.Recall, err = xdr.DecodeBool(r); err != nil {
			return fmt.Errorf("delegation recall: %w", err)
		}
		return d.Permissions.Decode(r)
	case OPEN_DELEGATE_WRITE:
		if err := d.Stateid.Decode(r); err != nil {
			return fmt.Errorf("delegation stateid: %w", err)
		}
		if d.Recall, err = xdr.DecodeBool(r); err != nil {
			return fmt.Errorf("delegation recall: %w", err)
		}
		if err := d.SpaceLimit.decode(r); err != nil {
			return err
		}
		return d.Permissions.Decode(r)
	case OPEN_DELEGATE_NONE_EXT:
		if d.WhyNone, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("delegation why_none: %w", err)
		}
		switch d.WhyNone {
		case WND4_CONTENTION, WND4_RESOURCE:
			if d.WillNotify, err = xdr.DecodeBool(r); err != nil {
				return fmt.Errorf("delegation will_notify: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("delegation type %d has no defined arm", typ)
}

func (d *OpenDelegation) encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, d.Type)
	switch d.Type {
	case OPEN_DELEGATE_READ:
		if err := d.Stateid.Encode(buf); err != nil {
			return err
		}
		xdr.WriteBool(buf, d.Recall)
		return d.Permissions.Encode(buf)
	case OPEN_DELEGATE_WRITE:
		if err := d.Stateid.Encode(buf); err != nil {
			return err
		}
		xdr.WriteBool(buf, d.Recall)
		d.SpaceLimit.encode(buf)
		return d.Permissions.Encode(buf)
	case OPEN_DELEGATE_NONE_EXT:
		xdr.WriteUint32(buf, d.WhyNone)
		switch d.WhyNone {
		case WND4_CONTENTION, WND4_RESOURCE:
			xdr.WriteBool(buf, d.WillNotify)
		}
	}
	return nil
}

// OpenRes is OPEN4resok. The open stateid is the handle every later I/O and
// CLOSE on the file refers back to.
type OpenRes struct {
	Stateid    Stateid4
	CInfo      ChangeInfo4
	RFlags     uint32
	AttrSet    Bitmap4
	Delegation OpenDelegation
}

func (*OpenRes) OpCode() uint32 { return OP_OPEN }

func (res *OpenRes) OpStateid() *Stateid4 { return &res.Stateid }

func (res *OpenRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.Stateid.Decode(r); err != nil {
		return fmt.Errorf("open stateid: %w", err)
	}
	if err := res.CInfo.Decode(r); err != nil {
		return fmt.Errorf("open cinfo: %w", err)
	}
	var err error
	if res.RFlags, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open rflags: %w", err)
	}
	if err := res.AttrSet.Decode(r); err != nil {
		return fmt.Errorf("open attrset: %w", err)
	}
	return res.Delegation.decode(r)
}

func (res *OpenRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.Stateid.Encode(buf); err != nil {
		return err
	}
	if err := res.CInfo.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, res.RFlags)
	if err := res.AttrSet.Encode(buf); err != nil {
		return err
	}
	return res.Delegation.encode(buf)
}

// ============================================================================
// OPEN_CONFIRM (RFC 7530 Section 16.18)
// ============================================================================

// OpenConfirmArgs confirms the first open by an open-owner (NFSv4.0 only).
type OpenConfirmArgs struct {
	OpenStateid Stateid4
	Seqid       uint32
}

func (*OpenConfirmArgs) OpCode() uint32 { return OP_OPEN_CONFIRM }

func (a *OpenConfirmArgs) OpStateid() *Stateid4 { return &a.OpenStateid }

func (a *OpenConfirmArgs) Decode(r io.Reader) error {
	if err := a.OpenStateid.Decode(r); err != nil {
		return fmt.Errorf("open_confirm stateid: %w", err)
	}
	var err error
	if a.Seqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("open_confirm seqid: %w", err)
	}
	return nil
}

func (a *OpenConfirmArgs) Encode(buf *bytes.Buffer) error {
	if err := a.OpenStateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.Seqid)
	return nil
}

// OpenConfirmRes carries the confirmed stateid.
type OpenConfirmRes struct {
	OpenStateid Stateid4
}

func (*OpenConfirmRes) OpCode() uint32 { return OP_OPEN_CONFIRM }

func (res *OpenConfirmRes) OpStateid() *Stateid4 { return &res.OpenStateid }

func (res *OpenConfirmRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.OpenStateid.Decode(r)
}

func (res *OpenConfirmRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.OpenStateid.Encode(buf)
}

// ============================================================================
// CLOSE (RFC 7530 Section 16.2)
// ============================================================================

// CloseArgs releases the open state named by the stateid.
type CloseArgs struct {
	Seqid       uint32
	OpenStateid Stateid4
}

func (*CloseArgs) OpCode() uint32 { return OP_CLOSE }

func (a *CloseArgs) OpStateid() *Stateid4 { return &a.OpenStateid }

func (a *CloseArgs) Decode(r io.Reader) error {
	var err error
	if a.Seqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("close seqid: %w", err)
	}
	if err := a.OpenStateid.Decode(r); err != nil {
		return fmt.Errorf("close stateid: %w", err)
	}
	return nil
}

func (a *CloseArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.Seqid)
	return a.OpenStateid.Encode(buf)
}

// CloseRes returns the retired stateid.
type CloseRes struct {
	OpenStateid Stateid4
}

func (*CloseRes) OpCode() uint32 { return OP_CLOSE }

func (res *CloseRes) OpStateid() *Stateid4 { return &res.OpenStateid }

func (res *CloseRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.OpenStateid.Decode(r)
}

func (res *CloseRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.OpenStateid.Encode(buf)
}
