package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// Access bits per RFC 7530 Section 16.1 (ACCESS4_*).
const (
	ACCESS4_READ    = 0x01
	ACCESS4_LOOKUP  = 0x02
	ACCESS4_MODIFY  = 0x04
	ACCESS4_EXTEND  = 0x08
	ACCESS4_DELETE  = 0x10
	ACCESS4_EXECUTE = 0x20
)

// ============================================================================
// ACCESS (RFC 7530 Section 16.1)
// ============================================================================

// AccessArgs asks which access bits the caller holds on the current object.
type AccessArgs struct {
	Access uint32
}

func (*AccessArgs) OpCode() uint32 { return OP_ACCESS }

func (a *AccessArgs) Decode(r io.Reader) error {
	v, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("access bits: %w", err)
	}
	a.Access = v
	return nil
}

func (a *AccessArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.Access)
	return nil
}

// AccessRes reports supported and granted access bits.
type AccessRes struct {
	Supported uint32
	Access    uint32
}

func (*AccessRes) OpCode() uint32 { return OP_ACCESS }

func (res *AccessRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	var err error
	if res.Supported, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("access supported: %w", err)
	}
	if res.Access, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("access granted: %w", err)
	}
	return nil
}

func (res *AccessRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteUint32(buf, res.Supported)
	xdr.WriteUint32(buf, res.Access)
	return nil
}

// ============================================================================
// GETATTR (RFC 7530 Section 16.7)
// ============================================================================

// GetAttrArgs requests the attributes named by the bitmap.
type GetAttrArgs struct {
	AttrRequest Bitmap4
}

func (*GetAttrArgs) OpCode() uint32 { return OP_GETATTR }

func (a *GetAttrArgs) Decode(r io.Reader) error {
	return a.AttrRequest.Decode(r)
}

func (a *GetAttrArgs) Encode(buf *bytes.Buffer) error {
	return a.AttrRequest.Encode(buf)
}

// GetAttrRes carries the attributes the server returned.
type GetAttrRes struct {
	Attrs Fattr4
}

func (*GetAttrRes) OpCode() uint32 { return OP_GETATTR }

func (res *GetAttrRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.Attrs.Decode(r)
}

func (res *GetAttrRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.Attrs.Encode(buf)
}

// ============================================================================
// SETATTR (RFC 7530 Section 16.32)
// ============================================================================

// SetAttrArgs sets attributes on the current object. The stateid matters
// when a size change truncates an open file.
type SetAttrArgs struct {
	Stateid Stateid4
	Attrs   Fattr4
}

func (*SetAttrArgs) OpCode() uint32 { return OP_SETATTR }

func (a *SetAttrArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *SetAttrArgs) Decode(r io.Reader) error {
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("setattr stateid: %w", err)
	}
	if err := a.Attrs.Decode(r); err != nil {
		return fmt.Errorf("setattr attrs: %w", err)
	}
	return nil
}

func (a *SetAttrArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	return a.Attrs.Encode(buf)
}

// SetAttrRes lists the attributes actually set. Unlike most results the
// bitmap is present on error too (RFC 7530 Section 16.32.1).
type SetAttrRes struct {
	AttrsSet Bitmap4
}

func (*SetAttrRes) OpCode() uint32 { return OP_SETATTR }

func (res *SetAttrRes) Decode(r io.Reader, _ uint32) error {
	return res.AttrsSet.Decode(r)
}

func (res *SetAttrRes) Encode(buf *bytes.Buffer, _ uint32) error {
	return res.AttrsSet.Encode(buf)
}
