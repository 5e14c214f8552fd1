package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// SETCLIENTID (RFC 7530 Section 16.33)
// ============================================================================

// ClientAddr4 is the universal address form used for callback locations.
type ClientAddr4 struct {
	NetID string
	Addr  string
}

func (c *ClientAddr4) Decode(r io.Reader) error {
	var err error
	if c.NetID, err = xdr.DecodeString(r); err != nil {
		return fmt.Errorf("clientaddr netid: %w", err)
	}
	if c.Addr, err = xdr.DecodeString(r); err != nil {
		return fmt.Errorf("clientaddr addr: %w", err)
	}
	return nil
}

func (c *ClientAddr4) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteString(buf, c.NetID); err != nil {
		return err
	}
	return xdr.WriteString(buf, c.Addr)
}

// SetClientIDArgs establishes a client identity and its callback target
// (NFSv4.0; EXCHANGE_ID replaces this in 4.1).
type SetClientIDArgs struct {
	Verifier      Verifier4
	ID            []byte
	CBProgram     uint32
	CBLocation    ClientAddr4
	CallbackIdent uint32
}

func (*SetClientIDArgs) OpCode() uint32 { return OP_SETCLIENTID }

func (a *SetClientIDArgs) Decode(r io.Reader) error {
	if err := a.Verifier.Decode(r); err != nil {
		return fmt.Errorf("setclientid verifier: %w", err)
	}
	var err error
	if a.ID, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("setclientid id: %w", err)
	}
	if a.CBProgram, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("setclientid cb_program: %w", err)
	}
	if err := a.CBLocation.Decode(r); err != nil {
		return err
	}
	if a.CallbackIdent, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("setclientid callback_ident: %w", err)
	}
	return nil
}

func (a *SetClientIDArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Verifier.Encode(buf); err != nil {
		return err
	}
	if err := xdr.WriteOpaque(buf, a.ID); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.CBProgram)
	if err := a.CBLocation.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.CallbackIdent)
	return nil
}

// SetClientIDRes carries the clientid and the confirmation verifier. On
// NFS4ERR_CLID_INUSE it instead reports the address using the id.
type SetClientIDRes struct {
	ClientID uint64
	Confirm  Verifier4
	InUseBy  *ClientAddr4
}

func (*SetClientIDRes) OpCode() uint32 { return OP_SETCLIENTID }

func (res *SetClientIDRes) Decode(r io.Reader, status uint32) error {
	switch status {
	case NFS4_OK:
		var err error
		if res.ClientID, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("setclientid clientid: %w", err)
		}
		if err := res.Confirm.Decode(r); err != nil {
			return fmt.Errorf("setclientid confirm: %w", err)
		}
	case NFS4ERR_CLID_INUSE:
		res.InUseBy = new(ClientAddr4)
		return res.InUseBy.Decode(r)
	}
	return nil
}

func (res *SetClientIDRes) Encode(buf *bytes.Buffer, status uint32) error {
	switch status {
	case NFS4_OK:
		xdr.WriteUint64(buf, res.ClientID)
		return res.Confirm.Encode(buf)
	case NFS4ERR_CLID_INUSE:
		if res.InUseBy == nil {
			return fmt.Errorf("setclientid in-use arm without address")
		}
		return res.InUseBy.Encode(buf)
	}
	return nil
}

// ============================================================================
// SETCLIENTID_CONFIRM (RFC 7530 Section 16.34)
// ============================================================================

// SetClientIDConfirmArgs confirms the clientid issued by SETCLIENTID.
type SetClientIDConfirmArgs struct {
	ClientID uint64
	Confirm  Verifier4
}

func (*SetClientIDConfirmArgs) OpCode() uint32 { return OP_SETCLIENTID_CONFIRM }

func (a *SetClientIDConfirmArgs) Decode(r io.Reader) error {
	var err error
	if a.ClientID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("setclientid_confirm clientid: %w", err)
	}
	if err := a.Confirm.Decode(r); err != nil {
		return fmt.Errorf("setclientid_confirm verifier: %w", err)
	}
	return nil
}

func (a *SetClientIDConfirmArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.ClientID)
	return a.Confirm.Encode(buf)
}

// SetClientIDConfirmRes is the void confirmation result.
type SetClientIDConfirmRes struct{}

func (*SetClientIDConfirmRes) OpCode() uint32                     { return OP_SETCLIENTID_CONFIRM }
func (*SetClientIDConfirmRes) Decode(io.Reader, uint32) error     { return nil }
func (*SetClientIDConfirmRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// RENEW (RFC 7530 Section 16.27)
// ============================================================================

// RenewArgs refreshes the client's lease (NFSv4.0; SEQUENCE renews in 4.1).
type RenewArgs struct {
	ClientID uint64
}

func (*RenewArgs) OpCode() uint32 { return OP_RENEW }

func (a *RenewArgs) Decode(r io.Reader) error {
	v, err := xdr.DecodeUint64(r)
	if err != nil {
		return fmt.Errorf("renew clientid: %w", err)
	}
	a.ClientID = v
	return nil
}

func (a *RenewArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.ClientID)
	return nil
}

// RenewRes is the void RENEW result.
type RenewRes struct{}

func (*RenewRes) OpCode() uint32                     { return OP_RENEW }
func (*RenewRes) Decode(io.Reader, uint32) error     { return nil }
func (*RenewRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// DELEGRETURN (RFC 7530 Section 16.6)
// ============================================================================

// DelegReturnArgs hands a delegation back to the server, typically in
// response to a CB_RECALL.
type DelegReturnArgs struct {
	Stateid Stateid4
}

func (*DelegReturnArgs) OpCode() uint32 { return OP_DELEGRETURN }

func (a *DelegReturnArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *DelegReturnArgs) Decode(r io.Reader) error {
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("delegreturn stateid: %w", err)
	}
	return nil
}

func (a *DelegReturnArgs) Encode(buf *bytes.Buffer) error {
	return a.Stateid.Encode(buf)
}

// DelegReturnRes is the void DELEGRETURN result.
type DelegReturnRes struct{}

func (*DelegReturnRes) OpCode() uint32                     { return OP_DELEGRETURN }
func (*DelegReturnRes) Decode(io.Reader, uint32) error     { return nil }
func (*DelegReturnRes) Encode(*bytes.Buffer, uint32) error { return nil }
