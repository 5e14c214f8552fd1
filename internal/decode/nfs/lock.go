package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// LOCK (RFC 7530 Section 16.10)
// ============================================================================

// LockOwner4 identifies a lock-owner within a client.
type LockOwner4 struct {
	ClientID uint64
	Owner    []byte
}

func (o *LockOwner4) Decode(r io.Reader) error {
	var err error
	if o.ClientID, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lock_owner clientid: %w", err)
	}
	if o.Owner, err = xdr.DecodeOpaqueMax(r, 1024); err != nil {
		return fmt.Errorf("lock_owner owner: %w", err)
	}
	return nil
}

func (o *LockOwner4) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, o.ClientID)
	return xdr.WriteOpaque(buf, o.Owner)
}

// LockArgs is LOCK4args. The locker4 union is flattened: when NewLockOwner
// is true the open stateid and both seqids plus Owner are valid, otherwise
// LockStateid and LockSeqid identify the existing lock-owner.
type LockArgs struct {
	LockType uint32
	Reclaim  bool
	Offset   uint64
	Length   uint64

	NewLockOwner bool
	OpenSeqid    uint32
	OpenStateid  Stateid4
	LockSeqid    uint32
	LockStateid  Stateid4
	Owner        LockOwner4
}

func (*LockArgs) OpCode() uint32 { return OP_LOCK }

func (a *LockArgs) Decode(r io.Reader) error {
	var err error
	if a.LockType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("lock locktype: %w", err)
	}
	if a.Reclaim, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("lock reclaim: %w", err)
	}
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lock offset: %w", err)
	}
	if a.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lock length: %w", err)
	}
	if a.NewLockOwner, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("lock new_lock_owner: %w", err)
	}
	if a.NewLockOwner {
		if a.OpenSeqid, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("lock open_seqid: %w", err)
		}
		if err := a.OpenStateid.Decode(r); err != nil {
			return fmt.Errorf("lock open_stateid: %w", err)
		}
		if a.LockSeqid, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("lock lock_seqid: %w", err)
		}
		return a.Owner.Decode(r)
	}
	if err := a.LockStateid.Decode(r); err != nil {
		return fmt.Errorf("lock lock_stateid: %w", err)
	}
	if a.LockSeqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("lock lock_seqid: %w", err)
	}
	return nil
}

func (a *LockArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.LockType)
	xdr.WriteBool(buf, a.Reclaim)
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint64(buf, a.Length)
	xdr.WriteBool(buf, a.NewLockOwner)
	if a.NewLockOwner {
		xdr.WriteUint32(buf, a.OpenSeqid)
		if err := a.OpenStateid.Encode(buf); err != nil {
			return err
		}
		xdr.WriteUint32(buf, a.LockSeqid)
		return a.Owner.Encode(buf)
	}
	if err := a.LockStateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.LockSeqid)
	return nil
}

// LockDenied is LOCK4denied, the conflicting lock reported on
// NFS4ERR_DENIED.
type LockDenied struct {
	Offset   uint64
	Length   uint64
	LockType uint32
	Owner    LockOwner4
}

func (d *LockDenied) Decode(r io.Reader) error {
	var err error
	if d.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lock denied offset: %w", err)
	}
	if d.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lock denied length: %w", err)
	}
	if d.LockType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("lock denied locktype: %w", err)
	}
	return d.Owner.Decode(r)
}

func (d *LockDenied) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, d.Offset)
	xdr.WriteUint64(buf, d.Length)
	xdr.WriteUint32(buf, d.LockType)
	return d.Owner.Encode(buf)
}

// LockRes carries the lock stateid on success, or the conflicting lock when
// the status is NFS4ERR_DENIED.
type LockRes struct {
	LockStateid Stateid4
	Denied      *LockDenied
}

func (*LockRes) OpCode() uint32 { return OP_LOCK }

func (res *LockRes) OpStateid() *Stateid4 { return &res.LockStateid }

func (res *LockRes) Decode(r io.Reader, status uint32) error {
	switch status {
	case NFS4_OK:
		return res.LockStateid.Decode(r)
	case NFS4ERR_DENIED:
		res.Denied = new(LockDenied)
		return res.Denied.Decode(r)
	}
	return nil
}

func (res *LockRes) Encode(buf *bytes.Buffer, status uint32) error {
	switch status {
	case NFS4_OK:
		return res.LockStateid.Encode(buf)
	case NFS4ERR_DENIED:
		if res.Denied == nil {
			return fmt.Errorf("lock denied arm without conflict detail")
		}
		return res.Denied.Encode(buf)
	}
	return nil
}

// ============================================================================
// LOCKT (RFC 7530 Section 16.11)
// ============================================================================

// LockTArgs tests for a conflicting lock without acquiring one.
type LockTArgs struct {
	LockType uint32
	Offset   uint64
	Length   uint64
	Owner    LockOwner4
}

func (*LockTArgs) OpCode() uint32 { return OP_LOCKT }

func (a *LockTArgs) Decode(r io.Reader) error {
	var err error
	if a.LockType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("lockt locktype: %w", err)
	}
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lockt offset: %w", err)
	}
	if a.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("lockt length: %w", err)
	}
	return a.Owner.Decode(r)
}

func (a *LockTArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.LockType)
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint64(buf, a.Length)
	return a.Owner.Encode(buf)
}

// LockTRes is void on success; NFS4ERR_DENIED carries the conflict.
type LockTRes struct {
	Denied *LockDenied
}

func (*LockTRes) OpCode() uint32 { return OP_LOCKT }

func (res *LockTRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4ERR_DENIED {
		return nil
	}
	res.Denied = new(LockDenied)
	return res.Denied.Decode(r)
}

func (res *LockTRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4ERR_DENIED {
		return nil
	}
	if res.Denied == nil {
		return fmt.Errorf("lockt denied arm without conflict detail")
	}
	return res.Denied.Encode(buf)
}

// ============================================================================
// LOCKU (RFC 7530 Section 16.12)
// ============================================================================

// LockUArgs releases the byte range held under the lock stateid.
type LockUArgs struct {
	LockType    uint32
	Seqid       uint32
	LockStateid Stateid4
	Offset      uint64
	Length      uint64
}

func (*LockUArgs) OpCode() uint32 { return OP_LOCKU }

func (a *LockUArgs) OpStateid() *Stateid4 { return &a.LockStateid }

func (a *LockUArgs) Decode(r io.Reader) error {
	var err error
	if a.LockType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("locku locktype: %w", err)
	}
	if a.Seqid, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("locku seqid: %w", err)
	}
	if err := a.LockStateid.Decode(r); err != nil {
		return fmt.Errorf("locku lock_stateid: %w", err)
	}
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("locku offset: %w", err)
	}
	if a.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("locku length: %w", err)
	}
	return nil
}

func (a *LockUArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.LockType)
	xdr.WriteUint32(buf, a.Seqid)
	if err := a.LockStateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint64(buf, a.Length)
	return nil
}

// LockURes returns the lock stateid with its seqid advanced.
type LockURes struct {
	LockStateid Stateid4
}

func (*LockURes) OpCode() uint32 { return OP_LOCKU }

func (res *LockURes) OpStateid() *Stateid4 { return &res.LockStateid }

func (res *LockURes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.LockStateid.Decode(r)
}

func (res *LockURes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.LockStateid.Encode(buf)
}
