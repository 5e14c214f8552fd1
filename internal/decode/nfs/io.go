package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// READ (RFC 7530 Section 16.23)
// ============================================================================

// ReadArgs reads Count bytes at Offset under the given stateid. The special
// anonymous and bypass stateids are legal here (RFC 7530 Section 9.1.4.3).
type ReadArgs struct {
	Stateid Stateid4
	Offset  uint64
	Count   uint32
}

func (*ReadArgs) OpCode() uint32 { return OP_READ }

func (a *ReadArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *ReadArgs) Decode(r io.Reader) error {
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("read stateid: %w", err)
	}
	var err error
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("read offset: %w", err)
	}
	if a.Count, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	return nil
}

func (a *ReadArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint32(buf, a.Count)
	return nil
}

func (a *ReadArgs) String() string {
	return fmt.Sprintf("READ(offset=%d, count=%d)", a.Offset, a.Count)
}

// ReadRes carries the data and the end-of-file flag.
type ReadRes struct {
	EOF  bool
	Data []byte
}

func (*ReadRes) OpCode() uint32 { return OP_READ }

func (res *ReadRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	var err error
	if res.EOF, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("read eof: %w", err)
	}
	if res.Data, err = xdr.DecodeOpaqueMax(r, MaxReadData); err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	return nil
}

func (res *ReadRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteBool(buf, res.EOF)
	return xdr.WriteOpaque(buf, res.Data)
}

// ============================================================================
// WRITE (RFC 7530 Section 16.36)
// ============================================================================

// WriteArgs writes Data at Offset with the requested stability.
type WriteArgs struct {
	Stateid Stateid4
	Offset  uint64
	Stable  uint32
	Data    []byte
}

func (*WriteArgs) OpCode() uint32 { return OP_WRITE }

func (a *WriteArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *WriteArgs) Decode(r io.Reader) error {
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("write stateid: %w", err)
	}
	var err error
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	if a.Stable, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("write stable: %w", err)
	}
	if a.Data, err = xdr.DecodeOpaqueMax(r, MaxReadData); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func (a *WriteArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint32(buf, a.Stable)
	return xdr.WriteOpaque(buf, a.Data)
}

func (a *WriteArgs) String() string {
	return fmt.Sprintf("WRITE(offset=%d, len=%d, stable=%d)", a.Offset, len(a.Data), a.Stable)
}

// WriteRes reports how much was written and at what stability.
type WriteRes struct {
	Count     uint32
	Committed uint32
	Verifier  Verifier4
}

func (*WriteRes) OpCode() uint32 { return OP_WRITE }

func (res *WriteRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	var err error
	if res.Count, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if res.Committed, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("write committed: %w", err)
	}
	if err := res.Verifier.Decode(r); err != nil {
		return fmt.Errorf("write verifier: %w", err)
	}
	return nil
}

func (res *WriteRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteUint32(buf, res.Count)
	xdr.WriteUint32(buf, res.Committed)
	return res.Verifier.Encode(buf)
}

// ============================================================================
// COMMIT (RFC 7530 Section 16.3)
// ============================================================================

// CommitArgs flushes unstable writes in [Offset, Offset+Count).
type CommitArgs struct {
	Offset uint64
	Count  uint32
}

func (*CommitArgs) OpCode() uint32 { return OP_COMMIT }

func (a *CommitArgs) Decode(r io.Reader) error {
	var err error
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	if a.Count, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("commit count: %w", err)
	}
	return nil
}

func (a *CommitArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint32(buf, a.Count)
	return nil
}

// CommitRes carries the write verifier for the committed range.
type CommitRes struct {
	Verifier Verifier4
}

func (*CommitRes) OpCode() uint32 { return OP_COMMIT }

func (res *CommitRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.Verifier.Decode(r)
}

func (res *CommitRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.Verifier.Encode(buf)
}
