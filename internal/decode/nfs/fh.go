package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// ============================================================================
// PUTFH (RFC 7530 Section 16.20)
// ============================================================================

// PutFHArgs sets the current filehandle.
//
//	struct PUTFH4args {
//	    nfs_fh4 object;
//	};
type PutFHArgs struct {
	Object FileHandle
}

func (*PutFHArgs) OpCode() uint32 { return OP_PUTFH }

func (a *PutFHArgs) Decode(r io.Reader) error {
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	a.Object = fh
	return nil
}

func (a *PutFHArgs) Encode(buf *bytes.Buffer) error {
	return xdr.WriteOpaque(buf, a.Object)
}

func (a *PutFHArgs) String() string {
	return fmt.Sprintf("PUTFH(fh=%s)", a.Object)
}

// PutFHRes is the void PUTFH result.
type PutFHRes struct{}

func (*PutFHRes) OpCode() uint32                     { return OP_PUTFH }
func (*PutFHRes) Decode(io.Reader, uint32) error     { return nil }
func (*PutFHRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// PUTROOTFH (RFC 7530 Section 16.22)
// ============================================================================

// PutRootFHArgs is void: the operation sets the current filehandle to the
// server's root.
type PutRootFHArgs struct{}

func (*PutRootFHArgs) OpCode() uint32             { return OP_PUTROOTFH }
func (*PutRootFHArgs) Decode(io.Reader) error     { return nil }
func (*PutRootFHArgs) Encode(*bytes.Buffer) error { return nil }

// PutRootFHRes is the void PUTROOTFH result.
type PutRootFHRes struct{}

func (*PutRootFHRes) OpCode() uint32                     { return OP_PUTROOTFH }
func (*PutRootFHRes) Decode(io.Reader, uint32) error     { return nil }
func (*PutRootFHRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// GETFH (RFC 7530 Section 16.8)
// ============================================================================

// GetFHArgs is void: the operation returns the current filehandle.
type GetFHArgs struct{}

func (*GetFHArgs) OpCode() uint32             { return OP_GETFH }
func (*GetFHArgs) Decode(io.Reader) error     { return nil }
func (*GetFHArgs) Encode(*bytes.Buffer) error { return nil }

// GetFHRes carries the current filehandle on success.
//
//	struct GETFH4resok {
//	    nfs_fh4 object;
//	};
type GetFHRes struct {
	Object FileHandle
}

func (*GetFHRes) OpCode() uint32 { return OP_GETFH }

func (res *GetFHRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	res.Object = fh
	return nil
}

func (res *GetFHRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return xdr.WriteOpaque(buf, res.Object)
}

// ============================================================================
// SAVEFH / RESTOREFH (RFC 7530 Sections 16.30, 16.29)
// ============================================================================

// SaveFHArgs is void.
type SaveFHArgs struct{}

func (*SaveFHArgs) OpCode() uint32             { return OP_SAVEFH }
func (*SaveFHArgs) Decode(io.Reader) error     { return nil }
func (*SaveFHArgs) Encode(*bytes.Buffer) error { return nil }

// SaveFHRes is the void SAVEFH result.
type SaveFHRes struct{}

func (*SaveFHRes) OpCode() uint32                     { return OP_SAVEFH }
func (*SaveFHRes) Decode(io.Reader, uint32) error     { return nil }
func (*SaveFHRes) Encode(*bytes.Buffer, uint32) error { return nil }

// RestoreFHArgs is void.
type RestoreFHArgs struct{}

func (*RestoreFHArgs) OpCode() uint32             { return OP_RESTOREFH }
func (*RestoreFHArgs) Decode(io.Reader) error     { return nil }
func (*RestoreFHArgs) Encode(*bytes.Buffer) error { return nil }

// RestoreFHRes is the void RESTOREFH result.
type RestoreFHRes struct{}

func (*RestoreFHRes) OpCode() uint32                     { return OP_RESTOREFH }
func (*RestoreFHRes) Decode(io.Reader, uint32) error     { return nil }
func (*RestoreFHRes) Encode(*bytes.Buffer, uint32) error { return nil }
