package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// File types per RFC 7530 Section 2.2 (nfs_ftype4), consumed by CREATE.
const (
	NF4REG       = 1
	NF4DIR       = 2
	NF4BLK       = 3
	NF4CHR       = 4
	NF4LNK       = 5
	NF4SOCK      = 6
	NF4FIFO      = 7
	NF4ATTRDIR   = 8
	NF4NAMEDATTR = 9
)

// maxDirEntries bounds a single READDIR result. Servers chunk listings by
// maxcount, so anything past this is a corrupt entry chain.
const maxDirEntries = 65536

// ============================================================================
// LOOKUP (RFC 7530 Section 16.13)
// ============================================================================

// LookupArgs names the component to look up under the current filehandle.
type LookupArgs struct {
	ObjName string
}

func (*LookupArgs) OpCode() uint32 { return OP_LOOKUP }

func (a *LookupArgs) Decode(r io.Reader) error {
	name, err := xdr.DecodeString(r)
	if err != nil {
		return fmt.Errorf("lookup objname: %w", err)
	}
	a.ObjName = name
	return nil
}

func (a *LookupArgs) Encode(buf *bytes.Buffer) error {
	return xdr.WriteString(buf, a.ObjName)
}

func (a *LookupArgs) String() string {
	return fmt.Sprintf("LOOKUP(%q)", a.ObjName)
}

// LookupRes is the void LOOKUP result.
type LookupRes struct{}

func (*LookupRes) OpCode() uint32                     { return OP_LOOKUP }
func (*LookupRes) Decode(io.Reader, uint32) error     { return nil }
func (*LookupRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// CREATE (RFC 7530 Section 16.4)
// ============================================================================

// CreateArgs creates a non-regular file object. Regular files are created
// through OPEN.
//
//	union createtype4 switch (nfs_ftype4 type) {
//	    case NF4LNK:  linktext4 linkdata;
//	    case NF4BLK:
//	    case NF4CHR:  specdata4 devdata;
//	    case NF4SOCK:
//	    case NF4FIFO:
//	    case NF4DIR:  void;
//	};
type CreateArgs struct {
	ObjType  uint32
	LinkData string    // NF4LNK only
	SpecData [2]uint32 // NF4BLK/NF4CHR only
	ObjName  string
	Attrs    Fattr4
}

func (*CreateArgs) OpCode() uint32 { return OP_CREATE }

func (a *CreateArgs) Decode(r io.Reader) error {
	var err error
	if a.ObjType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("create objtype: %w", err)
	}
	switch a.ObjType {
	case NF4LNK:
		if a.LinkData, err = xdr.DecodeString(r); err != nil {
			return fmt.Errorf("create linkdata: %w", err)
		}
	case NF4BLK, NF4CHR:
		if a.SpecData[0], err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("create specdata1: %w", err)
		}
		if a.SpecData[1], err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("create specdata2: %w", err)
		}
	case NF4DIR, NF4SOCK, NF4FIFO:
		// void arm
	default:
		return fmt.Errorf("create objtype %d has no defined arm", a.ObjType)
	}
	if a.ObjName, err = xdr.DecodeString(r); err != nil {
		return fmt.Errorf("create objname: %w", err)
	}
	if err := a.Attrs.Decode(r); err != nil {
		return fmt.Errorf("create attrs: %w", err)
	}
	return nil
}

func (a *CreateArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.ObjType)
	switch a.ObjType {
	case NF4LNK:
		if err := xdr.WriteString(buf, a.LinkData); err != nil {
			return err
		}
	case NF4BLK, NF4CHR:
		xdr.WriteUint32(buf, a.SpecData[0])
		xdr.WriteUint32(buf, a.SpecData[1])
	}
	if err := xdr.WriteString(buf, a.ObjName); err != nil {
		return err
	}
	return a.Attrs.Encode(buf)
}

// CreateRes reports the directory change and the attributes actually set.
type CreateRes struct {
	CInfo   ChangeInfo4
	AttrSet Bitmap4
}

func (*CreateRes) OpCode() uint32 { return OP_CREATE }

func (res *CreateRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.CInfo.Decode(r); err != nil {
		return fmt.Errorf("create cinfo: %w", err)
	}
	if err := res.AttrSet.Decode(r); err != nil {
		return fmt.Errorf("create attrset: %w", err)
	}
	return nil
}

func (res *CreateRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.CInfo.Encode(buf); err != nil {
		return err
	}
	return res.AttrSet.Encode(buf)
}

// ============================================================================
// REMOVE (RFC 7530 Section 16.26)
// ============================================================================

// RemoveArgs names the entry to remove from the current directory.
type RemoveArgs struct {
	Target string
}

func (*RemoveArgs) OpCode() uint32 { return OP_REMOVE }

func (a *RemoveArgs) Decode(r io.Reader) error {
	target, err := xdr.DecodeString(r)
	if err != nil {
		return fmt.Errorf("remove target: %w", err)
	}
	a.Target = target
	return nil
}

func (a *RemoveArgs) Encode(buf *bytes.Buffer) error {
	return xdr.WriteString(buf, a.Target)
}

// RemoveRes reports the directory change on success.
type RemoveRes struct {
	CInfo ChangeInfo4
}

func (*RemoveRes) OpCode() uint32 { return OP_REMOVE }

func (res *RemoveRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.CInfo.Decode(r); err != nil {
		return fmt.Errorf("remove cinfo: %w", err)
	}
	return nil
}

func (res *RemoveRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	return res.CInfo.Encode(buf)
}

// ============================================================================
// READDIR (RFC 7530 Section 16.24)
// ============================================================================

// ReadDirArgs pages through a directory.
type ReadDirArgs struct {
	Cookie      uint64
	CookieVerf  Verifier4
	DirCount    uint32
	MaxCount    uint32
	AttrRequest Bitmap4
}

func (*ReadDirArgs) OpCode() uint32 { return OP_READDIR }

func (a *ReadDirArgs) Decode(r io.Reader) error {
	var err error
	if a.Cookie, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("readdir cookie: %w", err)
	}
	if err := a.CookieVerf.Decode(r); err != nil {
		return fmt.Errorf("readdir cookieverf: %w", err)
	}
	if a.DirCount, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("readdir dircount: %w", err)
	}
	if a.MaxCount, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("readdir maxcount: %w", err)
	}
	if err := a.AttrRequest.Decode(r); err != nil {
		return fmt.Errorf("readdir attr_request: %w", err)
	}
	return nil
}

func (a *ReadDirArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.Cookie)
	if err := a.CookieVerf.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.DirCount)
	xdr.WriteUint32(buf, a.MaxCount)
	return a.AttrRequest.Encode(buf)
}

// DirEntry is one entry4 of a READDIR result. Attributes stay raw, as in
// Fattr4.
type DirEntry struct {
	Cookie uint64
	Name   string
	Attrs  Fattr4
}

// ReadDirRes carries one page of directory entries.
type ReadDirRes struct {
	CookieVerf Verifier4
	Entries    []DirEntry
	EOF        bool
}

func (*ReadDirRes) OpCode() uint32 { return OP_READDIR }

func (res *ReadDirRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.CookieVerf.Decode(r); err != nil {
		return fmt.Errorf("readdir cookieverf: %w", err)
	}
	for {
		more, err := xdr.DecodeBool(r)
		if err != nil {
			return fmt.Errorf("readdir nextentry: %w", err)
		}
		if !more {
			break
		}
		if len(res.Entries) >= maxDirEntries {
			return fmt.Errorf("readdir entry chain exceeds %d entries", maxDirEntries)
		}
		var e DirEntry
		if e.Cookie, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("readdir entry cookie: %w", err)
		}
		if e.Name, err = xdr.DecodeString(r); err != nil {
			return fmt.Errorf("readdir entry name: %w", err)
		}
		if err := e.Attrs.Decode(r); err != nil {
			return fmt.Errorf("readdir entry attrs: %w", err)
		}
		res.Entries = append(res.Entries, e)
	}
	eof, err := xdr.DecodeBool(r)
	if err != nil {
		return fmt.Errorf("readdir eof: %w", err)
	}
	res.EOF = eof
	return nil
}

func (res *ReadDirRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.CookieVerf.Encode(buf); err != nil {
		return err
	}
	for i := range res.Entries {
		xdr.WriteBool(buf, true)
		xdr.WriteUint64(buf, res.Entries[i].Cookie)
		if err := xdr.WriteString(buf, res.Entries[i].Name); err != nil {
			return err
		}
		if err := res.Entries[i].Attrs.Encode(buf); err != nil {
			return err
		}
	}
	xdr.WriteBool(buf, false)
	xdr.WriteBool(buf, res.EOF)
	return nil
}
