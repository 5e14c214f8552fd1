package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// maxLayoutSegments bounds the segment array of a LAYOUTGET result.
const maxLayoutSegments = 256

// ============================================================================
// LAYOUTGET (RFC 8881 Section 18.43)
// ============================================================================

// LayoutGetArgs requests a layout covering [Offset, Offset+Length) for the
// given I/O mode.
type LayoutGetArgs struct {
	SignalLayoutAvail bool
	LayoutType        uint32
	IOMode            uint32
	Offset            uint64
	Length            uint64
	MinLength         uint64
	Stateid           Stateid4
	MaxCount          uint32
}

func (*LayoutGetArgs) OpCode() uint32 { return OP_LAYOUTGET }

func (a *LayoutGetArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *LayoutGetArgs) Decode(r io.Reader) error {
	var err error
	if a.SignalLayoutAvail, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("layoutget signal_layout_avail: %w", err)
	}
	if a.LayoutType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutget layout_type: %w", err)
	}
	if a.IOMode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutget iomode: %w", err)
	}
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layoutget offset: %w", err)
	}
	if a.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layoutget length: %w", err)
	}
	if a.MinLength, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layoutget minlength: %w", err)
	}
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("layoutget stateid: %w", err)
	}
	if a.MaxCount, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutget maxcount: %w", err)
	}
	return nil
}

func (a *LayoutGetArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteBool(buf, a.SignalLayoutAvail)
	xdr.WriteUint32(buf, a.LayoutType)
	xdr.WriteUint32(buf, a.IOMode)
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint64(buf, a.Length)
	xdr.WriteUint64(buf, a.MinLength)
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.MaxCount)
	return nil
}

func (a *LayoutGetArgs) String() string {
	return fmt.Sprintf("LAYOUTGET(iomode=%d, offset=%d, length=%d)", a.IOMode, a.Offset, a.Length)
}

// LayoutContent is layout_content4. The body is type-specific (file layout,
// block, object) and stays raw; it is length-prefixed on the wire, so it can
// be skipped without interpretation.
type LayoutContent struct {
	Type uint32
	Body []byte
}

func (c *LayoutContent) Decode(r io.Reader) error {
	var err error
	if c.Type, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layout content type: %w", err)
	}
	if c.Body, err = xdr.DecodeOpaque(r); err != nil {
		return fmt.Errorf("layout content body: %w", err)
	}
	return nil
}

func (c *LayoutContent) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, c.Type)
	return xdr.WriteOpaque(buf, c.Body)
}

// LayoutSegment is layout4, one granted extent of a layout.
type LayoutSegment struct {
	Offset  uint64
	Length  uint64
	IOMode  uint32
	Content LayoutContent
}

func (s *LayoutSegment) Decode(r io.Reader) error {
	var err error
	if s.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layout offset: %w", err)
	}
	if s.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layout length: %w", err)
	}
	if s.IOMode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layout iomode: %w", err)
	}
	return s.Content.Decode(r)
}

func (s *LayoutSegment) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, s.Offset)
	xdr.WriteUint64(buf, s.Length)
	xdr.WriteUint32(buf, s.IOMode)
	return s.Content.Encode(buf)
}

// LayoutGetRes carries the granted layout segments, or the try-later hint
// on NFS4ERR_LAYOUTTRYLATER.
type LayoutGetRes struct {
	ReturnOnClose bool
	Stateid       Stateid4
	Layouts       []LayoutSegment

	WillSignalLayoutAvail bool
}

func (*LayoutGetRes) OpCode() uint32 { return OP_LAYOUTGET }

func (res *LayoutGetRes) OpStateid() *Stateid4 { return &res.Stateid }

func (res *LayoutGetRes) Decode(r io.Reader, status uint32) error {
	switch status {
	case NFS4_OK:
		var err error
		if res.ReturnOnClose, err = xdr.DecodeBool(r); err != nil {
			return fmt.Errorf("layoutget return_on_close: %w", err)
		}
		if err := res.Stateid.Decode(r); err != nil {
			return fmt.Errorf("layoutget stateid: %w", err)
		}
		count, err := xdr.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("layoutget segment count: %w", err)
		}
		if count > maxLayoutSegments {
			return fmt.Errorf("layoutget segment count %d exceeds limit %d", count, maxLayoutSegments)
		}
		res.Layouts = make([]LayoutSegment, count)
		for i := range res.Layouts {
			if err := res.Layouts[i].Decode(r); err != nil {
				return err
			}
		}
		return nil
	case NFS4ERR_LAYOUTTRYLATER:
		var err error
		if res.WillSignalLayoutAvail, err = xdr.DecodeBool(r); err != nil {
			return fmt.Errorf("layoutget will_signal: %w", err)
		}
	}
	return nil
}

func (res *LayoutGetRes) Encode(buf *bytes.Buffer, status uint32) error {
	switch status {
	case NFS4_OK:
		xdr.WriteBool(buf, res.ReturnOnClose)
		if err := res.Stateid.Encode(buf); err != nil {
			return err
		}
		xdr.WriteUint32(buf, uint32(len(res.Layouts)))
		for i := range res.Layouts {
			if err := res.Layouts[i].Encode(buf); err != nil {
				return err
			}
		}
	case NFS4ERR_LAYOUTTRYLATER:
		xdr.WriteBool(buf, res.WillSignalLayoutAvail)
	}
	return nil
}

// ============================================================================
// LAYOUTRETURN (RFC 8881 Section 18.44)
// ============================================================================

// LayoutReturnArgs returns layouts for a file, an fsid, or everything. The
// file fields are valid only for LAYOUTRETURN4_FILE.
type LayoutReturnArgs struct {
	Reclaim    bool
	LayoutType uint32
	IOMode     uint32
	ReturnType uint32

	Offset  uint64
	Length  uint64
	Stateid Stateid4
	Body    []byte
}

func (*LayoutReturnArgs) OpCode() uint32 { return OP_LAYOUTRETURN }

func (a *LayoutReturnArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *LayoutReturnArgs) Decode(r io.Reader) error {
	var err error
	if a.Reclaim, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("layoutreturn reclaim: %w", err)
	}
	if a.LayoutType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutreturn layout_type: %w", err)
	}
	if a.IOMode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutreturn iomode: %w", err)
	}
	if a.ReturnType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("layoutreturn returntype: %w", err)
	}
	switch a.ReturnType {
	case LAYOUTRETURN4_FILE:
		if a.Offset, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("layoutreturn offset: %w", err)
		}
		if a.Length, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("layoutreturn length: %w", err)
		}
		if err := a.Stateid.Decode(r); err != nil {
			return fmt.Errorf("layoutreturn stateid: %w", err)
		}
		if a.Body, err = xdr.DecodeOpaque(r); err != nil {
			return fmt.Errorf("layoutreturn body: %w", err)
		}
	case LAYOUTRETURN4_FSID, LAYOUTRETURN4_ALL:
		// void arms
	default:
		return fmt.Errorf("layoutreturn returntype %d has no defined arm", a.ReturnType)
	}
	return nil
}

func (a *LayoutReturnArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteBool(buf, a.Reclaim)
	xdr.WriteUint32(buf, a.LayoutType)
	xdr.WriteUint32(buf, a.IOMode)
	xdr.WriteUint32(buf, a.ReturnType)
	if a.ReturnType == LAYOUTRETURN4_FILE {
		xdr.WriteUint64(buf, a.Offset)
		xdr.WriteUint64(buf, a.Length)
		if err := a.Stateid.Encode(buf); err != nil {
			return err
		}
		return xdr.WriteOpaque(buf, a.Body)
	}
	return nil
}

// LayoutReturnRes optionally carries the remaining layout stateid; absent
// means the client holds no more layouts for the file.
type LayoutReturnRes struct {
	Present bool
	Stateid Stateid4
}

func (*LayoutReturnRes) OpCode() uint32 { return OP_LAYOUTRETURN }

func (res *LayoutReturnRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	var err error
	if res.Present, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("layoutreturn present: %w", err)
	}
	if res.Present {
		return res.Stateid.Decode(r)
	}
	return nil
}

func (res *LayoutReturnRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteBool(buf, res.Present)
	if res.Present {
		return res.Stateid.Encode(buf)
	}
	return nil
}

// ============================================================================
// LAYOUTCOMMIT (RFC 8881 Section 18.42)
// ============================================================================

// LayoutCommitArgs commits layout writes back to the metadata server.
// LastWriteOffset and TimeModify are optional on the wire; the pointer is
// nil when absent.
type LayoutCommitArgs struct {
	Offset          uint64
	Length          uint64
	Reclaim         bool
	Stateid         Stateid4
	LastWriteOffset *uint64
	TimeModify      *NFSTime4
	LayoutUpdate    LayoutContent
}

func (*LayoutCommitArgs) OpCode() uint32 { return OP_LAYOUTCOMMIT }

func (a *LayoutCommitArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *LayoutCommitArgs) Decode(r io.Reader) error {
	var err error
	if a.Offset, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layoutcommit offset: %w", err)
	}
	if a.Length, err = xdr.DecodeUint64(r); err != nil {
		return fmt.Errorf("layoutcommit length: %w", err)
	}
	if a.Reclaim, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("layoutcommit reclaim: %w", err)
	}
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("layoutcommit stateid: %w", err)
	}
	present, err := xdr.DecodeBool(r)
	if err != nil {
		return fmt.Errorf("layoutcommit newoffset: %w", err)
	}
	if present {
		v, err := xdr.DecodeUint64(r)
		if err != nil {
			return fmt.Errorf("layoutcommit last_write_offset: %w", err)
		}
		a.LastWriteOffset = &v
	}
	present, err = xdr.DecodeBool(r)
	if err != nil {
		return fmt.Errorf("layoutcommit newtime: %w", err)
	}
	if present {
		var t NFSTime4
		if err := t.Decode(r); err != nil {
			return fmt.Errorf("layoutcommit time_modify: %w", err)
		}
		a.TimeModify = &t
	}
	return a.LayoutUpdate.Decode(r)
}

func (a *LayoutCommitArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint64(buf, a.Offset)
	xdr.WriteUint64(buf, a.Length)
	xdr.WriteBool(buf, a.Reclaim)
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteBool(buf, a.LastWriteOffset != nil)
	if a.LastWriteOffset != nil {
		xdr.WriteUint64(buf, *a.LastWriteOffset)
	}
	xdr.WriteBool(buf, a.TimeModify != nil)
	if a.TimeModify != nil {
		if err := a.TimeModify.Encode(buf); err != nil {
			return err
		}
	}
	return a.LayoutUpdate.Encode(buf)
}

// LayoutCommitRes optionally reports the new file size.
type LayoutCommitRes struct {
	NewSize *uint64
}

func (*LayoutCommitRes) OpCode() uint32 { return OP_LAYOUTCOMMIT }

func (res *LayoutCommitRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	present, err := xdr.DecodeBool(r)
	if err != nil {
		return fmt.Errorf("layoutcommit sizechanged: %w", err)
	}
	if present {
		v, err := xdr.DecodeUint64(r)
		if err != nil {
			return fmt.Errorf("layoutcommit newsize: %w", err)
		}
		res.NewSize = &v
	}
	return nil
}

func (res *LayoutCommitRes) Encode(buf *bytes.Buffer, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	xdr.WriteBool(buf, res.NewSize != nil)
	if res.NewSize != nil {
		xdr.WriteUint64(buf, *res.NewSize)
	}
	return nil
}

// ============================================================================
// GETDEVICEINFO (RFC 8881 Section 18.40)
// ============================================================================

// GetDeviceInfoArgs resolves a device ID to its address body.
type GetDeviceInfoArgs struct {
	DeviceID    DeviceID4
	LayoutType  uint32
	MaxCount    uint32
	NotifyTypes Bitmap4
}

func (*GetDeviceInfoArgs) OpCode() uint32 { return OP_GETDEVICEINFO }

func (a *GetDeviceInfoArgs) Decode(r io.Reader) error {
	if err := a.DeviceID.Decode(r); err != nil {
		return fmt.Errorf("getdeviceinfo deviceid: %w", err)
	}
	var err error
	if a.LayoutType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("getdeviceinfo layout_type: %w", err)
	}
	if a.MaxCount, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("getdeviceinfo maxcount: %w", err)
	}
	if err := a.NotifyTypes.Decode(r); err != nil {
		return fmt.Errorf("getdeviceinfo notify_types: %w", err)
	}
	return nil
}

func (a *GetDeviceInfoArgs) Encode(buf *bytes.Buffer) error {
	if err := a.DeviceID.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.LayoutType)
	xdr.WriteUint32(buf, a.MaxCount)
	return a.NotifyTypes.Encode(buf)
}

// GetDeviceInfoRes carries the device address. The address body is layout
// type specific and stays raw, like LayoutContent. On NFS4ERR_TOOSMALL the
// server reports the size it needed.
type GetDeviceInfoRes struct {
	LayoutType   uint32
	AddrBody     []byte
	Notification Bitmap4
	MinCount     uint32
}

func (*GetDeviceInfoRes) OpCode() uint32 { return OP_GETDEVICEINFO }

func (res *GetDeviceInfoRes) Decode(r io.Reader, status uint32) error {
	switch status {
	case NFS4_OK:
		var err error
		if res.LayoutType, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("getdeviceinfo layout_type: %w", err)
		}
		if res.AddrBody, err = xdr.DecodeOpaque(r); err != nil {
			return fmt.Errorf("getdeviceinfo addr_body: %w", err)
		}
		if err := res.Notification.Decode(r); err != nil {
			return fmt.Errorf("getdeviceinfo notification: %w", err)
		}
	case NFS4ERR_TOOSMALL:
		var err error
		if res.MinCount, err = xdr.DecodeUint32(r); err != nil {
			return fmt.Errorf("getdeviceinfo mincount: %w", err)
		}
	}
	return nil
}

func (res *GetDeviceInfoRes) Encode(buf *bytes.Buffer, status uint32) error {
	switch status {
	case NFS4_OK:
		xdr.WriteUint32(buf, res.LayoutType)
		if err := xdr.WriteOpaque(buf, res.AddrBody); err != nil {
			return err
		}
		return res.Notification.Encode(buf)
	case NFS4ERR_TOOSMALL:
		xdr.WriteUint32(buf, res.MinCount)
	}
	return nil
}
