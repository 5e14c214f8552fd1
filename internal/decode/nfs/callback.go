package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nfstrace/nfstrace/internal/xdr"
)

// Layout recall scopes per RFC 8881 Section 20.3 (layoutrecall_type4).
const (
	LAYOUT4_RET_REC_FILE = 1
	LAYOUT4_RET_REC_FSID = 2
	LAYOUT4_RET_REC_ALL  = 3
)

// maxReferringCalls bounds the referring-call lists of a CB_SEQUENCE.
const maxReferringCalls = 64

// ============================================================================
// CB_SEQUENCE (RFC 8881 Section 20.9)
// ============================================================================

// ReferringCall names one forward-channel request a callback depends on.
type ReferringCall struct {
	SequenceID uint32
	SlotID     uint32
}

// ReferringCallList groups referring calls by session.
type ReferringCallList struct {
	SessionID SessionID4
	Calls     []ReferringCall
}

// CBSequenceArgs is CB_SEQUENCE4args, the first operation of every
// sessionful callback compound.
type CBSequenceArgs struct {
	SessionID      SessionID4
	SequenceID     uint32
	SlotID         uint32
	HighestSlotID  uint32
	CacheThis      bool
	ReferringCalls []ReferringCallList
}

func (*CBSequenceArgs) OpCode() uint32 { return OP_CB_SEQUENCE }

func (a *CBSequenceArgs) Decode(r io.Reader) error {
	if err := a.SessionID.Decode(r); err != nil {
		return fmt.Errorf("cb_sequence sessionid: %w", err)
	}
	var err error
	if a.SequenceID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence sequenceid: %w", err)
	}
	if a.SlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence slotid: %w", err)
	}
	if a.HighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence highest_slotid: %w", err)
	}
	if a.CacheThis, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("cb_sequence cachethis: %w", err)
	}
	listCount, err := xdr.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("cb_sequence referring list count: %w", err)
	}
	if listCount > maxReferringCalls {
		return fmt.Errorf("cb_sequence referring list count %d exceeds limit", listCount)
	}
	a.ReferringCalls = make([]ReferringCallList, listCount)
	for i := range a.ReferringCalls {
		list := &a.ReferringCalls[i]
		if err := list.SessionID.Decode(r); err != nil {
			return fmt.Errorf("cb_sequence referring sessionid: %w", err)
		}
		callCount, err := xdr.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("cb_sequence referring call count: %w", err)
		}
		if callCount > maxReferringCalls {
			return fmt.Errorf("cb_sequence referring call count %d exceeds limit", callCount)
		}
		list.Calls = make([]ReferringCall, callCount)
		for j := range list.Calls {
			if list.Calls[j].SequenceID, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("cb_sequence referring sequenceid: %w", err)
			}
			if list.Calls[j].SlotID, err = xdr.DecodeUint32(r); err != nil {
				return fmt.Errorf("cb_sequence referring slotid: %w", err)
			}
		}
	}
	return nil
}

func (a *CBSequenceArgs) Encode(buf *bytes.Buffer) error {
	if err := a.SessionID.Encode(buf); err != nil {
		return err
	}
	xdr.WriteUint32(buf, a.SequenceID)
	xdr.WriteUint32(buf, a.SlotID)
	xdr.WriteUint32(buf, a.HighestSlotID)
	xdr.WriteBool(buf, a.CacheThis)
	xdr.WriteUint32(buf, uint32(len(a.ReferringCalls)))
	for i := range a.ReferringCalls {
		list := &a.ReferringCalls[i]
		if err := list.SessionID.Encode(buf); err != nil {
			return err
		}
		xdr.WriteUint32(buf, uint32(len(list.Calls)))
		for j := range list.Calls {
			xdr.WriteUint32(buf, list.Calls[j].SequenceID)
			xdr.WriteUint32(buf, list.Calls[j].SlotID)
		}
	}
	return nil
}

// CBSequenceRes is CB_SEQUENCE4resok.
type CBSequenceRes struct {
	SessionID           SessionID4
	SequenceID          uint32
	SlotID              uint32
	HighestSlotID       uint32
	TargetHighestSlotID uint32
}

func (*CBSequenceRes) OpCode() uint32 { return OP_CB_SEQUENCE }

func (res *CBSequenceRes) Decode(r io.Reader, status uint32) error {
	if status != NFS4_OK {
		return nil
	}
	if err := res.SessionID.Decode(r); err != nil {
		return fmt.Errorf("cb_sequence sessionid: %w", err)
	}
	var err error
	if res.SequenceID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence sequenceid: %w", err)
	}
	if res.SlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence slotid: %w", err)
	}
	if res.HighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence highest_slotid: %w", err)
	}
	if res.TargetHighestSlotID, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_sequence target_highest_slotid: %w", err)
	}
	return nil
}

func (res *CBSequenceRes) Encode(buf *bytes.Buffer, status uint32) error {
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
	return nil
}

// ============================================================================
// CB_RECALL (RFC 7530 Section 17.2)
// ============================================================================

// CBRecallArgs recalls an outstanding delegation.
type CBRecallArgs struct {
	Stateid  Stateid4
	Truncate bool
	FH       FileHandle
}

func (*CBRecallArgs) OpCode() uint32 { return OP_CB_RECALL }

func (a *CBRecallArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *CBRecallArgs) Decode(r io.Reader) error {
	if err := a.Stateid.Decode(r); err != nil {
		return fmt.Errorf("cb_recall stateid: %w", err)
	}
	var err error
	if a.Truncate, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("cb_recall truncate: %w", err)
	}
	if a.FH, err = decodeFileHandle(r); err != nil {
		return err
	}
	return nil
}

func (a *CBRecallArgs) Encode(buf *bytes.Buffer) error {
	if err := a.Stateid.Encode(buf); err != nil {
		return err
	}
	xdr.WriteBool(buf, a.Truncate)
	return xdr.WriteOpaque(buf, a.FH)
}

// CBRecallRes is the void CB_RECALL result.
type CBRecallRes struct{}

func (*CBRecallRes) OpCode() uint32                     { return OP_CB_RECALL }
func (*CBRecallRes) Decode(io.Reader, uint32) error     { return nil }
func (*CBRecallRes) Encode(*bytes.Buffer, uint32) error { return nil }

// ============================================================================
// CB_LAYOUTRECALL (RFC 8881 Section 20.3)
// ============================================================================

// CBLayoutRecallArgs recalls layouts for a file, an fsid, or everything.
// The file fields are valid for LAYOUT4_RET_REC_FILE, the fsid fields for
// LAYOUT4_RET_REC_FSID.
type CBLayoutRecallArgs struct {
	LayoutType uint32
	IOMode     uint32
	Changed    bool
	RecallType uint32

	FH      FileHandle
	Offset  uint64
	Length  uint64
	Stateid Stateid4

	FSIDMajor uint64
	FSIDMinor uint64
}

func (*CBLayoutRecallArgs) OpCode() uint32 { return OP_CB_LAYOUTRECALL }

func (a *CBLayoutRecallArgs) OpStateid() *Stateid4 { return &a.Stateid }

func (a *CBLayoutRecallArgs) Decode(r io.Reader) error {
	var err error
	if a.LayoutType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_layoutrecall layout_type: %w", err)
	}
	if a.IOMode, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_layoutrecall iomode: %w", err)
	}
	if a.Changed, err = xdr.DecodeBool(r); err != nil {
		return fmt.Errorf("cb_layoutrecall changed: %w", err)
	}
	if a.RecallType, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("cb_layoutrecall recalltype: %w", err)
	}
	switch a.RecallType {
	case LAYOUT4_RET_REC_FILE:
		if a.FH, err = decodeFileHandle(r); err != nil {
			return err
		}
		if a.Offset, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("cb_layoutrecall offset: %w", err)
		}
		if a.Length, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("cb_layoutrecall length: %w", err)
		}
		if err := a.Stateid.Decode(r); err != nil {
			return fmt.Errorf("cb_layoutrecall stateid: %w", err)
		}
	case LAYOUT4_RET_REC_FSID:
		if a.FSIDMajor, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("cb_layoutrecall fsid major: %w", err)
		}
		if a.FSIDMinor, err = xdr.DecodeUint64(r); err != nil {
			return fmt.Errorf("cb_layoutrecall fsid minor: %w", err)
		}
	case LAYOUT4_RET_REC_ALL:
		// void arm
	default:
		return fmt.Errorf("cb_layoutrecall recalltype %d has no defined arm", a.RecallType)
	}
	return nil
}

func (a *CBLayoutRecallArgs) Encode(buf *bytes.Buffer) error {
	xdr.WriteUint32(buf, a.LayoutType)
	xdr.WriteUint32(buf, a.IOMode)
	xdr.WriteBool(buf, a.Changed)
	xdr.WriteUint32(buf, a.RecallType)
	switch a.RecallType {
	case LAYOUT4_RET_REC_FILE:
		if err := xdr.WriteOpaque(buf, a.FH); err != nil {
			return err
		}
		xdr.WriteUint64(buf, a.Offset)
		xdr.WriteUint64(buf, a.Length)
		return a.Stateid.Encode(buf)
	case LAYOUT4_RET_REC_FSID:
		xdr.WriteUint64(buf, a.FSIDMajor)
		xdr.WriteUint64(buf, a.FSIDMinor)
	}
	return nil
}

// CBLayoutRecallRes is the void CB_LAYOUTRECALL result.
type CBLayoutRecallRes struct{}

func (*CBLayoutRecallRes) OpCode() uint32                     { return OP_CB_LAYOUTRECALL }
func (*CBLayoutRecallRes) Decode(io.Reader, uint32) error     { return nil }
func (*CBLayoutRecallRes) Encode(*bytes.Buffer, uint32) error { return nil }
