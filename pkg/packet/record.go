// Package packet defines the decoded record model: one Record per captured
// frame, carrying the protocol layers that decoded plus a marker describing
// where and why decoding stopped. Records are immutable once built; search
// and reporting layers share them freely.
package packet

import (
	"fmt"
	"strings"
	"time"

	"github.com/nfstrace/nfstrace/internal/decode/nfs"
	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// ============================================================================
// Stop Marker
// ============================================================================

// StopCode classifies why layer decoding ended before the NFS layer.
type StopCode uint8

const (
	// StopNone: every layer present decoded through the end of the chain.
	StopNone StopCode = iota

	// StopUnsupported: the next layer is not a protocol the chain decodes
	// (ARP, IPv6, UDP, a non-RPC TCP port). Expected, not an error.
	StopUnsupported

	// StopTruncated: the snapshot length cut the next layer short.
	StopTruncated

	// StopMalformed: the next layer's bytes contradict its own format.
	StopMalformed

	// StopReassemblyPending: this frame is one piece of a larger unit (IP
	// fragment, TCP segment mid-message) whose decode completes on a later
	// record.
	StopReassemblyPending

	// StopReassemblyFailed: reassembly state for this frame's unit was
	// discarded (overflow, timeout, corrupt framing).
	StopReassemblyFailed
)

func (c StopCode) String() string {
	switch c {
	case StopNone:
		return "none"
	case StopUnsupported:
		return "unsupported"
	case StopTruncated:
		return "truncated"
	case StopMalformed:
		return "malformed"
	case StopReassemblyPending:
		return "reassembly-pending"
	case StopReassemblyFailed:
		return "reassembly-failed"
	}
	return fmt.Sprintf("stop(%d)", uint8(c))
}

// Stop describes where decoding of a record ended. Layer names the layer
// that could not be produced ("ip", "tcp", "rpc", "nfs").
type Stop struct {
	Code   StopCode
	Layer  string
	Detail string
}

// Ok reports whether decoding ran the full chain.
func (s Stop) Ok() bool { return s.Code == StopNone }

func (s Stop) String() string {
	if s.Code == StopNone {
		return "decoded"
	}
	if s.Detail == "" {
		return fmt.Sprintf("%s at %s", s.Code, s.Layer)
	}
	return fmt.Sprintf("%s at %s: %s", s.Code, s.Layer, s.Detail)
}

// ============================================================================
// Record
// ============================================================================

// Decoded is one RPC message (and its NFS decode, when the program is NFS)
// beyond the first completed at a record.
type Decoded struct {
	RPC *rpc.Message
	NFS *nfs.Message
}

// Record is one decoded capture frame. The layer pointers form a contiguous
// prefix: TCP is never set without IP, RPC never without TCP. A nil layer
// with a Stop marker on that layer's name tells why the chain ended there.
//
// When several RPC messages complete inside one TCP segment, RPC/NFS hold
// the first and Trailing the rest in stream order.
type Record struct {
	Frame   int
	Pos     trace.Position
	Time    time.Time
	CapLen  uint32
	OrigLen uint32

	Eth *Ethernet
	IP  *IPv4
	TCP *TCP
	RPC *rpc.Message
	NFS *nfs.Message

	Trailing []Decoded

	Stop Stop
}

// Truncated reports whether the snapshot length clipped the frame.
func (r *Record) Truncated() bool {
	return r.CapLen < r.OrigLen
}

// Layers returns the names of the layers present, outermost first.
func (r *Record) Layers() []string {
	names := make([]string, 0, 5)
	if r.Eth != nil {
		names = append(names, "eth")
	}
	if r.IP != nil {
		names = append(names, "ip")
	}
	if r.TCP != nil {
		names = append(names, "tcp")
	}
	if r.RPC != nil {
		names = append(names, "rpc")
	}
	if r.NFS != nil {
		names = append(names, "nfs")
	}
	return names
}

// Layer returns the decoded layer with the given name, or nil. Recognized
// names are "eth", "ip", "tcp", "rpc", and "nfs".
func (r *Record) Layer(name string) any {
	switch name {
	case "eth", "ethernet":
		if r.Eth != nil {
			return r.Eth
		}
	case "ip":
		if r.IP != nil {
			return r.IP
		}
	case "tcp":
		if r.TCP != nil {
			return r.TCP
		}
	case "rpc":
		if r.RPC != nil {
			return r.RPC
		}
	case "nfs":
		if r.NFS != nil {
			return r.NFS
		}
	}
	return nil
}

// Field resolves a dotted "layer.field" path ("ip.src", "tcp.dst_port",
// "rpc.xid") against the record, so match expressions need no knowledge of
// the decode chain. The second result is false when the layer is absent or
// the field unknown.
func (r *Record) Field(path string) (any, bool) {
	layer, field, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}
	switch layer {
	case "eth", "ethernet":
		if r.Eth == nil {
			return nil, false
		}
		return r.Eth.field(field)
	case "ip":
		if r.IP == nil {
			return nil, false
		}
		return r.IP.field(field)
	case "tcp":
		if r.TCP == nil {
			return nil, false
		}
		return r.TCP.field(field)
	case "rpc":
		if r.RPC == nil {
			return nil, false
		}
		return rpcField(r.RPC, field)
	case "nfs":
		if r.NFS == nil {
			return nil, false
		}
		return nfsField(r.NFS, field)
	}
	return nil, false
}

func rpcField(m *rpc.Message, name string) (any, bool) {
	switch name {
	case "xid":
		return m.XID, true
	case "type":
		return m.Type, true
	case "program":
		return m.Program, true
	case "version":
		return m.Version, true
	case "procedure":
		return m.Procedure, true
	case "unmatched":
		return m.Unmatched, true
	}
	return nil, false
}

func nfsField(m *nfs.Message, name string) (any, bool) {
	switch name {
	case "tag":
		return m.Tag, true
	case "minorversion":
		return m.MinorVersion, true
	case "status":
		return m.Status, true
	case "callback":
		return m.Callback, true
	}
	return nil, false
}

// Messages returns every RPC/NFS pair completed at this record, first the
// primary one, then the trailing ones.
func (r *Record) Messages() []Decoded {
	if r.RPC == nil {
		return nil
	}
	out := make([]Decoded, 0, 1+len(r.Trailing))
	out = append(out, Decoded{RPC: r.RPC, NFS: r.NFS})
	out = append(out, r.Trailing...)
	return out
}

func (r *Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %d %s %s", r.Frame, r.Pos, r.Time.UTC().Format("15:04:05.000000"))
	for _, name := range r.Layers() {
		sb.WriteByte(' ')
		sb.WriteString(name)
	}
	if !r.Stop.Ok() {
		fmt.Fprintf(&sb, " [%s]", r.Stop)
	}
	return sb.String()
}
