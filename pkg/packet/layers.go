package packet

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ============================================================================
// Ethernet
// ============================================================================

// EtherType values the decoder recognizes.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeVLAN = 0x8100
	EtherTypeQinQ = 0x88a8
)

// Ethernet is a decoded Ethernet II header. VLANs holds the 802.1Q tag IDs
// that were unwrapped, outermost first.
type Ethernet struct {
	Src       net.HardwareAddr
	Dst       net.HardwareAddr
	EtherType uint16
	VLANs     []uint16
}

func (e *Ethernet) String() string {
	return fmt.Sprintf("eth %s > %s type=%#04x", e.Src, e.Dst, e.EtherType)
}

func (e *Ethernet) field(name string) (any, bool) {
	switch name {
	case "src":
		return e.Src.String(), true
	case "dst":
		return e.Dst.String(), true
	case "type":
		return e.EtherType, true
	}
	return nil, false
}

// ============================================================================
// IPv4
// ============================================================================

// IPv4 is a decoded IPv4 header. For the record that completed a fragmented
// datagram, Reassembled is true and FragmentCount reports how many pieces
// contributed.
type IPv4 struct {
	Src           netip.Addr
	Dst           netip.Addr
	Protocol      uint8
	ID            uint16
	TTL           uint8
	TotalLength   uint16
	FragOffset    uint16 // in bytes
	MoreFragments bool
	DontFragment  bool
	Reassembled   bool
	FragmentCount int
}

// IsFragment reports whether this header belonged to one piece of a
// fragmented datagram on the wire.
func (ip *IPv4) IsFragment() bool {
	return ip.MoreFragments || ip.FragOffset > 0
}

func (ip *IPv4) String() string {
	return fmt.Sprintf("ip %s > %s proto=%d id=%#04x", ip.Src, ip.Dst, ip.Protocol, ip.ID)
}

func (ip *IPv4) field(name string) (any, bool) {
	switch name {
	case "src":
		return ip.Src.String(), true
	case "dst":
		return ip.Dst.String(), true
	case "protocol":
		return ip.Protocol, true
	case "id":
		return ip.ID, true
	case "ttl":
		return ip.TTL, true
	case "offset":
		return ip.FragOffset, true
	case "more_fragments":
		return ip.MoreFragments, true
	}
	return nil, false
}

// ============================================================================
// TCP
// ============================================================================

// TCPFlags is the flag byte of a TCP header.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

func (f TCPFlags) Has(flag TCPFlags) bool { return f&flag != 0 }

func (f TCPFlags) String() string {
	names := []struct {
		flag TCPFlags
		name string
	}{
		{FlagFIN, "FIN"}, {FlagSYN, "SYN"}, {FlagRST, "RST"},
		{FlagPSH, "PSH"}, {FlagACK, "ACK"}, {FlagURG, "URG"},
	}
	var parts []string
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// TCP is a decoded TCP header. PayloadLength is the segment payload as
// captured, after the data offset.
type TCP struct {
	SrcPort       uint16
	DstPort       uint16
	Seq           uint32
	Ack           uint32
	Flags         TCPFlags
	Window        uint16
	PayloadLength int
}

func (t *TCP) String() string {
	return fmt.Sprintf("tcp %d > %d seq=%d flags=%s len=%d", t.SrcPort, t.DstPort, t.Seq, t.Flags, t.PayloadLength)
}

func (t *TCP) field(name string) (any, bool) {
	switch name {
	case "src_port":
		return t.SrcPort, true
	case "dst_port":
		return t.DstPort, true
	case "seq":
		return t.Seq, true
	case "ack":
		return t.Ack, true
	case "flags":
		return t.Flags, true
	case "window":
		return t.Window, true
	}
	return nil, false
}
