package decode

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/packet"
)

const (
	ipv4MinHeaderLen = 20
	protoTCP         = 6

	ipFlagMF     = 0x2000
	ipFlagDF     = 0x4000
	ipOffsetMask = 0x1fff
)

// decodeIPv4 parses the IPv4 header and hands back the transport payload.
// Fragmented datagrams are reassembled across records: every fragment
// except the completing one stops with a pending marker, and the record
// that completes the datagram continues into TCP with the full payload.
func (d *Decoder) decodeIPv4(rec *packet.Record, data []byte) ([]byte, bool) {
	if len(data) < ipv4MinHeaderLen {
		return stop(rec, packet.StopTruncated, "ip",
			fmt.Sprintf("%d bytes captured, header needs %d", len(data), ipv4MinHeaderLen))
	}
	if version := data[0] >> 4; version != 4 {
		return stop(rec, packet.StopMalformed, "ip", fmt.Sprintf("version %d", version))
	}
	headerLen := int(data[0]&0x0f) * 4
	if headerLen < ipv4MinHeaderLen {
		return stop(rec, packet.StopMalformed, "ip", fmt.Sprintf("header length %d", headerLen))
	}
	if len(data) < headerLen {
		return stop(rec, packet.StopTruncated, "ip", "options cut short")
	}

	totalLength := binary.BigEndian.Uint16(data[2:4])
	fragWord := binary.BigEndian.Uint16(data[6:8])
	src, _ := netip.AddrFromSlice(data[12:16])
	dst, _ := netip.AddrFromSlice(data[16:20])

	ip := &packet.IPv4{
		Src:           src,
		Dst:           dst,
		Protocol:      data[9],
		ID:            binary.BigEndian.Uint16(data[4:6]),
		TTL:           data[8],
		TotalLength:   totalLength,
		FragOffset:    (fragWord & ipOffsetMask) * 8,
		MoreFragments: fragWord&ipFlagMF != 0,
		DontFragment:  fragWord&ipFlagDF != 0,
	}
	rec.IP = ip

	if int(totalLength) < headerLen {
		return stop(rec, packet.StopMalformed, "ip",
			fmt.Sprintf("total length %d below header length %d", totalLength, headerLen))
	}

	payload := data[headerLen:]
	declared := int(totalLength) - headerLen
	if len(payload) > declared {
		// Ethernet padding past the datagram.
		payload = payload[:declared]
	}
	if len(payload) < declared {
		return stop(rec, packet.StopTruncated, "tcp",
			fmt.Sprintf("datagram declares %d payload bytes, %d captured", declared, len(payload)))
	}

	if ip.Protocol != protoTCP {
		return stop(rec, packet.StopUnsupported, "tcp", fmt.Sprintf("ip protocol %d", ip.Protocol))
	}

	if ip.IsFragment() {
		return d.reassembleFragment(rec, ip, payload)
	}
	return payload, true
}

// ============================================================================
// Fragment Reassembly
// ============================================================================

// fragKey identifies the datagram a fragment belongs to (RFC 791: source,
// destination, protocol, identification).
type fragKey struct {
	src   netip.Addr
	dst   netip.Addr
	proto uint8
	id    uint16
}

type fragBuffer struct {
	parts map[int][]byte // payload keyed by byte offset
	bytes int
	total int // datagram payload size, -1 until the last fragment arrives
}

func (d *Decoder) reassembleFragment(rec *packet.Record, ip *packet.IPv4, payload []byte) ([]byte, bool) {
	key := fragKey{src: ip.Src, dst: ip.Dst, proto: ip.Protocol, id: ip.ID}

	var buf *fragBuffer
	if item := d.frags.Get(key); item != nil {
		buf = item.Value()
	} else {
		buf = &fragBuffer{parts: make(map[int][]byte), total: -1}
		d.frags.Set(key, buf, ttlcache.DefaultTTL)
	}

	offset := int(ip.FragOffset)
	if existing, ok := buf.parts[offset]; ok {
		if len(existing) != len(payload) {
			return d.failFragment(rec, key,
				fmt.Sprintf("overlapping fragment at offset %d", offset))
		}
		// Retransmitted fragment; nothing new.
		return stop(rec, packet.StopReassemblyPending, "ip", "duplicate fragment")
	}

	if len(buf.parts) >= d.cfg.MaxFragments {
		logger.Warn("fragment buffer overflow",
			logger.KeyIPID, ip.ID,
			logger.KeySrc, ip.Src.String(),
			logger.KeyDst, ip.Dst.String(),
			logger.KeyLimit, d.cfg.MaxFragments,
		)
		return d.failFragment(rec, key,
			fmt.Sprintf("more than %d fragments", d.cfg.MaxFragments))
	}

	buf.parts[offset] = append([]byte(nil), payload...)
	buf.bytes += len(payload)
	if buf.bytes > d.cfg.MaxFlowBuffer {
		return d.failFragment(rec, key,
			fmt.Sprintf("fragment bytes exceed %d", d.cfg.MaxFlowBuffer))
	}

	if !ip.MoreFragments {
		buf.total = offset + len(payload)
	}
	if buf.total < 0 {
		return stop(rec, packet.StopReassemblyPending, "ip", "")
	}

	// Check contiguity from offset zero.
	assembled := make([]byte, 0, buf.total)
	next := 0
	for next < buf.total {
		part, ok := buf.parts[next]
		if !ok {
			return stop(rec, packet.StopReassemblyPending, "ip", "")
		}
		assembled = append(assembled, part...)
		next += len(part)
	}
	if next != buf.total {
		return d.failFragment(rec, key, "fragment lengths disagree")
	}

	ip.Reassembled = true
	ip.FragmentCount = len(buf.parts)
	d.frags.Delete(key)
	return assembled, true
}

func (d *Decoder) failFragment(rec *packet.Record, key fragKey, detail string) ([]byte, bool) {
	d.frags.Delete(key)
	d.cfg.Metrics.RecordReassemblyFailure("ip")
	return stop(rec, packet.StopReassemblyFailed, "ip", detail)
}
