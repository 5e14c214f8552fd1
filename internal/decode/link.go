package decode

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/nfstrace/nfstrace/pkg/packet"
)

const ethernetHeaderLen = 14

// decodeEthernet parses the Ethernet II header, unwrapping any 802.1Q/QinQ
// tags, and returns the layer-3 payload. IPv4 is the only network protocol
// the chain continues into.
func (d *Decoder) decodeEthernet(rec *packet.Record, data []byte) ([]byte, bool) {
	if len(data) < ethernetHeaderLen {
		return stop(rec, packet.StopTruncated, "eth",
			fmt.Sprintf("%d bytes captured, header needs %d", len(data), ethernetHeaderLen))
	}

	eth := &packet.Ethernet{
		Dst: net.HardwareAddr(append([]byte(nil), data[0:6]...)),
		Src: net.HardwareAddr(append([]byte(nil), data[6:12]...)),
	}
	etherType := binary.BigEndian.Uint16(data[12:14])
	payload := data[ethernetHeaderLen:]

	for etherType == packet.EtherTypeVLAN || etherType == packet.EtherTypeQinQ {
		if len(payload) < 4 {
			rec.Eth = eth
			return stop(rec, packet.StopTruncated, "eth", "vlan tag cut short")
		}
		tci := binary.BigEndian.Uint16(payload[0:2])
		eth.VLANs = append(eth.VLANs, tci&0x0fff)
		etherType = binary.BigEndian.Uint16(payload[2:4])
		payload = payload[4:]
	}

	eth.EtherType = etherType
	rec.Eth = eth

	if etherType != packet.EtherTypeIPv4 {
		return stop(rec, packet.StopUnsupported, "ip",
			fmt.Sprintf("ethertype %#04x", etherType))
	}
	return payload, true
}
