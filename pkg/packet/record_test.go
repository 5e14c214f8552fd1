package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfstrace/nfstrace/internal/decode/rpc"
)

func sampleRecord() *Record {
	return &Record{
		Frame:   3,
		CapLen:  128,
		OrigLen: 1500,
		Eth: &Ethernet{
			Src:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			Dst:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
			EtherType: EtherTypeIPv4,
		},
		IP: &IPv4{
			Src:      netip.MustParseAddr("192.168.1.10"),
			Dst:      netip.MustParseAddr("192.168.1.20"),
			Protocol: 6,
			ID:       0xbeef,
			TTL:      64,
		},
		TCP: &TCP{
			SrcPort: 931,
			DstPort: 2049,
			Seq:     1000,
			Flags:   FlagACK | FlagPSH,
		},
		RPC: &rpc.Message{XID: 0x11223344, Program: 100003, Version: 4, Procedure: 1},
	}
}

func TestRecordLayers(t *testing.T) {
	r := sampleRecord()
	assert.Equal(t, []string{"eth", "ip", "tcp", "rpc"}, r.Layers())
	assert.True(t, r.Truncated())

	assert.NotNil(t, r.Layer("ip"))
	assert.NotNil(t, r.Layer("ethernet"))
	assert.Nil(t, r.Layer("nfs"))
	assert.Nil(t, r.Layer("bogus"))
}

func TestRecordFieldLookup(t *testing.T) {
	r := sampleRecord()

	cases := []struct {
		path string
		want any
	}{
		{"ip.src", "192.168.1.10"},
		{"ip.dst", "192.168.1.20"},
		{"ip.id", uint16(0xbeef)},
		{"tcp.dst_port", uint16(2049)},
		{"tcp.seq", uint32(1000)},
		{"rpc.xid", uint32(0x11223344)},
		{"rpc.program", uint32(100003)},
		{"eth.type", uint16(EtherTypeIPv4)},
	}
	for _, tc := range cases {
		got, ok := r.Field(tc.path)
		require.True(t, ok, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}

	_, ok := r.Field("nfs.tag")
	assert.False(t, ok, "absent layer")
	_, ok = r.Field("ip.nonsense")
	assert.False(t, ok, "unknown field")
	_, ok = r.Field("nodots")
	assert.False(t, ok, "missing separator")
}

func TestStopMarker(t *testing.T) {
	s := Stop{}
	assert.True(t, s.Ok())
	assert.Equal(t, "decoded", s.String())

	s = Stop{Code: StopUnsupported, Layer: "ip", Detail: "ethertype 0x86dd"}
	assert.False(t, s.Ok())
	assert.Equal(t, "unsupported at ip: ethertype 0x86dd", s.String())

	s = Stop{Code: StopReassemblyPending, Layer: "rpc"}
	assert.Equal(t, "reassembly-pending at rpc", s.String())
}

func TestTCPFlagsString(t *testing.T) {
	assert.Equal(t, "SYN|ACK", (FlagSYN | FlagACK).String())
	assert.Equal(t, "none", TCPFlags(0).String())
	assert.True(t, (FlagACK | FlagPSH).Has(FlagPSH))
	assert.False(t, FlagACK.Has(FlagFIN))
}
