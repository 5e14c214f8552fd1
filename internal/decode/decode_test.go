package decode

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfstrace/nfstrace/internal/decode/nfs"
	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// ============================================================================
// Frame Builders
// ============================================================================

var (
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func ethHeader(etherType uint16) []byte {
	hdr := make([]byte, 14)
	copy(hdr[0:6], serverMAC)
	copy(hdr[6:12], clientMAC)
	binary.BigEndian.PutUint16(hdr[12:14], etherType)
	return hdr
}

// ipFrame builds a full Ethernet frame around one IPv4 packet. fragOff is in
// bytes and must be a multiple of eight.
func ipFrame(src, dst string, proto uint8, id uint16, fragOff int, more bool, payload []byte) []byte {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	binary.BigEndian.PutUint16(hdr[2:4], uint16(20+len(payload)))
	binary.BigEndian.PutUint16(hdr[4:6], id)
	frag := uint16(fragOff / 8)
	if more {
		frag |= 0x2000
	}
	binary.BigEndian.PutUint16(hdr[6:8], frag)
	hdr[8] = 64
	hdr[9] = proto
	copy(hdr[12:16], net.ParseIP(src).To4())
	copy(hdr[16:20], net.ParseIP(dst).To4())

	frame := ethHeader(0x0800)
	frame = append(frame, hdr...)
	return append(frame, payload...)
}

// tcpSegment builds a TCP header plus payload, suitable as an IPv4 payload.
func tcpSegment(sport, dport uint16, seq uint32, flags packet.TCPFlags, payload []byte) []byte {
	hdr := make([]byte, 20)
	binary.BigEndian.PutUint16(hdr[0:2], sport)
	binary.BigEndian.PutUint16(hdr[2:4], dport)
	binary.BigEndian.PutUint32(hdr[4:8], seq)
	hdr[12] = 5 << 4
	hdr[13] = byte(flags)
	binary.BigEndian.PutUint16(hdr[14:16], 0xffff)
	return append(hdr, payload...)
}

// tcpFrame builds a complete frame carrying one unfragmented TCP segment.
func tcpFrame(src, dst string, sport, dport uint16, seq uint32, flags packet.TCPFlags, payload []byte) []byte {
	return ipFrame(src, dst, 6, 0, 0, false, tcpSegment(sport, dport, seq, flags, payload))
}

var frameCounter int

func rawRecord(t *testing.T, data []byte) *trace.RawRecord {
	t.Helper()
	frameCounter++
	return &trace.RawRecord{
		Index:   frameCounter,
		Time:    time.Now(),
		CapLen:  uint32(len(data)),
		OrigLen: uint32(len(data)),
		Data:    data,
	}
}

// compoundCallBytes encodes a COMPOUND call carrying the given operations.
func compoundCallBytes(t *testing.T, tag string, ops ...nfs.Op) []byte {
	t.Helper()
	msg := &nfs.Message{Call: true, Tag: tag, Ops: ops}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeCall(&buf))
	return buf.Bytes()
}

func compoundReplyBytes(t *testing.T, tag string, status uint32, ops ...nfs.Op) []byte {
	t.Helper()
	msg := &nfs.Message{Tag: tag, Status: status, Ops: ops}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeReply(&buf))
	return buf.Bytes()
}

// rpcCallBytes wraps an NFS payload in a framed RPC call message.
func rpcCallBytes(t *testing.T, xid, prog, vers, proc uint32, payload []byte) []byte {
	t.Helper()
	msg := &rpc.Message{
		XID:       xid,
		Program:   prog,
		Version:   vers,
		Procedure: proc,
		Cred:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Payload:   payload,
	}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeCall(&buf))
	return rpc.Frame(buf.Bytes())
}

func rpcReplyBytes(t *testing.T, xid uint32, payload []byte) []byte {
	t.Helper()
	msg := &rpc.Message{
		XID:       xid,
		Type:      rpc.TypeReply,
		ReplyStat: rpc.MsgAccepted,
		Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Payload:   payload,
	}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeReply(&buf))
	return rpc.Frame(buf.Bytes())
}

const (
	clientIP = "192.168.1.10"
	serverIP = "192.168.1.20"
)

// ============================================================================
// Full-Chain Decoding
// ============================================================================

func TestDecodeCompoundCall(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	compound := compoundCallBytes(t, "mount",
		nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}},
		nfs.Op{Code: nfs.OP_GETFH, Args: &nfs.GetFHArgs{}},
	)
	framed := rpcCallBytes(t, 0x100, nfs.Program, 4, nfs.PROC_COMPOUND, compound)

	syn := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40001, 2049, 999, packet.FlagSYN, nil)))
	require.True(t, syn.Stop.Ok())
	require.NotNil(t, syn.TCP)
	assert.Nil(t, syn.RPC)

	rec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40001, 2049, 1000, packet.FlagACK|packet.FlagPSH, framed)))
	require.True(t, rec.Stop.Ok(), "stop: %s", rec.Stop)
	require.NotNil(t, rec.RPC)
	require.NotNil(t, rec.NFS)

	assert.Equal(t, uint32(0x100), rec.RPC.XID)
	assert.True(t, rec.RPC.IsCall())
	assert.Equal(t, "mount", rec.NFS.Tag)
	require.Len(t, rec.NFS.Ops, 2)
	assert.Equal(t, "PUTROOTFH", rec.NFS.Ops[0].Name())
	assert.Equal(t, "GETFH", rec.NFS.Ops[1].Name())
}

func TestCallReplyPairing(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	call := rpcCallBytes(t, 0x200, nfs.Program, 4, nfs.PROC_COMPOUND,
		compoundCallBytes(t, "", nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}}))
	reply := rpcReplyBytes(t, 0x200,
		compoundReplyBytes(t, "", nfs.NFS4_OK,
			nfs.Op{Code: nfs.OP_PUTROOTFH, Status: nfs.NFS4_OK, Res: &nfs.PutRootFHRes{}}))

	callRec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40002, 2049, 1, packet.FlagACK, call)))
	require.NotNil(t, callRec.NFS)
	require.Equal(t, 1, d.calls.Len())

	replyRec := d.Decode(rawRecord(t, tcpFrame(serverIP, clientIP, 2049, 40002, 1, packet.FlagACK, reply)))
	require.True(t, replyRec.Stop.Ok(), "stop: %s", replyRec.Stop)
	require.NotNil(t, replyRec.RPC)
	require.NotNil(t, replyRec.NFS)

	assert.False(t, replyRec.RPC.Unmatched)
	assert.Equal(t, uint32(nfs.Program), replyRec.RPC.Program, "program backfilled from the call")
	assert.Equal(t, uint32(nfs.NFS4_OK), replyRec.NFS.Status)
	assert.Equal(t, 0, d.calls.Len())
}

func TestUnmatchedReply(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	reply := rpcReplyBytes(t, 0xdead,
		compoundReplyBytes(t, "", nfs.NFS4_OK,
			nfs.Op{Code: nfs.OP_PUTROOTFH, Status: nfs.NFS4_OK, Res: &nfs.PutRootFHRes{}}))

	rec := d.Decode(rawRecord(t, tcpFrame(serverIP, clientIP, 2049, 40003, 1, packet.FlagACK, reply)))
	require.NotNil(t, rec.RPC)
	assert.True(t, rec.RPC.Unmatched)
	// The payload parsed cleanly as a COMPOUND reply, so the body is still
	// attached despite the missing call.
	assert.NotNil(t, rec.NFS)
}

func TestUnansweredCalls(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	clientSeq := uint32(1)
	for _, xid := range []uint32{0x300, 0x301} {
		call := rpcCallBytes(t, xid, nfs.Program, 4, nfs.PROC_COMPOUND,
			compoundCallBytes(t, "", nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}}))
		d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40004, 2049, clientSeq, packet.FlagACK, call)))
		clientSeq += uint32(len(call))
	}
	reply := rpcReplyBytes(t, 0x300,
		compoundReplyBytes(t, "", nfs.NFS4_OK,
			nfs.Op{Code: nfs.OP_PUTROOTFH, Status: nfs.NFS4_OK, Res: &nfs.PutRootFHRes{}}))
	d.Decode(rawRecord(t, tcpFrame(serverIP, clientIP, 2049, 40004, 1, packet.FlagACK, reply)))

	unanswered := d.UnansweredCalls()
	require.Len(t, unanswered, 1)
	assert.Equal(t, uint32(0x301), unanswered[0].Key.XID)
}

// ============================================================================
// TCP Stream Reassembly
// ============================================================================

func TestOutOfOrderSegments(t *testing.T) {
	compound := compoundCallBytes(t, "ooo",
		nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}})
	framed := rpcCallBytes(t, 0x400, nfs.Program, 4, nfs.PROC_COMPOUND, compound)

	half := len(framed) / 2
	first, second := framed[:half], framed[half:]

	t.Run("InOrder", func(t *testing.T) {
		d := NewDecoder(Config{})
		defer d.Close()

		d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 0, packet.FlagSYN, nil)))
		a := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 1, packet.FlagACK, first)))
		assert.Equal(t, packet.StopReassemblyPending, a.Stop.Code)

		b := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, uint32(1+half), packet.FlagACK, second)))
		require.NotNil(t, b.NFS)
		assert.Equal(t, "ooo", b.NFS.Tag)
	})

	t.Run("Reversed", func(t *testing.T) {
		d := NewDecoder(Config{})
		defer d.Close()

		d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 0, packet.FlagSYN, nil)))
		a := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, uint32(1+half), packet.FlagACK, second)))
		assert.Equal(t, packet.StopReassemblyPending, a.Stop.Code)

		b := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 1, packet.FlagACK, first)))
		require.NotNil(t, b.NFS, "stop: %s", b.Stop)
		assert.Equal(t, "ooo", b.NFS.Tag)
	})

	t.Run("RetransmissionIgnored", func(t *testing.T) {
		d := NewDecoder(Config{})
		defer d.Close()

		d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 0, packet.FlagSYN, nil)))
		d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 1, packet.FlagACK, first)))
		dup := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, 1, packet.FlagACK, first)))
		assert.Equal(t, packet.StopReassemblyPending, dup.Stop.Code)

		b := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40005, 2049, uint32(1+half), packet.FlagACK, second)))
		require.NotNil(t, b.NFS)
	})
}

func TestMultiFragmentRPCMessage(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	compound := compoundCallBytes(t, "frag",
		nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}})
	msg := &rpc.Message{
		XID:       0x500,
		Program:   nfs.Program,
		Version:   4,
		Procedure: nfs.PROC_COMPOUND,
		Cred:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Payload:   compound,
	}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeCall(&buf))
	framed := rpc.FrameFragments(buf.Bytes(), 3)

	rec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40006, 2049, 1, packet.FlagACK, framed)))
	require.True(t, rec.Stop.Ok(), "stop: %s", rec.Stop)
	require.NotNil(t, rec.NFS)
	assert.Equal(t, "frag", rec.NFS.Tag)
}

func TestBackToBackMessagesOneSegment(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	first := rpcCallBytes(t, 0x600, nfs.Program, 4, nfs.PROC_COMPOUND,
		compoundCallBytes(t, "one", nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}}))
	second := rpcCallBytes(t, 0x601, nfs.Program, 4, nfs.PROC_COMPOUND,
		compoundCallBytes(t, "two", nfs.Op{Code: nfs.OP_GETFH, Args: &nfs.GetFHArgs{}}))

	rec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40007, 2049, 1, packet.FlagACK, append(first, second...))))
	require.NotNil(t, rec.NFS)
	assert.Equal(t, "one", rec.NFS.Tag)
	require.Len(t, rec.Trailing, 1)
	require.NotNil(t, rec.Trailing[0].NFS)
	assert.Equal(t, "two", rec.Trailing[0].NFS.Tag)
}

func TestFlowBufferBound(t *testing.T) {
	d := NewDecoder(Config{MaxFlowBuffer: 1024})
	defer d.Close()

	// A hole after the handshake keeps everything out of order until the
	// bound trips.
	junk := make([]byte, 600)
	d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40008, 2049, 0, packet.FlagSYN, nil)))
	d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40008, 2049, 5000, packet.FlagACK, junk)))
	rec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40008, 2049, 6000, packet.FlagACK, junk)))
	assert.Equal(t, packet.StopReassemblyFailed, rec.Stop.Code)
	assert.Equal(t, "rpc", rec.Stop.Layer)
}

// ============================================================================
// IP Fragment Reassembly
// ============================================================================

func TestIPFragmentReassembly(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	data := bytes.Repeat([]byte{0xab}, 2500)
	compound := compoundCallBytes(t, "bigwrite",
		nfs.Op{Code: nfs.OP_WRITE, Args: &nfs.WriteArgs{Offset: 4096, Stable: nfs.FILE_SYNC4, Data: data}})
	segment := tcpSegment(40009, 2049, 1, packet.FlagACK,
		rpcCallBytes(t, 0x700, nfs.Program, 4, nfs.PROC_COMPOUND, compound))

	cuts := []int{0, 1200, 2400, len(segment)}
	var recs []*packet.Record
	for i := 0; i < len(cuts)-1; i++ {
		more := i < len(cuts)-2
		frame := ipFrame(clientIP, serverIP, 6, 77, cuts[i], more, segment[cuts[i]:cuts[i+1]])
		recs = append(recs, d.Decode(rawRecord(t, frame)))
	}

	assert.Equal(t, packet.StopReassemblyPending, recs[0].Stop.Code)
	assert.Equal(t, packet.StopReassemblyPending, recs[1].Stop.Code)

	last := recs[2]
	require.True(t, last.Stop.Ok(), "stop: %s", last.Stop)
	require.NotNil(t, last.IP)
	assert.True(t, last.IP.Reassembled)
	assert.Equal(t, 3, last.IP.FragmentCount)
	require.NotNil(t, last.NFS)
	write, ok := last.NFS.Ops[0].Args.(*nfs.WriteArgs)
	require.True(t, ok)
	assert.Equal(t, data, write.Data)
}

func TestIPFragmentsOutOfOrder(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	compound := compoundCallBytes(t, "shuffled",
		nfs.Op{Code: nfs.OP_WRITE, Args: &nfs.WriteArgs{Data: bytes.Repeat([]byte{0x5a}, 1500)}})
	segment := tcpSegment(40010, 2049, 1, packet.FlagACK,
		rpcCallBytes(t, 0x701, nfs.Program, 4, nfs.PROC_COMPOUND, compound))

	tail := ipFrame(clientIP, serverIP, 6, 78, 800, false, segment[800:])
	head := ipFrame(clientIP, serverIP, 6, 78, 0, true, segment[:800])

	pending := d.Decode(rawRecord(t, tail))
	assert.Equal(t, packet.StopReassemblyPending, pending.Stop.Code)

	rec := d.Decode(rawRecord(t, head))
	require.True(t, rec.Stop.Ok(), "stop: %s", rec.Stop)
	require.NotNil(t, rec.NFS)
	assert.Equal(t, "shuffled", rec.NFS.Tag)
}

// ============================================================================
// Stops
// ============================================================================

func TestStopNonIPFrame(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	arp := append(ethHeader(0x0806), make([]byte, 28)...)
	rec := d.Decode(rawRecord(t, arp))
	assert.Equal(t, packet.StopUnsupported, rec.Stop.Code)
	assert.Equal(t, "ip", rec.Stop.Layer)
	assert.NotNil(t, rec.Eth)
	assert.Nil(t, rec.IP)
}

func TestStopNonTCPPacket(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	udp := ipFrame(clientIP, serverIP, 17, 5, 0, false, make([]byte, 32))
	rec := d.Decode(rawRecord(t, udp))
	assert.Equal(t, packet.StopUnsupported, rec.Stop.Code)
	assert.Equal(t, "tcp", rec.Stop.Layer)
	assert.NotNil(t, rec.IP)
}

func TestStopTruncatedCapture(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	full := tcpFrame(clientIP, serverIP, 40011, 2049, 1, packet.FlagACK, make([]byte, 200))
	cut := full[:len(full)-120]
	raw := rawRecord(t, cut)
	raw.OrigLen = uint32(len(full))

	rec := d.Decode(raw)
	assert.Equal(t, packet.StopTruncated, rec.Stop.Code)
}

func TestStopNotRPCFlow(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	http := []byte("GET /export HTTP/1.1\r\nHost: filer\r\n\r\n")
	rec := d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40012, 8080, 1, packet.FlagACK, http)))
	assert.Equal(t, packet.StopUnsupported, rec.Stop.Code)
	assert.Equal(t, "rpc", rec.Stop.Layer)

	// Later traffic on the same flow is not reexamined.
	rec = d.Decode(rawRecord(t, tcpFrame(clientIP, serverIP, 40012, 8080, 100, packet.FlagACK, []byte("more"))))
	assert.Equal(t, packet.StopUnsupported, rec.Stop.Code)
}

func TestSniffedRPCOnUnknownPort(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	// NFSv4.0 callback: transient program on a port the config never
	// names.
	cb := &nfs.Message{Call: true, Callback: true, Tag: "cb", Ops: []nfs.Op{
		{Code: nfs.OP_CB_RECALL, Callback: true, Args: &nfs.CBRecallArgs{
			Stateid: nfs.Stateid4{Seqid: 1},
			FH:      nfs.FileHandle{0x01, 0x02},
		}},
	}}
	var buf bytes.Buffer
	require.NoError(t, cb.EncodeCall(&buf))
	framed := rpcCallBytes(t, 0x800, 0x40000101, 1, nfs.PROC_COMPOUND, buf.Bytes())

	rec := d.Decode(rawRecord(t, tcpFrame(serverIP, clientIP, 33049, 51234, 1, packet.FlagACK, framed)))
	require.True(t, rec.Stop.Ok(), "stop: %s", rec.Stop)
	require.NotNil(t, rec.RPC)
	require.NotNil(t, rec.NFS)
	assert.True(t, rec.NFS.Callback)
	assert.Equal(t, "CB_RECALL", rec.NFS.Ops[0].Name())
}

func TestVLANTaggedFrame(t *testing.T) {
	d := NewDecoder(Config{})
	defer d.Close()

	inner := tcpFrame(clientIP, serverIP, 40013, 2049, 1, packet.FlagSYN, nil)
	tagged := make([]byte, 0, len(inner)+4)
	tagged = append(tagged, inner[:12]...)
	tagged = append(tagged, 0x81, 0x00, 0x00, 0x2a) // VLAN 42
	tagged = append(tagged, inner[12:]...)

	rec := d.Decode(rawRecord(t, tagged))
	require.True(t, rec.Stop.Ok(), "stop: %s", rec.Stop)
	require.NotNil(t, rec.Eth)
	assert.Equal(t, []uint16{42}, rec.Eth.VLANs)
	require.NotNil(t, rec.TCP)
}
