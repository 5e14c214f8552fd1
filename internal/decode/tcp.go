package decode

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/packet"
)

const tcpMinHeaderLen = 20

// decodeTCP parses the TCP header and returns the segment payload. Stream
// reassembly happens in the RPC step, which owns the per-flow state.
func (d *Decoder) decodeTCP(rec *packet.Record, data []byte) ([]byte, bool) {
	if len(data) < tcpMinHeaderLen {
		return stop(rec, packet.StopTruncated, "tcp",
			fmt.Sprintf("%d bytes captured, header needs %d", len(data), tcpMinHeaderLen))
	}
	dataOffset := int(data[12]>>4) * 4
	if dataOffset < tcpMinHeaderLen {
		return stop(rec, packet.StopMalformed, "tcp", fmt.Sprintf("data offset %d", dataOffset))
	}
	if len(data) < dataOffset {
		return stop(rec, packet.StopTruncated, "tcp", "options cut short")
	}

	payload := data[dataOffset:]
	rec.TCP = &packet.TCP{
		SrcPort:       binary.BigEndian.Uint16(data[0:2]),
		DstPort:       binary.BigEndian.Uint16(data[2:4]),
		Seq:           binary.BigEndian.Uint32(data[4:8]),
		Ack:           binary.BigEndian.Uint32(data[8:12]),
		Flags:         packet.TCPFlags(data[13] & 0x3f),
		Window:        binary.BigEndian.Uint16(data[14:16]),
		PayloadLength: len(payload),
	}
	return payload, true
}

// ============================================================================
// Flow State
// ============================================================================

// flowKey identifies one direction of a TCP connection.
type flowKey struct {
	src   netip.Addr
	dst   netip.Addr
	sport uint16
	dport uint16
}

func (k flowKey) String() string {
	return fmt.Sprintf("%s:%d>%s:%d", k.src, k.sport, k.dst, k.dport)
}

// conn returns the connection identifier shared by both directions, used
// to key the pending-call table.
func (k flowKey) conn() string {
	a := fmt.Sprintf("%s:%d", k.src, k.sport)
	b := fmt.Sprintf("%s:%d", k.dst, k.dport)
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

type flowVerdict uint8

const (
	flowUndecided flowVerdict = iota // still sniffing the first message
	flowRPC                          // carries RPC
	flowNotRPC                       // first message did not parse as RPC
	flowCorrupt                      // framing broke, state discarded
)

// flowState reorders one direction of a TCP stream and feeds the
// record-marking decoder.
type flowState struct {
	haveSeq bool
	nextSeq uint32
	ooo     map[uint32][]byte
	oooLen  int
	stream  rpc.StreamDecoder
	verdict flowVerdict
}

func seqLT(a, b uint32) bool { return int32(a-b) < 0 }

// accept folds one segment into the stream. It returns false when the flow
// buffer bound was exceeded and the flow state was reset.
func (f *flowState) accept(t *packet.TCP, payload []byte, limit int) bool {
	if t.Flags.Has(packet.FlagSYN) {
		f.nextSeq = t.Seq + 1
		f.haveSeq = true
		return true
	}
	if !f.haveSeq {
		f.nextSeq = t.Seq
		f.haveSeq = true
	}
	if len(payload) == 0 {
		return true
	}

	seq := t.Seq
	switch {
	case seq == f.nextSeq:
		f.stream.Push(payload)
		f.nextSeq += uint32(len(payload))
	case seqLT(seq, f.nextSeq):
		end := seq + uint32(len(payload))
		if !seqLT(f.nextSeq, end) {
			return true // pure retransmission
		}
		f.stream.Push(payload[f.nextSeq-seq:])
		f.nextSeq = end
	default:
		if f.oooLen+len(payload) > limit {
			return false
		}
		if f.ooo == nil {
			f.ooo = make(map[uint32][]byte)
		}
		if _, dup := f.ooo[seq]; !dup {
			f.ooo[seq] = append([]byte(nil), payload...)
			f.oooLen += len(payload)
		}
		return true
	}

	// Drain any buffered segments that are now contiguous.
	for {
		part, ok := f.ooo[f.nextSeq]
		if !ok {
			break
		}
		delete(f.ooo, f.nextSeq)
		f.oooLen -= len(part)
		f.stream.Push(part)
		f.nextSeq += uint32(len(part))
	}
	if f.stream.Buffered() > limit {
		return false
	}
	return true
}

func (d *Decoder) flow(key flowKey) *flowState {
	f, ok := d.flows[key]
	if !ok {
		f = &flowState{}
		d.flows[key] = f
	}
	return f
}

func (d *Decoder) dropFlow(key flowKey, reason string) {
	logger.Debug("flow state discarded",
		logger.KeyFlow, key.String(),
		logger.KeyReason, reason,
	)
	d.cfg.Metrics.RecordReassemblyFailure("tcp")
	delete(d.flows, key)
}
