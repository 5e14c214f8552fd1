package decode

import (
	"bytes"

	"github.com/nfstrace/nfstrace/internal/decode/nfs"
	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/packet"
)

// decodeRPC folds the segment into its flow's stream, drains every complete
// record-marked message, and attaches the decoded RPC (and NFS, when the
// program is NFS) messages to the record.
//
// Flows on configured RPC ports are always decoded as RPC. Other flows are
// sniffed: the first complete message decides. NFSv4.0 callbacks ride on
// transient program numbers over arbitrary ports, so sniffing is what makes
// them visible at all.
func (d *Decoder) decodeRPC(rec *packet.Record, payload []byte) {
	key := flowKey{
		src:   rec.IP.Src,
		dst:   rec.IP.Dst,
		sport: rec.TCP.SrcPort,
		dport: rec.TCP.DstPort,
	}
	flow := d.flow(key)
	t := rec.TCP
	defer func() {
		if t.Flags.Has(packet.FlagFIN) || t.Flags.Has(packet.FlagRST) {
			delete(d.flows, key)
		}
	}()

	switch flow.verdict {
	case flowNotRPC:
		if len(payload) > 0 {
			setStop(rec, packet.StopUnsupported, "rpc", "flow does not carry rpc")
		}
		return
	case flowCorrupt:
		if len(payload) > 0 {
			setStop(rec, packet.StopReassemblyFailed, "rpc", "stream framing previously corrupted")
		}
		return
	}

	if !flow.accept(t, payload, d.cfg.MaxFlowBuffer) {
		d.dropFlow(key, "flow buffer bound exceeded")
		setStop(rec, packet.StopReassemblyFailed, "rpc", "flow buffer bound exceeded")
		return
	}

	portRPC := d.isRPCPort(t.SrcPort) || d.isRPCPort(t.DstPort)
	conn := key.conn()
	attached := false

	for {
		msg, err := flow.stream.Next()
		if err != nil {
			if flow.verdict == flowUndecided && !portRPC {
				// Probably never was RPC. Stop watching the flow.
				flow.verdict = flowNotRPC
				flow.stream.Reset()
				setStop(rec, packet.StopUnsupported, "rpc", "payload is not record-marked rpc")
				return
			}
			flow.verdict = flowCorrupt
			flow.stream.Reset()
			logger.Debug("rpc stream corrupt",
				logger.KeyFlow, key.String(),
				logger.KeyError, err,
			)
			setStop(rec, packet.StopMalformed, "rpc", err.Error())
			return
		}
		if msg == nil {
			break
		}

		m, derr := rpc.DecodeMessage(msg)
		if derr != nil {
			if flow.verdict == flowUndecided && !portRPC {
				flow.verdict = flowNotRPC
				flow.stream.Reset()
				setStop(rec, packet.StopUnsupported, "rpc", "payload does not decode as rpc")
				return
			}
			// Framing held but the header did not decode. Skip this
			// message and keep draining the stream.
			setStop(rec, packet.StopMalformed, "rpc", derr.Error())
			continue
		}
		flow.verdict = flowRPC
		d.attachMessage(rec, conn, m, &attached)
	}

	if !attached && rec.Stop.Ok() && len(payload) > 0 {
		// Segment carried bytes but completed no message.
		setStop(rec, packet.StopReassemblyPending, "rpc", "")
	}
}

func (d *Decoder) isRPCPort(port uint16) bool {
	for _, p := range d.cfg.RPCPorts {
		if p == port {
			return true
		}
	}
	return false
}

// attachMessage decodes the NFS body where the program calls for one,
// pairs replies with their calls, and hangs the result off the record.
func (d *Decoder) attachMessage(rec *packet.Record, conn string, m *rpc.Message, attached *bool) {
	var nmsg *nfs.Message
	if m.IsCall() {
		nmsg = d.processCall(rec, conn, m)
	} else {
		nmsg = d.processReply(rec, conn, m)
	}

	if nmsg != nil {
		for i := range nmsg.Ops {
			d.cfg.Metrics.RecordCompoundOp(nmsg.Ops[i].Name())
		}
	}
	if !*attached {
		rec.RPC = m
		rec.NFS = nmsg
		*attached = true
		return
	}
	rec.Trailing = append(rec.Trailing, packet.Decoded{RPC: m, NFS: nmsg})
}

func (d *Decoder) processCall(rec *packet.Record, conn string, m *rpc.Message) *nfs.Message {
	d.cfg.Metrics.RecordRPCMessage("call")

	var nmsg *nfs.Message
	callback := false
	switch {
	case m.Program == nfs.Program && m.Version == 4 && m.Procedure == nfs.PROC_COMPOUND:
		cm, err := nfs.DecodeCall(bytes.NewReader(m.Payload), false)
		if err != nil {
			setStop(rec, packet.StopMalformed, "nfs", err.Error())
		} else {
			nmsg = cm
		}
	case rpc.IsTransientProgram(m.Program) && m.Procedure == nfs.PROC_COMPOUND:
		// Transient program numbers are how servers reach v4.0 clients
		// for callbacks, but nothing reserves the range for NFS. Treat
		// the call as CB_COMPOUND only if it decodes as one.
		if cm, err := nfs.DecodeCall(bytes.NewReader(m.Payload), true); err == nil {
			nmsg = cm
			callback = true
		}
	}

	call := &rpc.PendingCall{
		Key:       rpc.CallKey{Conn: conn, XID: m.XID},
		Program:   m.Program,
		Version:   m.Version,
		Procedure: m.Procedure,
		Callback:  callback,
		Frame:     rec.Frame,
	}
	if nmsg != nil {
		call.MinorVersion = nmsg.MinorVersion
	}
	d.calls.Add(call)
	return nmsg
}

func (d *Decoder) processReply(rec *packet.Record, conn string, m *rpc.Message) *nfs.Message {
	d.cfg.Metrics.RecordRPCMessage("reply")

	call := d.calls.Match(rpc.CallKey{Conn: conn, XID: m.XID})
	if call == nil {
		m.Unmatched = true
		d.cfg.Metrics.RecordUnmatchedReply()
		logger.Debug("unmatched reply",
			logger.KeyFrame, rec.Frame,
			logger.KeyXID, m.XID,
		)
		if !m.Accepted() || len(m.Payload) == 0 {
			return nil
		}
		// Without the call the program is unknown. Attach a COMPOUND
		// body only when the payload decodes as one without residue.
		if cm, err := nfs.DecodeReply(bytes.NewReader(m.Payload), false); err == nil && cm.Malformed == nil {
			return cm
		}
		return nil
	}

	m.Program = call.Program
	m.Version = call.Version
	m.Procedure = call.Procedure

	isNFS := call.Callback || (call.Program == nfs.Program && call.Version == 4)
	if !isNFS || call.Procedure != nfs.PROC_COMPOUND || !m.Accepted() {
		return nil
	}
	cm, err := nfs.DecodeReply(bytes.NewReader(m.Payload), call.Callback)
	if err != nil {
		setStop(rec, packet.StopMalformed, "nfs", err.Error())
		return nil
	}
	cm.MinorVersion = call.MinorVersion
	return cm
}

// setStop records the first failure on the record; later ones are kept in
// the log only.
func setStop(rec *packet.Record, code packet.StopCode, layer, detail string) {
	if !rec.Stop.Ok() {
		return
	}
	rec.Stop = packet.Stop{Code: code, Layer: layer, Detail: detail}
}
