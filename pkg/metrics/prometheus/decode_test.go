package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfstrace/nfstrace/pkg/metrics"
)

func TestNewDecodeMetricsDisabled(t *testing.T) {
	// Registry not initialized in this process yet.
	if metrics.IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	assert.Nil(t, NewDecodeMetrics())
}

func TestDecodeMetricsNilReceiver(t *testing.T) {
	// A nil sink must absorb every call without panicking.
	var m *decodeMetrics
	m.RecordFrame("")
	m.RecordMalformed("rpc")
	m.RecordReassemblyFailure("ip")
	m.RecordRPCMessage("call")
	m.RecordUnmatchedReply()
	m.RecordCompoundOp("GETATTR")
	m.ObserveState(1, 2, 3)
}

func TestDecodeMetricsCounters(t *testing.T) {
	metrics.InitRegistry()

	dm := NewDecodeMetrics()
	require.NotNil(t, dm)
	m, ok := dm.(*decodeMetrics)
	require.True(t, ok)

	dm.RecordFrame("")
	dm.RecordFrame("rpc")
	dm.RecordFrame("rpc")
	dm.RecordMalformed("rpc")
	dm.RecordRPCMessage("call")
	dm.RecordRPCMessage("reply")
	dm.RecordUnmatchedReply()
	dm.RecordCompoundOp("PUTROOTFH")
	dm.RecordCompoundOp("PUTROOTFH")
	dm.ObserveState(4, 1, 7)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.frames.WithLabelValues("")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.frames.WithLabelValues("rpc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.malformed.WithLabelValues("rpc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rpcMessages.WithLabelValues("call")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rpcMessages.WithLabelValues("reply")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.unmatchedReplies))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.compoundOps.WithLabelValues("PUTROOTFH")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.activeFlows))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pendingFragments))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.pendingCalls))
}
