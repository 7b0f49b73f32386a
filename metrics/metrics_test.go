package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilReceiversAreNoops(t *testing.T) {
	var p *PipelineMetrics
	p.ObserveBlock("committed", 1, time.Second)
	p.ObserveTx("success")
	p.SetHalted(true)
	p.ObserveRecovery("clean")

	var m *MempoolMetrics
	m.SetSize(1, 1)
	m.RecordReject("")

	var pr *ProofMetrics
	pr.RecordBuilt()
	pr.RecordVerify(false)

	var u *UploaderMetrics
	u.RecordAttempt("indexer", nil)
	u.RecordDrop("indexer", "full")
	u.SetQueueDepth(3)
}

func TestSingletonsRecord(t *testing.T) {
	require.Same(t, Pipeline(), Pipeline())

	Pipeline().ObserveBlock("committed", 42, 10*time.Millisecond)
	require.Equal(t, float64(42), testutil.ToFloat64(Pipeline().height))

	Mempool().SetSize(5, 2)
	require.Equal(t, float64(5), testutil.ToFloat64(Mempool().transactions))
	require.Equal(t, float64(2), testutil.ToFloat64(Mempool().accounts))

	before := testutil.ToFloat64(Uploader().attempts.WithLabelValues("peer", "error"))
	Uploader().RecordAttempt("peer", errors.New("refused"))
	require.Equal(t, before+1, testutil.ToFloat64(Uploader().attempts.WithLabelValues("peer", "error")))
}
