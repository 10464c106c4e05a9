package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

func TestMetrics_RecordRPCCall(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordRPCCall("getbalancebyprivatekey", 100*time.Millisecond, nil)
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.RPCCallsTotal)
	assert.Equal(t, int64(0), snap.RPCErrorsTotal)

	m.RecordRPCCall("estimatefee", 50*time.Millisecond, coinerr.ErrNetwork)
	snap = m.Snapshot()
	assert.Equal(t, int64(2), snap.RPCCallsTotal)
	assert.Equal(t, int64(1), snap.RPCErrorsTotal)
	assert.InDelta(t, 75.0, snap.RPCLatencyAvgMs(), 0.01)
}

func TestMetrics_CacheHitRate(t *testing.T) {
	t.Parallel()
	m := New()

	assert.InDelta(t, 0.0, m.Snapshot().CacheHitRate(), 0.001)

	// 3 hits, 1 miss = 75%
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.InDelta(t, 75.0, snap.CacheHitRate(), 0.001)
}

func TestMetrics_SyncCounters(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordStaleDiscard("balance")
	m.RecordStaleDiscard("fee")
	m.RecordDispatch()
	m.RecordDispatch()
	m.RecordDroppedDispatch()
	m.RecordSend(nil)
	m.RecordSend(coinerr.ErrRPC)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.StaleDiscards)
	assert.Equal(t, int64(2), snap.Dispatches)
	assert.Equal(t, int64(1), snap.DroppedDispatches)
	assert.Equal(t, int64(2), snap.SendsTotal)
	assert.Equal(t, int64(1), snap.SendErrors)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordRPCCall("estimatefee", time.Millisecond, nil)
	m.RecordCacheHit()
	m.Reset()

	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordRPCCall("getbalancebyprivatekey", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `coinsync_rpc_calls_total{method="getbalancebyprivatekey",outcome="ok"} 1`)
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	m := New()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRPCCall("getbalancebyprivatekey", time.Millisecond, nil)
			m.RecordDispatch()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap.RPCCallsTotal)
	assert.Equal(t, int64(100), snap.Dispatches)
}

func TestGlobal(t *testing.T) {
	t.Parallel()
	require.NotNil(t, Global)
	assert.NotNil(t, Global.Registry())
}
