package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPCServer answers every JSON-RPC call with an empty result array,
// counting the calls it serves.
func fakeRPCServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID json.RawMessage `json:"id"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		atomic.AddInt32(calls, 1)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":[]}`, req.ID)
	}))
}

func newTestPool(t *testing.T, url string, maxRange uint64) *ProviderPool {
	t.Helper()
	provider, err := NewProvider("primary", url, 10, maxRange, 5*time.Second, DefaultCircuitBreakerConfig())
	require.NoError(t, err)
	return NewProviderPool([]*Provider{provider})
}

func filterQuery(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
	}
}

// A window spanning exactly MaxRange blocks must reach the provider: the
// planner sizes chunks as to-from == MaxBlocks, and the pool counts the
// same way.
func TestFilterLogsServesFullWidthSpan(t *testing.T) {
	var calls int32
	server := fakeRPCServer(t, &calls)
	defer server.Close()

	pool := newTestPool(t, server.URL, 10000)
	defer pool.Close()

	logs, err := pool.FilterLogs(context.Background(), filterQuery(1000000, 1010000))
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFilterLogsSkipsProviderOverMaxRange(t *testing.T) {
	var calls int32
	server := fakeRPCServer(t, &calls)
	defer server.Close()

	pool := newTestPool(t, server.URL, 10000)
	defer pool.Close()

	_, err := pool.FilterLogs(context.Background(), filterQuery(1000000, 1010001))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max range")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no call should be dialed when every provider is skipped")
}
