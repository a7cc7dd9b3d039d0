package sui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultline/suisync/internal/domain"
)

// rpcFixture serves canned JSON-RPC results keyed by method name and records
// the raw params of the last request per method.
type rpcFixture struct {
	t       *testing.T
	results map[string]string
	status  int
	params  map[string]json.RawMessage
}

func newRPCFixture(t *testing.T) *rpcFixture {
	return &rpcFixture{
		t:       t,
		results: make(map[string]string),
		status:  http.StatusOK,
		params:  make(map[string]json.RawMessage),
	}
}

func (f *rpcFixture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	f.params[req.Method] = req.Params

	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		return
	}

	result, ok := f.results[req.Method]
	require.True(f.t, ok, "unexpected rpc method %s", req.Method)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
}

func TestClient_QueryRecent(t *testing.T) {
	fixture := newRPCFixture(t)
	fixture.results["suix_queryTransactionBlocks"] = `{
		"data": [
			{
				"digest": "9hA7kQ",
				"timestampMs": "1735689600000",
				"effects": {"status": {"status": "success"}, "gasUsed": {"computationCost": "10", "storageCost": "20", "storageRebate": "5"}},
				"transaction": {"data": {"sender": "0xsender1"}}
			},
			{
				"digest": "3fB2xY",
				"effects": {"status": {"status": "failure"}, "gasUsed": {"computationCost": "0", "storageCost": "0", "storageRebate": "0"}}
			}
		],
		"nextCursor": "cursor-2",
		"hasNextPage": true
	}`
	srv := httptest.NewServer(fixture)
	defer srv.Close()

	client := NewClient(srv.URL, 0, 5*time.Second)
	page, err := client.QueryRecent(context.Background(), 50, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, "9hA7kQ", page.Records[0].Digest)
	require.True(t, page.Records[0].Success)
	require.Equal(t, uint64(25), page.Records[0].FeeCost)
	require.False(t, page.Records[1].Success)
	require.Equal(t, "cursor-2", page.NextCursor)
	require.True(t, page.HasMore)

	// Descending order is requested and the first page carries a null cursor.
	var params []json.RawMessage
	require.NoError(t, json.Unmarshal(fixture.params["suix_queryTransactionBlocks"], &params))
	require.Len(t, params, 4)
	require.Equal(t, "null", string(params[1]))
	require.Equal(t, "true", string(params[3]))
}

func TestClient_QueryByAddress_SendsFilterAndCursor(t *testing.T) {
	fixture := newRPCFixture(t)
	fixture.results["suix_queryTransactionBlocks"] = `{"data": [], "nextCursor": null, "hasNextPage": false}`
	srv := httptest.NewServer(fixture)
	defer srv.Close()

	client := NewClient(srv.URL, 0, 5*time.Second)
	page, err := client.QueryByAddress(context.Background(), "0xabc", 20, "cursor-1")
	require.NoError(t, err)
	require.Empty(t, page.Records)
	require.False(t, page.HasMore)
	require.Empty(t, page.NextCursor)

	var params []json.RawMessage
	require.NoError(t, json.Unmarshal(fixture.params["suix_queryTransactionBlocks"], &params))
	var query struct {
		Filter map[string]string `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(params[0], &query))
	require.Equal(t, "0xabc", query.Filter["FromAddress"])
	require.Equal(t, `"cursor-1"`, string(params[1]))
}

func TestClient_GetTransaction(t *testing.T) {
	fixture := newRPCFixture(t)
	fixture.results["sui_getTransactionBlock"] = `{
		"digest": "7cD4zW",
		"effects": {"status": {"status": "success"}, "gasUsed": {"computationCost": "1", "storageCost": "1", "storageRebate": "0"}},
		"events": [{"type": "0xdee9::clob_v2::OrderFilled", "parsedJson": {"price": "42"}}]
	}`
	srv := httptest.NewServer(fixture)
	defer srv.Close()

	client := NewClient(srv.URL, 0, 5*time.Second)
	record, err := client.GetTransaction(context.Background(), "7cD4zW")
	require.NoError(t, err)
	require.Equal(t, "7cD4zW", record.Digest)
	require.Len(t, record.Events, 1)
}

func TestClient_RateLimitedMapsToSentinel(t *testing.T) {
	fixture := newRPCFixture(t)
	fixture.status = http.StatusTooManyRequests
	srv := httptest.NewServer(fixture)
	defer srv.Close()

	client := NewClient(srv.URL, 0, 5*time.Second)
	_, err := client.QueryRecent(context.Background(), 10, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestClient_RPCErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid digest"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, 5*time.Second)
	_, err := client.GetTransaction(context.Background(), "bad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid digest")
}
