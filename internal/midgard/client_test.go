package midgard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"midgardFeed/internal/model"
)

const v2PoolsBody = `[
  {"asset":"BTC.BTC","assetDepth":"1000000000","runeDepth":"100000000000","status":"available","units":"42"},
  {"asset":"ETH.ETH","assetDepth":"oops","runeDepth":"1","status":"available","units":"1"},
  {"asset":"BNB.BNB","assetDepth":"500000000","runeDepth":"2500000000","status":"staged","units":"7"}
]`

const v2ActionsBody = `{
  "count": "120",
  "actions": [
    {"date":"1616000000000000000","height":"123","status":"pending","type":"swap","pools":["BTC.BTC"],
     "in":[{"address":"bc1q","txID":"AAA","coins":[{"asset":"BTC.BTC","amount":"100000000"}]}],
     "out":[]},
    {"date":"1616000001000000000","height":"124","status":"success","type":"switch","pools":[],
     "in":[{"address":"bnb1x","txID":"","coins":[{"asset":"BNB.RUNE-B1A","amount":"500000000"}]}],
     "out":[{"address":"thor1x","txID":"","coins":[{"asset":"THOR.RUNE","amount":"500000000"}]}]},
    {"date":"1616000002000000000","height":"125","status":"exploded","type":"swap"}
  ]
}`

func newV2Server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/pools", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(v2PoolsBody))
	})
	mux.HandleFunc("/v2/actions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "10", r.URL.Query().Get("offset"))
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(v2ActionsBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewClientUnknownNetwork(t *testing.T) {
	_, err := NewClient(ClientConfig{Network: "moonnet"}, nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "network", cfgErr.Field)
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
	require.False(t, IsRetriable(err))
}

func TestClientV2PoolState(t *testing.T) {
	server := newV2Server(t)
	client, err := NewClient(ClientConfig{Network: TestnetMultiChain, BaseURL: server.URL}, nil)
	require.NoError(t, err)
	require.Equal(t, SchemaV2, client.Schema())

	pools, err := client.PoolState(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)

	require.Equal(t, "BTC.BTC", pools[0].Asset)
	require.True(t, pools[0].AssetDepth.Equal(decimal.NewFromInt(10)))
	require.True(t, pools[0].RuneDepth.Equal(decimal.NewFromInt(1000)))
	require.True(t, pools[0].Units.Equal(decimal.NewFromInt(42)))
	require.True(t, pools[0].Enabled)

	require.Equal(t, "BNB.BNB", pools[1].Asset)
	require.False(t, pools[1].Enabled)
}

func TestClientV2Transactions(t *testing.T) {
	server := newV2Server(t)
	client, err := NewClient(ClientConfig{Network: ChaosnetMultiChain, BaseURL: server.URL}, nil)
	require.NoError(t, err)

	batch, err := client.Transactions(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(120), batch.Total)
	require.Len(t, batch.Txs, 2)

	swap := batch.Txs[0]
	require.Equal(t, "AAA", swap.Hash)
	require.Equal(t, model.ActionSwap, swap.Type)
	require.Equal(t, model.StatusPending, swap.Status)
	require.Equal(t, int64(1616000000000), swap.DateMs)
	require.Equal(t, int64(123), swap.Height)
	require.True(t, swap.In[0].Coins[0].Amount.Equal(decimal.NewFromInt(1)))

	switched := batch.Txs[1]
	require.Equal(t, model.ActionSwitch, switched.Type)
	require.Equal(t, model.StatusSuccess, switched.Status)
	require.Equal(t, model.RealInputHash(switched.DateMs, switched.In), switched.Hash)
	require.NotEmpty(t, switched.Hash)
}

func TestClientV1(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/pools", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["BNB.BTCB-1DE","BNB.BNB"]`))
	})
	mux.HandleFunc("/v1/pools/detail", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BNB.BNB,BNB.BTCB-1DE", r.URL.Query().Get("asset"))
		require.Equal(t, "simple", r.URL.Query().Get("view"))
		_, _ = w.Write([]byte(`[
		  {"asset":"BNB.BNB","assetDepth":"200000000","runeDepth":"1000000000","status":"enabled","poolUnits":"9"},
		  {"asset":"BNB.BTCB-1DE","assetDepth":"100000000","runeDepth":"4000000000","status":"bootstrapped","poolUnits":"3"}
		]`))
	})
	mux.HandleFunc("/v1/txs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": 2, "txs": [
		  {"type":"stake","status":"Success","date":1600000000,"height":77,"pool":{"asset":"BNB.BNB"},
		   "in":{"address":"bnb1a","txID":"T1","coins":[{"asset":"BNB.BNB","amount":"100000000"}]},"out":[]},
		  {"type":"doubleSwap","status":"Pending","date":1600000005,"height":78,"pool":{"asset":"BNB.BTCB-1DE"},
		   "_in":{"address":"bnb1b","txID":"T2","coins":[{"asset":"BNB.BNB","amount":"100000000"}]},"out":[]}
		]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(ClientConfig{Network: ChaosnetBep2, BaseURL: server.URL}, nil)
	require.NoError(t, err)
	require.Equal(t, SchemaV1, client.Schema())

	pools, err := client.PoolState(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.True(t, pools[0].Enabled)
	require.False(t, pools[1].Enabled)
	require.True(t, pools[1].RunesPerAsset().Equal(decimal.NewFromInt(40)))

	batch, err := client.Transactions(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Equal(t, int64(2), batch.Total)
	require.Len(t, batch.Txs, 2)
	require.Equal(t, model.ActionAddLiquidity, batch.Txs[0].Type)
	require.Equal(t, int64(1600000000000), batch.Txs[0].DateMs)
	require.Equal(t, []string{"BNB.BNB"}, batch.Txs[0].Pools)
	require.Equal(t, model.ActionSwap, batch.Txs[1].Type)
	require.Equal(t, model.StatusPending, batch.Txs[1].Status)
	require.Equal(t, "T2", batch.Txs[1].Hash)
}

func TestClientStatusErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Network: Mainnet, BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.PoolState(context.Background())
	require.Error(t, err)
	require.True(t, IsRetriable(err))

	status = http.StatusNotFound
	_, err = client.PoolState(context.Background())
	require.Error(t, err)
	require.False(t, IsRetriable(err))

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, "get pools", netErr.Op)
}

func TestParserForUnknownSchema(t *testing.T) {
	_, err := ParserFor("v9")
	require.ErrorIs(t, err, ErrUnsupportedSchema)

	version, err := ParseSchemaVersion(" V1 ")
	require.NoError(t, err)
	require.Equal(t, SchemaV1, version)
}

func TestClientTruncatedBodyIsRetriable(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			_, _ = w.Write([]byte(`[{"asset":"BTC.BTC","assetDe`))
			return
		}
		_, _ = w.Write([]byte(v2PoolsBody))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Network: Mainnet, BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = client.PoolState(context.Background())
	require.Error(t, err)
	require.True(t, IsRetriable(err))
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, "decode pools", netErr.Op)

	pools, err := client.PoolState(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)
}
