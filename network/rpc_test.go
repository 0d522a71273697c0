package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcHandler func(params []any) (any, *RPCError)

// rpcTestServer answers JSON-RPC calls with the handler registered for
// the method.
func rpcTestServer(t *testing.T, handlers map[string]rpcHandler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected RPC method: %s", req.Method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, rpcErr := handler(req.Params)
		resp := rpcResponse{ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			resp.Result, _ = json.Marshal(result)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

// --- Call ---

func TestCall_AuthAndDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1.0", req.JSONRPC)
		assert.Equal(t, []any{}, req.Params)
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`812345`)})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL, User: "u", Password: "p"})
	var height uint64
	require.NoError(t, client.Call(context.Background(), "getblockcount", nil, &height))
	assert.Equal(t, uint64(812345), height)
}

func TestCall_RPCError(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"getrawtransaction": func([]any) (any, *RPCError) {
			return nil, &RPCError{Code: -5, Message: "No such mempool or blockchain transaction"}
		},
	})
	client := NewRPCClient(RPCConfig{URL: server.URL})
	err := client.Call(context.Background(), "getrawtransaction", []any{"x"}, nil)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -5, rpcErr.Code)
	assert.Contains(t, err.Error(), "No such mempool")
}

func TestCall_Failures(t *testing.T) {
	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	badGateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer badGateway.Close()
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer garbage.Close()
	wrongID := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: 999, Result: json.RawMessage(`1`)})
	}))
	defer wrongID.Close()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"unreachable", "http://127.0.0.1:1", ErrConnectionFailed},
		{"unauthorized", unauthorized.URL, ErrAuthFailed},
		{"http error", badGateway.URL, ErrConnectionFailed},
		{"garbage", garbage.URL, ErrInvalidResponse},
		{"id mismatch", wrongID.URL, ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out int
			err := NewRPCClient(RPCConfig{URL: tt.url}).Call(context.Background(), "getblockcount", nil, &out)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCall_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRPCClient(RPCConfig{URL: server.URL}).Call(ctx, "getblockcount", nil, nil)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCall_SequentialIDs(t *testing.T) {
	var ids []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ids = append(ids, req.ID)
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`0`)})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	for i := 0; i < 3; i++ {
		require.NoError(t, client.Call(context.Background(), "getblockcount", nil, nil))
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

// --- Chain methods ---

func TestListUnspent(t *testing.T) {
	const addr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	server := rpcTestServer(t, map[string]rpcHandler{
		"listunspent": func(params []any) (any, *RPCError) {
			require.Len(t, params, 3)
			assert.Equal(t, float64(0), params[0])
			assert.Equal(t, float64(9999999), params[1])
			assert.Equal(t, []any{addr}, params[2])
			return []map[string]any{
				{"txid": "aa", "vout": 0, "amount": 0.001, "scriptPubKey": "76a9", "address": addr, "confirmations": 6},
				{"txid": "bb", "vout": 1, "amount": 1.5, "scriptPubKey": "76a9", "address": addr, "confirmations": 0},
			}, nil
		},
	})

	utxos, err := NewRPCClient(RPCConfig{URL: server.URL}).ListUnspent(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, uint64(100000), utxos[0].Amount)
	assert.Equal(t, uint64(150000000), utxos[1].Amount)
	assert.Equal(t, uint32(1), utxos[1].Vout)
	assert.Equal(t, int64(6), utxos[0].Confirmations)
}

func TestBroadcastTx(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"sendrawtransaction": func(params []any) (any, *RPCError) {
			switch params[0] {
			case "good":
				return "txid-1", nil
			case "known":
				return nil, &RPCError{Code: -27, Message: "transaction already in block chain"}
			default:
				return nil, &RPCError{Code: -26, Message: "mandatory-script-verify-flag-failed"}
			}
		},
	})
	client := NewRPCClient(RPCConfig{URL: server.URL})

	txid, err := client.BroadcastTx(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "txid-1", txid)

	txid, err = client.BroadcastTx(context.Background(), "known")
	require.NoError(t, err)
	assert.Empty(t, txid)

	_, err = client.BroadcastTx(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrBroadcastRejected)
}

func TestGetTxStatus(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"getrawtransaction": func(params []any) (any, *RPCError) {
			assert.Equal(t, true, params[1])
			switch params[0] {
			case "mined":
				return map[string]any{"confirmations": 3, "blockhash": "bh", "blockheight": 100}, nil
			case "pending":
				return map[string]any{"confirmations": 0}, nil
			default:
				return nil, &RPCError{Code: -5, Message: "No such mempool or blockchain transaction"}
			}
		},
	})
	client := NewRPCClient(RPCConfig{URL: server.URL})

	st, err := client.GetTxStatus(context.Background(), "mined")
	require.NoError(t, err)
	assert.True(t, st.Confirmed)
	assert.Equal(t, int64(3), st.Confirmations)
	assert.Equal(t, uint64(100), st.BlockHeight)

	st, err = client.GetTxStatus(context.Background(), "pending")
	require.NoError(t, err)
	assert.False(t, st.Confirmed)

	_, err = client.GetTxStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestBestBlockHeight(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"getblockcount": func([]any) (any, *RPCError) { return 42, nil },
	})
	h, err := NewRPCClient(RPCConfig{URL: server.URL}).BestBlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)
}

func TestBtcToSat(t *testing.T) {
	assert.Equal(t, uint64(1), btcToSat(0.00000001))
	assert.Equal(t, uint64(29), btcToSat(0.00000029))
	assert.Equal(t, uint64(2100000000000000), btcToSat(21000000))
}
