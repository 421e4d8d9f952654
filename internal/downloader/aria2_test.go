package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeAria2 answers JSON-RPC calls from a method -> result table and records
// the params it received.
func fakeAria2(t *testing.T, results map[string]any) (*httptest.Server, func() []JsonRpcRequest) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []JsonRpcRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JsonRpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		mu.Lock()
		calls = append(calls, req)
		mu.Unlock()

		resp := map[string]any{"id": req.ID, "jsonrpc": "2.0"}
		res, ok := results[req.Method]
		if !ok {
			resp["error"] = map[string]any{"code": 1, "message": "unknown method"}
		} else {
			resp["result"] = res
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []JsonRpcRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]JsonRpcRequest(nil), calls...)
	}
}

func TestAddUriSendsSecretFirst(t *testing.T) {
	srv, calls := fakeAria2(t, map[string]any{"aria2.addUri": "2089b05ecca3d829"})
	c := NewClient(srv.URL, "s3cret")

	gid, err := c.AddUri(context.Background(), "http://example.com/a.mp4", "/tmp/x", "", map[string]string{"User-Agent": "ua"})
	if err != nil {
		t.Fatalf("AddUri: %v", err)
	}
	if gid != "2089b05ecca3d829" {
		t.Errorf("Unexpected gid %s", gid)
	}

	params := calls()[0].Params
	if len(params) != 3 {
		t.Fatalf("Expected token, uris and options, got %v", params)
	}
	if params[0] != "token:s3cret" {
		t.Errorf("Expected token first, got %v", params[0])
	}
	opts := params[2].(map[string]any)
	if opts["dir"] != "/tmp/x" {
		t.Errorf("Expected dir option, got %v", opts)
	}
	if _, ok := opts["out"]; ok {
		t.Errorf("Expected no out option for empty filename, got %v", opts["out"])
	}
}

func TestTellStatus(t *testing.T) {
	srv, _ := fakeAria2(t, map[string]any{"aria2.tellStatus": map[string]any{
		"gid":             "abc",
		"status":          "active",
		"totalLength":     "1000",
		"completedLength": "250",
		"downloadSpeed":   "2048",
	}})
	c := NewClient(srv.URL, "")

	st, err := c.TellStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("TellStatus: %v", err)
	}
	if st.Status != StatusActive || st.Total() != 1000 || st.Completed() != 250 || st.Speed() != 2048 {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv, _ := fakeAria2(t, map[string]any{})
	c := NewClient(srv.URL, "")

	err := c.ForceRemove(context.Background(), "abc")
	var rpcErr *JsonRpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected JsonRpcError, got %v", err)
	}
	if rpcErr.Message != "unknown method" {
		t.Errorf("Unexpected message %q", rpcErr.Message)
	}
}
