package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Aria2Client talks to an aria2 daemon over JSON-RPC.
type Aria2Client struct {
	RPCUrl string
	Secret string
	Client *http.Client
}

func NewClient(rpcURL, secret string) *Aria2Client {
	return &Aria2Client{
		RPCUrl: rpcURL,
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type JsonRpcRequest struct {
	JsonRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  []any  `json:"params"`
}

type JsonRpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *JsonRpcError   `json:"error,omitempty"`
}

type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method and decodes the result into out (skipped when nil).
func (c *Aria2Client) Call(ctx context.Context, out any, method string, params ...any) error {
	// If secret is set, it must be the first parameter as "token:secret"
	finalParams := make([]any, 0, len(params)+1)
	if c.Secret != "" {
		finalParams = append(finalParams, "token:"+c.Secret)
	}
	finalParams = append(finalParams, params...)

	data, err := json.Marshal(JsonRpcRequest{
		JsonRPC: "2.0",
		Method:  method,
		ID:      "audio-extractor",
		Params:  finalParams,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCUrl, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp JsonRpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// AddUri queues uri for download into dir/filename and returns its gid.
func (c *Aria2Client) AddUri(ctx context.Context, uri, dir, filename string, headers map[string]string) (string, error) {
	opts := map[string]any{
		"dir": dir,
	}
	if filename != "" {
		opts["out"] = filename
	}

	headerList := []string{}
	for k, v := range headers {
		headerList = append(headerList, fmt.Sprintf("%s: %s", k, v))
	}
	if len(headerList) > 0 {
		opts["header"] = headerList
	}

	// aria2.addUri expects [uris] as first arg (after secret)
	var gid string
	if err := c.Call(ctx, &gid, "aria2.addUri", []string{uri}, opts); err != nil {
		return "", err
	}
	if gid == "" {
		return "", fmt.Errorf("aria2 returned an empty gid")
	}
	return gid, nil
}

// Status is the subset of aria2.tellStatus keys the converter polls.
// aria2 reports every number as a decimal string.
type Status struct {
	Gid             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	ErrorMessage    string `json:"errorMessage"`
	Dir             string `json:"dir"`
	Files           []File `json:"files"`
}

type File struct {
	Path string `json:"path"`
}

const (
	StatusActive   = "active"
	StatusWaiting  = "waiting"
	StatusPaused   = "paused"
	StatusComplete = "complete"
	StatusError    = "error"
	StatusRemoved  = "removed"
)

func (s Status) Total() int64     { return parseInt(s.TotalLength) }
func (s Status) Completed() int64 { return parseInt(s.CompletedLength) }
func (s Status) Speed() int64     { return parseInt(s.DownloadSpeed) }

func (c *Aria2Client) TellStatus(ctx context.Context, gid string) (Status, error) {
	var st Status
	keys := []string{"gid", "status", "totalLength", "completedLength", "downloadSpeed", "errorMessage", "dir", "files"}
	err := c.Call(ctx, &st, "aria2.tellStatus", gid, keys)
	return st, err
}

func (c *Aria2Client) ForceRemove(ctx context.Context, gid string) error {
	return c.Call(ctx, nil, "aria2.forceRemove", gid)
}

// RemoveDownloadResult removes a completed/error/removed download from the memory
func (c *Aria2Client) RemoveDownloadResult(ctx context.Context, gid string) error {
	return c.Call(ctx, nil, "aria2.removeDownloadResult", gid)
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
