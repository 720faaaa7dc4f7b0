package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Client sends messages to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{socketPath: cfg.SocketPath, timeout: timeout}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Call sends one message and decodes the reply payload into out, which may
// be nil. A failed message is returned as *Error.
func (c *Client) Call(ctx context.Context, method Method, params, out any) (string, error) {
	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	conn, err := c.Connect()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	// Cancellation and the context deadline unblock the exchange only
	// through AfterFunc, which runs after ctx.Err is set.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to send request: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	var resp struct {
		Result *struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
		Error *Error `json:"error"`
		ID    string `json:"id"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to receive response: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	if resp.Result == nil {
		return "", fmt.Errorf("empty response to %s", method)
	}
	if out != nil && len(resp.Result.Payload) > 0 {
		if err := json.Unmarshal(resp.Result.Payload, out); err != nil {
			return resp.Result.Type, fmt.Errorf("failed to decode %s payload: %w", resp.Result.Type, err)
		}
	}
	return resp.Result.Type, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, MethodPing, nil, nil)
	return err
}

// Status fetches the aggregate status.
func (c *Client) Status(ctx context.Context) (service.StatusReport, error) {
	var rep service.StatusReport
	_, err := c.Call(ctx, MethodGetStatus, nil, &rep)
	return rep, err
}

// Stats fetches record counts.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	_, err := c.Call(ctx, MethodGetStats, nil, &st)
	return st, err
}

// Scan asks the daemon to scan and start analysis.
func (c *Client) Scan(ctx context.Context, p ScanParams) (ScanReply, error) {
	var rep ScanReply
	_, err := c.Call(ctx, MethodStartScan, p, &rep)
	return rep, err
}

// Analyze runs analysis in the daemon and waits for the result.
func (c *Client) Analyze(ctx context.Context, rerun bool) (pipeline.RunResult, error) {
	var res pipeline.RunResult
	_, err := c.Call(ctx, MethodRunAnalysis, AnalysisParams{Wait: true, Rerun: rerun}, &res)
	return res, err
}

// Ask forwards a question.
func (c *Client) Ask(ctx context.Context, question string) (*llm.AnswerResult, error) {
	var res llm.AnswerResult
	if _, err := c.Call(ctx, MethodAskQuery, AskParams{Question: question}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search forwards a retrieval query.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]service.Hit, error) {
	var hits []service.Hit
	_, err := c.Call(ctx, MethodSearch, SearchParams{Query: query, TopK: topK}, &hits)
	return hits, err
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
