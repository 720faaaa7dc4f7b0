package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/Aman-CERP/pagemind/internal/service"
)

// Caller sends one message and decodes the reply payload into out.
type Caller interface {
	Call(ctx context.Context, method Method, params, out any) (string, error)
}

var (
	_ Caller = (*Client)(nil)
	_ Caller = (*InProcess)(nil)
)

// InProcess runs messages against a service in the calling process, so CLI
// commands behave the same with and without a daemon.
type InProcess struct {
	server *Server
	ids    atomic.Uint64
}

// NewInProcess creates an in-process caller over svc.
func NewInProcess(svc *service.Service, logger *slog.Logger) *InProcess {
	return &InProcess{server: NewServer(Config{}, Handlers(svc), logger)}
}

// Call implements Caller. Params and payloads take the same JSON round trip
// as over the socket.
func (p *InProcess) Call(ctx context.Context, method Method, params, out any) (string, error) {
	req := Request{JSONRPC: "2.0", Method: method, ID: strconv.FormatUint(p.ids.Add(1), 10)}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	resp := p.server.Dispatch(ctx, req)
	if resp.Error != nil {
		return "", resp.Error
	}
	if resp.Result == nil {
		return "", fmt.Errorf("empty response to %s", method)
	}
	if out == nil || resp.Result.Payload == nil {
		return resp.Result.Type, nil
	}
	raw, err := json.Marshal(resp.Result.Payload)
	if err != nil {
		return resp.Result.Type, fmt.Errorf("failed to encode %s payload: %w", resp.Result.Type, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.Result.Type, fmt.Errorf("failed to decode %s payload: %w", resp.Result.Type, err)
	}
	return resp.Result.Type, nil
}
