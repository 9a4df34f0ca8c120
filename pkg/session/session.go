// Package session manages the websocket JSON-RPC connection to a ledger node.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrConnectionFailed = errors.New("connection failed")

type State int32

const (
	StateConnecting State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// NodeError is a JSON-RPC error object returned by the node. The connection is
// still usable after one.
type NodeError struct {
	Method  string
	Code    int
	Message string
	Data    any
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s rejected by node (code %d): %s", e.Method, e.Code, e.Message)
}

type Option func(*options)

type options struct {
	connectTimeout time.Duration
}

// WithConnectTimeout bounds dialing plus the readiness check. Zero leaves the
// connect bounded only by the caller's context.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

type Session struct {
	endpoint string
	client   *rpc.Client
	logger   *zap.Logger

	state     atomic.Int32
	closeOnce sync.Once

	infoMu sync.Mutex
	info   *types.NodeInfo
}

// Connect dials endpoint (ws:// or wss://) and waits until the node answers a
// health check.
func Connect(ctx context.Context, endpoint string, logger *zap.Logger, opts ...Option) (*Session, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrConnectionFailed, endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: endpoint %q must use ws or wss", ErrConnectionFailed, endpoint)
	}

	s := &Session{endpoint: endpoint, logger: logger}
	s.state.Store(int32(StateConnecting))

	dialCtx := ctx
	if o.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}

	logger.Sugar().Debugw("Dialing node", "endpoint", endpoint, "timeout", o.connectTimeout)
	client, err := rpc.DialContext(dialCtx, endpoint)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, endpoint, err)
	}
	s.client = client

	var health types.NodeHealth
	if err := client.CallContext(dialCtx, &health, "system_health"); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: node %s not ready: %v", ErrConnectionFailed, endpoint, err)
	}

	s.state.Store(int32(StateReady))
	logger.Sugar().Infow("Connected to node",
		"endpoint", endpoint,
		"peers", health.Peers,
		"syncing", health.IsSyncing,
	)
	return s, nil
}

func (s *Session) Endpoint() string {
	return s.endpoint
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// NodeInfo fetches chain, node name and node version concurrently. All three
// must succeed.
func (s *Session) NodeInfo(ctx context.Context) (*types.NodeInfo, error) {
	info := &types.NodeInfo{}
	queries := map[string]*string{
		"system_chain":   &info.Chain,
		"system_name":    &info.Name,
		"system_version": &info.Version,
	}

	g, gctx := errgroup.WithContext(ctx)
	for method, dst := range queries {
		g.Go(func() error {
			return s.CallContext(gctx, dst, method)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.infoMu.Lock()
	s.info = info
	s.infoMu.Unlock()

	copied := *info
	return &copied, nil
}

// Info returns the last successful NodeInfo result, or nil.
func (s *Session) Info() *types.NodeInfo {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	if s.info == nil {
		return nil
	}
	copied := *s.info
	return &copied
}

// CallContext performs one JSON-RPC call. Node-side errors come back as
// *NodeError. Any other failure means the transport is gone: the session is
// closed and the error wraps ErrConnectionFailed. Context cancellation is
// returned unchanged.
func (s *Session) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if s.State() != StateReady {
		return fmt.Errorf("%w: session is %s", ErrConnectionFailed, s.State())
	}

	err := s.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		nodeErr := &NodeError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			nodeErr.Data = dataErr.ErrorData()
		}
		return nodeErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.logger.Sugar().Errorw("Lost connection to node",
		"endpoint", s.endpoint,
		"method", method,
		"error", err,
	)
	s.Close()
	return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, method, err)
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		if s.client != nil {
			s.client.Close()
		}
		s.logger.Sugar().Debugw("Session closed", "endpoint", s.endpoint)
	})
}
