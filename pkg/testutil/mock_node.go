package testutil

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ContractHandler answers dry-run calls for one deployed contract
type ContractHandler interface {
	Call(req types.ContractCallRequest) (*types.ContractExecResult, error)
}

// ContractHandlerFunc adapts a function to ContractHandler
type ContractHandlerFunc func(req types.ContractCallRequest) (*types.ContractExecResult, error)

func (f ContractHandlerFunc) Call(req types.ContractCallRequest) (*types.ContractExecResult, error) {
	return f(req)
}

// RPCError is returned to clients as a JSON-RPC error object
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// MockNode is an in-process websocket JSON-RPC node exposing the system and
// contracts namespaces.
type MockNode struct {
	Info types.NodeInfo

	server    *httptest.Server
	rpcServer *rpc.Server
	logger    *zap.Logger

	mu        sync.Mutex
	contracts map[string]ContractHandler
	failing   map[string]bool
	calls     map[string]int
	requests  []types.ContractCallRequest
}

// NewMockNode starts a mock node and stops it when the test ends
func NewMockNode(t *testing.T, logger *zap.Logger) *MockNode {
	t.Helper()

	n := &MockNode{
		Info: types.NodeInfo{
			Chain:   "Development",
			Name:    "Canvas Node",
			Version: "0.1.0-mock",
		},
		rpcServer: rpc.NewServer(),
		logger:    logger,
		contracts: make(map[string]ContractHandler),
		failing:   make(map[string]bool),
		calls:     make(map[string]int),
	}
	if err := n.rpcServer.RegisterName("system", &systemAPI{node: n}); err != nil {
		t.Fatalf("Failed to register system api: %v", err)
	}
	if err := n.rpcServer.RegisterName("contracts", &contractsAPI{node: n}); err != nil {
		t.Fatalf("Failed to register contracts api: %v", err)
	}

	n.server = httptest.NewServer(n.rpcServer.WebsocketHandler([]string{"*"}))
	t.Cleanup(n.Close)

	logger.Sugar().Debugw("Mock node started", "url", n.URL())
	return n
}

// URL is the ws:// endpoint of the node
func (n *MockNode) URL() string {
	return "ws://" + strings.TrimPrefix(n.server.URL, "http://")
}

// Deploy installs a contract handler at an SS58 address
func (n *MockNode) Deploy(address string, h ContractHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contracts[address] = h
}

// Fail makes method answer with a JSON-RPC error
func (n *MockNode) Fail(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[method] = true
}

// Calls returns how often method was invoked
func (n *MockNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// ContractRequests returns every contracts_call request received so far
func (n *MockNode) ContractRequests() []types.ContractCallRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.ContractCallRequest, len(n.requests))
	copy(out, n.requests)
	return out
}

// Shutdown drops every client connection and stops accepting new ones, which
// looks like a lost transport from the client side.
func (n *MockNode) Shutdown() {
	n.rpcServer.Stop()
	n.server.CloseClientConnections()
	n.server.Close()
}

func (n *MockNode) Close() {
	n.rpcServer.Stop()
	n.server.Close()
}

func (n *MockNode) record(method string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
	if n.failing[method] {
		return &RPCError{Code: -32000, Message: fmt.Sprintf("%s unavailable", method)}
	}
	return nil
}

type systemAPI struct {
	node *MockNode
}

func (s *systemAPI) Chain() (string, error) {
	return s.node.Info.Chain, s.node.record("system_chain")
}

func (s *systemAPI) Name() (string, error) {
	return s.node.Info.Name, s.node.record("system_name")
}

func (s *systemAPI) Version() (string, error) {
	return s.node.Info.Version, s.node.record("system_version")
}

func (s *systemAPI) Health() (*types.NodeHealth, error) {
	if err := s.node.record("system_health"); err != nil {
		return nil, err
	}
	return &types.NodeHealth{Peers: 0, IsSyncing: false, ShouldHavePeers: false}, nil
}

type contractsAPI struct {
	node *MockNode
}

func (c *contractsAPI) Call(req types.ContractCallRequest, at *string) (*types.ContractExecResult, error) {
	if err := c.node.record("contracts_call"); err != nil {
		return nil, err
	}

	c.node.mu.Lock()
	c.node.requests = append(c.node.requests, req)
	h, ok := c.node.contracts[req.Dest]
	c.node.mu.Unlock()

	if !ok {
		return nil, &RPCError{Code: 1002, Message: fmt.Sprintf("no contract at %s", req.Dest)}
	}
	return h.Call(req)
}
