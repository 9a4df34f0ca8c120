// Package contract binds an ink! contract interface description to an on-chain
// address and runs read-only dry-run queries against it.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/scale"
	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"go.uber.org/zap"
)

const DefaultCallMethod = "contracts_call"

var (
	ErrUnknownMethod      = errors.New("unknown contract method")
	ErrArgumentMismatch   = errors.New("arguments do not match method signature")
	ErrMalformedInterface = metadata.ErrMalformedInterface
	ErrInvalidAddress     = ss58.ErrInvalidAddress
)

// Dispatcher performs a single JSON-RPC call; *session.Session implements it.
type Dispatcher interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

type CallOptions struct {
	Value *big.Int
	Gas   GasLimit
}

// PreparedCall is a resolved message with its encoded input
type PreparedCall struct {
	Message *metadata.Message
	Args    []any
	Window  *Window
	Input   []byte
}

type Option func(*Binding)

// WithCallMethod overrides the RPC method used for dry runs.
func WithCallMethod(method string) Option {
	return func(b *Binding) {
		b.method = method
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Binding) {
		b.logger = l
	}
}

// Binding is a contract interface bound to an address. It is read-only after
// construction.
type Binding struct {
	md         *metadata.Metadata
	registry   *scale.Registry
	address    string
	dispatcher Dispatcher
	method     string
	logger     *zap.Logger
}

func Bind(d Dispatcher, interfaceJSON []byte, address string, opts ...Option) (*Binding, error) {
	md, err := metadata.Parse(interfaceJSON)
	if err != nil {
		return nil, err
	}
	return BindMetadata(d, md, address, opts...)
}

func BindMetadata(d Dispatcher, md *metadata.Metadata, address string, opts ...Option) (*Binding, error) {
	_, prefix, err := ss58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("contract address %q: %w", address, err)
	}
	// account values render in the same network format as the contract address
	b := &Binding{
		md:         md,
		registry:   md.Registry.WithSS58Prefix(prefix),
		address:    address,
		dispatcher: d,
		method:     DefaultCallMethod,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Binding) Address() string {
	return b.address
}

func (b *Binding) Metadata() *metadata.Metadata {
	return b.md
}

func (b *Binding) Methods() []string {
	return b.md.MessageNames()
}

// Prepare resolves name and encodes args without contacting the node. When a
// window is given it is appended as the method's trailing page argument.
func (b *Binding) Prepare(name string, args []any, window *Window) (*PreparedCall, error) {
	msg, ok := b.md.Message(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownMethod, name, b.md.MessageNames())
	}

	all := append([]any{}, args...)
	if window != nil {
		if !b.Enumerable(msg) {
			return nil, fmt.Errorf("%w: %s does not take a page argument", ErrArgumentMismatch, msg.Label)
		}
		all = append(all, []any{window.Offset, window.Limit})
	}
	if len(all) != len(msg.Args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentMismatch, msg.Label, len(msg.Args), len(all))
	}

	input := append([]byte{}, msg.Selector[:]...)
	for i, arg := range msg.Args {
		enc, err := b.registry.Encode(arg.Type, all[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %q: %v", ErrArgumentMismatch, msg.Label, arg.Label, err)
		}
		input = append(input, enc...)
	}

	return &PreparedCall{Message: msg, Args: all, Window: window, Input: input}, nil
}

// Enumerable reports whether the message's last argument is a two-field
// unsigned page parameter.
func (b *Binding) Enumerable(msg *metadata.Message) bool {
	if len(msg.Args) == 0 {
		return false
	}
	def, err := b.registry.Lookup(msg.Args[len(msg.Args)-1].Type)
	if err != nil {
		return false
	}

	var members []scale.TypeID
	switch def.Kind {
	case scale.KindComposite:
		for _, f := range def.Fields {
			members = append(members, f.Type)
		}
	case scale.KindTuple:
		members = def.Tuple
	}
	if len(members) != 2 {
		return false
	}
	for _, id := range members {
		if !b.unsigned(id) {
			return false
		}
	}
	return true
}

func (b *Binding) unsigned(id scale.TypeID) bool {
	def, err := b.registry.Lookup(id)
	if err != nil {
		return false
	}
	switch def.Kind {
	case scale.KindCompact:
		return true
	case scale.KindPrimitive:
		switch def.Primitive {
		case "u8", "u16", "u32", "u64", "u128":
			return true
		}
	}
	return false
}

func (b *Binding) Call(ctx context.Context, name, caller string, opts CallOptions, args ...any) (*QueryResult, error) {
	return b.CallWindow(ctx, name, caller, opts, nil, args...)
}

func (b *Binding) CallWindow(ctx context.Context, name, caller string, opts CallOptions, window *Window, args ...any) (*QueryResult, error) {
	p, err := b.Prepare(name, args, window)
	if err != nil {
		return nil, err
	}
	return b.Dispatch(ctx, p, caller, opts)
}

// Dispatch sends a prepared call as a dry run. Transport and node errors are
// returned as-is; everything the contract answered comes back in QueryResult.
func (b *Binding) Dispatch(ctx context.Context, p *PreparedCall, caller string, opts CallOptions) (*QueryResult, error) {
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	req := types.ContractCallRequest{
		Origin:    caller,
		Dest:      b.address,
		Value:     value,
		GasLimit:  opts.Gas.request(),
		InputData: p.Input,
	}

	b.logger.Sugar().Debugw("Dispatching contract query",
		"method", p.Message.Label,
		"selector", p.Message.SelectorHex(),
		"gas", opts.Gas.String(),
		"inputBytes", len(p.Input),
	)

	var raw json.RawMessage
	if err := b.dispatcher.CallContext(ctx, &raw, b.method, req); err != nil {
		return nil, err
	}

	var res types.ContractExecResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &DecodeError{Method: p.Message.Label, Err: fmt.Errorf("malformed %s response: %w", b.method, err)}
	}
	return b.interpret(p.Message, &res)
}
