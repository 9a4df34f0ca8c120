package verifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/config"
	"github.com/Layr-Labs/ink-verifier/pkg/testutil"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) CallContext(_ context.Context, _ any, method string, _ ...any) error {
	return m.Called(method).Error(0)
}

func (m *mockSession) NodeInfo(context.Context) (*types.NodeInfo, error) {
	args := m.Called()
	info, _ := args.Get(0).(*types.NodeInfo)
	return info, args.Error(1)
}

func (m *mockSession) Close() {
	m.Called()
}

func TestRun_NodeInfoFailureClosesSession(t *testing.T) {
	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)

	sess := &mockSession{}
	sess.On("NodeInfo").Return(nil, errors.New("system_chain rejected by node"))
	sess.On("Close").Return().Once()

	v, err := NewVerifier(cfg, zap.NewNop(), WithConnector(func(context.Context, string) (Session, error) {
		return sess, nil
	}))
	require.NoError(t, err)

	_, err = v.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node info")

	sess.AssertExpectations(t)
	sess.AssertNotCalled(t, "CallContext", mock.Anything)
}

func TestRun_LogsStepsWithoutSecrets(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Name: "check signature", Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)

	v, err := NewVerifier(cfg, l, WithConnector(func(context.Context, string) (Session, error) {
		return &fakeSession{call: answer(checkSignTrue)}, nil
	}))
	require.NoError(t, err)

	report, err := v.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)

	succeeded := observed.FilterMessage("Query step succeeded").All()
	require.Len(t, succeeded, 1)
	fields := succeeded[0].ContextMap()
	assert.Equal(t, "check signature", fields["name"])
	assert.Equal(t, "check_sign", fields["method"])
	assert.Equal(t, "unbounded", fields["gasLimit"])

	assert.Len(t, observed.FilterMessage("Identity self-check passed").All(), 1)
	assert.Len(t, observed.FilterMessage("Verification run complete").All(), 1)

	for _, entry := range observed.All() {
		assert.NotContains(t, entry.Message, testutil.TestPhrase)
		for k, val := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(val), testutil.TestPhrase, "field %s of %q", k, entry.Message)
		}
	}
}

func TestRun_CancelledRunLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded(), DelayMs: 60_000},
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)
	cfg.CallTimeout = time.Second
	cfg.MaxCallsPerSecond = 5

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &mockSession{}
	sess.On("NodeInfo").Return(&types.NodeInfo{Chain: "Fake", Name: "fake", Version: "1"}, nil)
	sess.On("CallContext", "contracts_call").Return(nil).Run(func(mock.Arguments) { cancel() }).Once()
	sess.On("Close").Return().Once()

	v, err := NewVerifier(cfg, zap.NewNop(), WithConnector(func(context.Context, string) (Session, error) {
		return sess, nil
	}))
	require.NoError(t, err)

	_, err = v.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	sess.AssertExpectations(t)
}
