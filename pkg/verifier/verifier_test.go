package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/config"
	"github.com/Layr-Labs/ink-verifier/pkg/contract"
	"github.com/Layr-Labs/ink-verifier/pkg/identity"
	"github.com/Layr-Labs/ink-verifier/pkg/logger"
	"github.com/Layr-Labs/ink-verifier/pkg/merkle"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence/memory"
	"github.com/Layr-Labs/ink-verifier/pkg/session"
	"github.com/Layr-Labs/ink-verifier/pkg/testutil"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return l
}

func unbounded() *config.Gas {
	return &config.Gas{GasLimit: contract.UnboundedGas()}
}

func testConfig(t *testing.T, endpoint string, steps ...config.Step) *config.VerifierConfig {
	t.Helper()
	cfg := &config.VerifierConfig{
		Endpoint: endpoint,
		Contract: config.ContractConfig{
			Metadata: testutil.WritePolkasignMetadata(t),
			Address:  testutil.ContractAddress,
		},
		Identity: config.IdentityConfig{
			Phrase:    config.Secret(testutil.TestPhrase),
			Algorithm: identity.AlgorithmEd25519.String(),
			Label:     "know pair",
		},
		TestMessage: testutil.TestMessage,
		Steps:       steps,
	}
	cfg.ApplyDefaults()
	return cfg
}

// trackingConnector wraps a connector and counts connects and closes
type trackingConnector struct {
	mu       sync.Mutex
	inner    Connector
	connects int
	closes   int
}

func (c *trackingConnector) connect(ctx context.Context, endpoint string) (Session, error) {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()

	s, err := c.inner(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &closeCounter{Session: s, owner: c}, nil
}

func (c *trackingConnector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.closes
}

type closeCounter struct {
	Session
	owner *trackingConnector
}

func (s *closeCounter) Close() {
	s.owner.mu.Lock()
	s.owner.closes++
	s.owner.mu.Unlock()
	s.Session.Close()
}

func sessionConnector(l *zap.Logger) Connector {
	return func(ctx context.Context, endpoint string) (Session, error) {
		s, err := session.Connect(ctx, endpoint, l, session.WithConnectTimeout(5*time.Second))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// fakeSession answers contract calls from a function, without a network
type fakeSession struct {
	call func(ctx context.Context, result any) error
}

func (f *fakeSession) CallContext(ctx context.Context, result any, _ string, _ ...any) error {
	return f.call(ctx, result)
}

func (f *fakeSession) NodeInfo(context.Context) (*types.NodeInfo, error) {
	return &types.NodeInfo{Chain: "Fake", Name: "fake", Version: "1"}, nil
}

func (f *fakeSession) Close() {}

const checkSignTrue = `{"gasConsumed":100,"gasRequired":200,"debugMessage":"","result":{"Ok":{"flags":0,"data":"0x01"}}}`

func answer(payload string) func(context.Context, any) error {
	return func(_ context.Context, result any) error {
		return json.Unmarshal([]byte(payload), result)
	}
}

func polkasignNode(t *testing.T, l *zap.Logger, cfg *config.VerifierConfig) *testutil.MockNode {
	t.Helper()
	signer, err := DeriveIdentity(cfg)
	require.NoError(t, err)
	other, err := identity.Derive(testutil.TestPhrase, identity.AlgorithmSr25519, "other")
	require.NoError(t, err)

	polkasign, err := testutil.NewPolkasignContract(
		testutil.Agreement{Index: 1, Creator: signer.Address(), Name: "lease", Signers: []string{other.Address()}},
		testutil.Agreement{Index: 2, Creator: signer.Address(), Name: "loan"},
		testutil.Agreement{Index: 3, Creator: signer.Address(), Name: "nda"},
		testutil.Agreement{Index: 4, Creator: other.Address(), Name: "unrelated"},
	)
	require.NoError(t, err)

	node := testutil.NewMockNode(t, l)
	node.Deploy(testutil.ContractAddress, polkasign)
	return node
}

func TestRun_AgainstMockNode(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "",
		config.Step{Name: "check signature", Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded(), DelayMs: 5},
		config.Step{Method: "queryAgreementById", Args: []any{42}, Gas: unbounded()},
		config.Step{Method: "queryAgreementById", Args: []any{2}, Gas: &config.Gas{GasLimit: contract.FixedGas(277379350384)}},
		config.Step{Method: "queryAgreementByCreator", Args: []any{"$signer"}, Pagination: []uint64{0, 10}, Gas: unbounded()},
	)
	node := polkasignNode(t, l, cfg)
	cfg.Endpoint = node.URL()

	tracker := &trackingConnector{inner: sessionConnector(l)}
	store := memory.NewMemoryPersistence(l)
	v, err := NewVerifier(cfg, l, WithConnector(tracker.connect), WithPersistence(store))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := v.Run(ctx)
	require.NoError(t, err)

	connects, closes := tracker.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, closes)

	assert.Equal(t, node.Info, report.Node)
	assert.Equal(t, identity.AlgorithmEd25519.String(), report.Algorithm)
	require.Len(t, report.Steps, 4)

	checkSign := report.Steps[0]
	assert.Equal(t, "check signature", checkSign.Name)
	assert.Equal(t, "check_sign", checkSign.Method)
	assert.Equal(t, types.OutcomeOk, checkSign.Outcome)
	assert.JSONEq(t, `true`, string(checkSign.Output))

	// the failed step does not stop the one after it
	missing := report.Steps[1]
	assert.Equal(t, types.OutcomeRemoteFault, missing.Outcome)
	assert.Equal(t, `dispatch_error: {"Module":{"index":8,"error":"ContractTrapped"}}`, missing.Fault)
	assert.Empty(t, missing.Output)

	found := report.Steps[2]
	assert.Equal(t, types.OutcomeOk, found.Outcome)
	var agreement map[string]any
	require.NoError(t, json.Unmarshal(found.Output, &agreement))
	assert.Equal(t, "loan", agreement["name"])
	assert.NotZero(t, found.GasConsumed.RefTime)

	page := report.Steps[3]
	assert.Equal(t, types.OutcomeOk, page.Outcome)
	require.NotNil(t, page.Page)
	assert.Equal(t, 3, page.Page.Returned)
	assert.True(t, page.Page.Consistent)
	var result struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(page.Output, &result))
	assert.Len(t, result.Data, 3)

	assert.Equal(t, 1, report.Failed())
	require.NoError(t, VerifyReport(report))

	reqs := node.ContractRequests()
	require.Len(t, reqs, 4)
	for _, req := range reqs {
		assert.Equal(t, report.Signer, req.Origin)
		assert.Equal(t, int64(0), req.Value.Int64())
	}
	assert.Nil(t, reqs[0].GasLimit)
	require.NotNil(t, reqs[2].GasLimit)
	assert.Equal(t, uint64(277379350384), *reqs[2].GasLimit)

	stored, err := store.LoadReport(report.RunID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NoError(t, VerifyReport(stored))
	latest, err := store.GetLatestRunID()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, latest)
}

func TestRun_CreatorWithoutAgreements(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := zap.New(core)
	cfg := testConfig(t, "",
		config.Step{Method: "queryAgreementByCreator", Args: []any{testutil.ContractAddress}, Pagination: []uint64{0, 10}, Gas: unbounded()},
	)
	node := polkasignNode(t, l, cfg)
	cfg.Endpoint = node.URL()

	v, err := NewVerifier(cfg, l, WithConnector(sessionConnector(l)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := v.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)

	step := report.Steps[0]
	assert.Equal(t, types.OutcomeOk, step.Outcome)
	require.NotNil(t, step.Page)
	assert.Equal(t, uint64(0), step.Page.Total)
	assert.Equal(t, 0, step.Page.Returned)
	assert.True(t, step.Page.Consistent)
	assert.JSONEq(t, `{"success":true,"err":"success","total":0,"pages":0,"page_index":0,"page_size":0,"data":[]}`, string(step.Output))
	assert.Zero(t, logs.FilterMessage("Page length does not match the page arithmetic").Len())
}

func TestRun_SelfCheckFailureNeverConnects(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://127.0.0.1:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)

	// the same phrase under sr25519 gives a different account
	wrong, err := identity.Derive(testutil.TestPhrase, identity.AlgorithmSr25519, "wrong")
	require.NoError(t, err)
	cfg.Identity.Address = wrong.Address()

	tracker := &trackingConnector{inner: sessionConnector(l)}
	v, err := NewVerifier(cfg, l, WithConnector(tracker.connect))
	require.NoError(t, err)

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, identity.ErrSignatureSelfCheckFailed)

	connects, _ := tracker.counts()
	assert.Equal(t, 0, connects)
}

func TestRun_InvalidPhraseNeverConnects(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://127.0.0.1:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)
	cfg.Identity.Phrase = "definitely not a mnemonic"

	tracker := &trackingConnector{inner: sessionConnector(l)}
	v, err := NewVerifier(cfg, l, WithConnector(tracker.connect))
	require.NoError(t, err)

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, identity.ErrInvalidPhrase)

	connects, _ := tracker.counts()
	assert.Equal(t, 0, connects)
}

func TestRun_UnreachableEndpoint(t *testing.T) {
	l := testLogger(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t, "ws://"+addr,
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)
	cfg.ConnectTimeout = 2 * time.Second

	calls := 0
	v, err := NewVerifier(cfg, l)
	require.NoError(t, err)
	v.connect = func(ctx context.Context, endpoint string) (Session, error) {
		calls++
		s, err := session.Connect(ctx, endpoint, l, session.WithConnectTimeout(cfg.ConnectTimeout))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrConnectionFailed)
	assert.Equal(t, 1, calls)
}

func TestRun_SetupFaultsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name  string
		steps []config.Step
		want  error
	}{
		{
			name: "unknown method",
			steps: []config.Step{
				{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
				{Method: "transferOwnership", Args: []any{"$signer"}, Gas: unbounded()},
			},
			want: contract.ErrUnknownMethod,
		},
		{
			name: "argument mismatch",
			steps: []config.Step{
				{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
				{Method: "queryAgreementById", Args: []any{"one"}, Gas: unbounded()},
			},
			want: contract.ErrArgumentMismatch,
		},
		{
			name: "window on a plain query",
			steps: []config.Step{
				{Method: "queryAgreementById", Args: []any{1}, Pagination: []uint64{0, 10}, Gas: unbounded()},
			},
			want: contract.ErrArgumentMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLogger(t)
			cfg := testConfig(t, "", tt.steps...)
			node := polkasignNode(t, l, cfg)
			cfg.Endpoint = node.URL()

			tracker := &trackingConnector{inner: sessionConnector(l)}
			v, err := NewVerifier(cfg, l, WithConnector(tracker.connect))
			require.NoError(t, err)

			_, err = v.Run(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, node.ContractRequests())

			_, closes := tracker.counts()
			assert.Equal(t, 1, closes)
		})
	}
}

func TestRun_MalformedMetadata(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)
	cfg.Contract.Metadata = writeFile(t, `{"V3": {"spec": {}}}`)

	tracker := &trackingConnector{inner: func(context.Context, string) (Session, error) {
		return &fakeSession{call: answer(checkSignTrue)}, nil
	}}
	v, err := NewVerifier(cfg, l, WithConnector(tracker.connect))
	require.NoError(t, err)

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, contract.ErrMalformedInterface)
	_, closes := tracker.counts()
	assert.Equal(t, 1, closes)
}

func TestRun_NodeRejectionAndDecodeFaultAreStepOutcomes(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
		config.Step{Method: "queryAgreementById", Args: []any{1}, Gas: unbounded()},
		config.Step{Method: "queryAgreementById", Args: []any{2}, Gas: unbounded()},
	)

	node := testutil.NewMockNode(t, l)
	calls := 0
	node.Deploy(testutil.ContractAddress, testutil.ContractHandlerFunc(func(req types.ContractCallRequest) (*types.ContractExecResult, error) {
		calls++
		switch calls {
		case 1:
			// 0x05 is not a valid bool
			return &types.ContractExecResult{Result: types.ExecResult{Ok: &types.ExecReturnValue{Data: []byte{0x05}}}}, nil
		case 2:
			return nil, errors.New("runtime unavailable")
		default:
			return &types.ContractExecResult{Result: types.ExecResult{Err: json.RawMessage(`{"Module":{"index":8,"error":"0x05000000"}}`)}}, nil
		}
	}))
	cfg.Endpoint = node.URL()

	v, err := NewVerifier(cfg, l, WithConnector(sessionConnector(l)))
	require.NoError(t, err)

	report, err := v.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Steps, 3)

	assert.Equal(t, types.OutcomeDecodeFault, report.Steps[0].Outcome)
	assert.Equal(t, types.OutcomeNodeRejected, report.Steps[1].Outcome)
	assert.Contains(t, report.Steps[1].Fault, "runtime unavailable")
	assert.Equal(t, types.OutcomeRemoteFault, report.Steps[2].Outcome)
	assert.Equal(t, 3, report.Failed())
}

func TestRun_TransportLossIsFatal(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
		config.Step{Method: "queryAgreementById", Args: []any{1}, Gas: unbounded()},
	)

	calls := 0
	tracker := &trackingConnector{inner: func(context.Context, string) (Session, error) {
		return &fakeSession{call: func(ctx context.Context, result any) error {
			calls++
			if calls == 1 {
				return answer(checkSignTrue)(ctx, result)
			}
			return errors.Join(session.ErrConnectionFailed, errors.New("websocket: close 1006"))
		}}, nil
	}}
	v, err := NewVerifier(cfg, l, WithConnector(tracker.connect))
	require.NoError(t, err)

	report, err := v.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrConnectionFailed)
	assert.Nil(t, report)
	assert.Equal(t, 2, calls)

	_, closes := tracker.counts()
	assert.Equal(t, 1, closes)
}

func TestRun_CallTimeoutIsFatal(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)
	cfg.CallTimeout = 50 * time.Millisecond

	v, err := NewVerifier(cfg, l, WithConnector(func(context.Context, string) (Session, error) {
		return &fakeSession{call: func(ctx context.Context, _ any) error {
			<-ctx.Done()
			return ctx.Err()
		}}, nil
	}))
	require.NoError(t, err)

	_, err = v.Run(context.Background())
	assert.ErrorIs(t, err, session.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "call_timeout")
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "ws://fake.invalid:9944",
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded(), DelayMs: 60_000},
		config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	v, err := NewVerifier(cfg, l, WithConnector(func(context.Context, string) (Session, error) {
		return &fakeSession{call: func(c context.Context, result any) error {
			calls++
			cancel()
			return answer(checkSignTrue)(c, result)
		}}, nil
	}))
	require.NoError(t, err)

	start := time.Now()
	_, err = v.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_RateLimitedSteps(t *testing.T) {
	l := testLogger(t)
	steps := make([]config.Step, 3)
	for i := range steps {
		steps[i] = config.Step{Method: "checkSign", Args: []any{"$message", "$signature"}, Gas: unbounded()}
	}
	cfg := testConfig(t, "ws://fake.invalid:9944", steps...)
	cfg.MaxCallsPerSecond = 20

	v, err := NewVerifier(cfg, l, WithConnector(func(context.Context, string) (Session, error) {
		return &fakeSession{call: answer(checkSignTrue)}, nil
	}))
	require.NoError(t, err)

	start := time.Now()
	report, err := v.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Steps, 3)
	// one burst token, then 50ms per call
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 0, report.Failed())
}

func TestNewVerifier_RejectsInvalidConfig(t *testing.T) {
	l := testLogger(t)
	cfg := testConfig(t, "http://127.0.0.1:9933")

	_, err := NewVerifier(cfg, l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
	assert.Contains(t, err.Error(), "steps")

	_, err = NewVerifier(nil, l)
	require.Error(t, err)
}

func TestDeriveIdentity_StableAddress(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:9944")
	cfg.Identity.Algorithm = identity.AlgorithmEd25519.String()

	first, err := DeriveIdentity(cfg)
	require.NoError(t, err)
	second, err := DeriveIdentity(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Address(), second.Address())
	assert.Equal(t, "5H1HaCP2oXJwTP35esrDTqpeuqqJVnuyzEyAAYahbwmkBEHz", first.Address())
	assert.Equal(t, uint16(42), first.SS58Prefix())

	prefix := uint16(0)
	cfg.Identity.SS58Prefix = &prefix
	polkadot, err := DeriveIdentity(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey(), polkadot.PublicKey())
	assert.NotEqual(t, first.Address(), polkadot.Address())
}

func TestVerifyReport_DetectsTampering(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:9944")
	signer, err := DeriveIdentity(cfg)
	require.NoError(t, err)

	newReport := func() *types.RunReport {
		r := testutil.SampleReport(time.Now())
		r.Signer = signer.Address()
		require.NoError(t, SignReport(r, signer))
		return r
	}

	require.NoError(t, VerifyReport(newReport()))

	r := newReport()
	r.Steps[1].Outcome = types.OutcomeOk
	assert.ErrorIs(t, VerifyReport(r), ErrReportRootMismatch)

	r = newReport()
	r.Signature[0] ^= 0x01
	assert.ErrorIs(t, VerifyReport(r), ErrReportBadSignature)

	r = newReport()
	r.RunID = "00000000-0000-0000-0000-000000000000"
	assert.ErrorIs(t, VerifyReport(r), ErrReportBadSignature)

	r = newReport()
	r.Steps = nil
	assert.ErrorIs(t, VerifyReport(r), ErrReportNothingToCheck)
}

func TestProveStep(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:9944")
	signer, err := DeriveIdentity(cfg)
	require.NoError(t, err)

	r := testutil.SampleReport(time.Now())
	require.NoError(t, SignReport(r, signer))

	proof, err := ProveStep(r, 1)
	require.NoError(t, err)
	var root [32]byte
	copy(root[:], r.Root)
	assert.True(t, merkle.VerifyProof(proof, root))

	_, err = ProveStep(r, 5)
	assert.Error(t, err)
}
