// Package verifier runs a configured list of read-only contract queries
// against a node and produces a signed report of their outcomes.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/config"
	"github.com/Layr-Labs/ink-verifier/pkg/contract"
	"github.com/Layr-Labs/ink-verifier/pkg/identity"
	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/session"
	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is the part of a node session the verifier needs.
type Session interface {
	contract.Dispatcher
	NodeInfo(ctx context.Context) (*types.NodeInfo, error)
	Close()
}

// Connector opens a ready session to endpoint.
type Connector func(ctx context.Context, endpoint string) (Session, error)

type Option func(*Verifier)

// WithConnector replaces the websocket connector, mostly for tests.
func WithConnector(c Connector) Option {
	return func(v *Verifier) {
		v.connect = c
	}
}

// WithPersistence stores every completed report.
func WithPersistence(store persistence.IReportPersistence) Option {
	return func(v *Verifier) {
		v.store = store
	}
}

type Verifier struct {
	cfg     *config.VerifierConfig
	logger  *zap.Logger
	connect Connector
	store   persistence.IReportPersistence
}

// NewVerifier validates cfg and returns a verifier ready to Run.
func NewVerifier(cfg *config.VerifierConfig, logger *zap.Logger, opts ...Option) (*Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	v := &Verifier{
		cfg:    cfg,
		logger: logger,
	}
	v.connect = func(ctx context.Context, endpoint string) (Session, error) {
		s, err := session.Connect(ctx, endpoint, logger, session.WithConnectTimeout(cfg.ConnectTimeout))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// DeriveIdentity derives the configured signer. When no SS58 prefix is
// configured the signer takes the network prefix of the contract address.
func DeriveIdentity(cfg *config.VerifierConfig) (*identity.Identity, error) {
	algorithm, err := cfg.Algorithm()
	if err != nil {
		return nil, err
	}

	var opts []identity.Option
	if cfg.Identity.SS58Prefix != nil {
		opts = append(opts, identity.WithSS58Prefix(*cfg.Identity.SS58Prefix))
	} else if _, prefix, err := ss58.Decode(cfg.Contract.Address); err == nil {
		opts = append(opts, identity.WithSS58Prefix(prefix))
	}

	return identity.Derive(cfg.Identity.Phrase.Reveal(), algorithm, cfg.Identity.Label, opts...)
}

// Run performs one verification run. Setup failures (identity, connection,
// contract binding, step preparation), transport loss and cancellation
// abort the run with an error. Individual query failures are recorded in
// the report and the run continues.
func (v *Verifier) Run(ctx context.Context) (*types.RunReport, error) {
	sugar := v.logger.Sugar()
	report := &types.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Endpoint:  v.cfg.Endpoint,
		Contract:  v.cfg.Contract.Address,
	}

	signer, err := DeriveIdentity(v.cfg)
	if err != nil {
		return nil, err
	}
	message, err := v.cfg.Message()
	if err != nil {
		return nil, fmt.Errorf("invalid test message: %w", err)
	}
	signed, err := signer.SelfCheck(message, v.cfg.Identity.Address)
	if err != nil {
		return nil, err
	}
	report.Signer = signer.Address()
	report.Algorithm = signer.Algorithm().String()
	sugar.Infow("Identity self-check passed",
		"label", signer.Label(),
		"address", signer.Address(),
		"algorithm", signer.Algorithm(),
	)

	sess, err := v.connect(ctx, v.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	info, err := sess.NodeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch node info: %w", err)
	}
	report.Node = *info
	sugar.Infow("Node ready", "chain", info.Chain, "name", info.Name, "version", info.Version)

	md, err := metadata.Load(v.cfg.Contract.Metadata)
	if err != nil {
		return nil, err
	}
	binding, err := contract.BindMetadata(sess, md, v.cfg.Contract.Address,
		contract.WithCallMethod(v.cfg.CallMethod),
		contract.WithLogger(v.logger),
	)
	if err != nil {
		return nil, err
	}

	placeholders := newPlaceholders(signer.Address(), signed)
	prepared := make([]*contract.PreparedCall, len(v.cfg.Steps))
	for i := range v.cfg.Steps {
		step := &v.cfg.Steps[i]
		p, err := binding.Prepare(step.Method, placeholders.resolve(step.Args), step.Window())
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.DisplayName(), err)
		}
		prepared[i] = p
	}

	var limiter *rate.Limiter
	if v.cfg.MaxCallsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(v.cfg.MaxCallsPerSecond), 1)
	}

	for i := range v.cfg.Steps {
		step := &v.cfg.Steps[i]
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		result, err := v.runStep(ctx, binding, signer.Address(), i, step, prepared[i])
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.DisplayName(), err)
		}
		report.Steps = append(report.Steps, result)

		if i < len(v.cfg.Steps)-1 && step.Delay() > 0 {
			if err := sleep(ctx, step.Delay()); err != nil {
				return nil, err
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	if err := SignReport(report, signer); err != nil {
		return nil, err
	}

	sugar.Infow("Verification run complete",
		"runId", report.RunID,
		"steps", len(report.Steps),
		"failed", report.Failed(),
		"root", fmt.Sprintf("%x", report.Root),
	)

	if v.store != nil {
		if err := v.persist(report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (v *Verifier) persist(report *types.RunReport) error {
	if err := v.store.SaveReport(report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if err := v.store.SetLatestRunID(report.RunID); err != nil {
		return fmt.Errorf("failed to record latest run: %w", err)
	}
	return nil
}

// runStep dispatches one prepared call. The returned error is only set for
// failures that must end the run.
func (v *Verifier) runStep(
	ctx context.Context,
	binding *contract.Binding,
	caller string,
	index int,
	step *config.Step,
	p *contract.PreparedCall,
) (*types.StepReport, error) {
	callCtx := ctx
	if v.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.cfg.CallTimeout)
		defer cancel()
	}

	var gas contract.GasLimit
	if step.Gas != nil {
		gas = step.Gas.GasLimit
	}

	result := &types.StepReport{
		Index:     index,
		Name:      step.DisplayName(),
		Method:    p.Message.Label,
		StartedAt: time.Now().UTC(),
	}
	qr, err := binding.Dispatch(callCtx, p, caller, contract.CallOptions{Gas: gas})
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		if fatal := classifyError(ctx, err, result); fatal != nil {
			return nil, fatal
		}
	} else {
		classifyResult(qr, p.Window, result)
	}

	v.logStep(result, gas)
	return result, nil
}

// classifyError records a non-fatal dispatch error on result, or returns the
// error that ends the run.
func classifyError(ctx context.Context, err error, result *types.StepReport) error {
	var nodeErr *session.NodeError
	switch {
	case errors.As(err, &nodeErr):
		result.Outcome = types.OutcomeNodeRejected
		result.Fault = nodeErr.Error()
	case errors.Is(err, contract.ErrDecodeFailed):
		result.Outcome = types.OutcomeDecodeFault
		result.Fault = err.Error()
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: node did not answer within call_timeout", session.ErrConnectionFailed)
	default:
		return err
	}
	return nil
}

func classifyResult(qr *contract.QueryResult, window *contract.Window, result *types.StepReport) {
	result.GasConsumed = qr.GasConsumed
	result.GasRequired = qr.GasRequired
	result.Debug = qr.DebugMessage

	if !qr.IsOk() {
		result.Outcome = types.OutcomeRemoteFault
		result.Fault = qr.Err.Error()
		return
	}

	output, err := encodeOutput(qr.Ok)
	if err != nil {
		result.Outcome = types.OutcomeDecodeFault
		result.Fault = err.Error()
		return
	}
	result.Outcome = types.OutcomeOk
	result.Output = output

	if window != nil {
		if summary, ok := contract.SummarizePage(qr.Ok, window); ok {
			result.Page = summary
		}
	}
}

func (v *Verifier) logStep(result *types.StepReport, gas contract.GasLimit) {
	fields := []interface{}{
		"step", result.Index,
		"name", result.Name,
		"method", result.Method,
		"gasLimit", gas.String(),
		"gasConsumed", result.GasConsumed.RefTime,
		"gasRequired", result.GasRequired.RefTime,
		"duration", result.Duration,
	}
	if result.Debug != "" {
		fields = append(fields, "debug", result.Debug)
	}
	if result.Page != nil {
		fields = append(fields,
			"total", result.Page.Total,
			"returned", result.Page.Returned,
			"expected", result.Page.Expected,
		)
	}

	sugar := v.logger.Sugar()
	if result.Outcome.Failed() {
		sugar.Warnw("Query step failed", append(fields, "outcome", result.Outcome, "fault", result.Fault)...)
		return
	}
	sugar.Infow("Query step succeeded", append(fields, "output", string(result.Output))...)
	if result.Page != nil && !result.Page.Consistent {
		sugar.Warnw("Page length does not match the page arithmetic",
			"step", result.Index,
			"returned", result.Page.Returned,
			"expected", result.Page.Expected,
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
