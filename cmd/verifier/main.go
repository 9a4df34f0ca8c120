package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ink-verifier/pkg/config"
	"github.com/Layr-Labs/ink-verifier/pkg/logger"
	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/persistence"
	"github.com/Layr-Labs/ink-verifier/pkg/verifier"
)

// exitStepsFailed is returned by `run --strict` when any step failed
const exitStepsFailed = 2

func main() {
	app := &cli.App{
		Name:  "ink-verifier",
		Usage: "Verify an ink! contract deployment with signed read-only queries",
		Description: `Derives a signing identity, proves it with a local sign/verify self-check,
connects to a Substrate node over websocket and runs the configured list of
dry-run contract queries. Every run produces a report whose steps are
merkle-rooted and signed by the identity.`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run every configured query step and store the signed report",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "strict",
						Usage: fmt.Sprintf("Exit with status %d when any step failed", exitStepsFailed),
					},
				},
				Action: runCommand,
			},
			{
				Name:   "address",
				Usage:  "Print the address derived from the recovery phrase",
				Action: addressCommand,
			},
			{
				Name:  "sign",
				Usage: "Sign a message with the identity and verify the signature",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "message",
						Usage: "Hex message to sign (defaults to the configured test message)",
					},
				},
				Action: signCommand,
			},
			{
				Name:   "methods",
				Usage:  "List the messages declared by the contract metadata",
				Action: methodsCommand,
			},
			{
				Name:  "reports",
				Usage: "Inspect stored run reports",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List stored reports, oldest first",
						Action: listReportsCommand,
					},
					{
						Name:      "show",
						Usage:     "Show a report and check its root and signature",
						ArgsUsage: "<run-id|latest>",
						Action:    showReportCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// globalFlags are shared by every command; each has an environment override.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the verifier YAML config",
			EnvVars: []string{config.EnvVerifierConfig},
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Usage:   "Node websocket endpoint (ws:// or wss://)",
			EnvVars: []string{config.EnvVerifierEndpoint},
		},
		&cli.StringFlag{
			Name:    "phrase",
			Usage:   "Recovery phrase of the signing identity",
			EnvVars: []string{config.EnvVerifierPhrase},
		},
		&cli.StringFlag{
			Name:    "algorithm",
			Usage:   "Signing algorithm (ed25519, sr25519, ecdsa)",
			EnvVars: []string{config.EnvVerifierAlgorithm},
		},
		&cli.StringFlag{
			Name:    "contract-address",
			Usage:   "SS58 address of the contract",
			EnvVars: []string{config.EnvVerifierContractAddress},
		},
		&cli.StringFlag{
			Name:    "metadata",
			Usage:   "Path to the contract metadata JSON",
			EnvVars: []string{config.EnvVerifierMetadata},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable debug logging",
			EnvVars: []string{config.EnvVerifierVerbose},
		},
	}
}

// loadConfig reads the optional config file and applies flag and
// environment overrides on top of it.
func loadConfig(c *cli.Context) (*config.VerifierConfig, error) {
	cfg := &config.VerifierConfig{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("endpoint") {
		cfg.Endpoint = c.String("endpoint")
	}
	if c.IsSet("phrase") {
		cfg.Identity.Phrase = config.Secret(c.String("phrase"))
	}
	if c.IsSet("algorithm") {
		cfg.Identity.Algorithm = c.String("algorithm")
	}
	if c.IsSet("contract-address") {
		cfg.Contract.Address = c.String("contract-address")
	}
	if c.IsSet("metadata") {
		cfg.Contract.Metadata = c.String("metadata")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(cfg *config.VerifierConfig) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Verbose})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := verifier.NewPersistence(cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer func() { _ = store.Close() }()

	v, err := verifier.NewVerifier(cfg, l, verifier.WithPersistence(store))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := v.Run(ctx)
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil {
		return fmt.Errorf("verification run failed: %w", err)
	}

	if failed := report.Failed(); failed > 0 && c.Bool("strict") {
		return cli.Exit(fmt.Sprintf("%d of %d steps failed", failed, len(report.Steps)), exitStepsFailed)
	}
	return nil
}

func addressCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Identity.Phrase == "" {
		return fmt.Errorf("a recovery phrase is required (--phrase or %s)", config.EnvVerifierPhrase)
	}

	id, err := verifier.DeriveIdentity(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Label:      %s\n", id.Label())
	fmt.Printf("Algorithm:  %s\n", id.Algorithm())
	fmt.Printf("Address:    %s\n", id.Address())
	fmt.Printf("Public key: %s\n", hexutil.Encode(id.PublicKey()))
	return nil
}

func signCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Identity.Phrase == "" {
		return fmt.Errorf("a recovery phrase is required (--phrase or %s)", config.EnvVerifierPhrase)
	}
	if c.IsSet("message") {
		cfg.TestMessage = c.String("message")
	}

	message, err := cfg.Message()
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	id, err := verifier.DeriveIdentity(cfg)
	if err != nil {
		return err
	}
	signed, err := id.SelfCheck(message, cfg.Identity.Address)
	if err != nil {
		return err
	}

	fmt.Printf("Signer:    %s\n", signed.Signer)
	fmt.Printf("Message:   %s\n", hexutil.Encode(signed.Message))
	fmt.Printf("Signature: %s\n", hexutil.Encode(signed.Signature))
	fmt.Println("✅ Signature verified")
	return nil
}

func methodsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Contract.Metadata == "" {
		return fmt.Errorf("contract metadata is required (--metadata or %s)", config.EnvVerifierMetadata)
	}

	md, err := metadata.Load(cfg.Contract.Metadata)
	if err != nil {
		return err
	}
	printMethods(os.Stdout, md)
	return nil
}

// openStore opens the configured report store. The memory store would
// always be empty here, so it is refused.
func openStore(c *cli.Context) (persistence.IReportPersistence, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Persistence.Type == config.PersistenceTypeMemory {
		return nil, fmt.Errorf("reports are only kept by the badger and redis stores; set persistence.type")
	}
	l, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	store, err := verifier.NewPersistence(cfg.Persistence, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	return store, nil
}

func listReportsCommand(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reports, err := store.ListReports()
	if err != nil {
		return err
	}
	printReportList(os.Stdout, reports)
	return nil
}

func showReportCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runID := c.Args().First()
	if runID == "latest" {
		if runID, err = store.GetLatestRunID(); err != nil {
			return err
		}
		if runID == "" {
			return fmt.Errorf("no run has been recorded yet")
		}
	}

	report, err := store.LoadReport(runID)
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("report %s not found", runID)
	}

	printReport(os.Stdout, report)
	if err := verifier.VerifyReport(report); err != nil {
		fmt.Printf("❌ %v\n", err)
		return cli.Exit("report failed verification", 1)
	}
	fmt.Println("✅ Root and signature verified")
	return nil
}
