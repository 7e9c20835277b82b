package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/jingkai1/zksync/pkg/api"
	"github.com/jingkai1/zksync/pkg/config"
	"github.com/jingkai1/zksync/pkg/ethwatch"
	"github.com/jingkai1/zksync/pkg/logger"
	"github.com/jingkai1/zksync/pkg/signaturechecker"
)

func main() {
	app := &cli.App{
		Name:  "sigcheck-server",
		Usage: "Transaction signature verification gate",
		Description: `Concurrent signature-verification server guarding admission to the
pending-transaction pool.

Every submitted transaction is checked against:
- its Ethereum signature layer (recoverable signature or EIP-1271)
- on-chain pubkey-change authorizations for signature-less key rotations
- the transaction's own structural and ledger-signature correctness`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8010,
				Usage:   "HTTP submission port",
				EnvVars: []string{config.EnvSigCheckPort},
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   signaturechecker.DefaultWorkers,
				Usage:   "Concurrent verification tasks",
				EnvVars: []string{config.EnvSigCheckWorkers},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum RPC endpoint for EIP-1271 signature checks (optional)",
				EnvVars: []string{config.EnvSigCheckRPCURL},
			},
			&cli.Float64Flag{
				Name:    "submit-rate",
				Value:   100,
				Usage:   "Accepted submissions per second",
				EnvVars: []string{config.EnvSigCheckSubmitRate},
			},
			&cli.IntFlag{
				Name:    "submit-burst",
				Value:   200,
				Usage:   "Submission burst size",
				EnvVars: []string{config.EnvSigCheckSubmitBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvSigCheckVerbose},
			},
		},
		Action: runSigCheckServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runSigCheckServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := &config.SigCheckServerConfig{
		Port:        c.Int("port"),
		Workers:     c.Int("workers"),
		RpcUrl:      c.String("rpc-url"),
		SubmitRate:  c.Float64("submit-rate"),
		SubmitBurst: c.Int("submit-burst"),
		Verbose:     c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// EIP-1271 checks need a chain backend; without one the watcher
	// reports contract signature checks as authority errors.
	var watcher *ethwatch.Watcher
	ethWatchRequests := make(chan ethwatch.Request, config.EthWatchQueueDepth)
	if cfg.RpcUrl != "" {
		client, err := ethclient.Dial(cfg.RpcUrl)
		if err != nil {
			return fmt.Errorf("failed to dial Ethereum RPC at %s: %w", cfg.RpcUrl, err)
		}
		defer client.Close()
		watcher = ethwatch.NewWatcher(ethWatchRequests, client, l)
	} else {
		l.Sugar().Warnw("No RPC URL configured, EIP-1271 checks will fail")
		watcher = ethwatch.NewWatcher(ethWatchRequests, nil, l)
	}
	go watcher.Run(ctx)

	requests := make(chan *signaturechecker.VerifyTxSignatureRequest, config.RequestQueueDepth)
	panicNotify := make(chan error, 1)

	checker := signaturechecker.NewChecker(
		signaturechecker.Config{Workers: cfg.Workers},
		requests, ethWatchRequests, panicNotify, l,
	)
	if err := checker.Start(); err != nil {
		return fmt.Errorf("failed to start signature checker: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst)
	server := api.NewServer(requests, limiter, cfg.Port, l)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start submission server: %w", err)
	}

	l.Sugar().Infow("Signature checker server running",
		"port", cfg.Port, "workers", cfg.Workers, "rpc_url", cfg.RpcUrl)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-panicNotify:
		// The checker cannot recover from a wiring fault; aborting is the
		// orchestrator's call and it is made here.
		_ = server.Stop()
		l.Sugar().Fatalw("Fatal signature checker fault", "error", err)
		return err
	case sig := <-sigCh:
		l.Sugar().Infow("Shutting down", "signal", sig.String())
		_ = server.Stop()
		close(requests)
		<-checker.Done()
		return nil
	}
}
