package signaturechecker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jingkai1/zksync/pkg/ethwatch"
	"github.com/jingkai1/zksync/pkg/logger"
)

// DefaultWorkers is the default number of concurrent verification tasks
const DefaultWorkers = 4

// Config holds checker settings
type Config struct {
	// Workers bounds how many verification tasks run at once
	Workers int
}

// Checker owns the verification concurrency domain: a dispatch goroutine
// draining the input channel plus a bounded set of task goroutines, one
// per in-flight request. It shares nothing with its callers except the
// channels it was constructed with.
type Checker struct {
	cfg         Config
	input       <-chan *VerifyTxSignatureRequest
	ethWatch    chan<- ethwatch.Request
	panicNotify chan<- error
	logger      *zap.Logger

	wg   sync.WaitGroup
	done chan struct{}
}

// NewChecker creates a checker. input carries verification requests;
// ethWatch is the shared sending handle to the eth watcher; panicNotify
// receives fatal faults the surrounding process must act on.
func NewChecker(cfg Config, input <-chan *VerifyTxSignatureRequest, ethWatch chan<- ethwatch.Request, panicNotify chan<- error, log *zap.Logger) *Checker {
	if log == nil {
		log, _ = logger.NewLogger(&logger.LoggerConfig{Debug: false})
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Checker{
		cfg:         cfg,
		input:       input,
		ethWatch:    ethWatch,
		panicNotify: panicNotify,
		logger:      log,
		done:        make(chan struct{}),
	}
}

// Start validates the configuration and launches the dispatch loop. It
// does not block. A configuration the scheduler cannot be built from is
// reported here, to the orchestrating caller, rather than killing the
// process from inside the subsystem.
func (c *Checker) Start() error {
	if c.cfg.Workers < 0 {
		return fmt.Errorf("signature checker requires a positive worker count, got %d", c.cfg.Workers)
	}
	if c.input == nil {
		return fmt.Errorf("signature checker requires an input channel")
	}
	if c.ethWatch == nil {
		return fmt.Errorf("signature checker requires an eth watch request channel")
	}

	c.logger.Sugar().Infow("Starting signature checker", "workers", c.cfg.Workers)
	go c.run()
	return nil
}

// Done is closed once the input channel has been drained and every
// in-flight verification has completed.
func (c *Checker) Done() <-chan struct{} {
	return c.done
}

// run is the dispatch loop. Closing the input channel stops intake;
// in-flight tasks run to completion before done is closed.
func (c *Checker) run() {
	defer close(c.done)
	defer c.recoverToNotify("dispatch")

	// slots is the task scheduler: each in-flight verification holds one
	slots := make(chan struct{}, c.cfg.Workers)

	for req := range c.input {
		slots <- struct{}{}
		c.wg.Add(1)
		go c.process(req, slots)
	}

	c.wg.Wait()
	c.logger.Sugar().Infow("Signature checker input closed, worker drained")
}

// process runs one verification task and delivers its result
func (c *Checker) process(req *VerifyTxSignatureRequest, slots chan struct{}) {
	defer c.wg.Done()
	defer func() { <-slots }()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := c.notifyPanic("verify", r)
		// The caller still gets an answer; a panicking task must not
		// leave its receiver waiting forever.
		select {
		case req.Response <- VerificationResponse{Err: err}:
		default:
		}
	}()

	jobID := uuid.New().String()
	c.logger.Sugar().Debugw("Verifying transaction",
		"job_id", jobID, "tx_type", req.Tx.TxType(), "account", req.Tx.Account().Hex())

	verified, err := verify(req, c.ethWatch, c.logger)
	if err != nil {
		c.logger.Sugar().Debugw("Transaction rejected",
			"job_id", jobID, "tx_type", req.Tx.TxType(), "account", req.Tx.Account().Hex(), "error", err)
	}

	// Best-effort delivery: a caller that discarded its receiving end
	// forfeits the result, it is not an error here.
	select {
	case req.Response <- VerificationResponse{Verified: verified, Err: err}:
	default:
		c.logger.Sugar().Debugw("Verification response dropped, receiver gone", "job_id", jobID)
	}
}

// recoverToNotify converts a panic into a fatal-fault notification. The
// surrounding process decides whether to abort.
func (c *Checker) recoverToNotify(scope string) {
	if r := recover(); r != nil {
		c.notifyPanic(scope, r)
	}
}

func (c *Checker) notifyPanic(scope string, r any) error {
	err := fmt.Errorf("signature checker %s panicked: %v", scope, r)
	c.logger.Sugar().Errorw("Signature checker panic", "scope", scope, "panic", r)

	if c.panicNotify != nil {
		select {
		case c.panicNotify <- err:
		default:
			c.logger.Sugar().Errorw("Panic notification dropped, notify channel full", "error", err)
		}
	}
	return err
}
