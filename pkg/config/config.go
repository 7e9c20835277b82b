package config

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the signature checker server
const (
	EnvSigCheckPort        = "SIGCHECK_PORT"
	EnvSigCheckWorkers     = "SIGCHECK_WORKERS"
	EnvSigCheckRPCURL      = "SIGCHECK_RPC_URL"
	EnvSigCheckSubmitRate  = "SIGCHECK_SUBMIT_RATE"
	EnvSigCheckSubmitBurst = "SIGCHECK_SUBMIT_BURST"
	EnvSigCheckVerbose     = "SIGCHECK_VERBOSE"
)

// Queue depths for the channels wired between the server, the checker and
// the eth watcher.
const (
	RequestQueueDepth  = 256
	EthWatchQueueDepth = 256
)

// SigCheckServerConfig is the complete configuration for the signature
// checker server binary.
type SigCheckServerConfig struct {
	// Port the HTTP submission endpoint listens on
	Port int `json:"port"`

	// Workers bounds concurrent verification tasks
	Workers int `json:"workers"`

	// RpcUrl is the Ethereum RPC endpoint used for EIP-1271 checks.
	// Empty disables contract signature checks (they report errors).
	RpcUrl string `json:"rpc_url"`

	// SubmitRate and SubmitBurst shape the submission rate limiter
	SubmitRate  float64 `json:"submit_rate"`
	SubmitBurst int     `json:"submit_burst"`

	// Verbose enables debug logging
	Verbose bool `json:"verbose"`
}

// Validate validates the server configuration
func (c *SigCheckServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}
	if c.Workers < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("workers"), c.Workers, "at least one verification worker is required"))
	}
	if c.SubmitRate <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("submitRate"), c.SubmitRate, "submission rate must be positive"))
	}
	if c.SubmitBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("submitBurst"), c.SubmitBurst, "submission burst must be at least 1"))
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("invalid signature checker configuration: %w", allErrors.ToAggregate())
	}
	return nil
}
