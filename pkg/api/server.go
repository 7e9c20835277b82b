// Package api exposes the HTTP submission surface in front of the
// signature checker: callers POST transactions, the server turns each
// into a verification request and relays the checker's answer.
package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jingkai1/zksync/pkg/signaturechecker"
)

// Server handles HTTP transaction submissions
type Server struct {
	input      chan<- *signaturechecker.VerifyTxSignatureRequest
	limiter    *rate.Limiter
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a submission server feeding the given checker input
// channel. limiter shapes the accepted submission rate.
func NewServer(input chan<- *signaturechecker.VerifyTxSignatureRequest, limiter *rate.Limiter, port int, logger *zap.Logger) *Server {
	s := &Server{
		input:   input,
		limiter: limiter,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/verify_tx", s.handleVerifyTx)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
