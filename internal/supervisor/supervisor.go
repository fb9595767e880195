// Package supervisor runs the long-lived parts of the server under a suture
// tree so a crashing relay or janitor is restarted instead of taking the
// process down.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree has two layers: messaging (broker relay, cache janitor) and api (the
// HTTP server), so a failing relay never restarts the API.
type Tree struct {
	root      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

func NewTree(sugar *zap.SugaredLogger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	spec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	rootSpec := spec
	rootSpec.EventHook = EventHook(sugar)

	root := suture.New("chatcord", rootSpec)
	messaging := suture.New("messaging-layer", spec)
	api := suture.New("api-layer", spec)

	root.Add(messaging)
	root.Add(api)

	return &Tree{root: root, messaging: messaging, api: api}
}

// EventHook logs supervisor events through zap.
func EventHook(sugar *zap.SugaredLogger) suture.EventHook {
	return func(e suture.Event) {
		keysAndValues := make([]any, 0, 2*len(e.Map()))
		for key, value := range e.Map() {
			keysAndValues = append(keysAndValues, key, value)
		}

		switch e.Type() {
		case suture.EventTypeBackoff, suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			sugar.Warnw(e.String(), keysAndValues...)
		default:
			sugar.Infow(e.String(), keysAndValues...)
		}
	}
}

func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is done.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// HTTPServer is satisfied by *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	ListenAndServeTLS(certFile string, keyFile string) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server as a supervised service and shuts it
// down gracefully when the tree stops.
type HTTPServerService struct {
	server          HTTPServer
	certFile        string
	keyFile         string
	shutdownTimeout time.Duration
}

func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// WithTLS makes the service serve HTTPS.
func (h *HTTPServerService) WithTLS(certFile string, keyFile string) *HTTPServerService {
	h.certFile = certFile
	h.keyFile = keyFile
	return h
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if h.certFile != "" {
			err = h.server.ListenAndServeTLS(h.certFile, h.keyFile)
		} else {
			err = h.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// the original context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return "http-server"
}
