// Command dtmd is the DTM harness's standalone server process: it reads a
// reference trace from the intermediate action database, accepts node
// connections over a websocket listener, runs the trace loop to
// completion, and exits 0 on Done or non-zero on failure.
//
// Usage:
//
//	dtmd -model-db trace.sqlite -const-map consts.json -addr :7070
//	dtmd -config dtm.yaml
//	dtmd -model-db trace.sqlite -otlp-endpoint localhost:4317
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sedeve-kit/dtm/coreengine/observability"
	"github.com/sedeve-kit/dtm/dtmconfig"
	"github.com/sedeve-kit/dtm/dtmserver"
	"github.com/sedeve-kit/dtm/incoming"
	"github.com/sedeve-kit/dtm/transport"
)

const (
	exitOK = iota
	exitMismatch
	exitSetupFailure
)

func main() {
	os.Exit(run())
}

func run() int {
	modelDB := flag.String("model-db", "", "path to the intermediate action database")
	constMap := flag.String("const-map", "", "path to the constant-mapping sidecar JSON file")
	outDB := flag.String("out-db", "", "path to the output database (reserved for future use)")
	addr := flag.String("addr", ":7070", "listen address for node connections")
	configFile := flag.String("config", "", "path to a YAML/JSON config file (flags set to non-default values override its entries)")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP/gRPC collector endpoint for trace export (tracing disabled if unset)")
	flag.Parse()

	cfg, err := dtmconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dtmd: load config: %v\n", err)
		return exitSetupFailure
	}
	if *modelDB != "" {
		cfg.ModelDBPath = *modelDB
	}
	if *constMap != "" {
		cfg.ConstMapPath = *constMap
	}
	if *outDB != "" {
		cfg.OutDBPath = *outDB
	}
	if *addr != ":7070" {
		cfg.ListenAddr = *addr
	}

	logger := observability.NewLogger(cfg.LogLevel)

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("dtmd", *otlpEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			return exitSetupFailure
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	constants, err := loadConstantMap(cfg.ConstMapPath)
	if err != nil {
		logger.Error("failed to load constant map", "error", err)
		return exitSetupFailure
	}

	source, err := incoming.OpenSQLiteActionSource(cfg.ModelDBPath, constants)
	if err != nil {
		logger.Error("failed to open model database", "error", err)
		return exitSetupFailure
	}
	defer source.Close()

	listener := transport.NewWSListener(cfg.ListenAddr, logger)
	if err := listener.Start(); err != nil {
		logger.Error("failed to start listener", "error", err)
		return exitSetupFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := dtmserver.NewServer(cfg.TestOption, logger)
	acceptDone := make(chan struct{})
	go acceptLoop(ctx, listener, srv, logger, acceptDone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		srv.Stop()
	}()

	logger.Info("dtmd ready", "addr", listener.Addr(), "model_db", cfg.ModelDBPath)
	runErr := srv.Run(ctx, source)

	cancel()
	_ = listener.Stop(context.Background())
	<-acceptDone

	if runErr == nil {
		logger.Info("run completed", "state", srv.State().String())
		return exitOK
	}

	var mismatch *dtmserver.MismatchError
	if errors.As(runErr, &mismatch) {
		logger.Error("mismatch detected", "error", mismatch)
		return exitMismatch
	}
	logger.Error("run failed", "error", runErr)
	return exitSetupFailure
}

// acceptLoop hands every inbound node connection to srv until ctx is
// canceled or the listener stops.
func acceptLoop(ctx context.Context, listener *transport.WSListener, srv *dtmserver.Server, logger observability.Logger, done chan struct{}) {
	defer close(done)
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			logger.Debug("accept loop stopped", "error", err)
			return
		}
		srv.HandleConn(ctx, conn)
	}
}

// loadConstantMap reads the constant-mapping sidecar file (name -> value
// JSON), returning an empty map when path is unset.
func loadConstantMap(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constant map %s: %w", path, err)
	}
	var constants map[string]any
	if err := json.Unmarshal(data, &constants); err != nil {
		return nil, fmt.Errorf("parse constant map %s: %w", path, err)
	}
	return constants, nil
}
