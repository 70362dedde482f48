package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-scimm/scimm/internal/buildinfo"
	"github.com/go-scimm/scimm/internal/classify"
	"github.com/go-scimm/scimm/internal/collect"
	scimm "github.com/go-scimm/scimm/internal/config"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/metric"
	"github.com/go-scimm/scimm/internal/score"
	"github.com/go-scimm/scimm/internal/server"
	"github.com/go-scimm/scimm/internal/setup"
	"github.com/go-scimm/scimm/internal/shutdown"
	"github.com/go-scimm/scimm/internal/train"
	"go.uber.org/zap/zapcore"
)

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	defer done()

	logger := logging.FromContext(ctx)
	if err := run(ctx, done); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cancel func()) error {
	logger := logging.FromContext(ctx)
	config := scimm.Config{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer func() {
		if err := env.Close(context.Background()); err != nil {
			logger.Errorf("env.Close: %v", err)
		}
	}()

	if logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		logger.Debugf("config: %s", spew.Sdump(config))
	}

	if err := metric.Register(); err != nil {
		return fmt.Errorf("metric.Register: %w", err)
	}
	metricsHandler, err := metric.NewHandler(config.MetricsNamespace)
	if err != nil {
		return fmt.Errorf("metric.NewHandler: %w", err)
	}

	// every background component reports once on exit
	shutdownCount := 2
	if config.SvcModeType == setup.SvcModeScrape {
		shutdownCount++
	}
	shutdownCh := make(chan error, shutdownCount)

	notifier, err := env.ProvideNotifier()(shutdownCh)
	if err != nil {
		return fmt.Errorf("notifier provider function error: %w", err)
	}
	if err := notifier.Run(ctx); err != nil {
		return fmt.Errorf("notifier.Run: %w", err)
	}
	manager, err := env.ProvideTrainer()(notifier, shutdownCh)
	if err != nil {
		return fmt.Errorf("trainer provider function error: %w", err)
	}
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("trainer.Run: %w", err)
	}
	if config.SvcModeType == setup.SvcModeScrape {
		scrapper, err := env.ProvideScrapper()(manager, shutdownCh)
		if err != nil {
			return fmt.Errorf("scrapper provider function error: %w", err)
		}
		if err := scrapper.Run(ctx); err != nil {
			return fmt.Errorf("scrapper.Run: %w", err)
		}
	}

	trainHandler, err := train.NewHandler(&config.Train, manager)
	if err != nil {
		return fmt.Errorf("train.NewHandler: %w", err)
	}
	scoreHandler, err := score.NewHandler(&config.Score, manager)
	if err != nil {
		return fmt.Errorf("score.NewHandler: %w", err)
	}
	classifyHandler, err := classify.NewHandler(&config.Classify, manager)
	if err != nil {
		return fmt.Errorf("classify.NewHandler: %w", err)
	}

	mux := http.NewServeMux()
	if config.SvcModeType == setup.SvcModeCollect {
		collectHandler, err := collect.NewHandler(&config.Collect, manager)
		if err != nil {
			return fmt.Errorf("collect.NewHandler: %w", err)
		}
		mux.Handle("/collect", collectHandler)
	}
	mux.Handle("/train", trainHandler)
	mux.Handle("/score", scoreHandler)
	mux.Handle("/classify", classifyHandler)
	mux.Handle("/health", server.HandleHealth(ctx))
	mux.Handle("/metrics", metricsHandler)

	srv, err := server.New(config.SrvAddr, server.WithMaxConnections(config.MaxConnections))
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	logger.Infof("http listening on %s", srv.Addr())
	go func() {
		if err := srv.ServeHTTPHandler(ctx, mux); err != nil {
			logger.Errorf("http server: %v", err)
			cancel()
		}
	}()

	if config.GRPCAddr != "" {
		grpcSrv, err := server.New(config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("server.New grpc: %w", err)
		}
		healthSrv, _ := server.NewHealthGRPC()
		logger.Infof("grpc health listening on %s", grpcSrv.Addr())
		go func() {
			if err := grpcSrv.ServeGRPC(ctx, healthSrv); err != nil {
				logger.Errorf("grpc server: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	var shutdownErr error
	for i := 0; i < shutdownCount; i++ {
		if err := <-shutdownCh; err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
