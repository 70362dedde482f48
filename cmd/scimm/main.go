package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-scimm/scimm/internal/buildinfo"
	"github.com/go-scimm/scimm/internal/cluster"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/shutdown"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

func main() {
	_, _ = fmt.Fprint(os.Stderr, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stderr,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	defer done()

	logger := logging.FromContext(ctx)
	if err := run(ctx); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	var cfg cluster.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	if logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		logger.Debugf("config: %s", spew.Sdump(cfg))
	}

	reads, err := readFile(cfg.ReadsFile, cluster.ReadFASTA)
	if err != nil {
		return err
	}
	opts := cfg.Options()
	if cfg.MatesFile != "" {
		mates, err := readFile(cfg.MatesFile, cluster.ReadMates)
		if err != nil {
			return err
		}
		opts = append(opts, cluster.WithMates(mates))
	}
	if cfg.ConstraintsFile != "" {
		constraints, err := readFile(cfg.ConstraintsFile, cluster.ReadConstraints)
		if err != nil {
			return err
		}
		opts = append(opts, cluster.WithConstraints(constraints))
	}

	bar := pb.StartNew(cfg.MaxIter)
	opts = append(opts, cluster.WithProgress(func(it cluster.Iteration) {
		bar.Set("suffix", fmt.Sprintf(" likelihood %.0f, %d clusters, %d reassigned", it.Likelihood, it.K, it.Reassigned))
		bar.Increment()
	}))

	c, err := cluster.New(cfg.K, opts...)
	if err != nil {
		return fmt.Errorf("cluster.New: %w", err)
	}
	logger.Infof("clustering %d reads into %d clusters", len(reads), cfg.K)
	res, err := c.Run(ctx, reads)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("cluster.Run: %w", err)
	}
	logger.Infof("best likelihood %.0f at iteration %d of %d, %d clusters, seed %d",
		res.Likelihood, res.Iteration, res.Iterations, res.K, res.Seed)

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return cluster.WriteClusters(reads, res, func(i int) (io.WriteCloser, error) {
		return os.Create(filepath.Join(cfg.OutputDir, fmt.Sprintf("cluster-%d.fa", i)))
	})
}

func readFile[T any](name string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(name)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", name, err)
	}
	return v, nil
}
