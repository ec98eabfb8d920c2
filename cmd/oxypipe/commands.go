package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/config"
	"github.com/Carmen-Shannon/oxypipe/engine"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/importer"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var errNoInput = errors.New("no input files")

// pipeline is an asset manager wired to the configured logger, download cache and metrics.
type pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	storage  storage.Storage
	profiler *profiler.Profiler
	manager  engine.AssetManager
}

func newPipeline(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*pipeline, error) {
	s, err := cfg.NewStorage(logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	prof := profiler.NewProfiler(
		profiler.WithLogger(logger),
		profiler.WithRegisterer(reg),
	)
	imp := importer.NewImporter(
		importer.WithLogger(logger),
		importer.WithStorage(s),
		importer.WithProfiler(prof),
		importer.WithCacheImportedAssets(cfg.Importer.CacheImportedAssets),
	)
	m := engine.NewAssetManager(
		engine.WithLogger(logger),
		engine.WithImporter(imp),
		engine.WithStorage(s),
		engine.WithProfiler(prof),
		engine.WithDependencyWorkers(cfg.Importer.Workers),
		engine.WithRuntimeVersion(Version),
	)
	return &pipeline{cfg: cfg, logger: logger, storage: s, profiler: prof, manager: m}, nil
}

func (p *pipeline) importOptions() *asset.ImportOptions {
	return &asset.ImportOptions{AllowedExtensions: p.cfg.Importer.AllowedExtensions}
}

// add imports every input into the scene and returns the added results.
func (p *pipeline) add(ctx context.Context, inputs []string, opts *asset.ImportOptions) ([]asset.Result, error) {
	var all []asset.Result
	for _, in := range inputs {
		results, err := p.manager.AddAsset(ctx, asset.Path(filepath.ToSlash(in)), opts)
		if err != nil {
			return all, fmt.Errorf("import %s: %w", in, err)
		}
		all = append(all, results...)
	}
	return all, nil
}

// convert imports inputs into the scene and writes the scene to out. The format follows the
// extension of out.
func (p *pipeline) convert(ctx context.Context, inputs []string, out string, opts *asset.ImportOptions) error {
	if len(inputs) == 0 {
		return errNoInput
	}
	results, err := p.add(ctx, inputs, opts)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: nothing was imported", errNoInput)
	}
	blob, err := p.manager.ExportScene(ctx, &asset.ExportOptions{ExportExt: common.FileExtension(out)})
	if err != nil {
		return fmt.Errorf("export %s: %w", out, err)
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, blob.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	p.logger.Info("converted", zap.Strings("inputs", inputs), zap.String("output", out), zap.Int("bytes", len(blob.Data)))
	return nil
}

// describe prints one line per result and a summary of the scene.
func (p *pipeline) describe(w io.Writer, results []asset.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%-9s %s\n", r.Kind(), r.Name())
	}
	s := p.manager.Scene()
	fmt.Fprintf(w, "\nscene: %d objects, %d lights, %d materials\n",
		s.Count(), len(s.Lights()), len(p.manager.Materials().GetAllMaterials()))
}

func (p *pipeline) Close() {
	p.manager.Dispose()
	if err := p.storage.Close(); err != nil {
		p.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = p.logger.Sync()
}

// setup loads the configuration and builds the pipeline shared by the commands.
func setup(fs *flag.FlagSet, args []string, reg prometheus.Registerer) (*pipeline, error) {
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return newPipeline(cfg, logger, reg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	p, err := setup(fs, args, nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if fs.NArg() == 0 {
		return errNoInput
	}

	ctx, cancel := signalContext()
	defer cancel()
	results, err := p.add(ctx, fs.Args(), p.importOptions())
	p.describe(os.Stdout, results)
	return err
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	out := fs.String("o", "scene.glb", "output file, its extension selects the format")
	p, err := setup(fs, args, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()
	return p.convert(ctx, fs.Args(), *out, p.importOptions())
}
