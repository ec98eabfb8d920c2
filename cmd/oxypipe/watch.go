package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxypipe/common"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const watchDebounce = 250 * time.Millisecond

// dropFolder converts every top-level asset written into a directory.
type dropFolder struct {
	p      *pipeline
	outDir string
	ext    string

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
}

func newDropFolder(p *pipeline, outDir, ext string) *dropFolder {
	return &dropFolder{
		p:       p,
		outDir:  outDir,
		ext:     strings.TrimPrefix(strings.ToLower(ext), "."),
		pending: make(map[string]*time.Timer),
		ready:   make(chan string, 64),
	}
}

// importable reports whether name is a top-level asset of a registered loader.
func (d *dropFolder) importable(name string) bool {
	ext := common.FileExtension(name)
	if ext == "" {
		return false
	}
	for _, imp := range d.p.manager.Importer().Importers() {
		if imp.IsRoot(ext, "") {
			return true
		}
	}
	return false
}

// notify schedules a conversion of the file once writes to it have settled.
func (d *dropFolder) notify(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !d.importable(ev.Name) || filepath.Clean(filepath.Dir(ev.Name)) == filepath.Clean(d.outDir) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[ev.Name]; ok {
		t.Reset(watchDebounce)
		return
	}
	name := ev.Name
	d.pending[name] = time.AfterFunc(watchDebounce, func() {
		d.mu.Lock()
		delete(d.pending, name)
		d.mu.Unlock()
		d.ready <- name
	})
}

// outputPath is the converted file written for an input.
func (d *dropFolder) outputPath(in string) string {
	base := filepath.Base(in)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(d.outDir, base+"."+d.ext)
}

// convert replaces the scene content with the file and exports it.
func (d *dropFolder) convert(ctx context.Context, in string) error {
	opts := d.p.importOptions()
	opts.ForceImport = true
	opts.ClearSceneObjects = true
	opts.DisposeSceneObjects = true
	return d.p.convert(ctx, []string{in}, d.outputPath(in), opts)
}

func (d *dropFolder) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, t := range d.pending {
		t.Stop()
		delete(d.pending, name)
	}
}

// run converts files until ctx is done or the watcher closes.
func (d *dropFolder) run(ctx context.Context, w *fsnotify.Watcher) error {
	defer d.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			d.notify(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.p.logger.Warn("watch error", zap.Error(err))
		case name := <-d.ready:
			if err := d.convert(ctx, name); err != nil {
				d.p.logger.Error("conversion failed", zap.String("path", name), zap.Error(err))
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", ".", "folder to watch")
	outDir := fs.String("out", "converted", "folder converted files are written to")
	ext := fs.String("ext", "glb", "extension of the converted files")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	p, err := setup(fs, args, reg)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(*dir); err != nil {
		return fmt.Errorf("watch %s: %w", *dir, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if p.cfg.Metrics.Enabled {
		srv := serveMetrics(p.cfg.Metrics.Addr, reg, p.logger)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	go p.profiler.Run(ctx)

	p.logger.Info("watching for assets", zap.String("dir", *dir), zap.String("out", *outDir))
	return newDropFolder(p, *outDir, *ext).run(ctx, w)
}
