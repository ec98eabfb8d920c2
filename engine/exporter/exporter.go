package exporter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrNoExporter    = errors.New("no exporter for extension")
	ErrNotExportable = errors.New("result cannot be exported")
)

// ExcludeFromExportKey is the user data flag that hides an object while its model is exported.
const ExcludeFromExportKey = "excludeFromExport"

// exporter is the implementation of the Exporter interface.
type exporter struct {
	mu        sync.Mutex
	exporters []*asset.Exporter
	writers   map[*asset.Exporter]asset.Writer

	customExporters bool
	profiler        *profiler.Profiler
	tracer          trace.Tracer

	onExportFile     event.Dispatcher[ExportFileEvent]
	onExporterCreate event.Dispatcher[ExporterCreateEvent]

	logger *zap.Logger
}

// Exporter defines the interface for turning imported results back into files.
//
// Each exporter registration owns one writer, created the first time one of its extensions is
// exported and reused afterwards.
type Exporter interface {
	// ExportObject prepares result for export, picks the writer for the chosen extension and writes it.
	// Objects of a model flagged with excludeFromExport are hidden while it is written.
	//
	// Parameters:
	//   - ctx: the context of the export
	//   - result: the result to export
	//   - opts: the export options, may be nil
	//
	// Returns:
	//   - *asset.Blob: the written file
	//   - error: ErrNotExportable, ErrNoExporter or the error of the writer
	ExportObject(ctx context.Context, result asset.Result, opts *asset.ExportOptions) (*asset.Blob, error)

	// ProcessBeforeExport picks the object to hand to the writer and the extension to write for result.
	//
	// Parameters:
	//   - result: the result to export
	//   - opts: the export options, may be nil
	//
	// Returns:
	//   - *Prepared: the object and its extensions
	//   - error: ErrNotExportable for results without a file representation
	ProcessBeforeExport(result asset.Result, opts *asset.ExportOptions) (*Prepared, error)

	// AddExporter registers writer constructors. Registrations already present are skipped with a warning.
	//
	// Parameters:
	//   - exporters: the registrations to add
	AddExporter(exporters ...*asset.Exporter)

	// RemoveExporter removes registrations and drops their cached writers.
	//
	// Parameters:
	//   - exporters: the registrations to remove
	RemoveExporter(exporters ...*asset.Exporter)

	// GetExporter finds the first registration producing any of the given extensions.
	//
	// Parameters:
	//   - ext: the candidate extensions
	//
	// Returns:
	//   - *asset.Exporter: the registration, nil if none matches
	GetExporter(ext ...string) *asset.Exporter

	// Exporters returns the registrations in lookup order.
	//
	// Returns:
	//   - []*asset.Exporter: a copy of the registrations
	Exporters() []*asset.Exporter

	// Writers returns the writers created so far.
	//
	// Returns:
	//   - []asset.Writer: the cached writers
	Writers() []asset.Writer

	// OnExportFile subscribes to the processing, exporting, done and error stages of every export.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnExportFile(fn func(ExportFileEvent)) func()

	// OnExporterCreate subscribes to writer creation.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnExporterCreate(fn func(ExporterCreateEvent)) func()

	// Dispose drops every cached writer.
	Dispose()
}

var _ Exporter = &exporter{}

// NewExporter creates an Exporter. Without WithExporters the built-in JSON, text, image, zip and glTF
// writers are registered.
//
// Parameters:
//   - options: functional options to configure the exporter
//
// Returns:
//   - Exporter: the new exporter
func NewExporter(options ...ExporterBuilderOption) Exporter {
	e := &exporter{
		writers:          make(map[*asset.Exporter]asset.Writer),
		tracer:           otel.Tracer("oxypipe/exporter"),
		onExportFile:     event.NewDispatcher[ExportFileEvent](),
		onExporterCreate: event.NewDispatcher[ExporterCreateEvent](),
		logger:           zap.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "exporter"))
	if !e.customExporters {
		e.exporters = DefaultExporters()
	}
	return e
}

// DefaultExporters returns the built-in writer registrations.
//
// Returns:
//   - []*asset.Exporter: the registrations, in lookup order
func DefaultExporters() []*asset.Exporter {
	return []*asset.Exporter{
		{Name: "json", Ext: []string{"json", "vjson"}, New: func() (asset.Writer, error) { return NewJSONWriter(), nil }},
		{Name: "text", Ext: []string{"txt", "text"}, New: func() (asset.Writer, error) { return NewTextWriter(), nil }},
		{Name: "image", Ext: []string{"png", "jpg", "jpeg"}, New: func() (asset.Writer, error) { return NewImageWriter(), nil }},
		{Name: "zip", Ext: []string{"zip"}, New: func() (asset.Writer, error) { return NewZipWriter(), nil }},
		{Name: "gltf", Ext: []string{"glb", "gltf"}, New: func() (asset.Writer, error) {
			return NewGLTFWriter(loader.DefaultGLTFExtensions()...), nil
		}},
	}
}

func (e *exporter) ExportObject(ctx context.Context, result asset.Result, opts *asset.ExportOptions) (*asset.Blob, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil result", ErrNotExportable)
	}
	ctx, span := e.tracer.Start(ctx, "exporter.ExportObject", trace.WithAttributes(
		attribute.String("asset.kind", string(result.Kind())),
		attribute.String("asset.name", result.Name()),
	))
	defer span.End()

	if m, ok := result.(*asset.Model); ok && m.Root != nil {
		defer hideExcluded(m.Root)()
		if !opts.ShouldEmbedViewerConfig() && m.IsSceneRoot() {
			defer detachViewerConfig(m.Root)()
		}
	}

	blob, err := e.exportFile(ctx, result, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("export.ext", blob.Ext), attribute.Int("export.bytes", len(blob.Data)))
	return blob, nil
}

func (e *exporter) exportFile(ctx context.Context, result asset.Result, opts *asset.ExportOptions) (*asset.Blob, error) {
	e.onExportFile.Dispatch(ExportFileEvent{Result: result, State: StateProcessing, Options: opts})

	var ext string
	fail := func(err error) (*asset.Blob, error) {
		e.logger.Error("export failed", zap.String("name", result.Name()), zap.String("ext", ext), zap.Error(err))
		e.profiler.ObserveExport(ext, "error")
		e.onExportFile.Dispatch(ExportFileEvent{Result: result, State: StateError, Options: opts, Err: err})
		return nil, err
	}

	prepared, err := e.ProcessBeforeExport(result, opts)
	if err != nil {
		return fail(err)
	}
	var exportExt string
	if opts != nil {
		exportExt = opts.ExportExt
	}
	ext = common.Coalesce(exportExt, prepared.TypeExt, prepared.Ext)

	w, err := e.writerFor(ext)
	if err != nil {
		return fail(err)
	}

	e.onExportFile.Dispatch(ExportFileEvent{Result: result, State: StateExporting, Options: opts})

	writeOpts := &asset.ExportOptions{}
	if opts != nil {
		*writeOpts = *opts
	}
	writeOpts.ExportExt = common.Coalesce(prepared.Ext, ext)
	blob, err := w.Write(ctx, prepared.Object, writeOpts)
	if err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", ext, err))
	}
	if blob == nil {
		return fail(fmt.Errorf("%w: writer for %s returned nothing", ErrNotExportable, ext))
	}
	blob.Ext = common.Coalesce(prepared.Ext, blob.Ext, ext)

	e.profiler.ObserveExport(ext, "ok")
	e.onExportFile.Dispatch(ExportFileEvent{Result: result, State: StateDone, Options: opts})
	return blob, nil
}

// writerFor returns the cached writer of the registration producing ext, creating it on first use.
func (e *exporter) writerFor(ext string) (asset.Writer, error) {
	e.mu.Lock()
	var reg *asset.Exporter
	for _, x := range e.exporters {
		if x.Handles(ext) {
			reg = x
			break
		}
	}
	if reg == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoExporter, ext)
	}
	if w, ok := e.writers[reg]; ok {
		e.mu.Unlock()
		return w, nil
	}
	if reg.New == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s has no constructor", ErrNoExporter, reg.Name)
	}
	w, err := reg.New()
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to create %s writer: %w", reg.Name, err)
	}
	e.writers[reg] = w
	e.mu.Unlock()

	e.logger.Debug("writer created", zap.String("exporter", reg.Name))
	e.onExporterCreate.Dispatch(ExporterCreateEvent{Exporter: reg, Writer: w})
	return w, nil
}

// detachViewerConfig removes the viewer config attached to root for export and returns the function
// putting it back.
func detachViewerConfig(root game_object.GameObject) func() {
	ud := root.UserData()
	cfg, ok := ud[loader.ExportViewerConfigKey]
	if !ok {
		return func() {}
	}
	delete(ud, loader.ExportViewerConfigKey)
	return func() {
		ud[loader.ExportViewerConfigKey] = cfg
	}
}

// hideExcluded hides the visible objects under root flagged with excludeFromExport and returns the
// function restoring them.
func hideExcluded(root game_object.GameObject) func() {
	var hidden []game_object.GameObject
	root.Traverse(func(obj game_object.GameObject) bool {
		if exclude, _ := obj.UserData()[ExcludeFromExportKey].(bool); exclude && obj.Visible() {
			obj.SetVisible(false)
			hidden = append(hidden, obj)
		}
		return true
	})
	return func() {
		for _, obj := range hidden {
			obj.SetVisible(true)
		}
	}
}

func (e *exporter) AddExporter(exporters ...*asset.Exporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, x := range exporters {
		if x == nil {
			continue
		}
		if slices.Contains(e.exporters, x) {
			e.logger.Warn("exporter already added", zap.String("exporter", x.Name))
			continue
		}
		e.exporters = append(e.exporters, x)
	}
}

func (e *exporter) RemoveExporter(exporters ...*asset.Exporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exporters = slices.DeleteFunc(e.exporters, func(x *asset.Exporter) bool {
		return slices.Contains(exporters, x)
	})
	for _, x := range exporters {
		delete(e.writers, x)
	}
}

func (e *exporter) GetExporter(ext ...string) *asset.Exporter {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, x := range e.exporters {
		if x.Handles(ext...) {
			return x
		}
	}
	return nil
}

func (e *exporter) Exporters() []*asset.Exporter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.exporters)
}

func (e *exporter) Writers() []asset.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]asset.Writer, 0, len(e.writers))
	for _, x := range e.exporters {
		if w, ok := e.writers[x]; ok {
			out = append(out, w)
		}
	}
	return out
}

func (e *exporter) OnExportFile(fn func(ExportFileEvent)) func() {
	return e.onExportFile.Subscribe(fn)
}

func (e *exporter) OnExporterCreate(fn func(ExporterCreateEvent)) func() {
	return e.onExporterCreate.Subscribe(fn)
}

func (e *exporter) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.writers)
}
