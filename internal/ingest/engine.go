package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/snowpak/internal/archive"
	"github.com/agentic-research/snowpak/internal/diag"
	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/known"
	"github.com/agentic-research/snowpak/internal/markup"
	"github.com/agentic-research/snowpak/internal/scan"
	"github.com/agentic-research/snowpak/internal/template"
)

// parseBatch is the number of item files parsed ahead of resolution.
const parseBatch = 256

// Config tunes an Engine. The zero value is usable.
type Config struct {
	// Workers bounds the parallel file parsing. Zero means GOMAXPROCS.
	Workers int
	// HideKnownBugs silences the log line of every known-issue hit. Hits
	// are still counted in the report.
	HideKnownBugs bool
	// KnownIssues replaces the built-in known-issue table when non-nil.
	KnownIssues []known.Issue
	Logger      *slog.Logger
}

// Engine loads archives into resolved item registries.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.KnownIssues == nil {
		cfg.KnownIssues = known.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg}
}

// Result is the outcome of a load. After a cancelled Run it holds everything
// resolved so far.
type Result struct {
	Structure *scan.Structure
	Templates *template.Registry
	Store     *graph.Store
	Report    *diag.Report
}

// Session is one load of one archive. Run may be called again after a
// cancellation to resume where the previous call stopped.
type Session struct {
	engine  *Engine
	archive *archive.Archive
	owned   bool

	structure *scan.Structure
	report    *diag.Report
	registry  *template.Registry
	builder   *template.Builder
	store     *graph.Store
	loader    *Loader

	globalsDone bool
	items       []*scan.Item
	next        int
}

// Load opens the archive at path, resolves every item and closes it again.
func (e *Engine) Load(ctx context.Context, path string) (*Result, error) {
	s, err := e.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return s.Run(ctx)
}

// Open opens the archive at path (a directory or a zip file) and scans its
// layout. The session owns the archive and closes it in Close.
func (e *Engine) Open(ctx context.Context, path string) (*Session, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := e.NewSession(ctx, a)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSession scans an already opened archive. The caller keeps ownership of a.
func (e *Engine) NewSession(ctx context.Context, a *archive.Archive) (*Session, error) {
	report := diag.NewReport(e.cfg.Logger)
	contentRoot, err := scan.FindContentRoot(a.Root())
	if err != nil {
		return nil, err
	}
	structure, err := scan.Scan(ctx, contentRoot, report)
	if err != nil {
		return nil, err
	}

	registry := template.NewRegistry()
	table := known.NewTable(e.cfg.KnownIssues, report, e.cfg.HideKnownBugs)
	builder := &template.Builder{Global: registry, Known: table, Report: report}
	store := graph.NewStore()

	return &Session{
		engine:    e,
		archive:   a,
		structure: structure,
		report:    report,
		registry:  registry,
		builder:   builder,
		store:     store,
		loader:    NewLoader(structure, builder, table, report, store),
		items:     structure.Items(),
	}, nil
}

// Report returns the diagnostics collected so far.
func (s *Session) Report() *diag.Report { return s.report }

// Progress returns how many scanned items have been processed and the total.
func (s *Session) Progress() (done, total int) { return s.next, len(s.items) }

// Run builds the global templates, then resolves every item. Files are parsed
// in parallel batches; resolution is sequential and checks ctx between items.
//
// A structural error aborts the load with a nil result. On cancellation the
// partial result is returned together with ctx.Err().
func (s *Session) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := s.engine.cfg.Logger

	if !s.globalsDone {
		if err := s.loadGlobals(ctx); err != nil {
			return s.result(), err
		}
		s.globalsDone = true
		log.Debug("global templates built", "sets", s.registry.Len())
	}

	for s.next < len(s.items) {
		end := min(s.next+parseBatch, len(s.items))
		if err := s.parseAhead(ctx, s.items[s.next:end]); err != nil {
			return s.result(), err
		}
		for ; s.next < end; s.next++ {
			if err := ctx.Err(); err != nil {
				log.Info("load interrupted", "done", s.next, "total", len(s.items))
				return s.result(), err
			}
			if _, err := s.loader.LoadItem(s.items[s.next]); errors.Is(err, scan.ErrStructure) {
				return nil, err
			}
		}
	}

	sum := s.report.Summary()
	log.Info("load complete",
		"items", s.store.Len(),
		"ignored_files", sum.IgnoredFiles,
		"ignored_items", sum.IgnoredItems,
		"warnings", sum.Warnings,
		"known_issues", sum.KnownIssues,
		"duration", time.Since(start))
	return s.result(), nil
}

// Close releases the archive if the session opened it.
func (s *Session) Close() error {
	if !s.owned {
		return nil
	}
	return s.archive.Close()
}

func (s *Session) result() *Result {
	return &Result{
		Structure: s.structure,
		Templates: s.registry,
		Store:     s.store,
		Report:    s.report,
	}
}

type parsedFile struct {
	roots []*markup.Element
	err   error
}

// parseFiles reads and parses files with at most Workers goroutines. Parse
// failures are returned per file; only cancellation fails the call.
func (s *Session) parseFiles(ctx context.Context, files []archive.Entry) ([]parsedFile, error) {
	out := make([]parsedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.engine.cfg.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i].roots, out[i].err = parseFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadGlobals builds every global template file. A file that fails is
// reported and left out of the registry.
func (s *Session) loadGlobals(ctx context.Context) error {
	names := s.structure.TemplateNames()
	files := make([]archive.Entry, len(names))
	for i, n := range names {
		files[i] = s.structure.Templates[n]
	}
	parsed, err := s.parseFiles(ctx, files)
	if err != nil {
		return err
	}
	for i, name := range names {
		path := files[i].Path()
		if parsed[i].err != nil {
			s.report.IgnoreFile(path, parsed[i].err)
			continue
		}
		set, err := s.builder.ParseGlobalFile(path, parsed[i].roots)
		if err != nil {
			s.report.IgnoreFile(path, fmt.Errorf("global templates %q: %w", name, err))
			continue
		}
		s.registry.Add(name, set)
	}
	return nil
}

// parseAhead parses the files of items that are not resolved yet and hands
// the markup to the loader.
func (s *Session) parseAhead(ctx context.Context, items []*scan.Item) error {
	var todo []*scan.Item
	for _, it := range items {
		if !s.loader.done(it) {
			todo = append(todo, it)
		}
	}
	files := make([]archive.Entry, len(todo))
	for i, it := range todo {
		files[i] = it.File
	}
	parsed, err := s.parseFiles(ctx, files)
	if err != nil {
		return err
	}
	for i, it := range todo {
		s.loader.setParsed(it.Path, parsed[i].roots, parsed[i].err)
	}
	return nil
}
