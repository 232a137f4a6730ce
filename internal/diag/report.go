// Package diag collects the diagnostics of one archive load: files and items
// that had to be ignored, structural anomalies, warnings about missing or
// ambiguous references, known-issue hits and a frequency table of unusual
// attributes. A Report is returned next to the resolved registries so the
// caller can decide whether the result is acceptable.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// Ignored is a file or item that was dropped from the load.
type Ignored struct {
	Path   string
	Reason string
}

// Warning is a recoverable problem found while resolving a file.
type Warning struct {
	Path    string
	Message string
}

// KnownIssueHit records one application of a known-issue correction.
type KnownIssueHit struct {
	Kind string
	Path string
	Note string
}

// Summary holds the counters of a Report.
type Summary struct {
	IgnoredFiles int
	IgnoredItems int
	Anomalies    int
	Warnings     int
	KnownIssues  int
}

// Report is safe for concurrent use. A nil *Report discards everything, which
// keeps call sites in tests free of nil checks.
type Report struct {
	logger *slog.Logger

	mu                sync.Mutex
	ignoredFiles      []Ignored
	ignoredItems      []Ignored
	anomalies         []string
	warnings          []Warning
	knownIssues       []KnownIssueHit
	specialAttributes map[string]map[string]int
	parentRelations   map[string][]string
}

// NewReport returns an empty report that also logs every entry to logger.
// A nil logger means slog.Default().
func NewReport(logger *slog.Logger) *Report {
	if logger == nil {
		logger = slog.Default()
	}
	return &Report{
		logger:            logger,
		specialAttributes: make(map[string]map[string]int),
		parentRelations:   make(map[string][]string),
	}
}

// Logger returns the logger the report writes to.
func (r *Report) Logger() *slog.Logger {
	if r == nil {
		return slog.Default()
	}
	return r.logger
}

// IgnoreFile records a file that could not be read or parsed.
func (r *Report) IgnoreFile(path string, err error) {
	if r == nil {
		return
	}
	r.logger.Warn("file ignored", "path", path, "err", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignoredFiles = append(r.ignoredFiles, Ignored{Path: path, Reason: errString(err)})
}

// IgnoreItem records an item that could not be constructed.
func (r *Report) IgnoreItem(path string, err error) {
	if r == nil {
		return
	}
	r.logger.Warn("item ignored", "path", path, "err", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignoredItems = append(r.ignoredItems, Ignored{Path: path, Reason: errString(err)})
}

// SkipItem records an item that was left out on purpose. It is listed with
// the ignored items but only logged at debug level.
func (r *Report) SkipItem(path, reason string) {
	if r == nil {
		return
	}
	r.logger.Debug("item skipped", "path", path, "reason", reason)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignoredItems = append(r.ignoredItems, Ignored{Path: path, Reason: reason})
}

// Anomaly records an unexpected but harmless archive layout detail.
func (r *Report) Anomaly(format string, args ...any) {
	if r == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	r.logger.Info("archive anomaly", "detail", msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, msg)
}

// Warn records a recoverable problem in the file at path.
func (r *Report) Warn(path, format string, args ...any) {
	if r == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	r.logger.Warn(msg, "path", path)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Warning{Path: path, Message: msg})
}

// KnownIssue records a known-issue correction. The log line is skipped when
// quiet is set; the hit is counted either way.
func (r *Report) KnownIssue(kind, path, note string, quiet bool) {
	if r == nil {
		return
	}
	if !quiet {
		r.logger.Info("known issue", "kind", kind, "path", path, "note", note)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownIssues = append(r.knownIssues, KnownIssueHit{Kind: kind, Path: path, Note: note})
}

// CountAttribute adds one occurrence of the attribute name=value to the
// special attribute table.
func (r *Report) CountAttribute(name, value string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	values, ok := r.specialAttributes[name]
	if !ok {
		values = make(map[string]int)
		r.specialAttributes[name] = values
	}
	values[value]++
}

// AddParentRelation records that the item at child resolved its parent from
// the file at parent.
func (r *Report) AddParentRelation(parent, child string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parentRelations[parent] = append(r.parentRelations[parent], child)
}

func (r *Report) IgnoredFiles() []Ignored {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ignored(nil), r.ignoredFiles...)
}

func (r *Report) IgnoredItems() []Ignored {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ignored(nil), r.ignoredItems...)
}

func (r *Report) Anomalies() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.anomalies...)
}

func (r *Report) Warnings() []Warning {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

func (r *Report) KnownIssues() []KnownIssueHit {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]KnownIssueHit(nil), r.knownIssues...)
}

// AttributeCount returns how often attribute name appeared with value.
func (r *Report) AttributeCount(name, value string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.specialAttributes[name][value]
}

// ChildrenOf returns the item paths that named parent as their parent file.
func (r *Report) ChildrenOf(parent string) []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.parentRelations[parent]...)
}

func (r *Report) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		IgnoredFiles: len(r.ignoredFiles),
		IgnoredItems: len(r.ignoredItems),
		Anomalies:    len(r.anomalies),
		Warnings:     len(r.warnings),
		KnownIssues:  len(r.knownIssues),
	}
}

// WriteText writes a human-readable dump of the report.
func (r *Report) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ew := &errWriter{w: w}
	ew.printf("[IgnoredFiles] %d\n", len(r.ignoredFiles))
	for i, f := range r.ignoredFiles {
		ew.printf("   [%d] %s: %s\n", i+1, f.Path, f.Reason)
	}
	ew.printf("[IgnoredItems] %d\n", len(r.ignoredItems))
	for i, f := range r.ignoredItems {
		ew.printf("   [%d] %s: %s\n", i+1, f.Path, f.Reason)
	}
	ew.printf("[Anomalies] %d\n", len(r.anomalies))
	for _, a := range r.anomalies {
		ew.printf("   %s\n", a)
	}
	ew.printf("[Warnings] %d\n", len(r.warnings))
	for _, wn := range r.warnings {
		ew.printf("   %s: %s\n", wn.Path, wn.Message)
	}
	ew.printf("[KnownIssues] %d\n", len(r.knownIssues))
	for _, k := range r.knownIssues {
		ew.printf("   %s %s: %s\n", k.Kind, k.Path, k.Note)
	}

	ew.printf("[ParentRelations]\n")
	for _, parent := range sortedKeys(r.parentRelations) {
		ew.printf("     Parent: %q\n", parent)
		children := append([]string(nil), r.parentRelations[parent]...)
		sort.Strings(children)
		for _, c := range children {
			ew.printf("       Child: %q\n", c)
		}
	}

	ew.printf("[SpecialAttributes]\n")
	for _, name := range sortedKeys(r.specialAttributes) {
		values := r.specialAttributes[name]
		ew.printf("%q: [%d]\n", name, len(values))
		for _, v := range sortedKeys(values) {
			ew.printf("   = %q (%dx)\n", v, values[v])
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
