package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

// DefaultDebounce is how long Watch waits for file events to settle.
const DefaultDebounce = 300 * time.Millisecond

// Normalizer turns a Source into canonical modules and caches the result per
// module until the module's fingerprint changes. Callers always receive deep
// copies, so a run can never modify the cached cases.
type Normalizer struct {
	source   Source
	logger   *logging.Logger
	debounce time.Duration

	mu     sync.Mutex
	cache  map[string]*cases.Module
	builds int
}

type Option func(*Normalizer)

func WithLogger(l *logging.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l.WithComponent("normalize")
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(n *Normalizer) { n.debounce = d }
}

func New(src Source, opts ...Option) *Normalizer {
	n := &Normalizer{
		source:   src,
		logger:   logging.Discard(),
		debounce: DefaultDebounce,
		cache:    make(map[string]*cases.Module),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Source() Source {
	return n.source
}

// Module returns the named module, reusing the cached normalization when the
// files are unchanged.
func (n *Normalizer) Module(name string) (*cases.Module, error) {
	fp, err := Fingerprint(n.source, name)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	if m, ok := n.cache[name]; ok && m.Fingerprint == fp {
		n.mu.Unlock()
		return cloneModule(m), nil
	}
	n.mu.Unlock()

	m, err := n.build(name, fp)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.cache[name] = m
	n.builds++
	n.mu.Unlock()
	return cloneModule(m), nil
}

// Modules loads every module under the source root.
func (n *Normalizer) Modules() ([]*cases.Module, error) {
	names, err := n.source.Modules()
	if err != nil {
		return nil, err
	}
	out := make([]*cases.Module, 0, len(names))
	for _, name := range names {
		m, err := n.Module(name)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (n *Normalizer) build(name, fp string) (*cases.Module, error) {
	common, records, errs, err := n.source.Read(name)
	if err != nil {
		return nil, err
	}
	return assemble(name, n.source.Kind(), fp, common, records, errs, n.logger), nil
}

func assemble(name, kind, fp string, common Common, records []Record, errs []error, logger *logging.Logger) *cases.Module {
	log := logger.WithModule(name)
	m := &cases.Module{
		Name:        name,
		Source:      kind,
		Fingerprint: fp,
		Labels:      labels(common),
		LoadErrors:  append([]error(nil), errs...),
	}
	if host, err := optionalString(common["host"]); err == nil {
		m.Host = host
	} else {
		m.LoadErrors = append(m.LoadErrors, &cases.DataFormatError{Module: name, Field: commonKey + ".host", Err: err})
	}
	if h, err := parseHeaders(common["headers"]); err == nil {
		m.Headers = h
	} else {
		m.LoadErrors = append(m.LoadErrors, &cases.DataFormatError{Module: name, Field: commonKey + ".headers", Err: err})
	}

	for _, rec := range records {
		c, err := normalizeRecord(name, common, rec)
		if err != nil {
			m.LoadErrors = append(m.LoadErrors, err)
			continue
		}
		m.Cases = append(m.Cases, c)
	}
	for _, err := range m.LoadErrors {
		log.Warn("case excluded", "error", err)
	}
	log.Debug("module normalized", "cases", len(m.Cases), "errors", len(m.LoadErrors), "fingerprint", fp[:12])
	return m
}

func cloneModule(m *cases.Module) *cases.Module {
	out := *m
	out.Headers = append(cases.Headers(nil), m.Headers...)
	out.LoadErrors = append([]error(nil), m.LoadErrors...)
	if m.Labels != nil {
		out.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			out.Labels[k] = v
		}
	}
	out.Cases = make([]*cases.Case, len(m.Cases))
	for i, c := range m.Cases {
		out.Cases[i] = c.Clone()
	}
	return &out
}

// Watch reports modules whose files changed until ctx is done. Events are
// debounced; fn runs on the watching goroutine.
func (n *Normalizer) Watch(ctx context.Context, fn func(modules []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	root := n.source.Root()
	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(root, e.Name())); err != nil {
				n.logger.Warn("failed to watch module", "module", e.Name(), "error", err)
			}
		}
	}

	pending := make(map[string]bool)
	var (
		timer  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && filepath.Dir(event.Name) == filepath.Clean(root) {
					_ = watcher.Add(event.Name)
				}
			}
			module := n.moduleOf(event.Name)
			if module == "" {
				continue
			}
			pending[module] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(n.debounce)
			settle = timer.C
		case <-settle:
			settle = nil
			changed := make([]string, 0, len(pending))
			for m := range pending {
				changed = append(changed, m)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			n.logger.Info("data files changed", "modules", changed)
			fn(changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			n.logger.Warn("watch error", "error", err)
		}
	}
}

// moduleOf maps a changed path to its module, ignoring files the source
// would not read.
func (n *Normalizer) moduleOf(path string) string {
	rel, err := filepath.Rel(n.source.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return ""
	}
	name := parts[1]
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch n.source.Kind() {
	case "excel":
		if ext != ".xlsx" {
			return ""
		}
	default:
		if ext != ".yaml" && ext != ".yml" {
			return ""
		}
	}
	return parts[0]
}
