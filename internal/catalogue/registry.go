package catalogue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/icetech/icetray/internal/icecube"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BuildObserver is notified after every Build, successful or not.
// Observers must not block; they run on the caller's goroutine.
type BuildObserver interface {
	ObserveBuild(rec BuildRecord)
}

// BuildObserverFunc adapts a function to BuildObserver.
type BuildObserverFunc func(rec BuildRecord)

// ObserveBuild calls f(rec).
func (f BuildObserverFunc) ObserveBuild(rec BuildRecord) { f(rec) }

// Registry builds IceCubes and keeps the built ones in a cache backed by
// a Repository.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// Build and Delete. Cached entries hold immutable Devices, so lookups hand
// out shallow copies of the Entry.
//
// All public methods are thread-safe.
type Registry struct {
	repo       Repository
	targetFile string

	cache   map[string]*Entry // by IceCube name
	cacheMu sync.RWMutex

	logger    Logger
	observers []BuildObserver
	now       func() time.Time
}

// NewRegistry creates a registry that builds every cube against targetFile
// (the file named in each record's INP/OUT link). An empty targetFile
// keeps icecube.DefaultTargetFile.
func NewRegistry(repo Repository, targetFile string) *Registry {
	if targetFile == "" {
		targetFile = icecube.DefaultTargetFile
	}
	return &Registry{
		repo:       repo,
		targetFile: targetFile,
		cache:      make(map[string]*Entry),
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddObserver registers an observer for build outcomes. Call before use.
func (r *Registry) AddObserver(o BuildObserver) {
	r.observers = append(r.observers, o)
}

// TargetFile returns the file named in generated INP/OUT links.
func (r *Registry) TargetFile() string { return r.targetFile }

// RefreshCache reloads all IceCubes from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entries, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading icecubes: %w", err)
	}

	cache := make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		cache[e.Name()] = &e
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("icecube cache refreshed", "count", len(entries))
	return nil
}

// Check test-builds doc without storing anything or recording history.
func (r *Registry) Check(doc icecube.Document) (*icecube.Device, error) {
	return icecube.FromDocument(doc, icecube.WithTargetFile(r.targetFile))
}

// Build constructs the Device described by doc, stores it under its name
// (replacing any previous cube of that name) and records the build.
//
// A document that fails validation is recorded as a rejected build and the
// validation error is returned unchanged; the stored catalogue is untouched.
func (r *Registry) Build(ctx context.Context, doc icecube.Document, source string) (*Entry, error) {
	start := r.now()
	dev, buildErr := r.Check(doc)

	rec := BuildRecord{
		ID:        uuid.NewString(),
		Name:      doc.Name,
		Source:    source,
		CreatedAt: start.UTC(),
	}

	if buildErr != nil {
		rec.Result = ResultRejected
		rec.Error = buildErr.Error()
		rec.Duration = r.now().Sub(start)
		r.record(ctx, rec)
		r.logger.Warn("icecube rejected", "name", doc.Name, "source", source, "error", buildErr)
		return nil, buildErr
	}

	entry := &Entry{ID: uuid.NewString(), Device: dev}

	r.cacheMu.RLock()
	if prev, ok := r.cache[dev.Name()]; ok {
		entry.ID = prev.ID
		entry.CreatedAt = prev.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.Save(ctx, entry); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[dev.Name()] = entry
	r.cacheMu.Unlock()

	rec.Result = ResultOK
	rec.ReadCount = dev.CountRead()
	rec.WriteCount = dev.CountWrite()
	rec.Duration = r.now().Sub(start)
	r.record(ctx, rec)

	r.logger.Info("icecube built",
		"name", dev.Name(),
		"source", source,
		"read", dev.CountRead(),
		"write", dev.CountWrite(),
	)
	cpy := *entry
	return &cpy, nil
}

// record persists rec and notifies observers. A history write failure is
// logged, not returned: the build itself already succeeded or failed.
func (r *Registry) record(ctx context.Context, rec BuildRecord) {
	if err := r.repo.RecordBuild(ctx, rec); err != nil {
		r.logger.Error("recording build history failed", "name", rec.Name, "error", err)
	}
	for _, o := range r.observers {
		o.ObserveBuild(rec)
	}
}

// Get retrieves an IceCube by name.
// Returns ErrNotFound if it does not exist.
func (r *Registry) Get(ctx context.Context, name string) (*Entry, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[name]
	r.cacheMu.RUnlock()

	if ok {
		cpy := *cached
		return &cpy, nil
	}

	entry, err := r.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[name] = entry
	r.cacheMu.Unlock()

	cpy := *entry
	return &cpy, nil
}

// List returns all cached IceCubes ordered by name.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	r.cacheMu.RLock()
	if len(r.cache) > 0 {
		entries := make([]Entry, 0, len(r.cache))
		for _, e := range r.cache {
			entries = append(entries, *e)
		}
		r.cacheMu.RUnlock()
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
		return entries, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.List(ctx)
}

// Delete removes an IceCube. Its build history is kept.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, name)
	r.cacheMu.Unlock()

	r.logger.Info("icecube deleted", "name", name)
	return nil
}

// History returns the most recent builds for name, newest first.
func (r *Registry) History(ctx context.Context, name string, limit int) ([]BuildRecord, error) {
	return r.repo.ListBuilds(ctx, name, limit)
}

// Count returns the number of cached IceCubes.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
