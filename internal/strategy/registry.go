package strategy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ballast/internal/ensemble"
	"ballast/internal/logger"
	"ballast/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnsembleDef names a weighted set of member strategies.
type EnsembleDef struct {
	Name    string
	Members []ensemble.Member
}

// Snapshot is one immutable generation of the registry. Reloads build a full
// replacement and swap it in whole, so a lookup in progress never sees a mix
// of old and new strategies.
type Snapshot struct {
	Version    int64
	LoadedAt   time.Time
	strategies map[string]*Strategy
	ensembles  map[string]EnsembleDef
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry holds the active strategy and ensemble set. The snapshot behind
// the RWMutex is the only shared mutable state in the engine.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snap      Snapshot
	listeners []ChangeListener
}

// NewRegistry builds an in-memory registry from already-constructed
// strategies and ensemble definitions.
func NewRegistry(strategies []*Strategy, ensembles []EnsembleDef) (*Registry, error) {
	snap, err := buildSnapshot(1, strategies, ensembles)
	if err != nil {
		return nil, err
	}
	return &Registry{snap: snap}, nil
}

// NewFileRegistry reads a strategy definitions file and, when watch is set,
// re-reads it on change. A failed reload logs and keeps the previous
// generation.
func NewFileRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires a definitions path")
	}
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if !watch {
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("watch strategy definitions failed: %w", err)
	}
	r.v = v
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy registry reload failed, keeping previous set: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) reload() error {
	strategies, ensembles, err := LoadDefinitions(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	snap, err := buildSnapshot(r.snap.Version+1, strategies, ensembles)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.snap = snap
	r.mu.Unlock()
	logger.Infof("strategy registry loaded %d strategies, %d ensembles from %s",
		len(strategies), len(ensembles), filepath.Base(r.path))
	return nil
}

func buildSnapshot(version int64, strategies []*Strategy, ensembles []EnsembleDef) (Snapshot, error) {
	byName := make(map[string]*Strategy, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return Snapshot{}, fmt.Errorf("nil strategy")
		}
		if _, ok := byName[s.Name()]; ok {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.Name())
		}
		byName[s.Name()] = s
	}
	ensByName := make(map[string]EnsembleDef, len(ensembles))
	for _, def := range ensembles {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return Snapshot{}, fmt.Errorf("ensemble without name")
		}
		if _, ok := ensByName[name]; ok {
			return Snapshot{}, fmt.Errorf("duplicate ensemble name: %s", name)
		}
		if err := ensemble.ValidateMembers(def.Members); err != nil {
			return Snapshot{}, fmt.Errorf("ensemble %s: %w", name, err)
		}
		for _, m := range def.Members {
			if _, ok := byName[m.Strategy]; !ok {
				return Snapshot{}, fmt.Errorf("ensemble %s references %w: %s", name, ErrUnknownStrategy, m.Strategy)
			}
		}
		ensByName[name] = def
	}
	return Snapshot{
		Version:    version,
		LoadedAt:   time.Now(),
		strategies: byName,
		ensembles:  ensByName,
	}, nil
}

// Register adds a strategy to a fresh snapshot generation. Registration of a
// name already present fails with ErrDuplicateStrategy.
func (r *Registry) Register(s *Strategy) error {
	if s == nil {
		return fmt.Errorf("nil strategy")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snap.strategies[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.Name())
	}
	next := make(map[string]*Strategy, len(r.snap.strategies)+1)
	for name, existing := range r.snap.strategies {
		next[name] = existing
	}
	next[s.Name()] = s
	r.snap = Snapshot{
		Version:    r.snap.Version + 1,
		LoadedAt:   time.Now(),
		strategies: next,
		ensembles:  r.snap.ensembles,
	}
	return nil
}

// Get looks up a strategy by name.
func (r *Registry) Get(name string) (*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snap.strategies[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// List returns the registered strategies sorted by name.
func (r *Registry) List() []*Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Strategy, 0, len(r.snap.strategies))
	for _, s := range r.snap.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Ensemble returns a named ensemble definition.
func (r *Registry) Ensemble(name string) (EnsembleDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.snap.ensembles[strings.TrimSpace(name)]
	if !ok {
		return EnsembleDef{}, fmt.Errorf("unknown ensemble: %s", name)
	}
	return def, nil
}

// Version returns the current snapshot generation.
func (r *Registry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Version
}

// IndicatorRefs unions the indicator references of every registered
// strategy, deduplicated, in deterministic order.
func (r *Registry) IndicatorRefs() []types.IndicatorRef {
	seen := make(map[types.IndicatorRef]bool)
	var out []types.IndicatorRef
	for _, s := range r.List() {
		for _, ref := range s.IndicatorRefs() {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

// OnChange registers a reload listener.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snap
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("registry listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}
