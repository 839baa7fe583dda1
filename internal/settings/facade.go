// Package settings orchestrates the full apply pipeline: load the stored
// record, merge defaults for the resolved version, validate, filter to the
// version's surface, run derivation, persist, regenerate the native config,
// and restart the node.
//
// A single facade-level mutex serializes every mutation together with the
// restart it triggers, so two concurrent updates can never interleave their
// read-modify-write on the store or their restarts.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/nodeward/nodeward/internal/catalog"
	"github.com/nodeward/nodeward/internal/catalog/schema"
	"github.com/nodeward/nodeward/internal/confgen"
	"github.com/nodeward/nodeward/internal/derive"
	"github.com/nodeward/nodeward/internal/nodever"
	"github.com/nodeward/nodeward/internal/runtimecfg"
	"github.com/nodeward/nodeward/internal/store"
	"github.com/nodeward/nodeward/internal/supervise"
)

// Supervisor is the slice of the process manager the facade drives.
type Supervisor interface {
	Start() (supervise.ManagerStatus, supervise.Result)
	Restart() (supervise.ManagerStatus, supervise.Result)
}

// Facade owns the settings pipeline and the in-memory record cache.
type Facade struct {
	cfg        runtimecfg.Config
	cat        *catalog.Catalog
	compiler   *confgen.Compiler
	store      *store.Settings
	supervisor Supervisor
	logger     *slog.Logger

	// mu is the single-writer lock: it covers the read-modify-write of the
	// store, the config regeneration, and the restart as one unit.
	mu    sync.Mutex
	cache map[string]any
}

// New creates a facade over the given collaborators.
func New(cfg runtimecfg.Config, cat *catalog.Catalog, st *store.Settings, sup Supervisor, logger *slog.Logger) *Facade {
	return &Facade{
		cfg:        cfg,
		cat:        cat,
		compiler:   confgen.New(cfg),
		store:      st,
		supervisor: sup,
		logger:     logger,
	}
}

// Load returns the complete settings record for the stored version: every
// key on that version's surface carries either the stored value or the
// version's default.
func (f *Facade) Load() (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged, _, err := f.loadLocked()
	if err != nil {
		return nil, err
	}
	return copyRecord(merged), nil
}

// Cached returns the last record the facade loaded or applied, without
// touching disk. Nil before the first Load/Update/Apply.
func (f *Facade) Cached() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil {
		return nil
	}
	return copyRecord(f.cache)
}

// Resolved reports the stored version selector and the concrete version it
// resolves to.
func (f *Facade) Resolved() (selector, version string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, err := f.readRecord()
	if err != nil {
		return "", "", err
	}
	selector = selectorOf(record)
	version, err = nodever.Resolve(selector)
	return selector, version, err
}

// Update merges changes into the stored record, runs the full pipeline, and
// restarts the node. On validation failure nothing is persisted and the
// node keeps running unchanged; the returned error is a
// *schema.ValidationErrors listing every rejected field.
func (f *Facade) Update(changes map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, err := f.readRecord()
	if err != nil {
		return nil, err
	}
	for k, v := range changes {
		record[k] = v
	}

	derived, version, err := f.pipelineLocked(record)
	if err != nil {
		return nil, err
	}

	if err := f.persistLocked(version, derived); err != nil {
		return nil, err
	}

	status, result := f.supervisor.Restart()
	f.logger.Info("settings applied",
		"version", version, "restart", string(result), "running", status.Running)

	f.cache = derived
	return copyRecord(derived), nil
}

// Apply regenerates everything from the stored record and starts the node.
// It is the boot-time counterpart of Update: no changes, Start instead of
// Restart.
func (f *Facade) Apply() (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, err := f.readRecord()
	if err != nil {
		return nil, err
	}

	derived, version, err := f.pipelineLocked(record)
	if err != nil {
		return nil, err
	}

	if err := f.persistLocked(version, derived); err != nil {
		return nil, err
	}

	status, result := f.supervisor.Start()
	f.logger.Info("settings applied at boot",
		"version", version, "start", string(result), "running", status.Running)

	f.cache = derived
	return copyRecord(derived), nil
}

// loadLocked reads the store and merges defaults into a complete record for
// the resolved version. Callers hold f.mu.
func (f *Facade) loadLocked() (map[string]any, string, error) {
	record, err := f.readRecord()
	if err != nil {
		return nil, "", err
	}

	merged, version, err := f.mergeDefaults(record)
	if err != nil {
		return nil, "", err
	}
	f.cache = merged
	return merged, version, nil
}

// pipelineLocked runs merge-defaults, validation, version filtering, and
// derivation over record. The result contains exactly the resolved
// version's surface keys.
func (f *Facade) pipelineLocked(record map[string]any) (map[string]any, string, error) {
	merged, version, err := f.mergeDefaults(record)
	if err != nil {
		return nil, "", err
	}

	validator, err := schema.Compile(f.cat, version)
	if err != nil {
		return nil, "", err
	}
	if err := validator.Validate(merged); err != nil {
		return nil, "", err
	}

	return derive.Apply(merged), version, nil
}

// mergeDefaults resolves the record's version selector and overlays stored
// values onto that version's defaults. Keys outside the version's surface
// are dropped from the result (they stay in the store untouched).
func (f *Facade) mergeDefaults(record map[string]any) (map[string]any, string, error) {
	selector := selectorOf(record)
	version, err := nodever.Resolve(selector)
	if err != nil {
		return nil, "", fmt.Errorf("resolving stored version: %w", err)
	}

	defaults, err := f.cat.Defaults(version)
	if err != nil {
		return nil, "", err
	}

	merged := make(map[string]any, len(defaults))
	for key, def := range defaults {
		if stored, ok := record[key]; ok {
			merged[key] = stored
		} else {
			merged[key] = def
		}
	}
	merged[catalog.VersionKey] = selector
	return merged, version, nil
}

// persistLocked writes the record to the settings store and regenerates
// both native config files.
func (f *Facade) persistLocked(version string, record map[string]any) error {
	if err := f.store.Patch(record); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}

	list, err := f.compiler.Compile(f.cat, version, record)
	if err != nil {
		return fmt.Errorf("compiling native config: %w", err)
	}
	if err := store.WriteManaged(f.cfg.GeneratedConfPath(), list.Render()); err != nil {
		return fmt.Errorf("writing managed config: %w", err)
	}
	include := filepath.Base(f.cfg.GeneratedConfPath())
	if err := store.EnsureUserConf(f.cfg.UserConfPath(), include); err != nil {
		return fmt.Errorf("enforcing user config: %w", err)
	}
	return nil
}

// readRecord loads the stored record. A malformed store is repaired in
// place — corrupt content backed up, store reinitialized — and the call
// proceeds with an empty record rather than failing.
func (f *Facade) readRecord() (map[string]any, error) {
	record, err := f.store.Read()
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, store.ErrMalformedStore) {
		return nil, err
	}

	backup, rerr := f.store.Repair()
	if rerr != nil {
		return nil, fmt.Errorf("repairing malformed settings store: %w", rerr)
	}
	f.logger.Error("settings store was corrupt, reinitialized",
		"path", f.store.Path(), "backup", backup)
	return map[string]any{}, nil
}

// selectorOf extracts the version selector from a record, defaulting to
// "latest".
func selectorOf(record map[string]any) string {
	if v, ok := record[catalog.VersionKey].(string); ok && v != "" {
		return v
	}
	return nodever.Latest
}

func copyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
