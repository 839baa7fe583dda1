// Package catalog defines the declarative settings catalog for the managed
// node.
//
// Each setting is described by an Option: its kind, UI grouping, native
// config key names, bounds or allowed values, default, and the version range
// in which it exists. Materializing the catalog for a concrete node version
// yields the per-version settings surface with all version bookkeeping
// stripped away.
package catalog

import (
	"fmt"

	"github.com/nodeward/nodeward/internal/nodever"
)

// Kind identifies the value shape of a setting. The set is closed; every
// consumer switches exhaustively over these four values.
type Kind uint8

const (
	// KindNumber is a numeric setting with optional bounds and step.
	KindNumber Kind = iota
	// KindToggle is a boolean setting.
	KindToggle
	// KindSelect is a single choice from a fixed option set.
	KindSelect
	// KindMulti is a set of choices drawn from a fixed option set.
	KindMulti
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindToggle:
		return "toggle"
	case KindSelect:
		return "select"
	case KindMulti:
		return "multi"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Option describes one setting in the catalog.
type Option struct {
	// Key is the settings-store key.
	Key string

	// Kind is the value shape.
	Kind Kind

	// Tab groups the setting in the caller's UI.
	Tab string

	// Label is the human-readable name.
	Label string

	// NativeKeys lists the native config key names this setting feeds.
	// Most settings have exactly one; selector settings may drive several.
	NativeKeys []string

	// Default is the default value.
	Default any

	// Minimum and Maximum bound number settings (inclusive, nil = unbounded).
	Minimum *float64
	Maximum *float64

	// Step is the increment for number settings. A step with no fractional
	// part restricts the setting to integers.
	Step float64

	// Options lists allowed values for select and multi settings.
	Options []string

	// Required applies to multi settings: when true the selection must be
	// non-empty.
	Required bool

	// IntroducedIn names the first version carrying this setting (inclusive).
	// Empty means the setting has always existed.
	IntroducedIn string

	// RemovedIn names the version that dropped this setting (exclusive:
	// the setting is absent from that version onward). Empty means never
	// removed.
	RemovedIn string

	// Overrides maps a concrete version to field overrides applied when
	// materializing for that version.
	Overrides map[string]Override
}

// Override carries per-version replacements for an option's mutable fields.
// Nil pointer fields leave the base value untouched.
type Override struct {
	Default *any
	Minimum *float64
	Maximum *float64
	Step    *float64
	Options []string
}

// Resolved is a materialized option: the per-version view of a setting with
// version-bound fields stripped.
type Resolved struct {
	Key        string
	Kind       Kind
	Tab        string
	Label      string
	NativeKeys []string
	Default    any
	Minimum    *float64
	Maximum    *float64
	Step       float64
	Options    []string
	Required   bool
}

// availableIn reports whether the option exists in the given concrete
// version, applying the inclusive-introduction / exclusive-removal window.
func (o *Option) availableIn(version string) (bool, error) {
	idx, err := nodever.Index(version)
	if err != nil {
		return false, err
	}

	if o.IntroducedIn != "" {
		intro, err := nodever.Index(o.IntroducedIn)
		if err != nil {
			return false, fmt.Errorf("option %s: bad IntroducedIn: %w", o.Key, err)
		}
		// Introduction newer than the target: not yet available.
		if intro < idx {
			return false, nil
		}
	}

	if o.RemovedIn != "" {
		removed, err := nodever.Index(o.RemovedIn)
		if err != nil {
			return false, fmt.Errorf("option %s: bad RemovedIn: %w", o.Key, err)
		}
		// Target at or newer than the removal version: already gone.
		if removed >= idx {
			return false, nil
		}
	}

	return true, nil
}

// resolve produces the per-version view of the option, shallow-merging any
// override for the version over the base fields.
func (o *Option) resolve(version string) Resolved {
	r := Resolved{
		Key:        o.Key,
		Kind:       o.Kind,
		Tab:        o.Tab,
		Label:      o.Label,
		NativeKeys: o.NativeKeys,
		Default:    o.Default,
		Minimum:    o.Minimum,
		Maximum:    o.Maximum,
		Step:       o.Step,
		Options:    o.Options,
		Required:   o.Required,
	}

	ov, ok := o.Overrides[version]
	if !ok {
		return r
	}
	if ov.Default != nil {
		r.Default = *ov.Default
	}
	if ov.Minimum != nil {
		r.Minimum = ov.Minimum
	}
	if ov.Maximum != nil {
		r.Maximum = ov.Maximum
	}
	if ov.Step != nil {
		r.Step = *ov.Step
	}
	if ov.Options != nil {
		r.Options = ov.Options
	}
	return r
}

// MinValue creates a pointer to a float64 for use as Minimum.
func MinValue(v float64) *float64 {
	return &v
}

// MaxValue creates a pointer to a float64 for use as Maximum.
func MaxValue(v float64) *float64 {
	return &v
}

// DefaultValue creates a pointer to an any for use in an Override.
func DefaultValue(v any) *any {
	return &v
}
