// Package schema compiles a per-version validator from materialized catalog
// metadata.
//
// The validator checks a settings record against the surface of one concrete
// node version: value shapes, numeric bounds, option membership. Keys the
// version does not know about are accepted and passed through untouched so a
// record caught mid-transition between versions still loads.
package schema

import (
	"math"

	"github.com/nodeward/nodeward/internal/catalog"
)

// Validator validates settings records against one version's surface.
type Validator struct {
	version string
	surface map[string]catalog.Resolved
}

// Compile builds a validator for the given concrete version.
func Compile(c *catalog.Catalog, version string) (*Validator, error) {
	surface, err := c.Materialize(version)
	if err != nil {
		return nil, err
	}
	return &Validator{version: version, surface: surface}, nil
}

// Version returns the concrete version this validator was compiled for.
func (v *Validator) Version() string {
	return v.version
}

// Surface returns the materialized settings surface backing the validator.
func (v *Validator) Surface() map[string]catalog.Resolved {
	return v.surface
}

// Validate checks every key in the record. All failures are collected; the
// returned error is nil when the record is fully valid.
func (v *Validator) Validate(record map[string]any) error {
	errs := &ValidationErrors{}
	for key, value := range record {
		opt, ok := v.surface[key]
		if !ok {
			// Unknown or stale key: tolerated, passed through.
			continue
		}
		if err := v.validateValue(opt, value); err != nil {
			errs.AddError(err)
		}
	}
	return errs.AsError()
}

// ValidateKey checks a single key/value pair against the surface.
// Unknown keys are accepted.
func (v *Validator) ValidateKey(key string, value any) error {
	opt, ok := v.surface[key]
	if !ok {
		return nil
	}
	if err := v.validateValue(opt, value); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateValue(opt catalog.Resolved, value any) *ValidationError {
	switch opt.Kind {
	case catalog.KindNumber:
		return validateNumber(opt, value)
	case catalog.KindToggle:
		return validateToggle(opt, value)
	case catalog.KindSelect:
		return validateSelect(opt, value)
	case catalog.KindMulti:
		return validateMulti(opt, value)
	default:
		return NewTypeError(opt.Key, "known setting kind", value)
	}
}

func validateNumber(opt catalog.Resolved, value any) *ValidationError {
	f, ok := asFloat(value)
	if !ok {
		return NewTypeError(opt.Key, "number", value)
	}

	// A step without a fractional part restricts the value to integers.
	if opt.Step == math.Trunc(opt.Step) && f != math.Trunc(f) {
		return NewTypeError(opt.Key, "integer", value)
	}

	if (opt.Minimum != nil && f < *opt.Minimum) || (opt.Maximum != nil && f > *opt.Maximum) {
		return NewRangeError(opt.Key, value, opt.Minimum, opt.Maximum)
	}
	return nil
}

func validateToggle(opt catalog.Resolved, value any) *ValidationError {
	if _, ok := value.(bool); !ok {
		return NewTypeError(opt.Key, "boolean", value)
	}
	return nil
}

func validateSelect(opt catalog.Resolved, value any) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return NewTypeError(opt.Key, "string", value)
	}
	if !containsString(opt.Options, s) {
		return NewOptionError(opt.Key, value, opt.Options)
	}
	return nil
}

func validateMulti(opt catalog.Resolved, value any) *ValidationError {
	items, ok := asStringSlice(value)
	if !ok {
		return NewTypeError(opt.Key, "array of strings", value)
	}
	if len(items) == 0 && opt.Required {
		return NewEmptyError(opt.Key)
	}
	for _, item := range items {
		if !containsString(opt.Options, item) {
			return NewOptionError(opt.Key, item, opt.Options)
		}
	}
	return nil
}

// asFloat normalizes the numeric representations that appear after JSON
// decoding or in-process construction.
func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asStringSlice accepts []string directly and []any from JSON decoding.
func asStringSlice(value any) ([]string, bool) {
	switch items := value.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
