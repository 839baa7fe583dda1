package schema

import (
	"errors"
	"testing"

	"github.com/nodeward/nodeward/internal/catalog"
	"github.com/nodeward/nodeward/internal/nodever"
)

func newValidator(t *testing.T, version string) *Validator {
	t.Helper()
	v, err := Compile(catalog.NewWithDefaults(), version)
	if err != nil {
		t.Fatalf("Compile(%s): %v", version, err)
	}
	return v
}

func TestDefaultsValidateForEveryVersion(t *testing.T) {
	c := catalog.NewWithDefaults()
	for _, version := range nodever.Supported {
		v, err := Compile(c, version)
		if err != nil {
			t.Fatalf("Compile(%s): %v", version, err)
		}
		defaults, err := c.Defaults(version)
		if err != nil {
			t.Fatalf("Defaults(%s): %v", version, err)
		}
		if err := v.Validate(defaults); err != nil {
			t.Errorf("defaults for %s do not validate: %v", version, err)
		}
	}
}

func TestValidateNumber(t *testing.T) {
	v := newValidator(t, "29.0")

	tests := []struct {
		name  string
		key   string
		value any
		ok    bool
	}{
		{"in range", "prune", float64(100), true},
		{"at minimum", "prune", float64(0), true},
		{"at maximum", "prune", float64(2000), true},
		{"above maximum", "prune", float64(2001), false},
		{"below minimum", "prune", float64(-1), false},
		{"int accepted", "dbcache", 512, true},
		{"fraction on integer step", "dbcache", 512.5, false},
		{"fraction on fractional step", "minrelaytxfee", 0.5, true},
		{"wrong type", "prune", "lots", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKey(tt.key, tt.value)
			if tt.ok && err != nil {
				t.Errorf("ValidateKey(%s, %v) = %v, want nil", tt.key, tt.value, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("ValidateKey(%s, %v) = nil, want error", tt.key, tt.value)
			}
		})
	}
}

func TestValidateToggle(t *testing.T) {
	v := newValidator(t, "29.0")

	if err := v.ValidateKey("txindex", true); err != nil {
		t.Errorf("bool should validate: %v", err)
	}
	if err := v.ValidateKey("txindex", "true"); err == nil {
		t.Error("string should not validate as toggle")
	}
}

func TestValidateSelect(t *testing.T) {
	v := newValidator(t, "29.0")

	if err := v.ValidateKey(catalog.VersionKey, "28.1"); err != nil {
		t.Errorf("supported version should validate: %v", err)
	}
	if err := v.ValidateKey(catalog.VersionKey, nodever.Latest); err != nil {
		t.Errorf("latest sentinel should validate: %v", err)
	}
	if err := v.ValidateKey(catalog.VersionKey, "0.13.0"); err == nil {
		t.Error("unsupported version should not validate")
	}
	if err := v.ValidateKey(catalog.VersionKey, 29); err == nil {
		t.Error("number should not validate as select")
	}
}

func TestValidateMulti(t *testing.T) {
	v := newValidator(t, "29.0")

	tests := []struct {
		name  string
		key   string
		value any
		ok    bool
	}{
		{"string slice", catalog.KeyOnlyNet, []string{"clearnet", "tor"}, true},
		{"any slice from json", catalog.KeyOnlyNet, []any{"tor"}, true},
		{"unknown member", catalog.KeyOnlyNet, []string{"smoke-signals"}, false},
		{"empty but required", catalog.KeyOnlyNet, []string{}, false},
		{"empty and optional", catalog.KeyIncomingConnections, []string{}, true},
		{"mixed types", catalog.KeyOnlyNet, []any{"tor", 2}, false},
		{"wrong type", catalog.KeyOnlyNet, "tor", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKey(tt.key, tt.value)
			if tt.ok && err != nil {
				t.Errorf("ValidateKey(%s, %v) = %v, want nil", tt.key, tt.value, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("ValidateKey(%s, %v) = nil, want error", tt.key, tt.value)
			}
		})
	}
}

func TestUnknownKeysPassThrough(t *testing.T) {
	v := newValidator(t, "29.0")

	record := map[string]any{
		"prune":           float64(0),
		"somefuturekey":   "whatever",
		"mempoolfullrbf":  true, // removed in 29.0, so unknown here
		"another.unknown": 42,
	}
	if err := v.Validate(record); err != nil {
		t.Errorf("unknown keys should be tolerated: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	v := newValidator(t, "29.0")

	record := map[string]any{
		"prune":   "zero",
		"txindex": "yes",
		"dbcache": float64(999999),
	}
	err := v.Validate(record)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if verrs.Len() != 3 {
		t.Errorf("expected 3 errors, got %d: %v", verrs.Len(), verrs)
	}
	if len(verrs.ErrorsForKey("prune")) != 1 {
		t.Error("expected one error for prune")
	}
}

func TestVersionedBoundsApply(t *testing.T) {
	old := newValidator(t, "27.2")
	if err := old.ValidateKey("maxconnections", float64(800)); err == nil {
		t.Error("800 connections should exceed the 27.2 maximum of 500")
	}

	newest := newValidator(t, "29.0")
	if err := newest.ValidateKey("maxconnections", float64(800)); err != nil {
		t.Errorf("800 connections should be allowed on 29.0: %v", err)
	}
}
