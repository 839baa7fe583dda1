// Package nodever tracks the set of bitcoind releases the manager knows how
// to run.
//
// Versions are ordered newest first; the index of a version in that ordering
// defines recency, so "is a newer than b" is a plain index comparison and no
// semantic version parsing is needed. The sentinel "latest" always resolves
// to the newest supported version.
package nodever

import (
	"fmt"
)

// Latest is the sentinel accepted anywhere a concrete version is expected.
const Latest = "latest"

// Supported lists the bitcoind versions the manager can supervise, newest
// first. Index order is the single source of truth for recency comparisons.
var Supported = []string{
	"29.0",
	"28.1",
	"27.2",
}

// ErrUnknownVersion is returned when a version string is not in Supported.
var ErrUnknownVersion = fmt.Errorf("unknown node version")

// Resolve maps a user-facing selector (including the "latest" sentinel) to a
// concrete supported version.
func Resolve(selector string) (string, error) {
	if selector == Latest || selector == "" {
		return Supported[0], nil
	}
	if _, err := Index(selector); err != nil {
		return "", err
	}
	return selector, nil
}

// Index returns the position of version in the newest-first ordering.
func Index(version string) (int, error) {
	for i, v := range Supported {
		if v == version {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
}

// IsSupported reports whether version is a known concrete version or the
// "latest" sentinel.
func IsSupported(version string) bool {
	if version == Latest {
		return true
	}
	_, err := Index(version)
	return err == nil
}

// Compare orders two versions by recency. It returns a negative value when a
// is newer than b, zero when they are the same release, and a positive value
// when a is older. Both versions must be supported.
func Compare(a, b string) (int, error) {
	ia, err := Index(a)
	if err != nil {
		return 0, err
	}
	ib, err := Index(b)
	if err != nil {
		return 0, err
	}
	return ia - ib, nil
}

// AtLeast reports whether version is the same release as floor or newer.
func AtLeast(version, floor string) (bool, error) {
	c, err := Compare(version, floor)
	if err != nil {
		return false, err
	}
	return c <= 0, nil
}

// Selectors returns every value the version selector setting accepts: the
// "latest" sentinel followed by the concrete versions, newest first.
func Selectors() []string {
	out := make([]string, 0, len(Supported)+1)
	out = append(out, Latest)
	out = append(out, Supported...)
	return out
}
