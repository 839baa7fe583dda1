package store

import (
	"fmt"
	"os"
	"strings"
)

// Banner lines enforced at the top of the user-owned native config. Only
// these two lines plus the include directive are ours; everything else in
// the file belongs to the user.
const (
	bannerLine1 = "# This file is managed in part by nodeward."
	bannerLine2 = "# Lines below the include directive are yours and are never touched."
)

// WriteManaged regenerates the fully-managed native config wholesale.
func WriteManaged(path, content string) error {
	return WriteFileAtomic(path, []byte(content), 0o600)
}

// EnsureUserConf enforces the two-line banner and a single include
// directive at the top of the user-owned config file, preserving all other
// content byte-for-byte. includeTarget is the filename referenced by the
// include directive.
func EnsureUserConf(path, includeTarget string) error {
	include := fmt.Sprintf("includeconf=%s", includeTarget)
	prefix := bannerLine1 + "\n" + bannerLine2 + "\n" + include + "\n"

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading user config: %w", err)
	}

	if strings.HasPrefix(string(existing), prefix) {
		return nil // already enforced, leave the file alone
	}

	rest := stripEnforcedLines(string(existing), include)
	return WriteFileAtomic(path, []byte(prefix+rest), 0o600)
}

// stripEnforcedLines removes stale copies of the banner and include
// directive wherever they ended up, leaving user content untouched.
func stripEnforcedLines(content, include string) string {
	if content == "" {
		return ""
	}

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == bannerLine1 || line == bannerLine2 || line == include {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
