// Package confgen compiles a validated settings record into the node's
// native key=value configuration.
//
// Compilation is a deterministic pipeline over an ordered list of directive
// records: a base pass maps each setting onto its native keys, a series of
// post-passes replace key groups with derived values (endpoints from the
// runtime config, unit conversions), and a fixed tail appends credentials,
// allow-lists, publish endpoints, and the chain-gated listener block. Only
// the final step serializes to text.
package confgen

import (
	"fmt"
	"strings"
)

// Directive is one line of native configuration: either a key=value pair or
// a bracketed section header switching the config context.
type Directive struct {
	// Section, when non-empty, makes this directive a "[Section]" header and
	// Key/Value are ignored.
	Section string

	Key   string
	Value string
}

// String renders the directive as a native config line.
func (d Directive) String() string {
	if d.Section != "" {
		return fmt.Sprintf("[%s]", d.Section)
	}
	return fmt.Sprintf("%s=%s", d.Key, d.Value)
}

// List is an ordered sequence of directives.
type List []Directive

// Append adds a key=value directive.
func (l *List) Append(key, value string) {
	*l = append(*l, Directive{Key: key, Value: value})
}

// AppendSection adds a section header.
func (l *List) AppendSection(name string) {
	*l = append(*l, Directive{Section: name})
}

// RemoveKey deletes every directive whose key matches any of the given keys.
// Section headers are never removed.
func (l *List) RemoveKey(keys ...string) {
	out := (*l)[:0]
	for _, d := range *l {
		if d.Section == "" && matchesAny(d.Key, keys) {
			continue
		}
		out = append(out, d)
	}
	*l = out
}

// Values returns the values of every directive with the given key, in order.
func (l List) Values(key string) []string {
	var out []string
	for _, d := range l {
		if d.Section == "" && d.Key == key {
			out = append(out, d.Value)
		}
	}
	return out
}

// Render serializes the list to native config text with a trailing newline.
func (l List) Render() string {
	var b strings.Builder
	for _, d := range l {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func matchesAny(key string, keys []string) bool {
	for _, k := range keys {
		if key == k {
			return true
		}
	}
	return false
}
