// Package command defines chat commands and the static registry they are
// declared in at startup.
package command

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches the names chat platforms accept for slash commands and
// their options.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

const maxDescriptionLen = 100

// Registry is an ordered, immutable set of command descriptors.
type Registry struct {
	ordered []Descriptor
	byName  map[string]int
}

// NewRegistry validates descriptors and builds a registry preserving their
// order.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byName:  make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("command %q registered twice", d.Name)
		}
		r.byName[d.Name] = len(r.ordered)
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Get looks up a command by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Descriptor{}, false
	}
	return r.ordered[i], true
}

// All returns the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func validateDescriptor(d Descriptor) error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("invalid command name %q (must match %s)", d.Name, namePattern)
	}
	if d.Description == "" || len(d.Description) > maxDescriptionLen {
		return fmt.Errorf("command %q: description must be 1-%d characters", d.Name, maxDescriptionLen)
	}
	if d.Handler == nil {
		return fmt.Errorf("command %q: handler is nil", d.Name)
	}

	seen := make(map[string]bool, len(d.Params))
	optionalSeen := false
	for _, p := range d.Params {
		if !namePattern.MatchString(p.Name) {
			return fmt.Errorf("command %q: invalid param name %q", d.Name, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("command %q: duplicate param %q", d.Name, p.Name)
		}
		seen[p.Name] = true
		if p.Description == "" || len(p.Description) > maxDescriptionLen {
			return fmt.Errorf("command %q: param %q description must be 1-%d characters", d.Name, p.Name, maxDescriptionLen)
		}
		// Slash commands require required options to come first.
		if p.Required && optionalSeen {
			return fmt.Errorf("command %q: required param %q follows an optional one", d.Name, p.Name)
		}
		if !p.Required {
			optionalSeen = true
		}
	}
	return nil
}

// MissingParams returns the required params of d that are absent or empty in
// inv. Whitespace is a value: "   " is passed to the handler as given.
func MissingParams(d Descriptor, inv Invocation) []string {
	var missing []string
	for _, p := range d.Params {
		if p.Required && inv.Arg(p.Name) == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}
