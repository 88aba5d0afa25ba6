package types

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const allRefsSentinel = "all"

// Refs is either every ref of a project or an explicit set of refs.
type Refs struct {
	all      bool
	explicit map[string]struct{}
}

func AllRefs() Refs {
	return Refs{all: true}
}

func ExplicitRefs(refs ...string) Refs {
	set := map[string]struct{}{}
	for _, ref := range refs {
		value := strings.TrimSpace(ref)
		if value == "" {
			continue
		}
		set[value] = struct{}{}
	}
	return Refs{explicit: set}
}

func (r Refs) IsAll() bool {
	return r.all
}

func (r Refs) IsEmpty() bool {
	return !r.all && len(r.explicit) == 0
}

func (r Refs) Contains(ref string) bool {
	if r.all {
		return true
	}
	_, ok := r.explicit[ref]
	return ok
}

// List returns the explicit refs sorted. It is nil for AllRefs.
func (r Refs) List() []string {
	if r.all || len(r.explicit) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.explicit))
	for ref := range r.explicit {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func (r Refs) String() string {
	if r.all {
		return allRefsSentinel
	}
	return strings.Join(r.List(), ",")
}

// UnmarshalYAML accepts either the scalar "all" or a sequence of refs.
// A sequence that contains "all" is treated as every ref.
func (r *Refs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		value := strings.TrimSpace(node.Value)
		if strings.EqualFold(value, allRefsSentinel) {
			*r = AllRefs()
			return nil
		}
		*r = ExplicitRefs(value)
		return nil
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}
		for _, value := range values {
			if strings.EqualFold(strings.TrimSpace(value), allRefsSentinel) {
				*r = AllRefs()
				return nil
			}
		}
		*r = ExplicitRefs(values...)
		return nil
	default:
		return fmt.Errorf("refs must be %q or a list of refs (line %d)", allRefsSentinel, node.Line)
	}
}

func (r Refs) MarshalYAML() (any, error) {
	if r.all {
		return allRefsSentinel, nil
	}
	return r.List(), nil
}
