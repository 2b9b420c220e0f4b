package shader

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// ErrDuplicateBinding is returned when two bindings share a (group, binding) slot.
var ErrDuplicateBinding = errors.New("shader: duplicate binding")

// BindingKind classifies the resource bound at a slot.
type BindingKind uint8

const (
	BindingUnknown BindingKind = iota
	BindingUniform
	BindingStorage
	BindingReadOnlyStorage
	BindingSampler
	BindingComparisonSampler
	BindingTexture
	BindingDepthTexture
	BindingStorageTexture
)

// String returns the WGSL-flavoured name of the kind.
func (k BindingKind) String() string {
	switch k {
	case BindingUniform:
		return "uniform"
	case BindingStorage:
		return "storage"
	case BindingReadOnlyStorage:
		return "storage-read"
	case BindingSampler:
		return "sampler"
	case BindingComparisonSampler:
		return "sampler-comparison"
	case BindingTexture:
		return "texture"
	case BindingDepthTexture:
		return "texture-depth"
	case BindingStorageTexture:
		return "texture-storage"
	default:
		return "unknown"
	}
}

// IsBuffer reports whether the kind is backed by a buffer resource.
func (k BindingKind) IsBuffer() bool {
	return k == BindingUniform || k == BindingStorage || k == BindingReadOnlyStorage
}

// Binding is one resource slot declared by a module.
type Binding struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Name    string

	// Count is the array length of a binding array, 1 otherwise.
	// Zero means unbounded.
	Count uint32
}

func (b Binding) String() string {
	return fmt.Sprintf("@group(%d) @binding(%d) %s: %s", b.Group, b.Binding, b.Name, b.Kind)
}

// Layout is the set of bindings declared by one or more modules.
type Layout []Binding

// Validate rejects duplicate (group, binding) pairs.
func (l Layout) Validate() error {
	type slot struct{ group, binding uint32 }
	seen := make(map[slot]string, len(l))
	for _, b := range l {
		s := slot{b.Group, b.Binding}
		if prev, ok := seen[s]; ok {
			return fmt.Errorf("%w: @group(%d) @binding(%d) used by %q and %q",
				ErrDuplicateBinding, b.Group, b.Binding, prev, b.Name)
		}
		seen[s] = b.Name
	}
	return nil
}

// Group returns the bindings of one bind group ordered by binding index.
func (l Layout) Group(group uint32) Layout {
	var out Layout
	for _, b := range l {
		if b.Group == group {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b Binding) int { return cmp.Compare(a.Binding, b.Binding) })
	return out
}

// Groups returns the distinct group indices in ascending order.
func (l Layout) Groups() []uint32 {
	var out []uint32
	for _, b := range l {
		if !slices.Contains(out, b.Group) {
			out = append(out, b.Group)
		}
	}
	slices.Sort(out)
	return out
}

// Merge combines the layouts of modules linked into one pipeline. A slot
// declared by both must have the same kind.
func Merge(layouts ...Layout) (Layout, error) {
	var out Layout
	for _, l := range layouts {
	next:
		for _, b := range l {
			for _, have := range out {
				if have.Group != b.Group || have.Binding != b.Binding {
					continue
				}
				if have.Kind != b.Kind {
					return nil, fmt.Errorf("%w: @group(%d) @binding(%d) is %s and %s",
						ErrDuplicateBinding, b.Group, b.Binding, have.Kind, b.Kind)
				}
				continue next
			}
			out = append(out, b)
		}
	}
	sortLayout(out)
	return out, nil
}

func sortLayout(l Layout) {
	slices.SortFunc(l, func(a, b Binding) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Binding, b.Binding))
	})
}

// Module is a compiled shader blob plus the bindings it declares.
type Module struct {
	Label string

	// Stage is the union of the stages with an entry point in Code.
	Stage gputypes.ShaderStage

	// EntryPoints names the entry points in declaration order.
	EntryPoints []string

	Code     []byte
	Bindings Layout
}

// Validate checks the module's binding layout.
func (m *Module) Validate() error {
	if err := m.Bindings.Validate(); err != nil {
		return fmt.Errorf("shader %q: %w", m.Label, err)
	}
	return nil
}
