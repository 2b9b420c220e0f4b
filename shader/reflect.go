package shader

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ReflectWGSL parses WGSL source and returns a module whose Code is the
// source text and whose Bindings are the resource variables it declares.
// No code is generated.
func ReflectWGSL(label, source string) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: lower: %w", label, err)
	}

	m := &Module{
		Label:    label,
		Code:     []byte(source),
		Bindings: bindings(module),
	}
	for _, ep := range module.EntryPoints {
		m.Stage |= stage(ep.Stage)
		m.EntryPoints = append(m.EntryPoints, ep.Name)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func bindings(module *ir.Module) Layout {
	var out Layout
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		kind, count := classify(module, gv)
		out = append(out, Binding{
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Kind:    kind,
			Name:    gv.Name,
			Count:   count,
		})
	}
	sortLayout(out)
	return out
}

func classify(module *ir.Module, gv ir.GlobalVariable) (BindingKind, uint32) {
	count := uint32(1)
	inner := typeInner(module, gv.Type)
	if arr, ok := inner.(ir.BindingArrayType); ok {
		count = 0
		if arr.Size != nil {
			count = *arr.Size
		}
		inner = typeInner(module, arr.Base)
	}

	switch gv.Space {
	case ir.SpaceUniform:
		return BindingUniform, count
	case ir.SpaceStorage:
		if gv.Access == ir.StorageRead {
			return BindingReadOnlyStorage, count
		}
		return BindingStorage, count
	}

	switch t := inner.(type) {
	case ir.SamplerType:
		if t.Comparison {
			return BindingComparisonSampler, count
		}
		return BindingSampler, count
	case ir.ImageType:
		switch t.Class {
		case ir.ImageClassDepth:
			return BindingDepthTexture, count
		case ir.ImageClassStorage:
			return BindingStorageTexture, count
		default:
			return BindingTexture, count
		}
	}
	return BindingUnknown, count
}

func typeInner(module *ir.Module, h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(module.Types) {
		return nil
	}
	return module.Types[h].Inner
}

func stage(s ir.ShaderStage) gputypes.ShaderStage {
	switch s {
	case ir.StageVertex:
		return gputypes.ShaderStageVertex
	case ir.StageFragment:
		return gputypes.ShaderStageFragment
	case ir.StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageNone
	}
}
