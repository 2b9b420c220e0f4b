// Package shader carries compiled shader blobs together with the binding
// layout they declare.
//
// The frame core treats shader code as opaque bytes. What it does need is the
// set of (group, binding) slots a module reads so resources can be matched to
// them before a pipeline is built. ReflectWGSL derives that layout from WGSL
// source using naga's parser and IR lowering:
//
//	mod, err := shader.ReflectWGSL("blit", src)
//	if err != nil {
//		return err
//	}
//	for _, b := range mod.Bindings {
//		fmt.Println(b)
//	}
package shader
