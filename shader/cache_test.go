package shader_test

import (
	"fmt"
	"testing"

	"github.com/gogpu/framecore/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeShader(binding int) string {
	return fmt.Sprintf(`
@group(0) @binding(%d) var<storage, read_write> data: array<f32>;
@compute @workgroup_size(1)
fn main() {}
`, binding)
}

func TestCacheReflect(t *testing.T) {
	c := shader.NewCache(0)

	a, err := c.Reflect("first", sceneWGSL)
	require.NoError(t, err)
	b, err := c.Reflect("second", sceneWGSL)
	require.NoError(t, err)

	assert.Equal(t, "first", a.Label)
	assert.Equal(t, "second", b.Label)
	assert.Equal(t, a.Bindings, b.Bindings)
	assert.Equal(t, shader.CacheStats{Len: 1, Hits: 1, Misses: 1}, c.Stats())
}

func TestCacheSkipsErrors(t *testing.T) {
	c := shader.NewCache(4)
	for range 2 {
		_, err := c.Reflect("bad", "fn (")
		require.Error(t, err)
	}
	st := c.Stats()
	assert.Zero(t, st.Len)
	assert.Equal(t, uint64(2), st.Misses)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := shader.NewCache(4)
	for i := range 4 {
		_, err := c.Reflect("s", computeShader(i))
		require.NoError(t, err)
	}
	// Keep binding 0 hot.
	_, err := c.Reflect("s", computeShader(0))
	require.NoError(t, err)

	_, err = c.Reflect("s", computeShader(4))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(2), c.Stats().Evictions)

	hits := c.Stats().Hits
	_, err = c.Reflect("s", computeShader(0))
	require.NoError(t, err)
	assert.Equal(t, hits+1, c.Stats().Hits, "recently used entry was evicted")

	c.Clear()
	assert.Zero(t, c.Len())
}
