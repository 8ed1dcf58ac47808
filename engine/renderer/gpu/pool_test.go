package gpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolItem struct {
	value int
}

func TestPoolObtainUntilExhausted(t *testing.T) {
	p := NewResourcePool[poolItem](4)
	seen := map[uint32]bool{}
	for i := 0; i < 4; i++ {
		h := p.Obtain()
		require.True(t, h.IsValid())
		assert.False(t, seen[h.Index], "index %d handed out twice", h.Index)
		seen[h.Index] = true
	}
	assert.False(t, p.Obtain().IsValid())
	assert.Equal(t, uint32(4), p.Used())
	assert.Equal(t, uint32(0), p.Available())
}

func TestPoolRandomSequencesNeverAlias(t *testing.T) {
	const capacity = 16
	p := NewResourcePool[poolItem](capacity)
	rng := rand.New(rand.NewSource(42))
	var live []ResourceHandle
	occupied := map[uint32]bool{}

	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			i := rng.Intn(len(live))
			h := live[i]
			require.True(t, p.Release(h))
			delete(occupied, h.Index)
			live = append(live[:i], live[i+1:]...)
			continue
		}
		h := p.Obtain()
		if len(live) == capacity {
			require.False(t, h.IsValid(), "obtain must fail exactly when full")
			continue
		}
		require.True(t, h.IsValid(), "obtain must succeed while not full")
		require.False(t, occupied[h.Index], "index %d is already live", h.Index)
		occupied[h.Index] = true
		live = append(live, h)
		p.Access(h).value = step
	}
	assert.Equal(t, uint32(len(live)), p.Used())
}

func TestPoolStaleHandleDoesNotResolve(t *testing.T) {
	p := NewResourcePool[poolItem](1)
	first := p.Obtain()
	p.Access(first).value = 1
	require.True(t, p.Release(first))

	second := p.Obtain()
	require.Equal(t, first.Index, second.Index)
	assert.NotEqual(t, first.Generation, second.Generation)
	assert.Nil(t, p.Access(first))
	require.NotNil(t, p.Access(second))
	assert.Equal(t, 0, p.Access(second).value, "released slot must be zeroed")

	assert.False(t, p.Release(first), "double release must be rejected")
	assert.Equal(t, uint32(1), p.Used())
}

func TestPoolInvalidAccess(t *testing.T) {
	p := NewResourcePool[poolItem](2)
	assert.Nil(t, p.Access(InvalidResource))
	assert.Nil(t, p.Access(ResourceHandle{Index: 1}))
	assert.False(t, p.Release(InvalidResource))
}

func TestPoolZeroHandleNeverResolves(t *testing.T) {
	p := NewResourcePool[poolItem](2)
	first := p.Obtain()
	require.Equal(t, uint32(0), first.Index)
	assert.NotZero(t, first.Generation)
	require.NotNil(t, p.Access(first))

	assert.Nil(t, p.Access(ResourceHandle{}))
	assert.False(t, p.Release(ResourceHandle{}))
	assert.Equal(t, uint32(1), p.Used())
}

func TestPoolGenerationSkipsZeroOnWrap(t *testing.T) {
	p := NewResourcePool[poolItem](1)
	p.generations[0] = math.MaxUint32
	h := p.Obtain()
	require.True(t, p.Release(h))

	again := p.Obtain()
	assert.Equal(t, uint32(1), again.Generation)
	assert.Nil(t, p.Access(ResourceHandle{}))
}

func TestPoolReleaseAll(t *testing.T) {
	p := NewResourcePool[poolItem](3)
	a := p.Obtain()
	p.Obtain()
	p.Obtain()
	p.ReleaseAll()

	assert.Equal(t, uint32(3), p.Available())
	assert.Nil(t, p.Access(a))
	for i := 0; i < 3; i++ {
		assert.True(t, p.Obtain().IsValid())
	}
}

func TestPoolEach(t *testing.T) {
	p := NewResourcePool[poolItem](4)
	a := p.Obtain()
	b := p.Obtain()
	c := p.Obtain()
	p.Release(b)
	var visited []uint32
	p.Each(func(h ResourceHandle, item *poolItem) {
		visited = append(visited, h.Index)
	})
	assert.Equal(t, []uint32{a.Index, c.Index}, visited)
}
