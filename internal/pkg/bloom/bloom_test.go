package bloom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNew_Sizing(t *testing.T) {
	f := New(1000, 0.01)
	m, k := f.Cap()
	// 1000 个元素 1% 误判率约需 9586 位、7 个哈希
	assert.InDelta(t, 9586, float64(m), 5)
	assert.Equal(t, uint(7), k)

	f = New(0, 2)
	m, k = f.Cap()
	assert.Positive(t, m)
	assert.Positive(t, k)
}

func TestFilter_AddAndMayContain(t *testing.T) {
	f := New(100, 0.01)
	assert.False(t, f.MayContain("alice"))

	f.Add("alice")
	assert.True(t, f.MayContain("alice"))
	assert.Equal(t, uint(1), f.Len())
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	f := New(1000, 0.01)
	for i := range 1000 {
		f.Add(fmt.Sprintf("user-%d", i))
	}

	falsePositives := 0
	for i := range 10000 {
		if f.MayContain(fmt.Sprintf("other-%d", i)) {
			falsePositives++
		}
	}
	assert.Less(t, float64(falsePositives)/10000, 0.03)
}

func TestFilter_Concurrent(t *testing.T) {
	f := New(1000, 0.01)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := range 100 {
				key := fmt.Sprintf("g%d-%d", g, i)
				f.Add(key)
				if !f.MayContain(key) {
					t.Errorf("lost key %s", key)
				}
			}
		})
	}
	wg.Wait()
	assert.Equal(t, uint(800), f.Len())
}

// 添加过的元素永远不会被判定为不存在
func TestProperty_NoFalseNegatives(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every added key may be contained",
		prop.ForAll(
			func(keys []string) bool {
				f := New(uint(len(keys)), 0.01)
				for _, k := range keys {
					f.Add(k)
				}
				for _, k := range keys {
					if !f.MayContain(k) {
						return false
					}
				}
				return true
			},
			gen.SliceOf(gen.AnyString()),
		))

	properties.TestingRun(t)
}
