package bloom

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// Filter 并发安全的布隆过滤器。
// MayContain 返回 false 时元素一定不存在；返回 true 时需要回源确认
type Filter struct {
	mu   sync.RWMutex
	bits *bitset.BitSet
	m    uint
	k    uint
	n    uint
}

// New 按预期元素数量和误判率计算位数组大小与哈希次数
func New(expected uint, fpRate float64) *Filter {
	if expected == 0 {
		expected = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	m := uint(math.Ceil(-float64(expected) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	k := uint(math.Round(float64(m) / float64(expected) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &Filter{bits: bitset.New(m), m: m, k: k}
}

// 双重哈希: h1 + i*h2
func (f *Filter) locations(key string) []uint {
	h1, h2 := murmur3.StringSum128(key)
	locs := make([]uint, f.k)
	for i := uint(0); i < f.k; i++ {
		locs[i] = uint((h1 + uint64(i)*h2) % uint64(f.m))
	}
	return locs
}

func (f *Filter) Add(key string) {
	locs := f.locations(key)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range locs {
		f.bits.Set(l)
	}
	f.n++
}

func (f *Filter) MayContain(key string) bool {
	locs := f.locations(key)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range locs {
		if !f.bits.Test(l) {
			return false
		}
	}
	return true
}

// Len 已添加的元素个数（重复添加会重复计数）
func (f *Filter) Len() uint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.n
}

// Cap 位数组大小和哈希函数个数
func (f *Filter) Cap() (m, k uint) {
	return f.m, f.k
}
