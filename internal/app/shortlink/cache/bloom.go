package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录“可能已被占用”的短码。
// 只增不删：短码一旦分配就不会释放。
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter falsePositiveRate 建议 0.01。
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(keyword string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(keyword)
}

// MightExist 返回 false 表示一定没被占用；true 可能误判。
func (b *BloomFilter) MightExist(keyword string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(keyword)
}

// Count 估算已加入的短码数量
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
