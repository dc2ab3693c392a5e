package market

import (
	"hash/fnv"
	"sync"

	"github.com/hxuan190/zap-engine/internal/domain"
)

const numShards = 16

// ShardedAssetIndex maps LP assets to the pair issuing them, sharded to
// reduce lock contention on lookups.
type ShardedAssetIndex struct {
	shards [numShards]assetShard
}

type assetShard struct {
	mu    sync.RWMutex
	pairs map[domain.Asset]string
}

// NewShardedAssetIndex creates an empty index
func NewShardedAssetIndex() *ShardedAssetIndex {
	m := &ShardedAssetIndex{}
	for i := 0; i < numShards; i++ {
		m.shards[i].pairs = make(map[domain.Asset]string)
	}
	return m
}

func (m *ShardedAssetIndex) getShard(key domain.Asset) *assetShard {
	h := fnv.New32a()
	h.Write(key.Ledger[:])
	h.Write([]byte(key.Code))
	return &m.shards[h.Sum32()%numShards]
}

// Get returns the pair issuing asset
func (m *ShardedAssetIndex) Get(key domain.Asset) (string, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	pairID, ok := shard.pairs[key]
	shard.mu.RUnlock()
	return pairID, ok
}

// Set stores the pair issuing asset
func (m *ShardedAssetIndex) Set(key domain.Asset, pairID string) {
	shard := m.getShard(key)
	shard.mu.Lock()
	shard.pairs[key] = pairID
	shard.mu.Unlock()
}

// Delete removes an asset
func (m *ShardedAssetIndex) Delete(key domain.Asset) {
	shard := m.getShard(key)
	shard.mu.Lock()
	delete(shard.pairs, key)
	shard.mu.Unlock()
}

// Len returns total count across all shards
func (m *ShardedAssetIndex) Len() int {
	total := 0
	for i := 0; i < numShards; i++ {
		m.shards[i].mu.RLock()
		total += len(m.shards[i].pairs)
		m.shards[i].mu.RUnlock()
	}
	return total
}

// Range iterates over all entries (acquires locks per shard)
func (m *ShardedAssetIndex) Range(f func(key domain.Asset, pairID string) bool) {
	for i := 0; i < numShards; i++ {
		m.shards[i].mu.RLock()
		for k, v := range m.shards[i].pairs {
			if !f(k, v) {
				m.shards[i].mu.RUnlock()
				return
			}
		}
		m.shards[i].mu.RUnlock()
	}
}
