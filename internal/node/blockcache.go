package node

// blockHashCache is a bounded height->hash table. ServiceNode and
// PeerTester both need a short lookback window of recent block hashes;
// spec §4.G only requires "size >= 100" so this pins it at 1024 entries
// with FIFO eviction of the oldest height once full (Open Question
// decision, see DESIGN.md).
const blockHashCacheCap = 1024

type blockHashCache struct {
	hashes map[uint64][32]byte
	order  []uint64
}

func newBlockHashCache() *blockHashCache {
	return &blockHashCache{hashes: make(map[uint64][32]byte)}
}

func (c *blockHashCache) put(height uint64, hash [32]byte) {
	if _, exists := c.hashes[height]; exists {
		c.hashes[height] = hash
		return
	}
	if len(c.order) >= blockHashCacheCap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.hashes, oldest)
	}
	c.hashes[height] = hash
	c.order = append(c.order, height)
}

func (c *blockHashCache) get(height uint64) ([32]byte, bool) {
	h, ok := c.hashes[height]
	return h, ok
}
