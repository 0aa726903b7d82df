package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"admin-service/internal/config"
)

// Manager assigns leads and activity events to stable murmur3 buckets,
// which partition the Scylla lead tables and the ClickHouse activity table.
type Manager struct {
	leadBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		leadBuckets:  cfg.Bucketing.LeadBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hash states to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// GetLeadBucket returns the consistent bucket for a lead (0 to leadBuckets-1).
func (m *Manager) GetLeadBucket(leadID interface{}) int {
	var idStr string
	switch v := leadID.(type) {
	case string:
		idStr = v
	case uuid.UUID:
		idStr = v.String()
	default:
		idStr = ""
	}
	return m.getBucket(idStr, m.leadBuckets)
}

// GetEventBucket returns the bucket for activity events.
func (m *Manager) GetEventBucket(identifier string) int {
	return m.getBucket(identifier, m.eventBuckets)
}

// GetDateBucket returns the UTC date partition for events.
func (m *Manager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) getBucket(key string, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))

	return int(hasher.Sum64() % uint64(buckets))
}
