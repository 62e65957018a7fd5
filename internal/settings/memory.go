package settings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haven-org/haven/internal/models"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[string]models.Setting
	nextID uint
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]models.Setting),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*models.Setting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSetting(s), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, key string, value []byte, meta Meta) (*models.Setting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkValue(key, value); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.byKey[key]
	if !ok {
		m.nextID++
		s = models.Setting{ID: m.nextID, Key: key, CreatedAt: now}
	}
	s.Value = string(value)
	s.Description = cloneString(meta.Description)
	s.Category = meta.category()
	s.UpdatedAt = now
	m.byKey[key] = s
	return cloneSetting(s), nil
}

func (m *MemoryStore) List(ctx context.Context, category string) ([]models.Setting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Setting, 0, len(m.byKey))
	for _, s := range m.byKey {
		if category != "" && s.Category != category {
			continue
		}
		out = append(out, *cloneSetting(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored settings.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

func cloneSetting(s models.Setting) *models.Setting {
	s.Description = cloneString(s.Description)
	return &s
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
