package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultFlowTokenTTL = 15 * time.Minute

// GenerateFlowToken mints an opaque, unguessable correlation token for one
// onboarding attempt.
func GenerateFlowToken() string {
	return uuid.NewString()
}

// MemoryFlowTokenStore keeps flow tokens in process memory. Suitable for
// single-instance deployments and tests; the SQL store backs everything else.
type MemoryFlowTokenStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]FlowToken
}

func NewMemoryFlowTokenStore(ttl time.Duration) *MemoryFlowTokenStore {
	if ttl <= 0 {
		ttl = defaultFlowTokenTTL
	}
	return &MemoryFlowTokenStore{
		ttl:     ttl,
		entries: map[string]FlowToken{},
	}
}

func (s *MemoryFlowTokenStore) Save(_ context.Context, token FlowToken) error {
	if s == nil {
		return fmt.Errorf("core: flow token store is not configured")
	}
	key := strings.TrimSpace(token.Token)
	if key == "" {
		return fmt.Errorf("core: flow token is required")
	}

	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	if token.ExpiresAt.IsZero() {
		token.ExpiresAt = token.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = token
	s.mu.Unlock()

	return nil
}

func (s *MemoryFlowTokenStore) Get(_ context.Context, token string) (FlowToken, error) {
	if s == nil {
		return FlowToken{}, fmt.Errorf("core: flow token store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return FlowToken{}, fmt.Errorf("core: flow token is required")
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return FlowToken{}, fmt.Errorf("core: flow token not found")
	}
	if !entry.ExpiresAt.IsZero() && time.Now().UTC().After(entry.ExpiresAt) {
		return FlowToken{}, fmt.Errorf("core: flow token expired")
	}
	return entry, nil
}

func (s *MemoryFlowTokenStore) Resolve(_ context.Context, token string, tenantKey string) error {
	if s == nil {
		return fmt.Errorf("core: flow token store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return fmt.Errorf("core: flow token is required")
	}
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" {
		return fmt.Errorf("core: tenant key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("core: flow token not found")
	}
	entry.ResolvedTenantKey = tenantKey
	s.entries[key] = entry
	return nil
}

func (s *MemoryFlowTokenStore) Delete(_ context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("core: flow token store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return fmt.Errorf("core: flow token is required")
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	return nil
}

var _ FlowTokenStore = (*MemoryFlowTokenStore)(nil)
