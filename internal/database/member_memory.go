package database

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/freemember/internal/domain"
)

// MemoryMemberStore keeps members in process memory. It backs development
// servers and tests; data is lost on restart.
type MemoryMemberStore struct {
	mu      sync.RWMutex
	members map[string]*domain.Member
	nextID  int
	fields  []domain.CustomField
	now     func() time.Time
}

var _ domain.MemberRepository = (*MemoryMemberStore)(nil)

// NewMemoryMemberStore creates an empty store with the given custom fields.
func NewMemoryMemberStore(fields []domain.CustomField) *MemoryMemberStore {
	return &MemoryMemberStore{
		members: make(map[string]*domain.Member),
		fields:  fields,
		now:     time.Now,
	}
}

func (s *MemoryMemberStore) FindByID(ctx context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.members[id]; ok {
		return clone(m), nil
	}
	return nil, nil
}

func (s *MemoryMemberStore) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return s.findOne(func(m *domain.Member) bool { return strings.EqualFold(m.Email, email) }), nil
}

func (s *MemoryMemberStore) FindByUsername(ctx context.Context, username string) (*domain.Member, error) {
	return s.findOne(func(m *domain.Member) bool { return strings.EqualFold(m.Username, username) }), nil
}

// FindByResetCode returns the member holding code only while it is unexpired.
func (s *MemoryMemberStore) FindByResetCode(ctx context.Context, code string) (*domain.Member, error) {
	if code == "" {
		return nil, nil
	}
	now := s.now()
	return s.findOne(func(m *domain.Member) bool { return m.ResetCodeValid(code, now) }), nil
}

func (s *MemoryMemberStore) FindMembers(ctx context.Context, q domain.MemberQuery) ([]*domain.Member, error) {
	s.mu.RLock()
	var out []*domain.Member
	for _, m := range s.members {
		if matches(m, q) {
			out = append(out, clone(m))
		}
	}
	s.mu.RUnlock()

	sortMembers(out, q)
	return page(out, q), nil
}

// Create assigns an ID and unique ID and stores a copy of m.
func (s *MemoryMemberStore) Create(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.members {
		if strings.EqualFold(existing.Email, m.Email) || strings.EqualFold(existing.Username, m.Username) {
			return nil, domain.ErrMemberExists
		}
	}

	s.nextID++
	created := clone(m)
	created.ID = strconv.Itoa(s.nextID)
	created.UniqueID = uuid.NewString()
	if created.JoinDate.IsZero() {
		created.JoinDate = s.now().UTC()
	}
	s.members[created.ID] = created
	return clone(created), nil
}

// Update replaces the stored member with the same ID.
func (s *MemoryMemberStore) Update(ctx context.Context, m *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[m.ID]; !ok {
		return domain.ErrMemberNotFound
	}
	for id, existing := range s.members {
		if id == m.ID {
			continue
		}
		if strings.EqualFold(existing.Email, m.Email) || strings.EqualFold(existing.Username, m.Username) {
			return domain.ErrMemberExists
		}
	}
	s.members[m.ID] = clone(m)
	return nil
}

func (s *MemoryMemberStore) MemberFields() []string {
	return append([]string(nil), domain.StandardFields...)
}

func (s *MemoryMemberStore) CustomFields() []domain.CustomField {
	return append([]domain.CustomField(nil), s.fields...)
}

func (s *MemoryMemberStore) findOne(pred func(*domain.Member) bool) *domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if pred(m) {
			return clone(m)
		}
	}
	return nil
}

func clone(m *domain.Member) *domain.Member {
	c := *m
	if m.Custom != nil {
		c.Custom = make(map[string]string, len(m.Custom))
		for k, v := range m.Custom {
			c.Custom[k] = v
		}
	}
	if m.ResetCodeExpires != nil {
		t := *m.ResetCodeExpires
		c.ResetCodeExpires = &t
	}
	if m.LastLogin != nil {
		t := *m.LastLogin
		c.LastLogin = &t
	}
	return &c
}
