package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailpilot/contracts/db"
)

// MemoryStore is an in-process Store used by local mode and tests. Entities
// are copied on the way in and out so callers never share state with it.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[string]db.User
	emails map[string]db.EmailMeta
	drafts map[string]db.Draft
	rag    map[string]db.RAGEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		users:  make(map[string]db.User),
		emails: make(map[string]db.EmailMeta),
		drafts: make(map[string]db.Draft),
		rag:    make(map[string]db.RAGEntry),
	}
}

func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpsertUserByEmail(_ context.Context, in *db.User) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	tone := in.DefaultTone
	if tone == "" {
		tone = db.ToneFriendly
	}
	for id, u := range m.users {
		if u.Email == in.Email {
			u.Name, u.Provider, u.EncryptedTokens, u.DefaultTone = in.Name, in.Provider, in.EncryptedTokens, tone
			u.UpdatedAt = now
			m.users[id] = u
			return &u, nil
		}
	}
	u := *in
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.DefaultTone = tone
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return &u, nil
}

func (m *MemoryStore) FindEmailByID(_ context.Context, id string) (*db.EmailMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEmail(e), nil
}

func (m *MemoryStore) FindEmailWithUser(_ context.Context, id string) (*db.EmailMeta, *db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	u, ok := m.users[e.UserID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return copyEmail(e), &u, nil
}

func (m *MemoryStore) CreateEmail(_ context.Context, e *db.EmailMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.emails {
		if existing.UserID == e.UserID && existing.MessageID == e.MessageID {
			*e = *copyEmail(existing)
			return false, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Labels == nil {
		e.Labels = []string{}
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = m.now()
	}
	m.emails[e.ID] = *copyEmail(*e)
	return true, nil
}

func (m *MemoryStore) UpdateClassification(_ context.Context, emailID, label string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[emailID]
	if !ok {
		return ErrNotFound
	}
	e.ClassificationLabel = &label
	e.ClassificationTags = append([]string{}, tags...)
	m.emails[emailID] = e
	return nil
}

func (m *MemoryStore) FindDraftByID(_ context.Context, id string) (*db.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) FindDraftWithEmail(_ context.Context, id string) (*db.Draft, *db.EmailMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	e, ok := m.emails[d.EmailID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return &d, copyEmail(e), nil
}

func (m *MemoryStore) ListDraftsByEmail(_ context.Context, emailID string) ([]*db.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.Draft
	for _, d := range m.drafts {
		if d.EmailID == emailID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateDraft(_ context.Context, d *db.Draft) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.drafts {
		if existing.EmailID == d.EmailID && existing.Tone == d.Tone {
			return false, nil
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = db.DraftStatusReady
	}
	now := m.now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.drafts[d.ID] = *d
	return true, nil
}

func (m *MemoryStore) UpdateOptimized(_ context.Context, draftID, text string, confidence *float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok || d.Status == db.DraftStatusSent {
		return false, nil
	}
	d.OptimizedText = &text
	if confidence != nil {
		c := *confidence
		d.OptimizeConfidence = &c
	} else {
		d.OptimizeConfidence = nil
	}
	d.Status = db.DraftStatusReady
	d.UpdatedAt = m.now()
	m.drafts[draftID] = d
	return true, nil
}

func (m *MemoryStore) MarkDraftSent(_ context.Context, draftID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok || d.Status == db.DraftStatusSent {
		return false, nil
	}
	d.Status = db.DraftStatusSent
	d.UpdatedAt = m.now()
	m.drafts[draftID] = d

	if e, ok := m.emails[d.EmailID]; ok && e.RepliedAt == nil {
		t := at
		e.RepliedAt = &t
		m.emails[d.EmailID] = e
	}
	return true, nil
}

func (m *MemoryStore) FindRAGBySource(_ context.Context, userID, sourceMessageID string) (*db.RAGEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rag {
		if e.UserID == userID && e.SourceMessageID == sourceMessageID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateRAGEntry(_ context.Context, e *db.RAGEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rag {
		if existing.UserID == e.UserID && existing.SourceMessageID == e.SourceMessageID {
			return false, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = m.now()
	m.rag[e.ID] = *e
	return true, nil
}

func (m *MemoryStore) RecentRAGEntries(_ context.Context, userID string, limit int) ([]*db.RAGEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.RAGEntry
	for _, e := range m.rag {
		if e.UserID == userID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RAGEntries returns every stored entry; used for inspection.
func (m *MemoryStore) RAGEntries() []db.RAGEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.RAGEntry, 0, len(m.rag))
	for _, e := range m.rag {
		out = append(out, e)
	}
	return out
}

func copyEmail(e db.EmailMeta) *db.EmailMeta {
	c := e
	c.Labels = append([]string(nil), e.Labels...)
	if e.ClassificationTags != nil {
		c.ClassificationTags = append([]string{}, e.ClassificationTags...)
	}
	if e.ClassificationLabel != nil {
		l := *e.ClassificationLabel
		c.ClassificationLabel = &l
	}
	if e.RepliedAt != nil {
		t := *e.RepliedAt
		c.RepliedAt = &t
	}
	return &c
}
