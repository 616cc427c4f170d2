package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// Repository implements bookgate.Repository using in-memory storage
type Repository struct {
	mu           sync.RWMutex
	resources    map[uuid.UUID]*bookgate.Resource
	codes        map[uuid.UUID]*bookgate.ActivationCode
	codesByValue map[string]uuid.UUID
	grants       map[uuid.UUID]*bookgate.ActivationGrant
	grantsByPair map[string]uuid.UUID // "code:user" -> grant_id
}

// New creates a new in-memory repository
func New() bookgate.Repository {
	return &Repository{
		resources:    make(map[uuid.UUID]*bookgate.Resource),
		codes:        make(map[uuid.UUID]*bookgate.ActivationCode),
		codesByValue: make(map[string]uuid.UUID),
		grants:       make(map[uuid.UUID]*bookgate.ActivationGrant),
		grantsByPair: make(map[string]uuid.UUID),
	}
}

func pairKey(codeID, userID uuid.UUID) string {
	return codeID.String() + ":" + userID.String()
}

// copyResource makes a deep copy so callers can mutate freely.
func copyResource(r *bookgate.Resource) *bookgate.Resource {
	out := *r
	out.PageAudio = append([]bookgate.PageMedia(nil), r.PageAudio...)
	out.PageVideo = append([]bookgate.PageMedia(nil), r.PageVideo...)
	out.Answers = make([]bookgate.MaterialGroup, len(r.Answers))
	for i, g := range r.Answers {
		out.Answers[i] = bookgate.MaterialGroup{Title: g.Title, URLs: append([]string(nil), g.URLs...)}
	}
	out.Materials = make([]bookgate.MaterialGroup, len(r.Materials))
	for i, g := range r.Materials {
		out.Materials[i] = bookgate.MaterialGroup{Title: g.Title, URLs: append([]string(nil), g.URLs...)}
	}
	if r.Classroom != nil {
		classroom := *r.Classroom
		classroom.Media = append([]bookgate.PageMedia(nil), r.Classroom.Media...)
		out.Classroom = &classroom
	}
	out.Glossary = append([]bookgate.GlossaryEntry(nil), r.Glossary...)
	return &out
}

// Resource operations

func (r *Repository) CreateResource(ctx context.Context, resource *bookgate.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources[resource.ID] = copyResource(resource)
	return nil
}

func (r *Repository) GetResource(ctx context.Context, id uuid.UUID) (*bookgate.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resource, exists := r.resources[id]
	if !exists {
		return nil, bookgate.ErrResourceNotFound
	}
	return copyResource(resource), nil
}

func (r *Repository) UpdateResource(ctx context.Context, resource *bookgate.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[resource.ID]; !exists {
		return bookgate.ErrResourceNotFound
	}
	r.resources[resource.ID] = copyResource(resource)
	return nil
}

func (r *Repository) DeleteResource(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[id]; !exists {
		return bookgate.ErrResourceNotFound
	}
	delete(r.resources, id)
	return nil
}

func (r *Repository) ListResources(ctx context.Context) ([]*bookgate.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]*bookgate.Resource, 0, len(r.resources))
	for _, resource := range r.resources {
		resources = append(resources, copyResource(resource))
	}
	// Newest first
	sort.Slice(resources, func(i, j int) bool {
		return resources[i].CreatedAt.After(resources[j].CreatedAt)
	})
	return resources, nil
}

// Activation code operations

func (r *Repository) CreateCode(ctx context.Context, code *bookgate.ActivationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.codesByValue[code.CodeValue]; taken {
		return fmt.Errorf("%w: %s", bookgate.ErrCodeExists, code.CodeValue)
	}

	codeCopy := *code
	r.codes[code.ID] = &codeCopy
	r.codesByValue[code.CodeValue] = code.ID
	return nil
}

func (r *Repository) GetCode(ctx context.Context, id uuid.UUID) (*bookgate.ActivationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, exists := r.codes[id]
	if !exists {
		return nil, bookgate.ErrCodeNotFound
	}
	codeCopy := *code
	return &codeCopy, nil
}

func (r *Repository) GetCodeByValue(ctx context.Context, codeValue string) (*bookgate.ActivationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.codesByValue[codeValue]
	if !exists {
		return nil, fmt.Errorf("%w: %s", bookgate.ErrCodeNotFound, codeValue)
	}
	codeCopy := *r.codes[id]
	return &codeCopy, nil
}

func (r *Repository) UpdateCode(ctx context.Context, code *bookgate.ActivationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.codes[code.ID]
	if !exists {
		return bookgate.ErrCodeNotFound
	}
	if current.CodeValue != code.CodeValue {
		if _, taken := r.codesByValue[code.CodeValue]; taken {
			return fmt.Errorf("%w: %s", bookgate.ErrCodeExists, code.CodeValue)
		}
		delete(r.codesByValue, current.CodeValue)
		r.codesByValue[code.CodeValue] = code.ID
	}

	codeCopy := *code
	r.codes[code.ID] = &codeCopy
	return nil
}

func (r *Repository) DeleteCode(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, exists := r.codes[id]
	if !exists {
		return bookgate.ErrCodeNotFound
	}
	r.removeCodeLocked(code)
	return nil
}

func (r *Repository) DeleteCodesByResource(ctx context.Context, resourceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range r.codes {
		if code.ResourceID == resourceID {
			r.removeCodeLocked(code)
		}
	}
	return nil
}

// removeCodeLocked deletes a code and every grant hanging off it.
// Callers must hold the write lock.
func (r *Repository) removeCodeLocked(code *bookgate.ActivationCode) {
	for id, grant := range r.grants {
		if grant.CodeID == code.ID {
			delete(r.grants, id)
			delete(r.grantsByPair, pairKey(grant.CodeID, grant.UserID))
		}
	}
	delete(r.codes, code.ID)
	delete(r.codesByValue, code.CodeValue)
}

func (r *Repository) ListCodes(ctx context.Context) ([]*bookgate.ActivationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]*bookgate.ActivationCode, 0, len(r.codes))
	for _, code := range r.codes {
		codeCopy := *code
		codes = append(codes, &codeCopy)
	}
	// Newest first
	sort.Slice(codes, func(i, j int) bool {
		return codes[i].CreatedAt.After(codes[j].CreatedAt)
	})
	return codes, nil
}

// Grant operations

func (r *Repository) CreateGrant(ctx context.Context, grant *bookgate.ActivationGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(grant.CodeID, grant.UserID)
	if _, taken := r.grantsByPair[key]; taken {
		return bookgate.ErrAlreadyRedeemed
	}

	grantCopy := *grant
	r.grants[grant.ID] = &grantCopy
	r.grantsByPair[key] = grant.ID
	return nil
}

func (r *Repository) GetGrant(ctx context.Context, id uuid.UUID) (*bookgate.ActivationGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, exists := r.grants[id]
	if !exists {
		return nil, bookgate.ErrGrantNotFound
	}
	grantCopy := *grant
	return &grantCopy, nil
}

func (r *Repository) GetGrantByCodeAndUser(ctx context.Context, codeID, userID uuid.UUID) (*bookgate.ActivationGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.grantsByPair[pairKey(codeID, userID)]
	if !exists {
		return nil, bookgate.ErrGrantNotFound
	}
	grantCopy := *r.grants[id]
	return &grantCopy, nil
}

func (r *Repository) CountGrants(ctx context.Context, codeID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, grant := range r.grants {
		if grant.CodeID == codeID {
			count++
		}
	}
	return count, nil
}

func (r *Repository) ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]*bookgate.ActivationGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var grants []*bookgate.ActivationGrant
	for _, grant := range r.grants {
		if grant.UserID == userID {
			grantCopy := *grant
			grants = append(grants, &grantCopy)
		}
	}
	// Oldest first
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].ActivatedAt.Before(grants[j].ActivatedAt)
	})
	return grants, nil
}

func (r *Repository) ListGrants(ctx context.Context) ([]*bookgate.ActivationGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grants := make([]*bookgate.ActivationGrant, 0, len(r.grants))
	for _, grant := range r.grants {
		grantCopy := *grant
		grants = append(grants, &grantCopy)
	}
	// Newest first
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].ActivatedAt.After(grants[j].ActivatedAt)
	})
	return grants, nil
}

func (r *Repository) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	grant, exists := r.grants[id]
	if !exists {
		return bookgate.ErrGrantNotFound
	}
	delete(r.grants, id)
	delete(r.grantsByPair, pairKey(grant.CodeID, grant.UserID))
	return nil
}

func (r *Repository) DeleteGrantsByUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, grant := range r.grants {
		if grant.UserID == userID {
			delete(r.grants, id)
			delete(r.grantsByPair, pairKey(grant.CodeID, grant.UserID))
		}
	}
	return nil
}
