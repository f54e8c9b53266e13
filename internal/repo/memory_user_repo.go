package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/phoneauth/internal/model"
)

// MemoryUserRepo is an in-process UserRepo. A single mutex serializes writes,
// so uniqueness checks and inserts cannot interleave.
type MemoryUserRepo struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]model.User
	byPhone     map[string]uuid.UUID
	byEmail     map[string]uuid.UUID
	byFederated map[string]uuid.UUID
	nowF        func() time.Time
}

// NewMemoryUserRepo returns an empty in-memory registry.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:       make(map[uuid.UUID]model.User),
		byPhone:     make(map[string]uuid.UUID),
		byEmail:     make(map[string]uuid.UUID),
		byFederated: make(map[string]uuid.UUID),
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Count returns the number of stored users.
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryUserRepo) FindByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.findIn(r.byPhone, phone)
}

func (r *MemoryUserRepo) FindByFederatedID(ctx context.Context, federatedID string) (model.User, error) {
	return r.findIn(r.byFederated, federatedID)
}

func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findIn(r.byEmail, email)
}

func (r *MemoryUserRepo) findIn(index map[string]uuid.UUID, key string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return clone(r.users[id]), nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, nu model.NewUser) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(uuid.Nil, nu.PhoneNumber, nu.Email, nu.FederatedID); err != nil {
		return model.User{}, err
	}

	now := r.nowF()
	u := model.User{
		ID:          uuid.New(),
		PhoneNumber: copyPtr(nu.PhoneNumber),
		Email:       copyPtr(nu.Email),
		FederatedID: copyPtr(nu.FederatedID),
		FirstName:   nu.FirstName,
		LastName:    nu.LastName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.users[u.ID] = u
	r.index(u)
	return clone(u), nil
}

func (r *MemoryUserRepo) Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	if err := r.checkUnique(id, upd.PhoneNumber, upd.Email, nil); err != nil {
		return model.User{}, err
	}

	r.unindex(u)
	if upd.PhoneNumber != nil {
		u.PhoneNumber = copyPtr(upd.PhoneNumber)
	}
	if upd.Email != nil {
		u.Email = copyPtr(upd.Email)
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.IsVerified != nil && *upd.IsVerified {
		u.IsVerified = true
	}
	u.UpdatedAt = r.nowF()
	r.users[id] = u
	r.index(u)
	return clone(u), nil
}

func (r *MemoryUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	r.unindex(u)
	delete(r.users, id)
	return nil
}

// checkUnique must be called with the write lock held. self is excluded so a
// user may "update" a field to its current value.
func (r *MemoryUserRepo) checkUnique(self uuid.UUID, phone, email, federatedID *string) error {
	taken := func(index map[string]uuid.UUID, v *string) bool {
		if v == nil {
			return false
		}
		owner, ok := index[*v]
		return ok && owner != self
	}
	switch {
	case taken(r.byPhone, phone):
		return &DuplicateKeyError{Field: "phone_number"}
	case taken(r.byEmail, email):
		return &DuplicateKeyError{Field: "email"}
	case taken(r.byFederated, federatedID):
		return &DuplicateKeyError{Field: "federated_id"}
	}
	return nil
}

func (r *MemoryUserRepo) index(u model.User) {
	if u.PhoneNumber != nil {
		r.byPhone[*u.PhoneNumber] = u.ID
	}
	if u.Email != nil {
		r.byEmail[*u.Email] = u.ID
	}
	if u.FederatedID != nil {
		r.byFederated[*u.FederatedID] = u.ID
	}
}

func (r *MemoryUserRepo) unindex(u model.User) {
	if u.PhoneNumber != nil {
		delete(r.byPhone, *u.PhoneNumber)
	}
	if u.Email != nil {
		delete(r.byEmail, *u.Email)
	}
	if u.FederatedID != nil {
		delete(r.byFederated, *u.FederatedID)
	}
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clone(u model.User) model.User {
	u.PhoneNumber = copyPtr(u.PhoneNumber)
	u.Email = copyPtr(u.Email)
	u.FederatedID = copyPtr(u.FederatedID)
	return u
}
