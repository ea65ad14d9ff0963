package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-credentials"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

func (s *Store) FindRoleByName(_ context.Context, name string) (*credentials.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.roleByName(name); r != nil {
		return r.Clone(), nil
	}
	return nil, credentials.ErrRoleNotFound
}

func (s *Store) FindRoleByID(_ context.Context, id uuid.UUID) (*credentials.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, credentials.ErrRoleNotFound
	}
	return r.Clone(), nil
}

func (s *Store) CreateRole(_ context.Context, role *credentials.Role) (*credentials.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roleByName(role.Name) != nil {
		return nil, errDuplicate("role", role.Name)
	}

	c := role.Clone()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt == nil {
		now := s.now()
		c.CreatedAt = &now
	}

	s.roles[c.ID] = c
	return c.Clone(), nil
}

func (s *Store) AddToRole(_ context.Context, accountID uuid.UUID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return credentials.ErrAccountNotFound
	}

	r := s.roleByName(roleName)
	if r == nil {
		return credentials.ErrRoleNotFound
	}

	if s.memberships[accountID] == nil {
		s.memberships[accountID] = map[uuid.UUID]struct{}{}
	}
	s.memberships[accountID][r.ID] = struct{}{}
	return nil
}

func (s *Store) RemoveFromRoles(_ context.Context, accountID uuid.UUID, roleNames ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range roleNames {
		if r := s.roleByName(name); r != nil {
			delete(s.memberships[accountID], r.ID)
		}
	}
	return nil
}

func (s *Store) RolesFor(_ context.Context, accountID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := []string{}
	for id := range s.memberships[accountID] {
		if r, ok := s.roles[id]; ok {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) IsInRole(_ context.Context, accountID uuid.UUID, roleName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.roleByName(roleName)
	if r == nil {
		return false, nil
	}
	_, ok := s.memberships[accountID][r.ID]
	return ok, nil
}

// roleByName expects the caller to hold the lock.
func (s *Store) roleByName(name string) *credentials.Role {
	for _, r := range s.roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func errDuplicate(field, value string) error {
	return goerrors.New(fmt.Sprintf("%s %q already exists", field, strings.TrimSpace(value)), goerrors.CategoryConflict).
		WithTextCode("DUPLICATE").
		WithCode(goerrors.CodeConflict)
}
