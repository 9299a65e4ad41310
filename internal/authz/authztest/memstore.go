// Package authztest provides an in-memory authz.Store for tests.
package authztest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go-sysadmin/internal/authz"
)

// MemStore keeps every table in maps. FailNext makes the next write fail,
// which lets tests assert that nothing is applied or invalidated when the
// persistence step errors.
type MemStore struct {
	mu     sync.Mutex
	nextID int64

	Menus     map[int64]authz.Menu
	Depts     map[int64]authz.Dept
	Ancestors map[int64]string
	Roles     map[int64]authz.Role
	UserRoles map[int64][]int64
	RoleMenus map[int64][]int64
	RoleDepts map[int64][]int64
	UserDepts map[int64]int64

	FailNext error
	Writes   int
}

func New() *MemStore {
	return &MemStore{
		nextID:    100,
		Menus:     map[int64]authz.Menu{},
		Depts:     map[int64]authz.Dept{},
		Ancestors: map[int64]string{},
		Roles:     map[int64]authz.Role{},
		UserRoles: map[int64][]int64{},
		RoleMenus: map[int64][]int64{},
		RoleDepts: map[int64][]int64{},
		UserDepts: map[int64]int64{},
	}
}

// write must be called with mu held.
func (s *MemStore) write() error {
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return err
	}
	s.Writes++
	return nil
}

func (s *MemStore) id(given int64) int64 {
	if given > 0 {
		if given >= s.nextID {
			s.nextID = given + 1
		}
		return given
	}
	s.nextID++
	return s.nextID - 1
}

// ---- seeding (bypasses FailNext) ----

func (s *MemStore) PutMenu(m authz.Menu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id(m.ID)
	s.Menus[m.ID] = m
}

// PutDept stores a department; ancestors are derived from already seeded parents.
func (s *MemStore) PutDept(d authz.Dept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id(d.ID)
	s.Depts[d.ID] = d
	if d.ParentID == authz.RootID {
		s.Ancestors[d.ID] = "0"
	} else {
		s.Ancestors[d.ID] = fmt.Sprintf("%s,%d", s.Ancestors[d.ParentID], d.ParentID)
	}
}

func (s *MemStore) PutRole(r authz.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id(r.ID)
	s.Roles[r.ID] = r
}

func (s *MemStore) PutUser(userID, deptID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserDepts[userID] = deptID
}

// ---- authz.MenuStore ----

func (s *MemStore) CreateMenu(_ context.Context, n *authz.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	n.ID = s.id(0)
	s.Menus[n.ID] = *n
	return nil
}

func (s *MemStore) UpdateMenu(_ context.Context, n authz.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	if _, ok := s.Menus[n.ID]; !ok {
		return authz.ErrNotFound
	}
	s.Menus[n.ID] = n
	return nil
}

func (s *MemStore) DeleteMenu(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	delete(s.Menus, id)
	for rid, ids := range s.RoleMenus {
		s.RoleMenus[rid] = without(ids, id)
	}
	return nil
}

// ---- authz.DeptStore ----

func (s *MemStore) CreateDept(_ context.Context, n *authz.Dept, ancestors string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	n.ID = s.id(0)
	s.Depts[n.ID] = *n
	s.Ancestors[n.ID] = ancestors
	return nil
}

func (s *MemStore) UpdateDept(_ context.Context, n authz.Dept, ancestors map[int64]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	if _, ok := s.Depts[n.ID]; !ok {
		return authz.ErrNotFound
	}
	s.Depts[n.ID] = n
	for id, a := range ancestors {
		s.Ancestors[id] = a
	}
	return nil
}

func (s *MemStore) DeleteDept(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	delete(s.Depts, id)
	delete(s.Ancestors, id)
	for rid, ids := range s.RoleDepts {
		s.RoleDepts[rid] = without(ids, id)
	}
	return nil
}

// ---- authz.RoleStore ----

func (s *MemStore) CreateRole(_ context.Context, r *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	r.ID = s.id(0)
	s.Roles[r.ID] = *r
	return nil
}

func (s *MemStore) UpdateRole(_ context.Context, r authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	s.Roles[r.ID] = r
	return nil
}

func (s *MemStore) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	delete(s.Roles, id)
	delete(s.RoleMenus, id)
	delete(s.RoleDepts, id)
	for uid, ids := range s.UserRoles {
		s.UserRoles[uid] = without(ids, id)
	}
	return nil
}

// ---- authz.RelationStore ----

func (s *MemStore) ReplaceUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	return s.replace(s.UserRoles, userID, roleIDs)
}

func (s *MemStore) ReplaceRoleMenus(_ context.Context, roleID int64, menuIDs []int64) error {
	return s.replace(s.RoleMenus, roleID, menuIDs)
}

func (s *MemStore) ReplaceRoleDepts(_ context.Context, roleID int64, deptIDs []int64) error {
	return s.replace(s.RoleDepts, roleID, deptIDs)
}

func (s *MemStore) replace(rel map[int64][]int64, key int64, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	rel[key] = append([]int64(nil), ids...)
	return nil
}

// ---- authz.UserStore ----

func (s *MemStore) UserDept(_ context.Context, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.UserDepts[userID]
	return d, ok, nil
}

func (s *MemStore) CountUsersInDept(_ context.Context, deptID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.UserDepts {
		if d == deptID {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) SetUserDept(_ context.Context, userID, deptID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	if _, ok := s.UserDepts[userID]; !ok {
		return authz.ErrNotFound
	}
	s.UserDepts[userID] = deptID
	return nil
}

func (s *MemStore) DeleteUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	delete(s.UserDepts, userID)
	delete(s.UserRoles, userID)
	return nil
}

// ---- authz.SnapshotStore ----

func (s *MemStore) LoadSnapshot(_ context.Context) (*authz.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &authz.Snapshot{DeptAncestors: map[int64]string{}}
	for _, m := range s.Menus {
		snap.Menus = append(snap.Menus, m)
	}
	for _, d := range s.Depts {
		snap.Depts = append(snap.Depts, d)
	}
	for id, a := range s.Ancestors {
		snap.DeptAncestors[id] = a
	}
	for _, r := range s.Roles {
		snap.Roles = append(snap.Roles, r)
	}
	snap.UserRoles = pairs(s.UserRoles)
	snap.RoleMenus = pairs(s.RoleMenus)
	snap.RoleDepts = pairs(s.RoleDepts)
	return snap, nil
}

func pairs(rel map[int64][]int64) []authz.Pair {
	var out []authz.Pair
	for left, rights := range rel {
		for _, right := range rights {
			out = append(out, authz.Pair{Left: left, Right: right})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Left != out[j].Left {
			return out[i].Left < out[j].Left
		}
		return out[i].Right < out[j].Right
	})
	return out
}

func without(ids []int64, drop int64) []int64 {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

var _ authz.Store = (*MemStore)(nil)
