package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// RoleParams 新增/编辑角色参数
type RoleParams struct {
	Name        string
	Code        string
	DataScope   DataScope
	Description string
	Sort        int
	IsSystem    bool
}

// RoleManager 只管角色定义，关联归 RoleGraph
type RoleManager struct {
	store   RoleStore
	locker  Locker
	signals *Signals
	graph   *RoleGraph
	log     *zap.Logger

	mu     sync.RWMutex
	roles  map[int64]*Role
	byCode map[string]int64
}

func newRoleManager(store RoleStore, locker Locker, signals *Signals, graph *RoleGraph, log *zap.Logger) *RoleManager {
	return &RoleManager{
		store: store, locker: locker, signals: signals, graph: graph, log: log,
		roles: make(map[int64]*Role), byCode: make(map[string]int64),
	}
}

func (m *RoleManager) Exists(id int64) bool {
	m.mu.RLock()
	_, ok := m.roles[id]
	m.mu.RUnlock()
	return ok
}

func (m *RoleManager) Get(id int64) (Role, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, false
	}
	return *r, true
}

func (m *RoleManager) ByCode(code string) (Role, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return Role{}, false
	}
	return *m.roles[id], true
}

// List 按 sort、id 排序
func (m *RoleManager) List() []Role {
	m.mu.RLock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *RoleManager) Create(ctx context.Context, p RoleParams) (Role, error) {
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return Role{}, fmt.Errorf("role code required")
	}
	if !p.DataScope.Valid() {
		return Role{}, fmt.Errorf("invalid data scope %d", p.DataScope)
	}
	unlock, err := acquire(ctx, m.locker, "role_code:"+code)
	if err != nil {
		return Role{}, err
	}
	defer unlock()
	if existing, ok := m.ByCode(code); ok {
		return Role{}, newError(ErrDuplicate, "role", existing.ID, "code "+code)
	}
	r := Role{Name: p.Name, Code: code, DataScope: p.DataScope, Description: p.Description, Sort: p.Sort, IsSystem: p.IsSystem}
	if err := m.store.CreateRole(ctx, &r); err != nil {
		return Role{}, err
	}
	m.put(r)
	m.log.Info("role_created", zap.Int64("role_id", r.ID), zap.String("code", code))
	return r, nil
}

// Update 系统角色的编码与数据范围不可改
func (m *RoleManager) Update(ctx context.Context, id int64, p RoleParams) (Role, error) {
	code := strings.TrimSpace(p.Code)
	if !p.DataScope.Valid() {
		return Role{}, fmt.Errorf("invalid data scope %d", p.DataScope)
	}
	keys := []string{entityKey("role", id)}
	if code != "" {
		keys = append(keys, "role_code:"+code)
	}
	unlock, err := acquire(ctx, m.locker, keys...)
	if err != nil {
		return Role{}, err
	}
	defer unlock()
	old, ok := m.Get(id)
	if !ok {
		return Role{}, newError(ErrNotFound, "role", id, "")
	}
	if code == "" {
		code = old.Code
	}
	if other, ok := m.ByCode(code); ok && other.ID != id {
		return Role{}, newError(ErrDuplicate, "role", other.ID, "code "+code)
	}
	if old.IsSystem && (code != old.Code || p.DataScope != old.DataScope) {
		return Role{}, newError(ErrProtected, "role", id, "system role code and data scope are fixed")
	}
	r := Role{ID: id, Name: p.Name, Code: code, DataScope: p.DataScope, Description: p.Description, Sort: p.Sort, IsSystem: old.IsSystem}
	if err := m.store.UpdateRole(ctx, r); err != nil {
		return Role{}, err
	}
	m.put(r)
	inv := Invalidation{Source: "role"}
	users := m.graph.UsersOf(id)
	if r.DataScope != old.DataScope {
		inv.ScopeUsers = users
	}
	if r.Code != old.Code {
		// 超级管理员按编码识别
		inv.PermissionUsers = users
		inv.ScopeUsers = users
	}
	m.signals.Emit(ctx, inv)
	return r, nil
}

// Delete 连同所有引用它的关联
func (m *RoleManager) Delete(ctx context.Context, id int64) error {
	unlock, err := acquire(ctx, m.locker, entityKey("role", id))
	if err != nil {
		return err
	}
	defer unlock()
	r, ok := m.Get(id)
	if !ok {
		return newError(ErrNotFound, "role", id, "")
	}
	if r.IsSystem {
		return newError(ErrProtected, "role", id, "")
	}
	if err := m.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.roles, id)
	delete(m.byCode, r.Code)
	m.mu.Unlock()
	users := m.graph.purgeRole(id)
	m.log.Info("role_deleted", zap.Int64("role_id", id), zap.Int("holders", len(users)))
	m.signals.Emit(ctx, Invalidation{Source: "role", PermissionUsers: users, ScopeUsers: users})
	return nil
}

func (m *RoleManager) put(r Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.roles[r.ID]; ok && old.Code != r.Code {
		delete(m.byCode, old.Code)
	}
	rr := r
	m.roles[r.ID] = &rr
	m.byCode[r.Code] = r.ID
}

func (m *RoleManager) reset(list []Role) {
	roles := make(map[int64]*Role, len(list))
	byCode := make(map[string]int64, len(list))
	for i := range list {
		r := list[i]
		roles[r.ID] = &r
		byCode[r.Code] = r.ID
	}
	m.mu.Lock()
	m.roles, m.byCode = roles, byCode
	m.mu.Unlock()
}
