package authz

import (
	"fmt"
	"sort"
	"sync"
)

// Tree 自引用实体（菜单、部门）的内存索引，只负责结构，
// 谁能改什么由各 Guard 决定。
//
// materialized 为 true 时每个节点缓存自根向下的祖先列表，
// 子树移动时整体重写，Ancestors 直接查表而不逐级回溯。
type Tree[T any] struct {
	kind         string
	materialized bool

	mu        sync.RWMutex
	nodes     map[int64]*Node[T]
	children  map[int64]map[int64]struct{}
	ancestors map[int64][]int64
}

// NewTree kind 用于错误信息和锁键前缀
func NewTree[T any](kind string, materialized bool) *Tree[T] {
	t := &Tree[T]{kind: kind, materialized: materialized}
	t.nodes, t.children, t.ancestors = t.emptyMaps()
	return t
}

func (t *Tree[T]) emptyMaps() (map[int64]*Node[T], map[int64]map[int64]struct{}, map[int64][]int64) {
	return make(map[int64]*Node[T]), map[int64]map[int64]struct{}{RootID: {}}, make(map[int64][]int64)
}

func (t *Tree[T]) Kind() string { return t.kind }

// Insert 新增或替换节点。换父节点即移动，新父节点落在自身子树内时拒绝。
func (t *Tree[T]) Insert(n Node[T]) error {
	if n.ID <= 0 {
		return fmt.Errorf("%s: invalid id %d", t.kind, n.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.ParentID == n.ID {
		return newError(ErrCycle, t.kind, n.ID, "parent is the node itself")
	}
	if n.ParentID != RootID {
		if _, ok := t.nodes[n.ParentID]; !ok {
			return newError(ErrNotFound, t.kind, n.ParentID, "parent")
		}
	}
	old, exists := t.nodes[n.ID]
	if !exists {
		nn := n
		t.nodes[n.ID] = &nn
		t.link(n.ParentID, n.ID)
		if t.materialized {
			t.rebaseLocked(n.ID)
		}
		return nil
	}
	moved := old.ParentID != n.ParentID
	if moved {
		if t.reachesLocked(n.ParentID, n.ID) {
			return newError(ErrCycle, t.kind, n.ID, fmt.Sprintf("parent %d is inside its subtree", n.ParentID))
		}
		t.unlink(old.ParentID, n.ID)
		t.link(n.ParentID, n.ID)
	}
	*old = n
	if moved && t.materialized {
		t.rebaseLocked(n.ID)
	}
	return nil
}

// Get 返回节点副本
func (t *Tree[T]) Get(id int64) (Node[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return Node[T]{}, false
	}
	return *n, true
}

func (t *Tree[T]) Contains(id int64) bool {
	t.mu.RLock()
	_, ok := t.nodes[id]
	t.mu.RUnlock()
	return ok
}

// Exists 根哨兵恒存在
func (t *Tree[T]) Exists(id int64) bool { return id == RootID || t.Contains(id) }

func (t *Tree[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Children 直接子节点，按 id 升序
func (t *Tree[T]) Children(id int64) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.children[id])
}

// Ancestors 自根向下的祖先 id，不含根哨兵；未知节点返回 nil
func (t *Tree[T]) Ancestors(id int64) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ancestorsLocked(id)
}

func (t *Tree[T]) ancestorsLocked(id int64) []int64 {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	if t.materialized {
		return append([]int64(nil), t.ancestors[id]...)
	}
	var chain []int64
	cur := t.nodes[id].ParentID
	for steps := 0; cur != RootID && steps <= len(t.nodes); steps++ {
		p, ok := t.nodes[cur]
		if !ok {
			break
		}
		chain = append(chain, cur)
		cur = p.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AncestorsString 按 sys_dept.ancestors 格式输出，如 "0,1,2"
func (t *Tree[T]) AncestorsString(id int64) string { return FormatAncestors(t.Ancestors(id)) }

func (t *Tree[T]) Level(id int64) int { return len(t.Ancestors(id)) + 1 }

// Descendants 广度优先
func (t *Tree[T]) Descendants(id int64) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.descendantsLocked(id)
}

func (t *Tree[T]) descendantsLocked(id int64) []int64 {
	var out []int64
	queue := sortedKeys(t.children[id])
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, sortedKeys(t.children[cur])...)
	}
	return out
}

// Subtree 自身在首位，其后同 Descendants
func (t *Tree[T]) Subtree(id int64) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	return append([]int64{id}, t.descendantsLocked(id)...)
}

// Remove 只删叶子节点
func (t *Tree[T]) Remove(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return newError(ErrNotFound, t.kind, id, "")
	}
	if len(t.children[id]) > 0 {
		return newError(ErrHasChildren, t.kind, id, "")
	}
	t.unlink(n.ParentID, id)
	delete(t.children, id)
	delete(t.nodes, id)
	delete(t.ancestors, id)
	return nil
}

// EffectivelyEnabled 节点及所有祖先均启用才算启用。
// 子孙的存储状态从不改写，父节点重新启用后子树恢复原状。
func (t *Tree[T]) EffectivelyEnabled(id int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.effectiveLocked(id)
}

func (t *Tree[T]) effectiveLocked(id int64) bool {
	n, ok := t.nodes[id]
	if !ok || !n.Enabled() {
		return false
	}
	for _, a := range t.ancestorsLocked(id) {
		if p, ok := t.nodes[a]; !ok || !p.Enabled() {
			return false
		}
	}
	return true
}

// ChildNamed 按名称在直接子节点中查重
func (t *Tree[T]) ChildNamed(parentID int64, name string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := range t.children[parentID] {
		if t.nodes[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// PlanAncestors 预演 id 移到 parentID 下后整棵子树的祖先列表，不修改树。
// 先由存储落库，再由 Insert 应用同样的结果。
func (t *Tree[T]) PlanAncestors(id, parentID int64) (map[int64][]int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if parentID == id {
		return nil, newError(ErrCycle, t.kind, id, "parent is the node itself")
	}
	var base []int64
	if parentID != RootID {
		if _, ok := t.nodes[parentID]; !ok {
			return nil, newError(ErrNotFound, t.kind, parentID, "parent")
		}
		if _, ok := t.nodes[id]; ok && t.reachesLocked(parentID, id) {
			return nil, newError(ErrCycle, t.kind, id, fmt.Sprintf("parent %d is inside its subtree", parentID))
		}
		base = append(t.ancestorsLocked(parentID), parentID)
	}
	plan := map[int64][]int64{id: base}
	if _, ok := t.nodes[id]; !ok {
		return plan, nil
	}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range sortedKeys(t.children[cur]) {
			plan[c] = appendCopy(plan[cur], cur)
			queue = append(queue, c)
		}
	}
	return plan, nil
}

// Nodes 全部节点副本，按 id 排序
func (t *Tree[T]) Nodes() []Node[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Node[T], 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset 整体替换内容；存在悬空父节点或环时拒绝并保留原内容
func (t *Tree[T]) Reset(list []Node[T]) error {
	nodes, children, ancestors := t.emptyMaps()
	for i := range list {
		n := list[i]
		if n.ID <= 0 {
			return fmt.Errorf("%s: invalid id %d", t.kind, n.ID)
		}
		if _, dup := nodes[n.ID]; dup {
			return newError(ErrDuplicate, t.kind, n.ID, "duplicate id in snapshot")
		}
		nodes[n.ID] = &n
	}
	for id, n := range nodes {
		if n.ParentID != RootID {
			if _, ok := nodes[n.ParentID]; !ok {
				return newError(ErrNotFound, t.kind, n.ParentID, fmt.Sprintf("parent of %d", id))
			}
		}
		if children[n.ParentID] == nil {
			children[n.ParentID] = make(map[int64]struct{})
		}
		children[n.ParentID][id] = struct{}{}
	}
	// 从根不可达的节点必然在环上
	reached := 0
	queue := []int64{RootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range sortedKeys(children[cur]) {
			if cur == RootID {
				ancestors[c] = nil
			} else {
				ancestors[c] = appendCopy(ancestors[cur], cur)
			}
			reached++
			queue = append(queue, c)
		}
	}
	if reached != len(nodes) {
		return newError(ErrCycle, t.kind, 0, fmt.Sprintf("%d nodes unreachable from root", len(nodes)-reached))
	}
	if !t.materialized {
		ancestors = make(map[int64][]int64)
	}
	t.mu.Lock()
	t.nodes, t.children, t.ancestors = nodes, children, ancestors
	t.mu.Unlock()
	return nil
}

// reachesLocked 自 from 向上回溯能否遇到 target
func (t *Tree[T]) reachesLocked(from, target int64) bool {
	cur := from
	for steps := 0; cur != RootID && steps <= len(t.nodes); steps++ {
		if cur == target {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok {
			return false
		}
		cur = n.ParentID
	}
	return false
}

// rebaseLocked 一次广度遍历重写子树的祖先列表
func (t *Tree[T]) rebaseLocked(id int64) {
	parent := t.nodes[id].ParentID
	if parent == RootID {
		t.ancestors[id] = nil
	} else {
		t.ancestors[id] = appendCopy(t.ancestors[parent], parent)
	}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for c := range t.children[cur] {
			t.ancestors[c] = appendCopy(t.ancestors[cur], cur)
			queue = append(queue, c)
		}
	}
}

func (t *Tree[T]) link(parent, id int64) {
	if t.children[parent] == nil {
		t.children[parent] = make(map[int64]struct{})
	}
	t.children[parent][id] = struct{}{}
}

func (t *Tree[T]) unlink(parent, id int64) {
	delete(t.children[parent], id)
}

func sortedKeys(m map[int64]struct{}) []int64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func appendCopy(base []int64, id int64) []int64 {
	out := make([]int64, len(base), len(base)+1)
	copy(out, base)
	return append(out, id)
}
