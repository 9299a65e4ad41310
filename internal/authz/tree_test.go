package authz

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, parent int64, name string) Node[DeptAttrs] {
	return Node[DeptAttrs]{ID: id, ParentID: parent, Name: name, Status: StatusEnabled}
}

// 1 -> 2 -> 3, 1 -> 4
func sampleTree(t *testing.T, materialized bool) *Tree[DeptAttrs] {
	t.Helper()
	tr := NewTree[DeptAttrs]("dept", materialized)
	require.NoError(t, tr.Insert(node(1, RootID, "root")))
	require.NoError(t, tr.Insert(node(2, 1, "sales")))
	require.NoError(t, tr.Insert(node(3, 2, "sales-east")))
	require.NoError(t, tr.Insert(node(4, 1, "ops")))
	return tr
}

func TestTree_Queries(t *testing.T) {
	for _, m := range []bool{false, true} {
		tr := sampleTree(t, m)
		assert.Equal(t, []int64{1, 2}, tr.Ancestors(3))
		assert.Nil(t, tr.Ancestors(1))
		assert.Equal(t, "0,1,2", tr.AncestorsString(3))
		assert.Equal(t, "0", tr.AncestorsString(1))
		assert.Equal(t, 3, tr.Level(3))
		assert.Equal(t, []int64{2, 4, 3}, tr.Descendants(1))
		assert.Equal(t, []int64{2, 3}, tr.Subtree(2))
		assert.Equal(t, []int64{2, 4}, tr.Children(1))
		assert.True(t, tr.Exists(RootID))
		assert.False(t, tr.Contains(RootID))
		assert.Nil(t, tr.Subtree(99))
	}
}

func TestTree_InsertRejectsCycleAndMissingParent(t *testing.T) {
	tr := sampleTree(t, true)

	err := tr.Insert(node(2, 3, "sales"))
	assert.ErrorIs(t, err, ErrCycle)
	err = tr.Insert(node(2, 2, "sales"))
	assert.ErrorIs(t, err, ErrCycle)
	err = tr.Insert(node(5, 42, "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	// unchanged after rejection
	assert.Equal(t, []int64{1, 2}, tr.Ancestors(3))
}

func TestTree_MoveRebasesMaterializedSubtree(t *testing.T) {
	tr := sampleTree(t, true)
	require.NoError(t, tr.Insert(node(2, 4, "sales")))
	assert.Equal(t, []int64{1, 4}, tr.Ancestors(2))
	assert.Equal(t, []int64{1, 4, 2}, tr.Ancestors(3))
	assert.Equal(t, []int64{4}, tr.Children(1))
	assert.Equal(t, []int64{4, 2, 3}, tr.Subtree(4))
}

func TestTree_PlanAncestorsMatchesInsert(t *testing.T) {
	tr := sampleTree(t, true)
	plan, err := tr.PlanAncestors(2, 4)
	require.NoError(t, err)
	require.NoError(t, tr.Insert(node(2, 4, "sales")))
	for id, chain := range plan {
		assert.Equal(t, chain, tr.Ancestors(id), "node %d", id)
	}

	_, err = tr.PlanAncestors(1, 3)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestTree_RemoveNeverOrphans(t *testing.T) {
	tr := sampleTree(t, false)
	assert.ErrorIs(t, tr.Remove(2), ErrHasChildren)
	assert.ErrorIs(t, tr.Remove(9), ErrNotFound)
	require.NoError(t, tr.Remove(3))
	require.NoError(t, tr.Remove(2))
	assert.Equal(t, []int64{4}, tr.Children(1))
}

func TestTree_EffectiveStatus(t *testing.T) {
	tr := sampleTree(t, false)
	n, _ := tr.Get(2)
	n.Status = StatusDisabled
	require.NoError(t, tr.Insert(n))

	assert.False(t, tr.EffectivelyEnabled(2))
	assert.False(t, tr.EffectivelyEnabled(3))
	assert.True(t, tr.EffectivelyEnabled(4))
	child, _ := tr.Get(3)
	assert.Equal(t, StatusEnabled, child.Status, "descendant status is not written")

	n.Status = StatusEnabled
	require.NoError(t, tr.Insert(n))
	assert.True(t, tr.EffectivelyEnabled(3))
}

func TestTree_ResetValidates(t *testing.T) {
	tr := sampleTree(t, true)

	err := tr.Reset([]Node[DeptAttrs]{node(1, 2, "a"), node(2, 1, "b")})
	assert.ErrorIs(t, err, ErrCycle)
	err = tr.Reset([]Node[DeptAttrs]{node(1, RootID, "a"), node(2, 7, "b")})
	assert.ErrorIs(t, err, ErrNotFound)
	err = tr.Reset([]Node[DeptAttrs]{node(1, RootID, "a"), node(1, RootID, "b")})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 4, tr.Len(), "previous content kept")

	require.NoError(t, tr.Reset([]Node[DeptAttrs]{node(5, RootID, "a"), node(6, 5, "b"), node(7, 6, "c")}))
	assert.Equal(t, []int64{5, 6}, tr.Ancestors(7))
	assert.False(t, tr.Contains(1))
}

func TestTree_ChildNamed(t *testing.T) {
	tr := sampleTree(t, false)
	id, ok := tr.ChildNamed(1, "ops")
	assert.True(t, ok)
	assert.EqualValues(t, 4, id)
	_, ok = tr.ChildNamed(2, "ops")
	assert.False(t, ok)
}

// Random create/move sequences never leave a node whose parent chain
// revisits itself.
func TestTree_RandomMovesStayAcyclic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, m := range []bool{false, true} {
		tr := NewTree[DeptAttrs]("dept", m)
		var ids []int64
		for step := 0; step < 400; step++ {
			if len(ids) < 3 || rng.Intn(3) == 0 {
				id := int64(len(ids) + 1)
				parent := RootID
				if len(ids) > 0 && rng.Intn(4) != 0 {
					parent = ids[rng.Intn(len(ids))]
				}
				require.NoError(t, tr.Insert(node(id, parent, "")))
				ids = append(ids, id)
				continue
			}
			id := ids[rng.Intn(len(ids))]
			parent := ids[rng.Intn(len(ids))]
			n, _ := tr.Get(id)
			n.ParentID = parent
			err := tr.Insert(n)
			inSubtree := false
			for _, s := range tr.Subtree(id) {
				if s == parent {
					inSubtree = true
				}
			}
			if inSubtree {
				assert.True(t, errors.Is(err, ErrCycle))
			} else {
				assert.NoError(t, err)
			}
		}
		for _, n := range tr.Nodes() {
			seen := map[int64]bool{}
			cur := n.ID
			for cur != RootID {
				require.False(t, seen[cur], "cycle through %d", cur)
				seen[cur] = true
				p, ok := tr.Get(cur)
				require.True(t, ok)
				cur = p.ParentID
			}
			if m {
				assert.Equal(t, len(seen)-1, len(tr.Ancestors(n.ID)))
			}
		}
	}
}
