package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLocker struct {
	calls [][]string
	held  int
}

func (l *countingLocker) Lock(_ context.Context, keys ...string) (func(), error) {
	l.calls = append(l.calls, append([]string(nil), keys...))
	l.held++
	return func() { l.held-- }, nil
}

func TestAcquireCovering_RetriesWithUnion(t *testing.T) {
	l := &countingLocker{}
	sets := [][]string{{"dept:1"}, {"dept:1", "dept:4"}, {"dept:1", "dept:4"}}
	i := 0
	keysOf := func() []string {
		k := sets[i]
		if i < len(sets)-1 {
			i++
		}
		return k
	}

	unlock, err := acquireCovering(context.Background(), l, keysOf)
	require.NoError(t, err)
	require.Len(t, l.calls, 2)
	assert.ElementsMatch(t, []string{"dept:1", "dept:1", "dept:4"}, l.calls[1])
	assert.Equal(t, 1, l.held, "the first attempt was released")
	unlock()
	assert.Zero(t, l.held)
}

func TestAcquireCovering_GivesUp(t *testing.T) {
	l := &countingLocker{}
	n := int64(0)
	keysOf := func() []string {
		n++
		return []string{entityKey("dept", n)}
	}

	_, err := acquireCovering(context.Background(), l, keysOf)
	assert.Error(t, err)
	assert.Len(t, l.calls, maxLockRetries)
	assert.Zero(t, l.held)
}

func TestMoveKeys_CoverSubtreeAndTargetPath(t *testing.T) {
	tr := NewTree[DeptAttrs]("dept", true)
	require.NoError(t, tr.Insert(node(1, RootID, "hq")))
	require.NoError(t, tr.Insert(node(2, 1, "sales")))
	require.NoError(t, tr.Insert(node(3, 2, "sales-east")))
	require.NoError(t, tr.Insert(node(4, 1, "ops")))

	assert.ElementsMatch(t, []string{"dept:4", "dept:1", "dept:2", "dept:2", "dept:3"}, moveKeys(tr, 2, 4)())
	assert.ElementsMatch(t, []string{"dept:3", "dept:2", "dept:1"}, createKeys(tr, 3)())
}
