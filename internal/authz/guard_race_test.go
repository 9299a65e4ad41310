package authz_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/authz/authztest"
	"go-sysadmin/internal/pkg/keylock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pausingStore holds the first armed UpdateDept inside the store until
// release is closed, leaving the mutation's locks held.
type pausingStore struct {
	*authztest.MemStore
	armed   atomic.Bool
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{MemStore: seed(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStore) UpdateDept(ctx context.Context, n authz.Dept, ancestors map[int64]string) error {
	if s.armed.Load() {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.MemStore.UpdateDept(ctx, n, ancestors)
}

func newPausedMove(t *testing.T) (*pausingStore, *authz.Core, chan error) {
	t.Helper()
	s := newPausingStore()
	c := authz.New(s, authz.Options{Locker: keylock.New(), SuperAdminUserID: userAdmin})
	require.NoError(t, c.Load(context.Background()))
	s.armed.Store(true)

	first := make(chan error, 1)
	go func() {
		_, err := c.Depts.Move(context.Background(), deptSales, deptOps)
		first <- err
	}()
	select {
	case <-s.entered:
	case <-time.After(time.Second):
		t.Fatal("move never reached the store")
	}
	return s, c, first
}

func assertStoredAncestorsMatchTree(t *testing.T, s *pausingStore, c *authz.Core) {
	t.Helper()
	for id := range s.Depts {
		assert.Equal(t, c.DeptTree.AncestorsString(id), s.Ancestors[id], "dept %d", id)
	}
}

func TestDeptGuard_MoveInsideMovingSubtreeWaits(t *testing.T) {
	s, c, first := newPausedMove(t)

	second := make(chan error, 1)
	go func() {
		_, err := c.Depts.Move(context.Background(), deptSalesEast, deptHQ)
		second <- err
	}()
	select {
	case err := <-second:
		t.Fatalf("move of a node inside the moving subtree finished early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(s.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	assert.Equal(t, "0,1", s.Ancestors[deptSalesEast])
	assert.Equal(t, "0,1,4", s.Ancestors[deptSales])
	assertStoredAncestorsMatchTree(t, s, c)
}

func TestDeptGuard_CreateUnderMovingSubtreeWaits(t *testing.T) {
	s, c, first := newPausedMove(t)

	type result struct {
		d   authz.Dept
		err error
	}
	second := make(chan result, 1)
	go func() {
		d, err := c.Depts.Create(context.Background(), authz.DeptParams{ParentID: deptSalesEast, Name: "Shanghai"})
		second <- result{d, err}
	}()
	select {
	case r := <-second:
		t.Fatalf("create under the moving subtree finished early: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}

	close(s.release)
	require.NoError(t, <-first)
	r := <-second
	require.NoError(t, r.err)

	assert.Equal(t, "0,1,4,2,3", s.Ancestors[r.d.ID])
	assertStoredAncestorsMatchTree(t, s, c)
}

func TestDeptGuard_CreateOutsideMovingBranchRuns(t *testing.T) {
	s, c, first := newPausedMove(t)
	d, err := c.Depts.Create(context.Background(), authz.DeptParams{ParentID: authz.RootID, Name: "Branch"})
	require.NoError(t, err)
	assert.Equal(t, "0", s.Ancestors[d.ID])

	close(s.release)
	require.NoError(t, <-first)
	assertStoredAncestorsMatchTree(t, s, c)
}
