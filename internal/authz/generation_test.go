package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerations_StaleStoreIsDropped(t *testing.T) {
	g := newGenerations()
	st := g.snapshot(7)

	var dropped []int64
	g.bump([]int64{7}, func(uid int64) { dropped = append(dropped, uid) })
	assert.Equal(t, []int64{7}, dropped)

	stored := false
	assert.False(t, g.storeIfCurrent(7, st, func() { stored = true }))
	assert.False(t, stored)

	st = g.snapshot(7)
	assert.True(t, g.storeIfCurrent(7, st, func() { stored = true }))
	assert.True(t, stored)
}

func TestGenerations_OtherUsersUnaffected(t *testing.T) {
	g := newGenerations()
	st := g.snapshot(8)
	g.bump([]int64{8 + genStripes}, nil) // same stripe, different user
	assert.True(t, g.storeIfCurrent(8, st, func() {}))
}

func TestGenerations_BumpAll(t *testing.T) {
	g := newGenerations()
	a, b := g.snapshot(1), g.snapshot(2)
	purged := 0
	g.bumpAll(func() { purged++ })
	assert.Equal(t, 1, purged)
	assert.False(t, g.storeIfCurrent(1, a, func() {}))
	assert.False(t, g.storeIfCurrent(2, b, func() {}))
}

func TestFormatParseAncestors(t *testing.T) {
	assert.Equal(t, "0", FormatAncestors(nil))
	assert.Equal(t, "0,1,2", FormatAncestors([]int64{1, 2}))
	ids, err := ParseAncestors("0,1,2")
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	_, err = ParseAncestors("0,x")
	assert.Error(t, err)
}

func TestScopeAllows(t *testing.T) {
	assert.True(t, Unrestricted().Allows(5, 9))
	assert.True(t, DeptIDs(3, 2, 3).Allows(2, 9))
	assert.Equal(t, []int64{2, 3}, DeptIDs(3, 2, 3).DeptIDs)
	assert.False(t, DeptIDs().Allows(2, 9))
	assert.True(t, OwnerOnly(9).Allows(1, 9))
	assert.False(t, OwnerOnly(9).Allows(1, 8))
}

func TestPermissionsHas(t *testing.T) {
	p := Permissions{Codes: []string{"system:menu:list", "system:user:list"}}
	assert.True(t, p.Has("system:user:list"))
	assert.False(t, p.Has("system:user:delete"))
	all := Permissions{Codes: []string{AllPermission}}
	assert.True(t, all.Has("anything:at:all"))
}
