package authz

import "sync"

const genStripes = 64

// generations 防止并发失效后写回旧结果。
// 以 stamp s 计算出的结果只有在 s 之后该用户（或全体）未被失效时才写入缓存；
// 同一用户的写入与删除在同一把分段锁下执行，旧值不会落在删除之后。
type generations struct {
	stripes [genStripes]genStripe
}

type genStripe struct {
	mu    sync.Mutex
	epoch uint64
	users map[int64]uint64
}

type stamp struct {
	epoch uint64
	user  uint64
}

func newGenerations() *generations {
	g := &generations{}
	for i := range g.stripes {
		g.stripes[i].users = make(map[int64]uint64)
	}
	return g
}

func (g *generations) stripe(uid int64) *genStripe {
	return &g.stripes[uint64(uid)%genStripes]
}

func (g *generations) snapshot(uid int64) stamp {
	s := g.stripe(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	return stamp{epoch: s.epoch, user: s.users[uid]}
}

// storeIfCurrent st 仍有效时在分段锁内执行 store
func (g *generations) storeIfCurrent(uid int64, st stamp, store func()) bool {
	s := g.stripe(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != st.epoch || s.users[uid] != st.user {
		return false
	}
	store()
	return true
}

func (g *generations) bump(uids []int64, drop func(uid int64)) {
	for _, uid := range uids {
		s := g.stripe(uid)
		s.mu.Lock()
		s.users[uid]++
		if drop != nil {
			drop(uid)
		}
		s.mu.Unlock()
	}
}

func (g *generations) bumpAll(drop func()) {
	for i := range g.stripes {
		g.stripes[i].mu.Lock()
	}
	for i := range g.stripes {
		g.stripes[i].epoch++
		g.stripes[i].users = make(map[int64]uint64)
	}
	if drop != nil {
		drop()
	}
	for i := len(g.stripes) - 1; i >= 0; i-- {
		g.stripes[i].mu.Unlock()
	}
}
