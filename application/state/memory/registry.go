package memory

import (
	"slices"

	"skirmish/application/state"
	"skirmish/domain"
)

// Registry は接続中のセッションを参加順に保持し、タレット権限を1セッションに割り当てる。
// 権限は最初に参加したセッションへ付与され、保持者が抜けると残りのうち最も古いセッションへ移る。
type Registry struct {
	order []domain.SessionID
	host  domain.SessionID
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Admit(id domain.SessionID) bool {
	if id.IsEmpty() || r.Contains(id) {
		return false
	}
	r.order = append(r.order, id)
	if r.host.IsEmpty() {
		r.host = id
		return true
	}
	return false
}

func (r *Registry) Release(id domain.SessionID) (domain.SessionID, bool) {
	idx := slices.Index(r.order, id)
	if idx < 0 {
		return r.host, false
	}
	r.order = slices.Delete(r.order, idx, idx+1)
	if r.host != id {
		return r.host, false
	}
	r.host = ""
	if len(r.order) > 0 {
		r.host = r.order[0]
	}
	return r.host, true
}

func (r *Registry) Host() (domain.SessionID, bool) {
	return r.host, !r.host.IsEmpty()
}

func (r *Registry) IsHost(id domain.SessionID) bool {
	return !id.IsEmpty() && r.host == id
}

func (r *Registry) Contains(id domain.SessionID) bool {
	return slices.Contains(r.order, id)
}

// Sessions は参加順の ID を返す。
func (r *Registry) Sessions() []domain.SessionID {
	return slices.Clone(r.order)
}

var _ state.SessionRegistry = (*Registry)(nil)
