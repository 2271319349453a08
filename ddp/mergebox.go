package ddp

import (
	"sort"

	"github.com/bhunjadi/pagination/query"
)

type docKey struct {
	collection string
	id         string
}

// docView holds every subscription's contribution to one client document.
// When subscriptions disagree on a field the earliest contributor wins.
type docView struct {
	order  []string
	fields map[string]map[string]any
}

func (v *docView) merged() map[string]any {
	out := map[string]any{}
	for i := len(v.order) - 1; i >= 0; i-- {
		for k, val := range v.fields[v.order[i]] {
			out[k] = val
		}
	}
	return out
}

func (v *docView) drop(subID string) {
	delete(v.fields, subID)
	for i, id := range v.order {
		if id == subID {
			v.order = append(v.order[:i], v.order[i+1:]...)
			return
		}
	}
}

// mergeBox tracks what the client has been sent so that documents shared
// by several subscriptions are added once and removed only when the last
// subscription lets go of them.
type mergeBox struct {
	docs  map[docKey]*docView
	bySub map[string]map[docKey]struct{}
}

func newMergeBox() *mergeBox {
	return &mergeBox{
		docs:  make(map[docKey]*docView),
		bySub: make(map[string]map[docKey]struct{}),
	}
}

func (m *mergeBox) added(subID string, key docKey, fields map[string]any) *Message {
	view, exists := m.docs[key]
	var before map[string]any
	if exists {
		before = view.merged()
	} else {
		view = &docView{fields: make(map[string]map[string]any)}
		m.docs[key] = view
	}

	own, contributed := view.fields[subID]
	if !contributed {
		own = make(map[string]any, len(fields))
		view.fields[subID] = own
		view.order = append(view.order, subID)
		m.track(subID, key)
	}
	for k, v := range fields {
		if k == query.IDField {
			continue
		}
		if v == nil {
			delete(own, k)
		} else {
			own[k] = v
		}
	}

	return diffMessage(key, before, view.merged())
}

// changed returns nil when subID never added the document
func (m *mergeBox) changed(subID string, key docKey, fields map[string]any) (*Message, bool) {
	view, exists := m.docs[key]
	if !exists {
		return nil, false
	}
	if _, contributed := view.fields[subID]; !contributed {
		return nil, false
	}
	return m.added(subID, key, fields), true
}

func (m *mergeBox) removed(subID string, key docKey) *Message {
	view, exists := m.docs[key]
	if !exists {
		return nil
	}
	if _, contributed := view.fields[subID]; !contributed {
		return nil
	}

	before := view.merged()
	view.drop(subID)
	if keys := m.bySub[subID]; keys != nil {
		delete(keys, key)
	}

	if len(view.order) == 0 {
		delete(m.docs, key)
		return diffMessage(key, before, nil)
	}
	return diffMessage(key, before, view.merged())
}

// dropSub withdraws every contribution of a subscription
func (m *mergeBox) dropSub(subID string) []*Message {
	keys := m.bySub[subID]
	delete(m.bySub, subID)

	var msgs []*Message
	for key := range keys {
		if msg := m.removed(subID, key); msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (m *mergeBox) track(subID string, key docKey) {
	keys := m.bySub[subID]
	if keys == nil {
		keys = make(map[docKey]struct{})
		m.bySub[subID] = keys
	}
	keys[key] = struct{}{}
}

// size returns the number of documents the client currently holds
func (m *mergeBox) size() int {
	return len(m.docs)
}

// diffMessage describes the transition of a client document. A nil before
// means the client does not have it yet; a nil after means it goes away.
func diffMessage(key docKey, before, after map[string]any) *Message {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return &Message{Msg: "added", Collection: key.collection, ID: key.id, Fields: after}
	case after == nil:
		return &Message{Msg: "removed", Collection: key.collection, ID: key.id}
	}

	fields := map[string]any{}
	var cleared []string
	for k, v := range after {
		if old, ok := before[k]; !ok || !query.Equal(old, v) {
			fields[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			cleared = append(cleared, k)
		}
	}
	sort.Strings(cleared)
	if len(fields) == 0 && len(cleared) == 0 {
		return nil
	}
	return &Message{Msg: "changed", Collection: key.collection, ID: key.id, Fields: fields, Cleared: cleared}
}
