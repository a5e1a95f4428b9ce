// Package mem implements an in-memory node store.
package mem

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/cncp/node"
)

var _ node.Store = &Store{}

// Store is a memory-based implementation of a node store.
//
// Nodes live in an arena keyed by a numeric id.
// Parent and child links are ids, not pointers.
// Each part of a node's state (children, properties, content, timestamps)
// is guarded on its own,
// so there is no transaction spanning two of them:
// a concurrent reader may observe a new child
// before its parent's updated modification time.
type Store struct {
	root   *node.Node
	nextID atomic.Uint64
	nodes  sync.Map // uint64 -> *entry
}

type entry struct {
	path      string
	parent    uint64
	hasParent bool
	created   int64 // unix nanos

	modified atomic.Int64 // unix nanos, strictly increasing

	mu       sync.RWMutex
	children map[string]uint64

	props   sync.Map // string -> interface{}
	content atomic.Pointer[node.Content]
}

// New produces a new Store containing only a root node.
func New() *Store {
	s := &Store{}
	now := time.Now().UnixNano()
	e := newEntry(node.Separator, now)
	id := s.nextID.Add(1)
	s.nodes.Store(id, e)
	s.root = node.New(s, id, node.Separator)
	return s
}

func newEntry(path string, now int64) *entry {
	e := &entry{
		path:     path,
		created:  now,
		children: make(map[string]uint64),
	}
	e.modified.Store(now)
	return e
}

// touch advances the modification time,
// by at least a nanosecond even if the clock has not.
func (e *entry) touch() {
	for {
		prev := e.modified.Load()
		now := time.Now().UnixNano()
		if now <= prev {
			now = prev + 1
		}
		if e.modified.CompareAndSwap(prev, now) {
			return
		}
	}
}

func (s *Store) entry(n *node.Node) *entry {
	if n.Store() != node.Store(s) {
		panic(fmt.Sprintf("node %s belongs to a different store", n.Path()))
	}
	e, ok := s.nodes.Load(n.ID())
	if !ok {
		panic(fmt.Sprintf("node %s (%d) not in store", n.Path(), n.ID()))
	}
	return e.(*entry)
}

func (s *Store) handle(id uint64) (*node.Node, bool) {
	e, ok := s.nodes.Load(id)
	if !ok {
		return nil, false
	}
	return node.New(s, id, e.(*entry).path), true
}

// Root implements node.Store.Root.
func (s *Store) Root() *node.Node {
	return s.root
}

// AddChild implements node.Store.AddChild.
func (s *Store) AddChild(parent *node.Node, name string) (*node.Node, error) {
	if err := node.CheckName(name); err != nil {
		return nil, err
	}

	var (
		pe   = s.entry(parent)
		path = node.ChildPath(pe.path, name)
		e    = newEntry(path, 0)
		id   = s.nextID.Add(1)
	)
	e.parent = parent.ID()
	e.hasParent = true

	// The child's creation and modification times
	// are the parent's new modification time.
	pe.touch()
	now := pe.modified.Load()
	e.created = now
	e.modified.Store(now)

	s.nodes.Store(id, e)

	pe.mu.Lock()
	pe.children[name] = id
	pe.mu.Unlock()

	return node.New(s, id, path), nil
}

// Child implements node.Store.Child.
func (s *Store) Child(parent *node.Node, name string) (*node.Node, error) {
	pe := s.entry(parent)

	pe.mu.RLock()
	id, ok := pe.children[name]
	pe.mu.RUnlock()

	if ok {
		if n, ok := s.handle(id); ok {
			return n, nil
		}
	}
	return nil, errors.Wrapf(node.ErrNotFound, "%s", node.ChildPath(parent.Path(), name))
}

// Children implements node.Store.Children.
func (s *Store) Children(parent *node.Node) *node.Iterator {
	pe := s.entry(parent)

	pe.mu.RLock()
	names := make([]string, 0, len(pe.children))
	ids := make(map[string]uint64, len(pe.children))
	for name, id := range pe.children {
		names = append(names, name)
		ids[name] = id
	}
	pe.mu.RUnlock()

	sort.Strings(names)

	nodes := make([]*node.Node, 0, len(names))
	for _, name := range names {
		if n, ok := s.handle(ids[name]); ok {
			nodes = append(nodes, n)
		}
	}
	return node.NewIterator(nodes)
}

// DeleteChild implements node.Store.DeleteChild.
func (s *Store) DeleteChild(parent *node.Node, name string) bool {
	pe := s.entry(parent)

	pe.mu.Lock()
	_, ok := pe.children[name]
	delete(pe.children, name)
	pe.mu.Unlock()

	if ok {
		pe.touch()
	}
	return ok
}

// Parent implements node.Store.Parent.
func (s *Store) Parent(n *node.Node) (*node.Node, bool) {
	e := s.entry(n)
	if !e.hasParent {
		return nil, false
	}
	return s.handle(e.parent)
}

// HasChildren implements node.Store.HasChildren.
func (s *Store) HasChildren(n *node.Node) bool {
	e := s.entry(n)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.children) > 0
}

// Created implements node.Store.Created.
func (s *Store) Created(n *node.Node) time.Time {
	return time.Unix(0, s.entry(n).created)
}

// LastModified implements node.Store.LastModified.
func (s *Store) LastModified(n *node.Node) time.Time {
	return time.Unix(0, s.entry(n).modified.Load())
}

// Properties implements node.Store.Properties.
func (s *Store) Properties(n *node.Node) map[string]interface{} {
	result := make(map[string]interface{})
	s.entry(n).props.Range(func(k, v interface{}) bool {
		result[k.(string)] = v
		return true
	})
	return result
}

// SetProperty implements node.Store.SetProperty.
func (s *Store) SetProperty(n *node.Node, key string, value interface{}) {
	e := s.entry(n)
	e.props.Store(key, value)
	e.touch()
}

// DeleteProperty implements node.Store.DeleteProperty.
func (s *Store) DeleteProperty(n *node.Node, key string) (interface{}, bool) {
	e := s.entry(n)
	old, ok := e.props.LoadAndDelete(key)
	if ok {
		e.touch()
	}
	return old, ok
}

// Content implements node.Store.Content.
func (s *Store) Content(n *node.Node) (node.Content, bool) {
	c := s.entry(n).content.Load()
	if c == nil {
		return node.Content{}, false
	}
	return *c, true
}

// SetContent implements node.Store.SetContent.
func (s *Store) SetContent(n *node.Node, c node.Content) {
	e := s.entry(n)
	e.content.Store(&c)
	e.touch()
}
