// Package node is a hierarchical namespace of named nodes.
//
// A tree starts at the root node, whose path is "/".
// Each other node has exactly one parent,
// a simple name unique among its siblings,
// and a path that joins its parent's path with its name.
// Nodes carry creation and modification times,
// a set of properties,
// and optionally a Content descriptor
// referring to a payload kept in a blob store.
//
// Node is a lightweight handle.
// All node state lives in a Store.
package node

import (
	stderrs "errors"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Separator delimits the names in a node path.
const Separator = "/"

var (
	// ErrNotFound is the error when a named child does not exist.
	ErrNotFound = stderrs.New("node not found")

	// ErrInvalidName is the error when a child name is empty, is "." or "..",
	// or contains the separator.
	ErrInvalidName = stderrs.New("invalid node name")
)

// Store holds the state of a tree of nodes.
// Implementations must be safe for concurrent use.
//
// Every method that takes a *Node requires one produced by the same Store.
type Store interface {
	// Root returns the root node.
	// It is the same node for the lifetime of the store.
	Root() *Node

	// AddChild creates a new child of parent called name,
	// replacing any existing child of that name,
	// and bumps parent's modification time.
	// The new node's creation and modification times are equal.
	AddChild(parent *Node, name string) (*Node, error)

	// Child returns the child of parent called name.
	// It returns an error wrapping ErrNotFound if there is none.
	Child(parent *Node, name string) (*Node, error)

	// Children returns an iterator over the children of parent
	// in ascending order of name.
	// It reflects the children at the time of the call.
	Children(parent *Node) *Iterator

	// DeleteChild removes the child of parent called name,
	// bumping parent's modification time.
	// It reports false if there was no such child.
	// The removed node and its descendants are abandoned, not swept.
	DeleteChild(parent *Node, name string) bool

	// Parent returns the parent of n.
	// It reports false for the root.
	Parent(n *Node) (*Node, bool)

	HasChildren(n *Node) bool

	Created(n *Node) time.Time
	LastModified(n *Node) time.Time

	// Properties returns a copy of the properties of n.
	Properties(n *Node) map[string]interface{}

	// SetProperty sets a property of n, bumping its modification time.
	SetProperty(n *Node, key string, value interface{})

	// DeleteProperty removes a property of n, returning its old value.
	// It bumps the modification time of n only if there was such a property.
	DeleteProperty(n *Node, key string) (interface{}, bool)

	// Content returns the content descriptor of n, if it has one.
	Content(n *Node) (Content, bool)

	// SetContent sets the content descriptor of n, bumping its modification time.
	SetContent(n *Node, c Content)
}

// Node is a handle on one node in a Store.
type Node struct {
	s    Store
	id   uint64
	path string
}

// New produces a handle on the node with the given id and path in s.
// It is for Store implementations.
func New(s Store, id uint64, path string) *Node {
	return &Node{s: s, id: id, path: path}
}

func (n *Node) ID() uint64   { return n.id }
func (n *Node) Path() string { return n.path }
func (n *Node) Store() Store { return n.s }

// Name is the simple name of n,
// the last element of its path.
// The name of the root is "/".
func (n *Node) Name() string {
	return path.Base(n.path)
}

// IsRoot tells whether n is the root of its tree.
func (n *Node) IsRoot() bool {
	return n.path == Separator
}

// Equal tells whether n and other are handles on the same node.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.s == other.s && n.id == other.id
}

func (n *Node) String() string { return n.path }

func (n *Node) AddChild(name string) (*Node, error)           { return n.s.AddChild(n, name) }
func (n *Node) Child(name string) (*Node, error)              { return n.s.Child(n, name) }
func (n *Node) Children() *Iterator                           { return n.s.Children(n) }
func (n *Node) DeleteChild(name string) bool                  { return n.s.DeleteChild(n, name) }
func (n *Node) Parent() (*Node, bool)                         { return n.s.Parent(n) }
func (n *Node) HasChildren() bool                             { return n.s.HasChildren(n) }
func (n *Node) IsLeaf() bool                                  { return !n.s.HasChildren(n) }
func (n *Node) Created() time.Time                            { return n.s.Created(n) }
func (n *Node) LastModified() time.Time                       { return n.s.LastModified(n) }
func (n *Node) Properties() map[string]interface{}            { return n.s.Properties(n) }
func (n *Node) SetProperty(key string, value interface{})     { n.s.SetProperty(n, key, value) }
func (n *Node) DeleteProperty(key string) (interface{}, bool) { return n.s.DeleteProperty(n, key) }
func (n *Node) Content() (Content, bool)                      { return n.s.Content(n) }
func (n *Node) SetContent(c Content)                          { n.s.SetContent(n, c) }

// ChildPath is the path of a child of the node at parentPath called name.
func ChildPath(parentPath, name string) string {
	return path.Join(parentPath, name)
}

// CheckName returns an error wrapping ErrInvalidName
// if name cannot be the name of a child node.
func CheckName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Wrapf(ErrInvalidName, "%q", name)
	case strings.Contains(name, Separator):
		return errors.Wrapf(ErrInvalidName, "%q contains %s", name, Separator)
	}
	return nil
}
