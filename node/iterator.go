package node

// Iterator produces a sequence of nodes.
//
//	it := parent.Children()
//	for it.Next() {
//	  child := it.Node()
//	  ...
//	}
type Iterator struct {
	nodes []*Node
	cur   int
}

// NewIterator produces an Iterator over nodes,
// which the caller must already have put in order.
func NewIterator(nodes []*Node) *Iterator {
	return &Iterator{nodes: nodes, cur: -1}
}

// Next advances the iterator.
// It reports false when there are no more nodes.
func (it *Iterator) Next() bool {
	if it.cur >= len(it.nodes) {
		return false
	}
	it.cur++
	return it.cur < len(it.nodes)
}

// Node is the node at the iterator's current position.
// It is valid only after Next reports true.
func (it *Iterator) Node() *Node {
	return it.nodes[it.cur]
}

// Len is the total number of nodes in the sequence.
func (it *Iterator) Len() int {
	return len(it.nodes)
}

// All drains the iterator, returning the remaining nodes.
func (it *Iterator) All() []*Node {
	var result []*Node
	for it.Next() {
		result = append(result, it.Node())
	}
	return result
}
