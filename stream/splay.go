package stream

import "github.com/hpcgpu/blameshift/collab"

// splayNode is one entry in the ordered splay map from driver stream
// handle to *StreamNode (spec.md §4.1: "ordered map keyed by the opaque
// handle ... expected O(log n) amortized via splay; on hit the node is
// rotated to the root"). This is a textbook top-down splay tree; the only
// domain-specific thing about it is the key type.
type splayNode struct {
	key         collab.StreamHandle
	value       *StreamNode
	left, right *splayNode
}

type splayTree struct {
	root *splayNode
	size int
}

// splay rotates the node with the given key (or the last node visited on
// the search path, if key is absent) to the root. Standard top-down splay
// using left/right sentinel trees.
func (t *splayTree) splay(key collab.StreamHandle) {
	if t.root == nil {
		return
	}
	var header splayNode
	leftMax, rightMin := &header, &header
	cur := t.root

	for {
		switch {
		case key < cur.key:
			if cur.left == nil {
				goto done
			}
			if key < cur.left.key {
				// rotate right
				y := cur.left
				cur.left = y.right
				y.right = cur
				cur = y
				if cur.left == nil {
					goto done
				}
			}
			rightMin.left = cur
			rightMin = cur
			cur = cur.left
		case key > cur.key:
			if cur.right == nil {
				goto done
			}
			if key > cur.right.key {
				// rotate left
				y := cur.right
				cur.right = y.left
				y.left = cur
				cur = y
				if cur.right == nil {
					goto done
				}
			}
			leftMax.right = cur
			leftMax = cur
			cur = cur.right
		default:
			goto done
		}
	}
done:
	leftMax.right = cur.left
	rightMin.left = cur.right
	cur.left = header.right
	cur.right = header.left
	t.root = cur
}

func (t *splayTree) get(key collab.StreamHandle) *StreamNode {
	t.splay(key)
	if t.root != nil && t.root.key == key {
		return t.root.value
	}
	return nil
}

// insert returns false if key is already present (spec.md §8: "The stream
// registry rejects reinsertion of an already-present handle").
func (t *splayTree) insert(key collab.StreamHandle, value *StreamNode) bool {
	if t.root == nil {
		t.root = &splayNode{key: key, value: value}
		t.size++
		return true
	}
	t.splay(key)
	if t.root.key == key {
		return false
	}
	n := &splayNode{key: key, value: value}
	if key < t.root.key {
		n.left = t.root.left
		n.right = t.root
		t.root.left = nil
	} else {
		n.right = t.root.right
		n.left = t.root
		t.root.right = nil
	}
	t.root = n
	t.size++
	return true
}

func (t *splayTree) remove(key collab.StreamHandle) bool {
	if t.root == nil {
		return false
	}
	t.splay(key)
	if t.root.key != key {
		return false
	}
	if t.root.left == nil {
		t.root = t.root.right
	} else {
		right := t.root.right
		t.root = t.root.left
		t.splay(key) // bring the in-order predecessor to the root
		t.root.right = right
	}
	t.size--
	return true
}

// walkPostOrder visits every value in post-order (spec.md §4.1,
// close_all: "post-order walk that finalizes each stream's trace
// channel").
func (t *splayTree) walkPostOrder(fn func(*StreamNode)) {
	var walk func(*splayNode)
	walk = func(n *splayNode) {
		if n == nil {
			return
		}
		walk(n.left)
		walk(n.right)
		fn(n.value)
	}
	walk(t.root)
}
