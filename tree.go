/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package em

import (
	"math/bits"
	"unsafe"
)

// The free-block tree is a left-leaning red-black tree threaded directly
// through blockLeft/blockRight of the free blocks themselves -- there is no
// separate node allocation, the block header IS the tree node.

// freePayloadAddr is the address a block's payload would start at if
// allocated with zero padding; it is the address used for the tree's
// secondary (alignment-quality) and tertiary (raw address) key components.
func freePayloadAddr(h *header) uintptr {
	return uintptr(unsafe.Pointer(h)) + uintptr(headerSize)
}

func alignmentQuality(h *header) int {
	return bits.TrailingZeros(uint(freePayloadAddr(h)))
}

// compareKey orders two free blocks by (size asc, quality asc, address
// desc). A negative result means `a` belongs to the left of `b`.
func compareKey(a, b *header) int {
	sa, sb := blockSize(a), blockSize(b)
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	qa, qb := alignmentQuality(a), alignmentQuality(b)
	if qa != qb {
		if qa < qb {
			return -1
		}
		return 1
	}
	aa, ab := uintptr(unsafe.Pointer(a)), uintptr(unsafe.Pointer(b))
	if aa == ab {
		return 0
	}
	if aa > ab {
		return -1 // higher address sorts to the left
	}
	return 1
}

func isRed(h *header) bool {
	return h != nil && blockColor(h) == colorRed
}

func rotateLeft(h *header) *header {
	x := blockRight(h)
	blockSetRight(h, blockLeft(x))
	blockSetLeft(x, h)
	blockSetColor(x, blockColor(h))
	blockSetColor(h, colorRed)
	return x
}

func rotateRight(h *header) *header {
	x := blockLeft(h)
	blockSetLeft(h, blockRight(x))
	blockSetRight(x, h)
	blockSetColor(x, blockColor(h))
	blockSetColor(h, colorRed)
	return x
}

func flipColors(h *header) {
	flip := func(c uint8) uint8 {
		if c == colorRed {
			return colorBlack
		}
		return colorRed
	}
	blockSetColor(h, flip(blockColor(h)))
	if l := blockLeft(h); l != nil {
		blockSetColor(l, flip(blockColor(l)))
	}
	if r := blockRight(h); r != nil {
		blockSetColor(r, flip(blockColor(r)))
	}
}

func balance(h *header) *header {
	if isRed(blockRight(h)) && !isRed(blockLeft(h)) {
		h = rotateLeft(h)
	}
	if isRed(blockLeft(h)) && isRed(blockLeft(blockLeft(h))) {
		h = rotateRight(h)
	}
	if isRed(blockLeft(h)) && isRed(blockRight(h)) {
		flipColors(h)
	}
	return h
}

// treeInsert inserts node (already initialized as a red leaf with nil
// children) into the tree rooted at root, rebalancing on every level.
func treeInsert(root, node *header) *header {
	if root == nil {
		return node
	}
	if compareKey(node, root) < 0 {
		blockSetLeft(root, treeInsert(blockLeft(root), node))
	} else {
		blockSetRight(root, treeInsert(blockRight(root), node))
	}
	return balance(root)
}

// findBestFit performs the iterative best-fit descent documented in the
// component design: smallest block whose size, after alignment padding, is
// still >= the request.
func findBestFit(root *header, reqSize, reqAlign uintptr) *header {
	var best *header
	n := root
	for n != nil {
		if blockSize(n) < reqSize {
			n = blockRight(n)
			continue
		}
		payload := freePayloadAddr(n)
		padding := alignUp(payload, reqAlign) - payload
		if blockSize(n) >= reqSize+padding {
			best = n
			n = blockLeft(n)
		} else {
			n = blockRight(n)
		}
	}
	return best
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// removeMin detaches and returns the left-most (minimum-keyed) node of the
// subtree rooted at root, along with the subtree's new root.
func removeMin(root *header) (newRoot, removed *header) {
	assertInvariant(root != nil, "removeMin on nil subtree")
	if blockLeft(root) == nil {
		return blockRight(root), root
	}
	newLeft, removed := removeMin(blockLeft(root))
	blockSetLeft(root, newLeft)
	return root, removed
}

// deleteNode performs the pragmatic BST delete documented in the component
// design: it walks to the target by key, then -- if the target has two
// children -- splices in its in-order successor (rather than copying
// values, since a tree node *is* the physical block it represents and
// cannot be relocated). No rebalancing happens per level; that is left to
// a single top-level balance() call by the caller.
func deleteNode(root, target *header) *header {
	if root == nil {
		return nil
	}
	c := compareKey(target, root)
	switch {
	case c < 0:
		blockSetLeft(root, deleteNode(blockLeft(root), target))
		return root
	case c > 0:
		blockSetRight(root, deleteNode(blockRight(root), target))
		return root
	}
	left, right := blockLeft(root), blockRight(root)
	if right == nil {
		return left
	}
	if left == nil {
		return right
	}
	newRight, succ := removeMin(right)
	blockSetLeft(succ, left)
	blockSetRight(succ, newRight)
	blockSetColor(succ, colorRed)
	return succ
}

// detachBlock removes target from the tree rooted at root and returns the
// new root, rebalanced once at the top as documented in §4.3.
func detachBlock(root, target *header) *header {
	newRoot := deleteNode(root, target)
	if newRoot != nil {
		newRoot = balance(newRoot)
	}
	return newRoot
}
