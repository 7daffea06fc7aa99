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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// makeFreeBlock builds a standalone free block of the given size at a fresh
// address, detached from any arena -- enough for exercising tree.go's pure
// key-ordering and rebalancing logic in isolation.
func makeFreeBlock(t *testing.T, size uintptr) *header {
	t.Helper()
	buf := make([]byte, uintptr(headerSize)+size+64)
	h := (*header)(unsafe.Pointer(&buf[0]))
	h.w0, h.w1, h.w2, h.w3 = 0, 0, 0, 0
	require.True(t, blockSetSize(h, size))
	blockSetIsFree(h, true)
	blockSetColor(h, colorRed)
	return h
}

func inorder(root *header, out *[]*header) {
	if root == nil {
		return
	}
	inorder(blockLeft(root), out)
	*out = append(*out, root)
	inorder(blockRight(root), out)
}

func TestTreeInsertKeepsSortedOrder(t *testing.T) {
	sizes := []uintptr{64, 8, 256, 32, 128, 16, 512}
	var root *header
	for _, sz := range sizes {
		n := makeFreeBlock(t, sz)
		blockSetLeft(n, nil)
		blockSetRight(n, nil)
		root = treeInsert(root, n)
	}

	var nodes []*header
	inorder(root, &nodes)
	require.Len(t, nodes, len(sizes))
	for i := 1; i < len(nodes); i++ {
		require.LessOrEqual(t, compareKey(nodes[i-1], nodes[i]), 0)
	}
}

func TestFindBestFitPicksSmallestSufficientBlock(t *testing.T) {
	var root *header
	for _, sz := range []uintptr{512, 64, 128, 32, 256} {
		n := makeFreeBlock(t, sz)
		blockSetLeft(n, nil)
		blockSetRight(n, nil)
		root = treeInsert(root, n)
	}

	best := findBestFit(root, 100, wordSize)
	require.NotNil(t, best)
	require.Equal(t, uintptr(128), blockSize(best))
}

func TestFindBestFitReturnsNilWhenNothingFits(t *testing.T) {
	var root *header
	n := makeFreeBlock(t, 32)
	blockSetLeft(n, nil)
	blockSetRight(n, nil)
	root = treeInsert(root, n)

	require.Nil(t, findBestFit(root, 4096, wordSize))
}

func TestFindBestFitAccountsForAlignmentPadding(t *testing.T) {
	// Two same-size blocks; only the one whose payload already satisfies a
	// bigger alignment should qualify once padding is taken into account.
	const align = 64
	buf := make([]byte, 1024)
	base := uintptr(unsafe.Pointer(&buf[0]))
	off := alignUp(base, align) - base
	placeFree := func(payloadOff uintptr) *header {
		h := (*header)(unsafe.Add(unsafe.Pointer(&buf[0]), off+payloadOff-uintptr(headerSize)))
		require.True(t, blockSetSize(h, 40))
		blockSetIsFree(h, true)
		blockSetColor(h, colorRed)
		return h
	}
	aligned := placeFree(align)                 // payload on a 64-byte boundary
	misaligned := placeFree(4*align + wordSize) // payload one word past one

	var root *header
	for _, n := range []*header{misaligned, aligned} {
		blockSetLeft(n, nil)
		blockSetRight(n, nil)
		root = treeInsert(root, n)
	}

	// requesting 40 bytes at word alignment must fit at least one of them
	best := findBestFit(root, 40, wordSize)
	require.NotNil(t, best)
	require.Equal(t, uintptr(40), blockSize(best))

	// at 64-byte alignment the misaligned block would need padding it lacks
	require.Equal(t, aligned, findBestFit(root, 40, align))
}

func TestDetachBlockRemovesExactlyOneNode(t *testing.T) {
	var root *header
	nodes := make([]*header, 0, 8)
	for _, sz := range []uintptr{16, 32, 48, 64, 80, 96, 112, 128} {
		n := makeFreeBlock(t, sz)
		blockSetLeft(n, nil)
		blockSetRight(n, nil)
		nodes = append(nodes, n)
		root = treeInsert(root, n)
	}

	target := nodes[3]
	root = detachBlock(root, target)

	var remaining []*header
	inorder(root, &remaining)
	require.Len(t, remaining, len(nodes)-1)
	for _, n := range remaining {
		require.NotEqual(t, target, n)
	}
}

func TestRemoveMinReturnsLeftmost(t *testing.T) {
	var root *header
	for _, sz := range []uintptr{80, 40, 20, 60, 100} {
		n := makeFreeBlock(t, sz)
		blockSetLeft(n, nil)
		blockSetRight(n, nil)
		root = treeInsert(root, n)
	}

	newRoot, removed := removeMin(root)
	require.Equal(t, uintptr(20), blockSize(removed))

	var remaining []*header
	inorder(newRoot, &remaining)
	require.Len(t, remaining, 4)
	for _, n := range remaining {
		require.NotEqual(t, uintptr(20), blockSize(n))
	}
}
