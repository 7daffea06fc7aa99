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
	"runtime/debug"
	"unsafe"
)

// Free releases a pointer previously returned by Alloc/AllocAligned/Calloc
// (on any arena, nested or not) or by AllocScratch/AllocScratchAligned.
//
// Free never panics and never reports an error: a nil pointer, a misaligned
// pointer, a pointer this package doesn't recognize, or a double-free are
// all silently ignored, exactly as specified. Because the pointer is
// caller-supplied and unchecked, any wild read while trying to recover a
// header is recovered and treated the same way: a no-op.
func Free(ptr unsafe.Pointer) {
	defer func() { _ = recover() }()
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	freeUnsafe(ptr)
}

func freeUnsafe(ptr unsafe.Pointer) {
	if ptr == nil || uintptr(ptr)%wordSize != 0 {
		return
	}

	h := recoverHeader(ptr)
	if h == nil || uintptr(unsafe.Pointer(h))%wordSize != 0 {
		return
	}
	if blockIsFree(h) {
		return
	}
	if !validMagic(h, ptr) {
		return
	}
	a := blockEM(h)
	if a == nil || !isBlockWithinArena(a, h) {
		return
	}

	if isScratchBlock(h) {
		// alloc_scratch stamped em/magic like an ordinary block (that's how
		// recoverHeader found h at all), so the parent is just a.
		a.setHasScratch(false)
		return
	}

	freeBlockDirect(a, h)
}

// freeBlockDirect runs the poison/coalesce/reinsert tail of free() against a
// header already known to be a live, ordinary occupied block of a -- shared
// with Destroy's nested-arena path, which locates h by construction rather
// than by recovering it from a user pointer.
func freeBlockDirect(a *Arena, h *header) {
	assertInvariant(!blockIsFree(h), "freeBlockDirect on an already-free block")
	if Poisoning {
		poisonPayload(h)
	}

	blockSetIsFree(h, true)
	blockSetColor(h, colorRed)
	blockSetLeft(h, nil)
	blockSetRight(h, nil)

	survivor := coalesceForward(a, h)
	survivor = coalesceBackward(a, survivor)

	if survivor != a.tail() {
		insertFree(a, survivor)
	}
}

// recoverHeader reimplements the XOR-breadcrumb recovery from §4.5: the
// word before userPtr is either the block's own magic field (zero-padding
// case, which trivially XORs back to 0xDEADBEEF) or a breadcrumb written at
// alloc time storing headerPtr XOR userPtr.
func recoverHeader(userPtr unsafe.Pointer) *header {
	wordBefore := *(*uintptr)(unsafe.Add(userPtr, -int(wordSize)))
	x := wordBefore ^ uintptr(userPtr)
	if x == deadbeef {
		return (*header)(unsafe.Add(userPtr, -int(headerSize)))
	}
	return (*header)(unsafe.Pointer(x))
}

func poisonPayload(h *header) {
	n := blockSize(h)
	buf := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(h), headerSize)), int(n))
	for i := range buf {
		buf[i] = PoisonByte
	}
}

// coalesceForward merges h with its physical successor when possible,
// returning the block that survives as "the freed region" going forward.
func coalesceForward(a *Arena, h *header) *header {
	if h == a.tail() {
		blockSetSize(h, 0)
		return h
	}
	next := nextBlock(a, h)
	if next == nil {
		return h
	}
	if next == a.tail() {
		blockSetSize(h, 0)
		a.setTail(h)
		return h
	}
	if blockIsFree(next) {
		a.setFreeRoot(detachBlock(a.freeRoot(), next))
		mergeWithNext(h, next)
		fixupPrevOf(a, h)
	}
	return h
}

// coalesceBackward merges survivor into its physical predecessor when the
// predecessor is free, returning whichever block is now "the freed region".
func coalesceBackward(a *Arena, survivor *header) *header {
	p := blockPrev(survivor)
	if p == nil || !isBlockWithinArena(a, p) || !blockIsFree(p) {
		return survivor
	}
	a.setFreeRoot(detachBlock(a.freeRoot(), p))
	if survivor == a.tail() {
		blockSetSize(p, 0)
		a.setTail(p)
	} else {
		mergeWithNext(p, survivor)
		fixupPrevOf(a, p)
	}
	return p
}
