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
	"unsafe"

	"github.com/easymem/em/cache/mempool"
)

// CreateStatic lays an arena out over caller-owned memory: no allocation of
// any kind happens, so destroying it is a no-op and the caller remains
// responsible for buf's lifetime. This is the zero-third-party-allocation
// path for callers that can't tolerate em reaching for the heap at all.
//
// opts follows the gopool Option shape (see options.go); WithAlignment is
// the only tunable so far, equivalent to calling CreateStaticAligned
// directly.
func CreateStatic(buf []byte, opts ...Option) *Arena {
	return CreateStaticAligned(buf, resolveOptions(opts).Alignment)
}

// CreateStaticAligned is CreateStatic with an explicit natural alignment for
// every tail-carved allocation that doesn't ask for something stricter.
func CreateStaticAligned(buf []byte, alignment uintptr) *Arena {
	if len(buf) == 0 {
		return nil
	}
	if _, ok := alignmentExponent(alignment); !ok {
		return nil
	}
	base := unsafe.Pointer(&buf[0])
	alignedBase := alignUp(uintptr(base), wordSize)
	slack := alignedBase - uintptr(base)
	if slack+uintptr(headerSize)+BlockMinSize > uintptr(len(buf)) {
		return nil
	}

	a := (*Arena)(unsafe.Pointer(alignedBase))
	a.w0, a.w1, a.w2, a.w3 = 0, 0, 0, 0

	available := uintptr(len(buf)) - slack - uintptr(headerSize)
	capacity := available &^ (wordSize - 1)
	if !a.setCapacity(capacity) || !a.setAlignment(alignment) {
		return nil
	}

	first := a.firstBlock()
	firstAddr := uintptr(unsafe.Pointer(first))
	end := uintptr(a.end())
	if firstAddr+BlockMinSize > end {
		return nil
	}

	gap := firstAddr - (alignedBase + uintptr(headerSize))
	if gap >= wordSize {
		writeMagicBacklink(a, unsafe.Pointer(first))
		a.setHasPadding(true)
	}

	tail := createBlockAt(unsafe.Pointer(first), nil)
	blockSetSize(tail, end-firstAddr-uintptr(headerSize))
	a.setTail(tail)
	return a
}

// Create asks mempool for a capacity-sized backing slab and lays an arena
// out over it; Destroy returns the slab to the pool.
func Create(capacity uintptr, opts ...Option) *Arena {
	return CreateAligned(capacity, resolveOptions(opts).Alignment)
}

// CreateAligned is Create with an explicit natural alignment.
func CreateAligned(capacity, alignment uintptr) *Arena {
	if capacity == 0 {
		return nil
	}
	if _, ok := alignmentExponent(alignment); !ok {
		return nil
	}
	need := uintptr(headerSize) + capacity
	n := wordSize + need
	buf := mempool.Malloc(int(n))
	if len(buf) == 0 {
		return nil
	}

	base := unsafe.Pointer(&buf[0])
	*(*uintptr)(base) = uintptr(cap(buf))
	arenaMem := unsafe.Slice((*byte)(unsafe.Add(base, wordSize)), int(need))

	a := CreateStaticAligned(arenaMem, alignment)
	if a == nil {
		mempool.Free(buf)
		return nil
	}
	a.setIsDynamic(true)
	return a
}

// CreateNested carves a block of at least size bytes plus one header out of
// a via Alloc and reinterprets it as a nested Arena: the block header IS the
// arena header, the same way CreateScratchArena reinterprets a scratch carve.
func (a *Arena) CreateNested(size uintptr, opts ...Option) *Arena {
	return a.CreateNestedAligned(size, resolveOptions(opts).Alignment)
}

// CreateNestedAligned is CreateNested with an explicit natural alignment for
// the nested arena's own first block.
func (a *Arena) CreateNestedAligned(size, alignment uintptr) *Arena {
	if a == nil || size == 0 {
		return nil
	}
	if _, ok := alignmentExponent(alignment); !ok {
		return nil
	}
	need := uintptr(headerSize) + size
	ptr := a.Alloc(need)
	if ptr == nil {
		return nil
	}
	h := recoverHeader(ptr)

	child := (*Arena)(unsafe.Pointer(h))
	// w1 (prev + IS_FREE/COLOR) is left exactly as Alloc set it: the parent's
	// physical chain still needs a trustworthy prev/occupied/red block there.
	// w0 keeps the block size Alloc gave it as the arena's capacity, so the
	// parent's forward arithmetic over this block still lands on its successor.
	child.w2, child.w3 = 0, 0
	if !child.setAlignment(alignment) {
		return nil
	}
	if uintptr(unsafe.Pointer(child.firstBlock()))+BlockMinSize > uintptr(child.end()) {
		return nil
	}
	child.reset(false)
	child.setIsNested(true)
	return child
}

// Reset rewinds a to a single free block spanning its whole usable capacity,
// without touching payload bytes. A live scratch region is dropped along
// with it; a nested arena's reset never reaches back into its parent.
func (a *Arena) Reset() {
	a.reset(false)
}

// ResetZero is Reset but also zeroes the whole usable region first.
func (a *Arena) ResetZero() {
	a.reset(true)
}

func (a *Arena) reset(zeroFirst bool) {
	if a == nil {
		return
	}
	a.setHasScratch(false)
	a.setFreeRoot(nil)

	first := a.firstBlock()
	if zeroFirst {
		n := uintptr(a.end()) - uintptr(unsafe.Pointer(first)) - uintptr(headerSize)
		zero(unsafe.Add(unsafe.Pointer(first), headerSize), n)
	}
	tail := createBlockAt(unsafe.Pointer(first), nil)
	blockSetSize(tail, uintptr(a.end())-uintptr(unsafe.Pointer(first))-uintptr(headerSize))
	a.setTail(tail)
}

// Destroy releases whatever resource backs a: the pool slab for a
// dynamically-created arena, the parent's block for a nested one (scratch-
// born or otherwise), or nothing for a caller-owned static arena.
func (a *Arena) Destroy() {
	if a == nil {
		return
	}

	if isScratchBlock(a.h()) {
		if parent := a.parentLink(); parent != nil {
			parent.setHasScratch(false)
		}
		return
	}

	if a.isNested() {
		if parent := ParentOf(a.h()); parent != nil {
			freeBlockDirect(parent, a.h())
		}
		return
	}

	if a.isDynamic() {
		base := unsafe.Add(unsafe.Pointer(a), -int(wordSize))
		capVal := *(*uintptr)(base)
		lenVal := wordSize + uintptr(headerSize) + a.Capacity()
		buf := unsafe.Slice((*byte)(base), int(capVal))[:lenVal]
		mempool.Free(buf)
	}
}
