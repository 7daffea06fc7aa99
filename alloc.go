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

import "unsafe"

// Alloc requests size bytes at DefaultAlignment. Returns nil on failure.
func (a *Arena) Alloc(size uintptr) unsafe.Pointer {
	return a.AllocAligned(size, DefaultAlignment)
}

// AllocAligned requests size bytes aligned to align, which must be a power
// of two in [wordSize, wordSize<<maxExp]. Returns nil on failure; never
// panics or returns an error value, per the allocator's null-sentinel
// contract.
func (a *Arena) AllocAligned(size, align uintptr) unsafe.Pointer {
	if a == nil || size == 0 {
		return nil
	}
	if size > a.Capacity() {
		return nil
	}
	if _, ok := alignmentExponent(align); !ok {
		return nil
	}
	if ptr := a.allocFromTree(size, align); ptr != nil {
		return ptr
	}
	return a.allocFromTail(size, align)
}

// Calloc allocates nmemb*size bytes at DefaultAlignment and zeroes them.
// Returns nil on overflow or ordinary allocation failure.
func (a *Arena) Calloc(nmemb, size uintptr) unsafe.Pointer {
	if nmemb == 0 || size == 0 {
		return nil
	}
	total := nmemb * size
	if total/nmemb != size { // overflow
		return nil
	}
	ptr := a.Alloc(total)
	if ptr == nil {
		return nil
	}
	zero(ptr, total)
	return ptr
}

func zero(ptr unsafe.Pointer, n uintptr) {
	buf := unsafe.Slice((*byte)(ptr), int(n))
	for i := range buf {
		buf[i] = 0
	}
}

// allocFromTree tries the free-tree first so churning callers keep the
// arena compact instead of growing the tail monotonically.
func (a *Arena) allocFromTree(size, align uintptr) unsafe.Pointer {
	node := findBestFit(a.freeRoot(), size, align)
	if node == nil {
		return nil
	}
	a.setFreeRoot(detachBlock(a.freeRoot(), node))

	payload := freePayloadAddr(node)
	padding := alignUp(payload, align) - payload
	needed := roundUpWord(padding + size)

	if rem, ok := splitBlock(a, node, needed); ok {
		insertFree(a, rem)
	}

	userPtr := unsafe.Add(unsafe.Pointer(node), uintptr(headerSize)+padding)
	blockSetIsFree(node, false)
	blockSetColor(node, colorRed)
	if padding > 0 {
		writeBreadcrumb(node, userPtr)
	}
	blockSetEM(node, a)
	stampMagic(node, userPtr)
	return userPtr
}

// allocFromTail carves the allocation out of the free tail, growing a new
// (possibly empty) tail behind it.
func (a *Arena) allocFromTail(size, align uintptr) unsafe.Pointer {
	tail := a.tail()
	payload := freePayloadAddr(tail)
	padding := alignUp(payload, align) - payload
	natural := a.Alignment()

	if padding >= BlockMinSize && align > natural {
		frontSize := padding - uintptr(headerSize)
		blockSetSize(tail, frontSize)
		newTailAddr := unsafe.Add(unsafe.Pointer(tail), uintptr(headerSize)+frontSize)
		newTail := createBlockAt(newTailAddr, tail)
		a.setTail(newTail)
		insertFree(a, tail)
		tail = newTail
		payload = freePayloadAddr(tail)
		padding = alignUp(payload, align) - payload
	}

	needed := roundUpWord(padding + size)
	capacity := tailCapacity(a)
	if needed > capacity {
		return nil
	}

	allocSize := roundUp(needed, natural)
	if allocSize > capacity || capacity-allocSize < BlockMinSize {
		allocSize = capacity
	}

	blockSetSize(tail, allocSize)
	if allocSize != capacity {
		// Only a partial carve leaves room for a fresh tail block; absorbing
		// the whole remaining capacity leaves the now-occupied block as the
		// tail, same as the original's alloc_in_tail_full.
		newTailAddr := unsafe.Add(unsafe.Pointer(tail), uintptr(headerSize)+allocSize)
		newTail := createBlockAt(newTailAddr, tail)
		a.setTail(newTail)
	}

	userPtr := unsafe.Add(unsafe.Pointer(tail), uintptr(headerSize)+padding)
	blockSetIsFree(tail, false)
	blockSetColor(tail, colorRed)
	if padding > 0 {
		writeBreadcrumb(tail, userPtr)
	}
	blockSetEM(tail, a)
	stampMagic(tail, userPtr)
	return userPtr
}

// splitBlock carves off the remainder of h beyond `needed` bytes of
// payload, iff that remainder is large enough to stand as its own block.
func splitBlock(a *Arena, h *header, needed uintptr) (*header, bool) {
	full := blockSize(h)
	if full <= needed || full-needed < BlockMinSize {
		return nil, false
	}
	blockSetSize(h, needed)
	remAddr := unsafe.Add(unsafe.Pointer(h), uintptr(headerSize)+needed)
	rem := createBlockAt(remAddr, h)
	blockSetSize(rem, full-needed-uintptr(headerSize))
	fixupPrevOf(a, rem)
	return rem, true
}

func insertFree(a *Arena, h *header) {
	blockSetIsFree(h, true)
	blockSetColor(h, colorRed)
	blockSetLeft(h, nil)
	blockSetRight(h, nil)
	a.setFreeRoot(treeInsert(a.freeRoot(), h))
}

func roundUpWord(n uintptr) uintptr { return roundUp(n, wordSize) }

func roundUp(n, unit uintptr) uintptr {
	if unit == 0 {
		return n
	}
	return (n + unit - 1) &^ (unit - 1)
}

// tailCapacity is how many payload bytes the tail could grow into before
// running into the arena's end (or the base of an active scratch region).
func tailCapacity(a *Arena) uintptr {
	if !blockIsFree(a.tail()) {
		return 0
	}
	usableEnd := uintptr(arenaUsableEnd(a))
	tailPayload := uintptr(unsafe.Pointer(a.tail())) + uintptr(headerSize)
	if usableEnd < tailPayload {
		return 0
	}
	return usableEnd - tailPayload
}
