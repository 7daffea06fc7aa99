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

// CreateBump carves a block out of a via Alloc and reinterprets it as a
// Bump: a monotonic sub-allocator with none of the free-tree bookkeeping a
// full nested Arena carries, for callers that only ever grow and never free
// individual allocations out of order.
func (a *Arena) CreateBump(capacity uintptr) *Bump {
	if a == nil || capacity == 0 {
		return nil
	}
	ptr := a.Alloc(capacity)
	if ptr == nil {
		return nil
	}
	h := recoverHeader(ptr)
	b := (*Bump)(unsafe.Pointer(h))
	b.w2, b.w3 = 0, 0
	b.setOwner(a)
	b.setOffset(0)
	return b
}

// Alloc requests size bytes at DefaultAlignment from the unused remainder of
// b. Returns nil once b is exhausted; never shrinks or reorders earlier
// allocations.
func (b *Bump) Alloc(size uintptr) unsafe.Pointer {
	return b.AllocAligned(size, DefaultAlignment)
}

// AllocAligned is Alloc with an explicit alignment.
func (b *Bump) AllocAligned(size, align uintptr) unsafe.Pointer {
	if b == nil || size == 0 {
		return nil
	}
	if _, ok := alignmentExponent(align); !ok {
		return nil
	}
	free := uintptr(b.payload()) + b.offset()
	padding := alignUp(free, align) - free
	needed := padding + size
	if b.offset()+needed > b.Capacity() {
		return nil
	}
	ptr := unsafe.Add(b.payload(), b.offset()+padding)
	b.setOffset(b.offset() + needed)
	return ptr
}

// Trim splits the unused remainder of b off as an ordinary free block of its
// owning arena, shrinking b's own capacity down to exactly what's in use.
// Reports false if the remainder is too small to stand as its own block.
func (b *Bump) Trim() bool {
	if b == nil {
		return false
	}
	owner := b.owner()
	// Round up to a word boundary so the remainder's own payload (one header
	// further in) lands at a properly aligned next-block address.
	needed := roundUpWord(b.offset())
	rem, ok := splitBlock(owner, b.h(), needed)
	if !ok {
		return false
	}
	insertFree(owner, rem)
	return true
}

// Reset rewinds b to empty without releasing its capacity back to the
// owning arena; a subsequent Alloc may reuse the same bytes.
func (b *Bump) Reset() {
	if b == nil {
		return
	}
	if Poisoning {
		buf := unsafe.Slice((*byte)(b.payload()), int(b.Capacity()))
		for i := range buf {
			buf[i] = PoisonByte
		}
	}
	b.setOffset(0)
}

// Destroy frees b's whole host block back to its owning arena.
func (b *Bump) Destroy() {
	if b == nil {
		return
	}
	freeBlockDirect(b.owner(), b.h())
}
