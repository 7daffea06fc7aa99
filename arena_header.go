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

// Arena is a single contiguous memory region under management. It is
// binary-compatible with a Block header so a parent arena can carve out a
// child arena and keep treating it as an ordinary occupied block.
type Arena header

func (a *Arena) h() *header { return (*header)(a) }

func (a *Arena) Capacity() uintptr  { return packedSize(a.w0) }
func (a *Arena) Alignment() uintptr { return packedAlignment(a.w0) }

func (a *Arena) setCapacity(c uintptr) bool {
	w, ok := packedSetSize(a.w0, c)
	if ok {
		a.w0 = w
	}
	return ok
}

func (a *Arena) setAlignment(align uintptr) bool {
	w, ok := packedSetAlignment(a.w0, align)
	if ok {
		a.w0 = w
	}
	return ok
}

// prev is reserved/compat for a top-level arena, and repurposed to point at
// the owning parent for a scratch sub-arena (which has no physical
// predecessor of its own).
func (a *Arena) parentLink() *Arena      { return (*Arena)(packedPtr(a.w1)) }
func (a *Arena) setParentLink(p *Arena)  { a.w1 = packedSetPtr(a.w1, unsafe.Pointer(p)) }

func (a *Arena) tail() *header     { return (*header)(packedPtr(a.w2)) }
func (a *Arena) setTail(t *header) { a.w2 = packedSetPtr(a.w2, unsafe.Pointer(t)) }

func (a *Arena) isDynamic() bool      { return flagBit(a.w2, 0) }
func (a *Arena) setIsDynamic(v bool)  { a.w2 = setFlagBit(a.w2, 0, v) }
func (a *Arena) isNested() bool       { return flagBit(a.w2, 1) }
func (a *Arena) setIsNested(v bool)   { a.w2 = setFlagBit(a.w2, 1, v) }

func (a *Arena) freeRoot() *header     { return (*header)(packedPtr(a.w3)) }
func (a *Arena) setFreeRoot(n *header) { a.w3 = packedSetPtr(a.w3, unsafe.Pointer(n)) }

func (a *Arena) hasPadding() bool     { return flagBit(a.w3, 0) }
func (a *Arena) setHasPadding(v bool) { a.w3 = setFlagBit(a.w3, 0, v) }
func (a *Arena) hasScratch() bool     { return flagBit(a.w3, 1) }
func (a *Arena) setHasScratch(v bool) { a.w3 = setFlagBit(a.w3, 1, v) }

// firstBlock is always recomputed from the arena's own stored alignment
// rather than cached: its address is whatever makes its *payload* (one
// header further in) satisfy a.Alignment(). Whether a back-link word was
// physically written in the resulting gap is a parent-recovery concern
// (see parent.go), not something firstBlock needs to know about.
func (a *Arena) firstBlock() *header {
	headerEnd := unsafe.Add(unsafe.Pointer(a), headerSize)
	desiredPayload := uintptr(unsafe.Add(headerEnd, headerSize))
	payloadAddr := alignUp(desiredPayload, a.Alignment())
	blockAddr := payloadAddr - uintptr(headerSize)
	return (*header)(unsafe.Pointer(blockAddr))
}

// end returns the address one past the arena's backing memory.
func (a *Arena) end() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(a), headerSize+a.Capacity())
}

// withinBounds reports whether h lies at or after firstBlock and strictly
// before the arena's end address.
func (a *Arena) withinBounds(h *header) bool {
	lo := uintptr(unsafe.Pointer(a.firstBlock()))
	hi := uintptr(a.end())
	addr := uintptr(unsafe.Pointer(h))
	return addr >= lo && addr < hi
}
