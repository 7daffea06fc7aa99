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

// A scratch region is carved from the far end of an arena, growing
// downward, independent of the ordinary tail/free-tree chain. At most one
// is live per arena at a time; its total footprint (header + payload +
// trailing bookkeeping word) is recorded in the word immediately before the
// arena's own end, which is how a later allocation in the ordinary chain
// knows where it must stop.

// arenaUsableEnd is the address the tail (or any ordinary allocation) may
// not grow past: the arena's true end, or the base of the live scratch
// region if one exists.
func arenaUsableEnd(a *Arena) unsafe.Pointer {
	if !a.hasScratch() {
		return a.end()
	}
	return unsafe.Add(a.end(), -int(scratchConsumed(a)))
}

// scratchConsumed reads the trailing bookkeeping word written by whichever
// of AllocScratchAligned/CreateScratchArenaAligned carved the live region.
func scratchConsumed(a *Arena) uintptr {
	return *(*uintptr)(unsafe.Add(a.end(), -int(wordSize)))
}

// FreeSizeInTail reports how many bytes the ordinary chain could still grow
// into before reaching the arena's end or an active scratch region.
func (a *Arena) FreeSizeInTail() uintptr {
	if a == nil {
		return 0
	}
	return tailCapacity(a)
}

// AllocScratch carves size bytes at DefaultAlignment from the far end of a,
// independent of the ordinary free-tree/tail chain. Returns nil if a scratch
// region is already live, or there isn't room.
func (a *Arena) AllocScratch(size uintptr) unsafe.Pointer {
	return a.AllocScratchAligned(size, DefaultAlignment)
}

// AllocScratchAligned is AllocScratch with an explicit alignment.
func (a *Arena) AllocScratchAligned(size, align uintptr) unsafe.Pointer {
	blockAddr, total, ok := carveScratch(a, size, align)
	if !ok {
		return nil
	}
	h := (*header)(unsafe.Pointer(blockAddr))
	h.w0, h.w1, h.w2, h.w3 = 0, 0, 0, 0
	if !blockSetSize(h, total-uintptr(headerSize)-wordSize) {
		return nil
	}
	blockSetIsFree(h, false)
	blockSetColor(h, colorBlack)
	blockSetEM(h, a)
	userPtr := unsafe.Add(unsafe.Pointer(h), headerSize)
	stampMagic(h, userPtr)

	*(*uintptr)(unsafe.Add(a.end(), -int(wordSize))) = total
	a.setHasScratch(true)
	return userPtr
}

// FreeScratch releases the arena's live scratch region, however it was
// carved (AllocScratch or CreateScratchArena). There is nothing to poison or
// coalesce: the region simply stops being reserved.
func (a *Arena) FreeScratch() {
	if a == nil {
		return
	}
	a.setHasScratch(false)
}

// CreateScratchArena reinterprets a freshly carved scratch region as a
// nested Arena, the way create_nested reinterprets an ordinary block: the
// block header IS the arena header, no second header is laid down.
func (a *Arena) CreateScratchArena(size uintptr, opts ...Option) *Arena {
	return a.CreateScratchArenaAligned(size, resolveOptions(opts).Alignment)
}

// CreateScratchArenaAligned is CreateScratchArena with an explicit
// alignment for the nested arena's own first block.
func (a *Arena) CreateScratchArenaAligned(size, alignment uintptr) *Arena {
	blockAddr, total, ok := carveScratch(a, size, DefaultAlignment)
	if !ok {
		return nil
	}

	child := (*Arena)(unsafe.Pointer(blockAddr))
	child.w0, child.w1, child.w2, child.w3 = 0, 0, 0, 0
	if !child.setCapacity(size) || !child.setAlignment(alignment) {
		return nil
	}
	child.setParentLink(a)
	if uintptr(unsafe.Pointer(child.firstBlock()))+BlockMinSize > uintptr(child.end()) {
		return nil
	}
	child.reset(false)

	// Mark the reserved occupied+BLACK combo on the same w1 word the arena
	// otherwise leaves reserved: this is how Destroy tells a scratch-born
	// nested arena apart from an ordinary one carved via CreateNested.
	blockSetIsFree(child.h(), false)
	blockSetColor(child.h(), colorBlack)

	*(*uintptr)(unsafe.Add(a.end(), -int(wordSize))) = total
	a.setHasScratch(true)
	return child
}

// carveScratch computes where a size-byte, align-aligned scratch region
// would sit at the far end of a, with its payload ending exactly at the
// trailing bookkeeping word so there is never any padding to account for --
// unlike a forward allocation, a scratch carve is free to choose the block's
// own address, not just its payload's.
func carveScratch(a *Arena, size, align uintptr) (blockAddr uintptr, total uintptr, ok bool) {
	if a == nil || size == 0 || a.hasScratch() {
		return 0, 0, false
	}
	if _, valid := alignmentExponent(align); !valid {
		return 0, 0, false
	}
	end := a.end()
	idealPayload := uintptr(end) - wordSize - size
	alignedPayload := idealPayload &^ (align - 1)
	addr := alignedPayload - uintptr(headerSize)
	if addr <= uintptr(unsafe.Pointer(a.tail())) {
		return 0, 0, false
	}
	return addr, uintptr(end) - addr, true
}
