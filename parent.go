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

// ParentOf recovers the arena that owns block h without relying on h's own
// stored owner field -- needed because a nested arena's block-view "em"
// slot is overwritten by its own tail pointer the moment it starts life as
// an arena. This is only needed for that case; an ordinary occupied block
// already carries a trustworthy owner in blockEM.
func ParentOf(h *header) *Arena {
	if isScratchBlock(h) {
		return (*Arena)(unsafe.Pointer(blockPrev(h)))
	}
	cur := h
	for {
		p := blockPrev(cur)
		if p == nil {
			return arenaFromBacklink(cur)
		}
		if !blockIsFree(p) && !looksNested(p) {
			return blockEM(p)
		}
		cur = p
	}
}

// looksNested reads the IS_NESTED bit shared by a Block's em slot and an
// Arena's tail slot (both live in w2): arena/nested-arena pointers are
// word-aligned so the bit never collides with a real occupied block's
// owner pointer.
func looksNested(h *header) bool {
	return flagBit(h.w2, 1)
}

// arenaFromBacklink decodes the word immediately before blockAddr per
// §4.8.3: low bit 1 means the rest is a byte offset back to the arena
// header; low bit 0 means the arena header sits exactly one header-size
// behind blockAddr.
func arenaFromBacklink(blockAddr *header) *Arena {
	word := *(*uintptr)(unsafe.Add(unsafe.Pointer(blockAddr), -int(wordSize)))
	if word&1 == 1 {
		offset := word >> 1
		return (*Arena)(unsafe.Add(unsafe.Pointer(blockAddr), -int(offset)))
	}
	return (*Arena)(unsafe.Add(unsafe.Pointer(blockAddr), -int(headerSize)))
}

// writeMagicBacklink records how far blockAddr sits past arena, for when
// create_static has to insert an alignment gap larger than the arena
// header's own natural footprint.
func writeMagicBacklink(arena *Arena, blockAddr unsafe.Pointer) {
	offset := uintptr(blockAddr) - uintptr(unsafe.Pointer(arena))
	word := (*uintptr)(unsafe.Add(blockAddr, -int(wordSize)))
	*word = (offset << 1) | 1
}
