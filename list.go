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

// nextBlockUnsafe computes the address one block past h purely by
// arithmetic: header + headerSize + payload size. It does not check bounds;
// callers must confirm the result is still inside the arena.
func nextBlockUnsafe(h *header) *header {
	return (*header)(unsafe.Add(unsafe.Pointer(h), headerSize+blockSize(h)))
}

// isBlockWithinArena reports whether h's address lies inside a's backing
// memory (the whole region, including any active scratch tail).
func isBlockWithinArena(a *Arena, h *header) bool {
	return a.withinBounds(h)
}

// isBlockInActivePart reports whether h lies at or before the arena's tail,
// i.e. it is part of the ordinary physical chain rather than a scratch
// region living past it.
func isBlockInActivePart(a *Arena, h *header) bool {
	if !a.withinBounds(h) {
		return false
	}
	return uintptr(unsafe.Pointer(h)) <= uintptr(unsafe.Pointer(a.tail()))
}

// nextBlock returns the physical successor of h, or nil if h is the tail or
// the arithmetic successor would fall outside the active chain.
func nextBlock(a *Arena, h *header) *header {
	if h == a.tail() {
		return nil
	}
	n := nextBlockUnsafe(h)
	if !isBlockInActivePart(a, n) {
		return nil
	}
	return n
}

// createBlockAt initializes a fresh, empty, free, red block at addr whose
// physical predecessor is prev.
func createBlockAt(addr unsafe.Pointer, prev *header) *header {
	n := (*header)(addr)
	n.w0, n.w1, n.w2, n.w3 = 0, 0, 0, 0
	blockSetIsFree(n, true)
	blockSetColor(n, colorRed)
	blockSetLeft(n, nil)
	blockSetRight(n, nil)
	blockSetPrev(n, prev)
	return n
}

// createNextBlock lays out a new empty block immediately after prev.
func createNextBlock(prev *header) *header {
	return createBlockAt(unsafe.Pointer(nextBlockUnsafe(prev)), prev)
}

// fixupPrevOf rewires the physical successor of h (if any, and if it is
// still part of the active chain) to point its prev back at h. Needed after
// splits and merges change h's size.
func fixupPrevOf(a *Arena, h *header) {
	if n := nextBlock(a, h); n != nil {
		blockSetPrev(n, h)
	}
}

// mergeWithNext absorbs `next` (which must be h's immediate physical
// successor) into h: one header's worth of space plus next's whole payload
// becomes part of h's payload.
func mergeWithNext(h, next *header) {
	merged := blockSize(h) + uintptr(headerSize) + blockSize(next)
	blockSetSize(h, merged)
}
