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

// Package em is a single-region memory allocator: arenas carved out of a
// caller buffer, the pool, or a parent arena, served by a best-fit
// red-black tree over free blocks with a monotonic tail behind it.
package em

import (
	"math/bits"
	"unsafe"
)

// header is the one physical layout shared by a Block, an Arena and a Bump.
// Reading it as a Block, an Arena or a Bump is a matter of which accessor
// family is used on the same four words; no field is ever added or removed
// between the three interpretations, matching unsafex/malloc's convention of
// reading/writing fixed-offset fields directly on a raw backing slab rather
// than modeling each variant as an incompatible struct.
//
//	w0: size_and_alignment (Block/Arena) -- low 3 bits: alignment exponent
//	w1: prev + IS_FREE/COLOR (Block)     -- reserved/compat, or scratch parent-link (Arena)
//	w2: left (free) / em (occupied) (Block) -- tail + IS_DYNAMIC/IS_NESTED (Arena) -- em (Bump)
//	w3: right (free) / magic (occupied) (Block) -- free_blocks + HAS_PADDING/HAS_SCRATCH (Arena) -- offset (Bump)
type header struct {
	w0, w1, w2, w3 uintptr
}

const (
	wordSize = unsafe.Sizeof(uintptr(0))
	headerSize = unsafe.Sizeof(header{})

	// MinBufferSize is the minimum payload reserved for a distinct block.
	MinBufferSize = 16
	// BlockMinSize is the smallest size a standalone block may be split off as.
	BlockMinSize = uintptr(headerSize) + MinBufferSize

	// DefaultAlignment is used by every non-"Aligned" entry point.
	DefaultAlignment = 16

	// PoisonByte fills a freed payload when poisoning is enabled.
	PoisonByte = 0xDD

	minExp    = 3 // log2(wordSize): exponent is relative to the word size
	expBits   = 3 // three bits of size_and_alignment hold the exponent
	maxExp    = (1 << expBits) - 1
	sizeMask  = ^uintptr(0x7) // clears the low 3 bits
	flagMask2 = uintptr(0x3)  // IS_FREE | COLOR, or IS_DYNAMIC | IS_NESTED
)

const deadbeef = uintptr(0xDEADBEEF)

// --- size_and_alignment (shared shape, used by Block.size and Arena.capacity) ---
//
// The payload size is carried shifted left by expBits so it shares the word
// with the 3-bit alignment exponent in the low bits, the same way the
// original packs size << 3 alongside the exponent rather than requiring the
// size itself to already be a multiple of 8.

func packedSize(word uintptr) uintptr { return (word & sizeMask) >> expBits }

func packedSetSize(word, size uintptr) (uintptr, bool) {
	shifted := size << expBits
	if shifted>>expBits != size { // overflow: size too large to shift into the word
		return word, false
	}
	return (word &^ sizeMask) | shifted, true
}

func packedAlignment(word uintptr) uintptr {
	exp := uint(word & 0x7)
	return uintptr(1) << (exp + minExp)
}

func packedSetAlignment(word, align uintptr) (uintptr, bool) {
	exp, ok := alignmentExponent(align)
	if !ok {
		return word, false
	}
	return (word &^ 0x7) | uintptr(exp), true
}

// alignmentExponent validates `align` is a power of two in
// [wordSize, wordSize<<maxExp] and returns its 3-bit exponent.
func alignmentExponent(align uintptr) (uintptr, bool) {
	if align == 0 || align&(align-1) != 0 {
		return 0, false
	}
	if align < wordSize {
		return 0, false
	}
	ctz := uintptr(bits.TrailingZeros(uint(align)))
	if ctz < minExp {
		return 0, false
	}
	exp := ctz - minExp
	if exp > maxExp {
		return 0, false
	}
	return exp, true
}

// --- prev + 2-bit flags (shared shape, used by Block.prev and Arena.prev) ---

func packedPtr(word uintptr) unsafe.Pointer {
	return unsafe.Pointer(word &^ flagMask2)
}

func packedSetPtr(word uintptr, ptr unsafe.Pointer) uintptr {
	return uintptr(ptr) | (word & flagMask2)
}

func flagBit(word uintptr, bit uint) bool { return word&(1<<bit) != 0 }

func setFlagBit(word uintptr, bit uint, v bool) uintptr {
	if v {
		return word | (1 << bit)
	}
	return word &^ (1 << bit)
}

// --- block-level accessors ---

func blockSize(h *header) uintptr    { return packedSize(h.w0) }
func blockAlignment(h *header) uintptr { return packedAlignment(h.w0) }

func blockSetSize(h *header, size uintptr) bool {
	w, ok := packedSetSize(h.w0, size)
	if ok {
		h.w0 = w
	}
	return ok
}

func blockSetAlignment(h *header, align uintptr) bool {
	w, ok := packedSetAlignment(h.w0, align)
	if ok {
		h.w0 = w
	}
	return ok
}

func blockPrev(h *header) *header { return (*header)(packedPtr(h.w1)) }

func blockSetPrev(h *header, prev *header) {
	h.w1 = packedSetPtr(h.w1, unsafe.Pointer(prev))
}

func blockIsFree(h *header) bool        { return flagBit(h.w1, 0) }
func blockSetIsFree(h *header, v bool)   { h.w1 = setFlagBit(h.w1, 0, v) }

// color: 0 = red, 1 = black
func blockColor(h *header) uint8 {
	if flagBit(h.w1, 1) {
		return colorBlack
	}
	return colorRed
}

func blockSetColor(h *header, c uint8) {
	h.w1 = setFlagBit(h.w1, 1, c == colorBlack)
}

const (
	colorRed   = 0
	colorBlack = 1
)

// isScratchBlock identifies the reserved occupied+BLACK combination.
func isScratchBlock(h *header) bool {
	return !blockIsFree(h) && blockColor(h) == colorBlack
}

func blockLeft(h *header) *header  { return (*header)(unsafe.Pointer(h.w2)) }
func blockRight(h *header) *header { return (*header)(unsafe.Pointer(h.w3)) }

func blockSetLeft(h *header, n *header)  { h.w2 = uintptr(unsafe.Pointer(n)) }
func blockSetRight(h *header, n *header) { h.w3 = uintptr(unsafe.Pointer(n)) }

func blockEM(h *header) *Arena { return (*Arena)(unsafe.Pointer(h.w2)) }
func blockSetEM(h *header, a *Arena) { h.w2 = uintptr(unsafe.Pointer(a)) }

func blockMagic(h *header) uintptr      { return h.w3 }
func blockSetMagic(h *header, m uintptr) { h.w3 = m }

// userPointer returns the post-padding payload address for a block whose
// header sits at headerAddr and whose payload starts `padding` bytes later.
func userPointer(h *header, padding uintptr) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(h), uintptr(headerSize)+padding)
}

func stampMagic(h *header, userPtr unsafe.Pointer) {
	blockSetMagic(h, deadbeef^uintptr(userPtr))
}

func validMagic(h *header, userPtr unsafe.Pointer) bool {
	return blockMagic(h)^uintptr(userPtr) == deadbeef
}

// writeBreadcrumb stores headerPtr XOR userPtr in the word immediately
// preceding userPtr, letting free() recover the header across padding.
func writeBreadcrumb(h *header, userPtr unsafe.Pointer) {
	word := (*uintptr)(unsafe.Add(userPtr, -int(wordSize)))
	*word = uintptr(unsafe.Pointer(h)) ^ uintptr(userPtr)
}
