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

func TestPackedSizeRoundTrip(t *testing.T) {
	for _, sz := range []uintptr{0, 1, 5, 7, 8, 16, 50, 123, 4096, sizeMask >> expBits} {
		w, ok := packedSetSize(0, sz)
		require.True(t, ok)
		require.Equal(t, sz, packedSize(w))
	}
}

func TestPackedSizeDoesNotDisturbAlignmentBits(t *testing.T) {
	w, ok := packedSetAlignment(0, wordSize<<2)
	require.True(t, ok)
	w, ok = packedSetSize(w, 50)
	require.True(t, ok)
	require.Equal(t, uintptr(50), packedSize(w))
	require.Equal(t, wordSize<<2, packedAlignment(w))
}

func TestPackedSizeRejectsOverflow(t *testing.T) {
	_, ok := packedSetSize(0, ^uintptr(0))
	require.False(t, ok)
}

func TestAlignmentExponentRoundTrip(t *testing.T) {
	for exp := uintptr(0); exp <= maxExp; exp++ {
		align := wordSize << exp
		got, ok := alignmentExponent(align)
		require.True(t, ok)
		require.Equal(t, exp, got)

		w, ok := packedSetAlignment(0, align)
		require.True(t, ok)
		require.Equal(t, align, packedAlignment(w))
	}
}

func TestAlignmentExponentRejectsNonPowerOfTwo(t *testing.T) {
	_, ok := alignmentExponent(24)
	require.False(t, ok)
}

func TestAlignmentExponentRejectsSubWord(t *testing.T) {
	_, ok := alignmentExponent(wordSize / 2)
	require.False(t, ok)
}

func TestAlignmentExponentRejectsTooLarge(t *testing.T) {
	_, ok := alignmentExponent(wordSize << (maxExp + 1))
	require.False(t, ok)
}

func TestPackedPtrPreservesFlagBits(t *testing.T) {
	var dummy header
	w := uintptr(unsafe.Pointer(&dummy))
	packed := packedSetPtr(0, unsafe.Pointer(&dummy))
	packed = setFlagBit(packed, 0, true)
	packed = setFlagBit(packed, 1, true)

	require.Equal(t, w, uintptr(packedPtr(packed)))
	require.True(t, flagBit(packed, 0))
	require.True(t, flagBit(packed, 1))

	repacked := packedSetPtr(packed, unsafe.Pointer(&dummy))
	require.True(t, flagBit(repacked, 0))
	require.True(t, flagBit(repacked, 1))
}

func TestBlockColorAndFreeFlagIndependent(t *testing.T) {
	var h header
	blockSetIsFree(&h, true)
	blockSetColor(&h, colorBlack)
	require.True(t, blockIsFree(&h))
	require.Equal(t, uint8(colorBlack), blockColor(&h))

	blockSetIsFree(&h, false)
	require.False(t, blockIsFree(&h))
	require.Equal(t, uint8(colorBlack), blockColor(&h), "clearing IS_FREE must not disturb COLOR")
}

func TestIsScratchBlockIdentifiesReservedCombo(t *testing.T) {
	var h header
	blockSetIsFree(&h, false)
	blockSetColor(&h, colorBlack)
	require.True(t, isScratchBlock(&h))

	blockSetIsFree(&h, true)
	require.False(t, isScratchBlock(&h), "free blocks are never scratch blocks")
}

func TestMagicRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	h := (*header)(unsafe.Pointer(&buf[0]))
	userPtr := unsafe.Add(unsafe.Pointer(h), headerSize)

	stampMagic(h, userPtr)
	require.True(t, validMagic(h, userPtr))
	require.False(t, validMagic(h, unsafe.Add(userPtr, 8)))
}

func TestWriteBreadcrumbRecoversHeader(t *testing.T) {
	buf := make([]byte, 256)
	h := (*header)(unsafe.Pointer(&buf[0]))
	padding := uintptr(16)
	userPtr := unsafe.Add(unsafe.Pointer(h), uintptr(headerSize)+padding)

	writeBreadcrumb(h, userPtr)
	got := recoverHeader(userPtr)
	require.Equal(t, h, got)
}

func TestZeroPaddingMagicIsItsOwnBreadcrumb(t *testing.T) {
	buf := make([]byte, 256)
	h := (*header)(unsafe.Pointer(&buf[0]))
	userPtr := unsafe.Add(unsafe.Pointer(h), headerSize)

	stampMagic(h, userPtr)
	got := recoverHeader(userPtr)
	require.Equal(t, h, got)
}
