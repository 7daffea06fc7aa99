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

// Bump is a linear sub-allocator living inside a single block of a parent
// Arena. It shares the same four-word layout as Block and Arena: w0 is the
// block size it was carved with (its capacity, inherited rather than
// separately stored), w1 is the ordinary Block.prev/flags word the parent's
// physical list still needs, w2 is the owning Arena pointer and w3 is the
// running allocation offset.
type Bump header

func (b *Bump) h() *header { return (*header)(b) }

// Capacity is inherited from the host block's payload size; Bump never
// stores it a second time.
func (b *Bump) Capacity() uintptr { return packedSize(b.w0) }

func (b *Bump) owner() *Arena      { return (*Arena)(unsafe.Pointer(b.w2)) }
func (b *Bump) setOwner(a *Arena)  { b.w2 = uintptr(unsafe.Pointer(a)) }

func (b *Bump) offset() uintptr     { return b.w3 }
func (b *Bump) setOffset(off uintptr) { b.w3 = off }

func (b *Bump) payload() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), headerSize)
}
