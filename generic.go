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

// New allocates a value of type T out of a and copies value into it,
// returning a pointer the caller must eventually pass to Free (or let the
// whole arena go via Destroy/Reset). Returns nil if a is out of room or T is
// more strictly aligned than DefaultAlignment.
func New[T any](a *Arena, value T) *T {
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	if align > DefaultAlignment {
		return nil
	}
	ptr := a.AllocAligned(size, DefaultAlignment)
	if ptr == nil {
		return nil
	}
	p := (*T)(ptr)
	*p = value
	return p
}

// Delete releases a value previously returned by New, by calling the
// package-level Free on it. Named distinctly from Free since Go has no
// overloading and Free(unsafe.Pointer) already owns that name: unlike
// flier-goutil's Free[T], T's size plays no part in recovering the block
// here, because em locates the header from the pointer itself rather than a
// caller-supplied size class.
func Delete[T any](p *T) {
	Free(unsafe.Pointer(p))
}
