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

// Options bundles the construction-time tunables that Create, CreateStatic,
// CreateNested and CreateScratchArena accept, mirroring concurrency/gopool's Option/DefaultOption shape rather
// than a pile of differently-named constructor overloads.
type Options struct {
	// Alignment is the arena's natural alignment; every tail-carved
	// allocation that doesn't ask for a stricter alignment gets at least
	// this much for free. Defaults to DefaultAlignment.
	Alignment uintptr
}

// DefaultOptions returns the zero-value-safe tunables used when a Create*
// call is given no Option.
func DefaultOptions() Options {
	return Options{Alignment: DefaultAlignment}
}

// Option mutates Options in place; WithXxx constructors build one.
type Option func(*Options)

// WithAlignment overrides the arena's natural alignment.
func WithAlignment(align uintptr) Option {
	return func(o *Options) { o.Alignment = align }
}

func resolveOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Poisoning gates whether Free overwrites a freed payload with PoisonByte.
// The real allocator this was modeled on selects this at compile time
// (POISONING, on by default in debug builds); Go has no such build split
// for a single-binary library, so it is a package-level runtime switch
// instead of a per-Arena field -- Arena's memory layout is pinned to
// exactly four words by the Block/Arena/Bump ABI-compatibility contract,
// leaving no room for an extra out-of-band Go field.
var Poisoning = true
