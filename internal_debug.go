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

// assertInvariant panics on a broken internal invariant -- a bug in this
// package's own bookkeeping, never a condition a caller's input can trigger.
// It is distinct from the public Alloc/Free contract, which never panics on
// bad caller input; Free's own recover() guards against wild caller pointers
// reaching code that calls this.
func assertInvariant(cond bool, msg string) {
	if !cond {
		panic("em: " + msg)
	}
}
