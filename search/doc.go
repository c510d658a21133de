// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search runs similarity queries against a knowledge base without
// ever failing the caller.
//
// A Searcher checks that the base's index file exists and is plausibly
// sized before touching the engine, then opens the base and runs the query,
// each under its own deadline. Any failure produces an empty result and a
// single notify.ErrorEvent whose kind tells missing indexes, timeouts and
// other failures apart. Hits that contain every significant query word get
// a verbatim boost before the result is cut to size.
package search
