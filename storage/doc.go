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


// Package storage provides the storage abstraction layer for knowledge bases.
//
// Two stores back every knowledge base:
//
//   - ChunkIndex: the per-base vector index holding chunk text and embeddings
//     (storage/sqlite, one index.db file per base)
//   - LoaderLedger: the shared record of which sources were ingested into
//     which base (storage/badger)
//
// The ledger is what gives forceReload its meaning: a source whose loader id
// is already recorded is skipped unless the caller forces a reload.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Ingestion units for
// the same base run in parallel and share one ChunkIndex.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
