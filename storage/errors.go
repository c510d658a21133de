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


package storage

import "errors"

var (
	// ErrNotFound is returned when a ledger has no record for a loader.
	ErrNotFound = errors.New("loader record not found")

	// ErrStorageClosed is returned by a ledger or index used after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery is returned for empty ids, empty query vectors or a
	// non-positive result limit.
	ErrInvalidQuery = errors.New("invalid storage query")

	// ErrSerializationFailed wraps mus decoding failures of stored records and vectors.
	ErrSerializationFailed = errors.New("stored value could not be decoded")

	// ErrDimensionMismatch is returned when a chunk reaches the index without a vector.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
