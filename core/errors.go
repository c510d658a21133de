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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDescriptor indicates a ContentDescriptor failed validation.
	ErrInvalidDescriptor = errors.New("invalid content descriptor")

	// ErrUnknownKind indicates a descriptor kind outside the known set.
	ErrUnknownKind = errors.New("unknown descriptor kind")

	// ErrEmptyPath indicates a file or directory descriptor without a path.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrEmptyAddress indicates a url or sitemap descriptor without an address.
	ErrEmptyAddress = errors.New("address cannot be empty")

	// ErrInvalidAddress indicates an address that is not an absolute http(s) URL.
	ErrInvalidAddress = errors.New("address must be an absolute http or https URL")

	// ErrEmptyContent indicates a note without text.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidBaseParams indicates BaseParams failed validation.
	ErrInvalidBaseParams = errors.New("invalid knowledge base parameters")

	// ErrEmptyBaseID indicates a knowledge base without an id.
	ErrEmptyBaseID = errors.New("knowledge base id cannot be empty")

	// ErrUnsafeBaseID indicates a base id that cannot be used as a directory name.
	ErrUnsafeBaseID = errors.New("knowledge base id must be a single path element")

	// ErrInvalidChunking indicates chunk size and overlap do not fit together.
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

	// ErrTruncatedEncoding indicates an encoded value shorter than its declared length.
	ErrTruncatedEncoding = errors.New("truncated encoding")
)
