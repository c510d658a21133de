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

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidateDescriptor validates a ContentDescriptor according to its kind.
//
// Validation rules:
//   - File and Directory need a path
//   - URL and Sitemap need an absolute http(s) address
//   - Note needs non-empty text
//
// NOT validated:
//   - existence of local paths (checked when units are built)
//   - SizeBytes (zero means the size is looked up)
func ValidateDescriptor(d ContentDescriptor) error {
	switch d.Kind {
	case KindFile, KindDirectory:
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidDescriptor, ErrEmptyPath)
		}
	case KindURL, KindSitemap:
		if err := ValidateAddress(d.Address); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}
	case KindNote:
		if d.Text == "" {
			return fmt.Errorf("%w: %w", ErrInvalidDescriptor, ErrEmptyContent)
		}
	default:
		return fmt.Errorf("%w: %w: %v", ErrInvalidDescriptor, ErrUnknownKind, d.Kind)
	}
	return nil
}

// ValidateAddress checks that address is an absolute http or https URL.
func ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// ValidateBaseParams validates knowledge base parameters.
// The id doubles as the on-disk directory name, so it must be a single
// path element.
func ValidateBaseParams(p BaseParams) error {
	if err := ValidateBaseID(p.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBaseParams, err)
	}
	if p.ChunkSize < 0 || p.ChunkOverlap < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBaseParams, ErrInvalidChunking)
	}
	if p.ChunkSize > 0 && p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("%w: %w", ErrInvalidBaseParams, ErrInvalidChunking)
	}
	return nil
}

// ValidateBaseID checks a knowledge base id on its own.
func ValidateBaseID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyBaseID
	}
	if id == "." || id == ".." || strings.HasPrefix(id, ".") || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeBaseID, id)
	}
	return nil
}
