// Copyright (c) 2026 John Earle
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

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultFreshnessWindow is how long a persisted token record is trusted
// before a new interactive login is required.
const DefaultFreshnessWindow = 7 * 24 * time.Hour

// TokenRecord is the durable credential pair plus the time it was issued.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// Fresh reports whether the record holds both tokens and was issued less
// than window ago.
func (r *TokenRecord) Fresh(now time.Time, window time.Duration) bool {
	if r == nil || r.AccessToken == "" || r.RefreshToken == "" {
		return false
	}
	return now.Sub(r.IssuedAt) < window
}

// tokenFile is the on-disk layout. saved_at is epoch seconds as a float.
type tokenFile struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	SavedAt      float64 `json:"saved_at"`
}

// TokenStore persists a single TokenRecord as a JSON file.
type TokenStore struct {
	path string
}

// NewTokenStore creates a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the backing file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the record. A missing file yields (nil, nil).
func (s *TokenStore) Load() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	sec, frac := math.Modf(f.SavedAt)
	return &TokenRecord{
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
		IssuedAt:     time.Unix(int64(sec), int64(frac*1e9)),
	}, nil
}

// Save overwrites the record atomically (write to a temp file, then rename).
func (s *TokenStore) Save(rec TokenRecord) error {
	data, err := json.MarshalIndent(tokenFile{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		SavedAt:      float64(rec.IssuedAt.Unix()) + float64(rec.IssuedAt.Nanosecond())/1e9,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *TokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete token file: %w", err)
	}
	return nil
}
