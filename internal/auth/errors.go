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
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthenticated is returned when an operation needs tokens that
	// are not held.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnsupportedMethod is returned for authentication strategies other
	// than the browser redirect flow.
	ErrUnsupportedMethod = errors.New("authentication method not supported")

	// ErrMissingToken is returned when a token response lacks the access or
	// refresh token.
	ErrMissingToken = errors.New("token response missing required token")
)

// Error is a token endpoint failure with the provider's error code and a
// remediation hint for the user.
type Error struct {
	Op          string // "exchange" or "refresh"
	Code        string // provider error code, e.g. "invalid_grant"
	Description string
	Hint        string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Op + " failed"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Code == "" && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

var hints = map[string]string{
	"invalid_client":        "Check the Google client ID and client secret in the config file.",
	"invalid_grant":         "The authorization code or refresh token is expired or revoked; log in again.",
	"redirect_uri_mismatch": "Add the redirect URI shown by jobtrack-login to the OAuth client's authorized redirect URIs.",
	"access_denied":         "Consent was declined in the browser; run the login again and allow access.",
	"unauthorized_client":   "The OAuth client is not allowed this grant type; use a Desktop or Web client.",
	"invalid_scope":         "The requested Gmail scopes are not enabled for this OAuth client.",
}

// Hint returns the remediation hint for a provider error code, or "" when
// the code is unknown.
func Hint(code string) string {
	return hints[code]
}

// wrapTokenError converts an oauth2 failure into an *Error.
func wrapTokenError(op string, err error) error {
	e := &Error{Op: op, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e.Code = re.ErrorCode
		e.Description = re.ErrorDescription
		if e.Code == "" && re.Response != nil {
			e.Description = fmt.Sprintf("HTTP %d: %s", re.Response.StatusCode, truncate(string(re.Body), 200))
		}
	}
	e.Hint = Hint(e.Code)
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
