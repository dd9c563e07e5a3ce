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

// Package gmail provides a message fetcher that searches a mailbox for
// job-related messages and retrieves their full content from the Gmail API
// using the official client library.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jobtrack/ingestion/internal/models"
)

const (
	// DefaultQuery matches messages mentioning common job-search terms.
	DefaultQuery = `application OR applied OR interview OR job OR position OR resume OR "cover letter"`

	// DefaultMaxResults caps how many of the most recent matches are fetched.
	DefaultMaxResults = 50

	// DefaultConcurrency bounds parallel detail requests.
	DefaultConcurrency = 8

	userID = "me"
)

// ErrUnauthorized is returned when Gmail rejects the access token.
var ErrUnauthorized = errors.New("gmail rejected access token")

// Config controls the search and the API connection.
type Config struct {
	// Endpoint overrides the Gmail API base URL (tests).
	Endpoint string

	// HTTPClient supplies the base transport and timeout. The bearer token
	// is layered on top per call.
	HTTPClient *http.Client

	Query       string
	MaxResults  int64
	Concurrency int
}

// Profile is the subset of the mailbox profile used to verify a token.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
}

// Fetcher retrieves candidate messages from Gmail.
type Fetcher struct {
	cfg Config
}

// NewFetcher creates a Gmail message fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Endpoint != "" && !strings.HasSuffix(cfg.Endpoint, "/") {
		cfg.Endpoint += "/"
	}
	return &Fetcher{cfg: cfg}
}

// FetchCandidates runs the job search and returns the matching messages,
// newest first. A message whose details cannot be fetched or decoded is
// logged and skipped; only a failed search fails the call.
func (f *Fetcher) FetchCandidates(ctx context.Context, accessToken string) ([]models.Message, error) {
	srv, err := f.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	list, err := srv.Users.Messages.List(userID).
		Q(f.cfg.Query).
		MaxResults(f.cfg.MaxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("search messages", err)
	}

	refs := list.Messages
	if int64(len(refs)) > f.cfg.MaxResults {
		refs = refs[:f.cfg.MaxResults]
	}
	slog.Info("gmail search complete", "matches", len(refs))

	fetched := make([]*models.Message, len(refs))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			msg, err := srv.Users.Messages.Get(userID, ref.Id).
				Format("full").
				Context(ctx).
				Do()
			if err != nil {
				slog.Warn("skipping message, fetch failed",
					"message_id", ref.Id,
					"error", err,
				)
				return nil
			}
			parsed := parseMessage(msg)
			fetched[i] = &parsed
			return nil
		})
	}
	_ = g.Wait()

	messages := make([]models.Message, 0, len(fetched))
	for _, m := range fetched {
		if m != nil {
			messages = append(messages, *m)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})

	slog.Info("gmail messages fetched",
		"fetched", len(messages),
		"skipped", len(refs)-len(messages),
	)
	return messages, nil
}

// Profile fetches the mailbox profile. It is the cheapest call that proves
// the access token works.
func (f *Fetcher) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	srv, err := f.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	p, err := srv.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("get profile", err)
	}
	return &Profile{EmailAddress: p.EmailAddress, MessagesTotal: p.MessagesTotal}, nil
}

func (f *Fetcher) service(ctx context.Context, accessToken string) (*gm.Service, error) {
	base := f.cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if f.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.cfg.Endpoint))
	}
	srv, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return srv, nil
}

func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %s", op, ErrUnauthorized, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
