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

package gmail

import (
	"encoding/base64"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"

	"github.com/jobtrack/ingestion/internal/models"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	scriptPattern     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// parseMessage converts a Gmail API message into a Message.
func parseMessage(msg *gm.Message) models.Message {
	out := models.Message{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}
	if msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload == nil {
		return out
	}

	out.Subject = headerValue(msg.Payload.Headers, "Subject")
	out.From = headerValue(msg.Payload.Headers, "From")
	if out.Date.IsZero() {
		if d, err := mail.ParseDate(headerValue(msg.Payload.Headers, "Date")); err == nil {
			out.Date = d.UTC()
		}
	}
	out.Content = extractText(msg.Payload)
	return out
}

// headerValue returns the first header named name, compared
// case-insensitively.
func headerValue(headers []*gm.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractText flattens the MIME tree to plain text: every text/plain leaf,
// depth-first, joined with newlines. A message with no plain part falls
// back to its first HTML part with tags removed.
func extractText(root *gm.MessagePart) string {
	if len(root.Parts) == 0 {
		data := bodyText(root)
		if isHTML(root.MimeType) {
			return stripHTML(data)
		}
		return data
	}

	var plain []string
	collectPlain(root, &plain)
	if len(plain) > 0 {
		return strings.Join(plain, "\n")
	}
	if html := firstHTML(root); html != "" {
		return stripHTML(html)
	}
	return ""
}

func collectPlain(part *gm.MessagePart, out *[]string) {
	if part == nil {
		return
	}
	if len(part.Parts) > 0 {
		for _, child := range part.Parts {
			collectPlain(child, out)
		}
		return
	}
	if isPlain(part.MimeType) {
		if text := bodyText(part); text != "" {
			*out = append(*out, text)
		}
	}
}

func firstHTML(part *gm.MessagePart) string {
	if part == nil {
		return ""
	}
	if len(part.Parts) == 0 {
		if isHTML(part.MimeType) {
			return bodyText(part)
		}
		return ""
	}
	for _, child := range part.Parts {
		if html := firstHTML(child); html != "" {
			return html
		}
	}
	return ""
}

func bodyText(part *gm.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		slog.Debug("undecodable message part",
			"part_id", part.PartId,
			"mime_type", part.MimeType,
			"error", err,
		)
		return ""
	}
	return string(data)
}

// decodeBase64URL decodes URL-safe base64 with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func isPlain(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/plain")
}

func isHTML(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/html")
}

// stripHTML removes HTML tags from a string and collapses blank lines.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := scriptPattern.ReplaceAllString(html, "")
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	result = blankLinesPattern.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}
