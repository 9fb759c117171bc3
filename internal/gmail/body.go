package gmail

import (
	"encoding/base64"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	gmail "google.golang.org/api/gmail/v1"
)

// extractBodies returns the first decodable text/plain and text/html parts.
// Attachments are skipped.
func extractBodies(payload *gmail.MessagePart) (text, htmlBody string) {
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Filename != "" || part.Body == nil || part.Body.Data == "" {
			return
		}
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case text == "" && strings.HasPrefix(mimeType, "text/plain"):
			if decoded, err := decodeBody(part.Body.Data); err == nil {
				text = decoded
			}
		case htmlBody == "" && strings.HasPrefix(mimeType, "text/html"):
			if decoded, err := decodeBody(part.Body.Data); err == nil {
				htmlBody = decoded
			}
		}
	})
	return text, htmlBody
}

// decodeBody decodes Gmail body data. Gmail uses base64url, with or
// without padding; standard base64 is accepted as a last resort.
func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return string(decoded), nil
	}
	decoded, err = base64.RawURLEncoding.DecodeString(data)
	if err == nil {
		return string(decoded), nil
	}
	decoded, err = base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// HTMLToText renders an HTML document as plaintext. Script and style
// content is dropped, block elements become line breaks and runs of
// whitespace collapse to a single space.
func HTMLToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	pendingSpace := false

	newline := func() {
		s := b.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			trimmed := strings.TrimRight(s, " ")
			b.Reset()
			b.WriteString(trimmed)
			b.WriteByte('\n')
		}
		pendingSpace = false
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2,
				atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Table:
				newline()
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				if skip > 0 {
					skip--
				}
			case atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2,
				atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Table:
				newline()
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			raw := string(z.Text())
			text := strings.Join(strings.Fields(raw), " ")
			if text == "" {
				pendingSpace = pendingSpace || raw != ""
				continue
			}
			s := b.String()
			leading := raw[0] == ' ' || raw[0] == '\t' || raw[0] == '\n' || raw[0] == '\r'
			if (pendingSpace || leading) && s != "" && !strings.HasSuffix(s, "\n") {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			last := raw[len(raw)-1]
			pendingSpace = last == ' ' || last == '\t' || last == '\n' || last == '\r'
		}
	}
}
