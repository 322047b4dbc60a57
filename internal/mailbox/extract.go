package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrNoTextPart is returned when a multipart message has no text/plain leaf.
var ErrNoTextPart = errors.New("message has no text/plain part")

// voiceLink is the first line Google Voice puts in forwarded texts.
const voiceLink = "<https://voice.google.com>"

// ExtractBody returns the plain-text body of a raw RFC 5322 message. For
// multipart messages the first text/plain leaf wins; otherwise the single
// payload is used. The declared charset is honoured, and undecodable bytes
// become U+FFFD instead of failing the extraction.
func ExtractBody(raw []byte) (string, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", fmt.Errorf("parsing message: %w", err)
	}

	body, err := firstText(entity, err, true)
	if err != nil {
		return "", err
	}
	return body, nil
}

// firstText walks entity depth-first. readErr is the error go-message
// reported while constructing entity.
func firstText(entity *message.Entity, readErr error, root bool) (string, error) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", ErrNoTextPart
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return "", fmt.Errorf("reading multipart: %w", err)
			}

			text, err := firstText(part, err, false)
			if errors.Is(err, ErrNoTextPart) {
				continue
			}
			return text, err
		}
	}

	mediaType, params, _ := entity.Header.ContentType()
	// A single-part message is its own body whatever its declared type.
	if !root && mediaType != "text/plain" {
		return "", ErrNoTextPart
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	if message.IsUnknownCharset(readErr) {
		return decodeCharset(params["charset"], data), nil
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// decodeCharset converts data from the named charset to UTF-8. Unknown
// charsets fall back to the raw bytes with invalid sequences replaced.
func decodeCharset(name string, data []byte) string {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

// TrimFooter strips the gateway decorations from an SMS body: a leading
// Google Voice link line and everything from the first cutoff phrase on.
func TrimFooter(body string, cutoffs []string) string {
	body = strings.TrimLeft(body, " \t\r\n")
	if rest, ok := strings.CutPrefix(body, voiceLink); ok {
		body = rest
	}

	end := len(body)
	for _, phrase := range cutoffs {
		if phrase == "" {
			continue
		}
		if i := strings.Index(body, phrase); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(body[:end])
}
