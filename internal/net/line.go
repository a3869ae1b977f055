package net

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Inbound is one notification read from a feed connection.
type Inbound struct {
	Session uint64
	Tag     string
	Payload any // gjson.Result when the line carried JSON, nil otherwise
}

var (
	errEmptyLine   = errors.New("empty line")
	errInvalidJSON = errors.New("payload is not valid JSON")
)

// ParseLine splits a feed line of the form `<tag> [json]`. The tag is the
// first whitespace-delimited word; everything after it is the payload.
func ParseLine(line string) (tag string, payload any, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, errEmptyLine
	}
	tag, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		tag, rest = line[:i], strings.TrimSpace(line[i:])
	}
	if rest == "" {
		return tag, nil, nil
	}
	if !gjson.Valid(rest) {
		return "", nil, fmt.Errorf("tag %s: %w", tag, errInvalidJSON)
	}
	return tag, gjson.Parse(rest), nil
}

// parseAuth returns the token of an `AUTH <token>` line.
func parseAuth(line string) (string, bool) {
	word, token, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || !strings.EqualFold(word, "AUTH") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
