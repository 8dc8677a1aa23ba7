package protocol

import (
	"fmt"
	"strings"
)

// DirectivePrefix marks an internal body as a key=value control directive.
const DirectivePrefix = "::"

// DirectiveAlias announces the sender's alias right after connecting.
const DirectiveAlias = "alias"

// IsDirective reports whether body carries a control directive.
func IsDirective(body string) bool {
	return strings.HasPrefix(body, DirectivePrefix)
}

// FormatDirective renders key and value as a directive body.
func FormatDirective(key, value string) string {
	return DirectivePrefix + key + "=" + value
}

// ParseDirective splits a directive body into its key and value.
func ParseDirective(body string) (key, value string, err error) {
	rest, ok := strings.CutPrefix(body, DirectivePrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: missing %q prefix", ErrInvalidDirective, DirectivePrefix)
	}
	key, value, ok = strings.Cut(rest, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDirective, body)
	}
	return key, value, nil
}

// AliasAnnouncement builds the internal handshake message for alias.
func AliasAnnouncement(alias string) Message {
	return Message{
		Sender:   alias,
		Body:     FormatDirective(DirectiveAlias, alias),
		Internal: true,
	}
}
