// Package domain contains core domain types for the card engine.
package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxIdentityPartLen bounds each identity part in bytes.
const maxIdentityPartLen = 128

// Identity scopes one user's card state: the chat platform plus the
// conversation (or sender) identifier on that platform.
type Identity struct {
	Platform     string `json:"platform"`
	Conversation string `json:"conversation"`
}

// Key returns the persistence key "platform:conversation".
func (id Identity) Key() string {
	return id.Platform + ":" + id.Conversation
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.Key()
}

// Validate reports ErrInvalidIdentity when either part is empty, too long,
// not valid UTF-8 or contains control characters. The platform part must not
// contain ':' so that Key stays reversible.
func (id Identity) Validate() error {
	if err := validatePart("platform", id.Platform); err != nil {
		return err
	}
	if strings.Contains(id.Platform, ":") {
		return fmt.Errorf("%w: platform must not contain ':'", ErrInvalidIdentity)
	}
	return validatePart("conversation", id.Conversation)
}

func validatePart(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidIdentity, name)
	}
	if len(v) > maxIdentityPartLen {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidIdentity, name, maxIdentityPartLen)
	}
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidIdentity, name)
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains control characters", ErrInvalidIdentity, name)
		}
	}
	return nil
}

// ParseIdentityKey reverses Identity.Key.
func ParseIdentityKey(key string) (Identity, error) {
	platform, conversation, ok := strings.Cut(key, ":")
	if !ok {
		return Identity{}, fmt.Errorf("%w: key %q has no separator", ErrInvalidIdentity, key)
	}
	id := Identity{Platform: platform, Conversation: conversation}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
