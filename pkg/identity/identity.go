// Package identity derives display names for chat participants.
package identity

import (
	"strings"

	"github.com/gosimple/slug"

	"github.com/tinyland-inc/tgminer/pkg/bus"
)

// NoAlias is shown when a participant has neither a first nor a last name.
const NoAlias = "NO_ALIAS"

// Alias returns "First Last", whichever parts are set, or "" when neither is.
// Filters match against this raw value.
func Alias(u bus.Identity) string {
	return strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
}

// DisplayAlias is Alias with the NoAlias sentinel in place of "".
func DisplayAlias(u bus.Identity) string {
	if a := Alias(u); a != "" {
		return a
	}
	return NoAlias
}

// LogName is the name written to raw logs: the alias followed by
// "[@username]" when a username is set. A participant with only a username
// is shown as "[@username]".
func LogName(u bus.Identity) string {
	alias := Alias(u)
	if u.Username == "" {
		if alias == "" {
			return NoAlias
		}
		return alias
	}
	handle := "[@" + u.Username + "]"
	if alias == "" {
		return handle
	}
	return alias + " " + handle
}

// Slug turns a chat title into a filesystem and URL safe token.
func Slug(title string) string {
	return slug.Make(title)
}
