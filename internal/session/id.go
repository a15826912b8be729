package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// sessionSuffix terminates every well-formed session id.
const sessionSuffix = "_session"

var (
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
	randomTail     = regexp.MustCompile(`_[0-9a-f]{8}$`)
)

// GenerateSessionID builds a session id. Room-scoped ids are preferred
// (rooms identify physical locations in single-user mode), then
// client-scoped ids, then a random id tagged with the input source.
func GenerateSessionID(source, roomID, clientID string) string {
	switch {
	case roomID != "":
		return roomID + sessionSuffix
	case clientID != "":
		return clientID + sessionSuffix
	default:
		if source == "" {
			source = "unknown"
		}
		return fmt.Sprintf("%s_%s%s", source, randomHex(4), sessionSuffix)
	}
}

// ValidateSessionID reports whether id looks like a generated session id.
func ValidateSessionID(id string) bool {
	return strings.Contains(id, sessionSuffix) && len(id) > 8
}

// ExtractRoom returns the room id embedded in a room-scoped session id, or
// "" when the id is client-scoped or randomly generated. Numeric and UUID
// prefixes are client identifiers, not rooms; a trailing 8-hex segment marks
// the random fallback form.
func ExtractRoom(id string) string {
	prefix, ok := strings.CutSuffix(id, sessionSuffix)
	if !ok || prefix == "" {
		return ""
	}
	if numericPattern.MatchString(prefix) || uuidPattern.MatchString(prefix) {
		return ""
	}
	if randomTail.MatchString(prefix) {
		return ""
	}
	return prefix
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
