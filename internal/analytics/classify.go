// ABOUTME: Deterministic endpoint-to-category classification for analytics
// ABOUTME: Pure and total; every endpoint string maps to exactly one group

package analytics

import "strings"

// Endpoint groups. Raw endpoints are folded into this small fixed set so
// bucket cardinality stays bounded no matter what paths are requested.
const (
	GroupUserData        = "User Data"
	GroupUserRedirects   = "User Redirects"
	GroupEmojiData       = "Emoji Data"
	GroupHealthCheck     = "Health Check"
	GroupCacheManagement = "Cache Management"
	GroupOther           = "Other"
)

// Classify maps a raw endpoint path to its group. The mapping is pure and
// total: any string, including garbage, lands in exactly one group.
func Classify(endpoint string) string {
	path := strings.ToLower(endpoint)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")

	switch {
	case path == "/health" || path == "/healthz":
		return GroupHealthCheck
	case strings.HasPrefix(path, "/users/") && strings.HasSuffix(path, "/r"):
		return GroupUserRedirects
	case path == "/users" || strings.HasPrefix(path, "/users/"):
		return GroupUserData
	case path == "/emojis" || strings.HasPrefix(path, "/emojis/"):
		return GroupEmojiData
	case path == "/purge" || strings.HasPrefix(path, "/purge/") || path == "/reset":
		return GroupCacheManagement
	default:
		return GroupOther
	}
}
