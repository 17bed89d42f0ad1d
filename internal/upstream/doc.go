// Package upstream implements the outbound collaborator the cache refreshes
// from: the Slack Web API.
//
// The cache core only consumes the UserFetcher and EmojiLister capabilities.
// ErrUserNotFound is the one terminal error; callers treat every other
// failure as transient, log it and drop it from the current cycle. Retries
// and timeouts are transport concerns and live entirely inside Client.
package upstream
