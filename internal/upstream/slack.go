// ABOUTME: Slack Web API client for user profile and emoji lookups
// ABOUTME: Distinguishes terminal not-found responses from transient failures

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUserNotFound is the terminal "no such user" result. Callers must not
// retry it; every other error is transient.
var ErrUserNotFound = errors.New("upstream user not found")

const defaultBaseURL = "https://slack.com/api"

// UserProfile is the subset of an upstream profile the cache stores.
type UserProfile struct {
	ID          string
	DisplayName string
	Pronouns    string
	ImageURL    string
}

// UserFetcher is the outbound lookup capability the cache consumes.
type UserFetcher interface {
	FetchUser(ctx context.Context, externalID string) (*UserProfile, error)
}

// EmojiLister provides the full custom emoji set for the recurring refresh.
// Values are image URLs, or "alias:<name>" for aliased emojis.
type EmojiLister interface {
	ListEmoji(ctx context.Context) (map[string]string, error)
}

// Client talks to the Slack Web API. Transport-level retries and timeouts
// live here, not in the cache core.
type Client struct {
	httpc   *retryablehttp.Client
	token   string
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a Slack API client using the given bot token.
func NewClient(token string) *Client {
	httpc := retryablehttp.NewClient()
	httpc.RetryMax = 2
	httpc.RetryWaitMin = 250 * time.Millisecond
	httpc.RetryWaitMax = 2 * time.Second
	httpc.HTTPClient.Timeout = 10 * time.Second
	httpc.Logger = nil

	return &Client{
		httpc:   httpc,
		token:   token,
		baseURL: defaultBaseURL,
		logger:  slog.Default().With("component", "upstream"),
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// slack profile payload as returned by users.info
type userResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		ID      string `json:"id"`
		Profile struct {
			DisplayName   string `json:"display_name"`
			RealName      string `json:"real_name"`
			Pronouns      string `json:"pronouns"`
			Image512      string `json:"image_512"`
			ImageOriginal string `json:"image_original"`
		} `json:"profile"`
	} `json:"user"`
}

// FetchUser looks up one user profile via users.info.
func (c *Client) FetchUser(ctx context.Context, externalID string) (*UserProfile, error) {
	params := url.Values{"user": {strings.ToUpper(externalID)}}

	var resp userResponse
	if err := c.call(ctx, "users.info", params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Error == "user_not_found" {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("users.info failed: %s", resp.Error)
	}

	profile := &UserProfile{
		ID:          resp.User.ID,
		DisplayName: resp.User.Profile.DisplayName,
		Pronouns:    resp.User.Profile.Pronouns,
		ImageURL:    resp.User.Profile.Image512,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = resp.User.Profile.RealName
	}
	if profile.ImageURL == "" {
		profile.ImageURL = resp.User.Profile.ImageOriginal
	}
	return profile, nil
}

// ParseEmojiAlias reports whether an emoji.list value is an alias entry
// ("alias:<name>") and returns the target emoji name.
func ParseEmojiAlias(value string) (string, bool) {
	if target, ok := strings.CutPrefix(value, "alias:"); ok {
		return target, true
	}
	return "", false
}

type emojiResponse struct {
	OK    bool              `json:"ok"`
	Error string            `json:"error"`
	Emoji map[string]string `json:"emoji"`
}

// ListEmoji returns the workspace's full custom emoji map via emoji.list.
func (c *Client) ListEmoji(ctx context.Context) (map[string]string, error) {
	var resp emojiResponse
	if err := c.call(ctx, "emoji.list", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("emoji.list failed: %s", resp.Error)
	}
	return resp.Emoji, nil
}

// call performs an authenticated GET against one API method and decodes the
// JSON body into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected status %d", method, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}
