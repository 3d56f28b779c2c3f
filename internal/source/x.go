package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	xTimeout     = 30 * time.Second
	xMaxBody     = 16 << 20
	xCreatedAt   = "Mon Jan 02 15:04:05 -0700 2006"
	xUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	xWebBearer   = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"
	xEntryTweet  = "tweet-"
	xEntryThread = "profile-conversation-"
	xEntryCursor = "cursor-bottom-"
)

// Session holds the cookie pair of a logged-in browser session.
type Session struct {
	AuthToken string // auth_token cookie
	CSRFToken string // ct0 cookie, echoed in x-csrf-token
}

// QueryIDs are the GraphQL operation ids used by the X web client.
type QueryIDs struct {
	UserByScreenName string
	UserTweets       string
}

// XClient reads timelines through the X web GraphQL API using session cookies.
type XClient struct {
	session  Session
	queryIDs QueryIDs
	baseURL  string
	client   *http.Client
}

// NewX creates an X client. Both session tokens and both query ids are required.
func NewX(baseURL string, session Session, ids QueryIDs) (*XClient, error) {
	if strings.TrimSpace(session.AuthToken) == "" || strings.TrimSpace(session.CSRFToken) == "" {
		return nil, errors.New("x: auth_token and ct0 are required")
	}
	if ids.UserByScreenName == "" || ids.UserTweets == "" {
		return nil, errors.New("x: graphql query ids are required")
	}
	if baseURL == "" {
		baseURL = "https://x.com"
	}
	return &XClient{
		session:  session,
		queryIDs: ids,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: xTimeout},
	}, nil
}

var userFeatures = map[string]bool{
	"hidden_profile_likes_enabled":                                      true,
	"hidden_profile_subscriptions_enabled":                              true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
}

var timelineFeatures = map[string]bool{
	"rweb_tipjar_consumption_enabled":                                         true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"articles_preview_enabled":                                                true,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"rweb_video_timestamps_enabled":                                           true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

type userTweetsVars struct {
	UserID                 string `json:"userId"`
	Count                  int    `json:"count"`
	Cursor                 string `json:"cursor,omitempty"`
	IncludePromotedContent bool   `json:"includePromotedContent"`
	WithQuickPromote       bool   `json:"withQuickPromoteEligibilityTweetFields"`
	WithVoice              bool   `json:"withVoice"`
	WithV2Timeline         bool   `json:"withV2Timeline"`
}

// UserID resolves a screen name through the UserByScreenName operation.
func (xc *XClient) UserID(ctx context.Context, screenName string) (string, error) {
	screenName = strings.TrimPrefix(strings.TrimSpace(screenName), "@")
	if screenName == "" {
		return "", errors.New("x: screen name is required")
	}

	vars := map[string]any{
		"screen_name":              screenName,
		"withSafetyModeUserFields": false,
	}
	doc, err := xc.query(ctx, xc.queryIDs.UserByScreenName, "UserByScreenName", vars, userFeatures)
	if err != nil {
		return "", err
	}

	user := doc.Get("data.user.result")
	if typename := user.Get("__typename").String(); typename == "UserUnavailable" {
		return "", fmt.Errorf("x: user @%s is unavailable", screenName)
	}
	id := user.Get("rest_id").String()
	if id == "" {
		return "", fmt.Errorf("x: user @%s not found", screenName)
	}
	return id, nil
}

// UserPosts fetches one page of the user's own posts (no replies) through the UserTweets operation.
func (xc *XClient) UserPosts(ctx context.Context, userID string, count int, cursor string) (Page, error) {
	if userID == "" {
		return Page{}, errors.New("x: user id is required")
	}

	vars := userTweetsVars{
		UserID:                 userID,
		Count:                  count,
		Cursor:                 cursor,
		IncludePromotedContent: false,
		WithQuickPromote:       true,
		WithVoice:              true,
		WithV2Timeline:         true,
	}

	doc, err := xc.query(ctx, xc.queryIDs.UserTweets, "UserTweets", vars, timelineFeatures)
	if err != nil {
		return Page{}, err
	}
	return pageFromTimeline(doc)
}

func (xc *XClient) query(ctx context.Context, queryID, operation string, vars, features any) (gjson.Result, error) {
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("x: encode variables: %w", err)
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("x: encode features: %w", err)
	}

	q := url.Values{}
	q.Set("variables", string(varsJSON))
	q.Set("features", string(featuresJSON))
	endpoint := fmt.Sprintf("%s/i/api/graphql/%s/%s?%s", xc.baseURL, queryID, operation, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("x: create request: %w", err)
	}
	xc.authorize(req)

	resp, err := xc.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("x: %s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, xMaxBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("x: %s: read body: %w", operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("x: %s: status %d", operation, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("x: %s: invalid JSON response", operation)
	}

	doc := gjson.ParseBytes(body)
	if !doc.Get("data").Exists() {
		if msg := doc.Get("errors.0.message").String(); msg != "" {
			return gjson.Result{}, fmt.Errorf("x: %s: %s", operation, msg)
		}
		return gjson.Result{}, fmt.Errorf("x: %s: response has no data", operation)
	}
	return doc, nil
}

func (xc *XClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+xWebBearer)
	req.Header.Set("X-Csrf-Token", xc.session.CSRFToken)
	req.Header.Set("Cookie", fmt.Sprintf("auth_token=%s; ct0=%s", xc.session.AuthToken, xc.session.CSRFToken))
	req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("X-Twitter-Client-Language", "en")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", xUserAgent)
}

func pageFromTimeline(doc gjson.Result) (Page, error) {
	timeline := doc.Get("data.user.result.timeline_v2.timeline")
	if !timeline.Exists() {
		timeline = doc.Get("data.user.result.timeline.timeline")
	}

	var page Page
	for _, instr := range timeline.Get("instructions").Array() {
		switch instr.Get("type").String() {
		case "TimelineAddEntries":
			for _, entry := range instr.Get("entries").Array() {
				if err := page.addEntry(entry); err != nil {
					return Page{}, err
				}
			}
		case "TimelineReplaceEntry":
			if err := page.addEntry(instr.Get("entry")); err != nil {
				return Page{}, err
			}
		}
		// TimelinePinEntry is skipped: the pinned post sits outside the
		// newest-first order the window filter depends on.
	}
	return page, nil
}

func (p *Page) addEntry(entry gjson.Result) error {
	entryID := entry.Get("entryId").String()
	switch {
	case strings.HasPrefix(entryID, xEntryTweet):
		return p.addTweet(entry.Get("content.itemContent.tweet_results.result"))
	case strings.HasPrefix(entryID, xEntryThread):
		// Only the thread root is kept. Self-replies are newer than the root
		// and would break the newest-first order of the page.
		for _, item := range entry.Get("content.items").Array() {
			n := len(p.Posts)
			if err := p.addTweet(item.Get("item.itemContent.tweet_results.result")); err != nil {
				return err
			}
			if len(p.Posts) > n {
				break
			}
		}
	case strings.HasPrefix(entryID, xEntryCursor):
		p.Cursor = entry.Get("content.value").String()
	}
	return nil
}

func (p *Page) addTweet(result gjson.Result) error {
	if result.Get("__typename").String() == "TweetWithVisibilityResults" {
		result = result.Get("tweet")
	}
	legacy := result.Get("legacy")
	if !legacy.Exists() {
		// Tombstones and withheld posts carry no body.
		return nil
	}

	id := legacy.Get("id_str").String()
	if id == "" {
		id = result.Get("rest_id").String()
	}

	postedAt, err := time.Parse(xCreatedAt, legacy.Get("created_at").String())
	if err != nil {
		return fmt.Errorf("x: post %s: parse created_at: %w", id, err)
	}

	text := legacy.Get("full_text").String()
	if note := result.Get("note_tweet.note_tweet_results.result.text"); note.Exists() {
		text = note.String()
	}

	p.Posts = append(p.Posts, Post{
		ID:       id,
		Text:     text,
		PostedAt: postedAt.UTC(),
	})
	return nil
}
