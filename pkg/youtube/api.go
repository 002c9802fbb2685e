// Package youtube implements the three request shapes consumed from the
// YouTube Data API v3: channels.list, search.list (type=video) and
// videos.list. Payloads are passed through as opaque JSON; only the fields
// driving control flow (IDs, kinds, page tokens) get structured access.
package youtube

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the production API base URL.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// BatchSize is the hard limit of IDs per videos.list call.
const BatchSize = 50

// DefaultOrder sorts search results most-recent-first.
const DefaultOrder = "date"

// Part parameters requested per entity.
const (
	channelParts = "brandingSettings,id,snippet,statistics"
	videoParts   = "contentDetails,id,liveStreamingDetails,localizations," +
		"recordingDetails,snippet,statistics,status,topicDetails"
)

// Getter is the transport dependency; *client.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error)
}

// API issues the request shapes against one base URL with one key.
type API struct {
	getter  Getter
	baseURL string
	apiKey  string
}

// New creates an API bound to baseURL (DefaultBaseURL when empty).
func New(getter Getter, baseURL, apiKey string) *API {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// ChannelRef identifies a channel by exactly one identifier.
type ChannelRef struct {
	// ID is the canonical channel ID (UC...).
	ID string

	// ForUsername is the legacy username lookup.
	ForUsername string
}

// ChannelsList fetches channel metadata via channels.list. The raw response
// object is returned; use Items to walk the returned channel items.
func (a *API) ChannelsList(ctx context.Context, ref ChannelRef) (map[string]any, error) {
	params := url.Values{
		"part": {channelParts},
		"key":  {a.apiKey},
	}
	if ref.ID != "" {
		params.Set("id", ref.ID)
	}
	if ref.ForUsername != "" {
		params.Set("forUsername", ref.ForUsername)
	}
	return a.getter.GetJSON(ctx, a.baseURL+"/channels", params)
}

// SearchVideoIDs lists up to maxVideos video IDs of a channel via
// search.list (type=video), following nextPageToken until the cap is
// reached or the server stops returning a token. Server order is preserved;
// items not marked as videos and malformed items are skipped.
func (a *API) SearchVideoIDs(ctx context.Context, channelID string, maxVideos int, order string) ([]string, error) {
	if order == "" {
		order = DefaultOrder
	}

	var ids []string
	pageToken := ""
	for len(ids) < maxVideos {
		params := url.Values{
			"part":       {"id"},
			"channelId":  {channelID},
			"type":       {"video"},
			"order":      {order},
			"maxResults": {strconv.Itoa(min(50, maxVideos-len(ids)))},
			"key":        {a.apiKey},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		data, err := a.getter.GetJSON(ctx, a.baseURL+"/search", params)
		if err != nil {
			return nil, err
		}

		for _, item := range Items(data) {
			id, ok := item["id"].(map[string]any)
			if !ok || id["kind"] != "youtube#video" {
				continue
			}
			vid, _ := id["videoId"].(string)
			if vid == "" {
				continue
			}
			ids = append(ids, vid)
			if len(ids) == maxVideos {
				break
			}
		}

		tok, _ := data["nextPageToken"].(string)
		if tok == "" {
			break
		}
		pageToken = tok
	}
	return ids, nil
}

// VideosList fetches detail records via videos.list, chunking the ID list
// into calls of at most BatchSize comma-joined IDs and concatenating the
// item lists in chunk order. The server may reorder items within a chunk;
// callers needing correlation must re-key by ID.
func (a *API) VideosList(ctx context.Context, videoIDs []string) ([]map[string]any, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}

	var out []map[string]any
	for i := 0; i < len(videoIDs); i += BatchSize {
		end := min(i+BatchSize, len(videoIDs))
		params := url.Values{
			"id":   {strings.Join(videoIDs[i:end], ",")},
			"part": {videoParts},
			"key":  {a.apiKey},
		}

		data, err := a.getter.GetJSON(ctx, a.baseURL+"/videos", params)
		if err != nil {
			return nil, err
		}
		out = append(out, Items(data)...)
	}
	return out, nil
}

// Items extracts the items array from a response object, skipping entries
// that are not JSON objects.
func Items(data map[string]any) []map[string]any {
	raw, ok := data["items"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
