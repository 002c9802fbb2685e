package pipeline

import "time"

// Record type discriminators, written verbatim to the _type field.
const (
	TypeChannel  = "youtube_channel"
	TypeVideo    = "youtube_video"
	TypeNotFound = "not_found"
	TypeInfo     = "info"
)

// Source tags every record with the upstream it came from.
const Source = "youtube_api_v3"

// Entity stream names; they double as output subdirectory names.
const (
	EntityChannels = "channels"
	EntityVideos   = "videos"
)

// MsgNoVideosFound is the info-notice emitted when id discovery returns
// nothing for a channel.
const MsgNoVideosFound = "no_videos_found_via_search_list"

// Record is one immutable NDJSON line. Field order matches the upstream
// ingestion contract; the payload is relayed untouched.
type Record struct {
	Type        string `json:"_type"`
	IngestionTS string `json:"ingestion_ts"`
	Source      string `json:"source"`
	Entity      string `json:"entity"`
	ChannelID   string `json:"channelId"`
	VideoID     string `json:"videoId,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	Message     string `json:"message,omitempty"`
}

// utcNow returns the ingestion timestamp in UTC, second precision.
func utcNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

func newChannelRecord(channelID string, payload any) Record {
	return Record{
		Type:        TypeChannel,
		IngestionTS: utcNow(),
		Source:      Source,
		Entity:      EntityChannels,
		ChannelID:   channelID,
		Payload:     payload,
	}
}

func newVideoRecord(channelID, videoID string, payload any) Record {
	return Record{
		Type:        TypeVideo,
		IngestionTS: utcNow(),
		Source:      Source,
		Entity:      EntityVideos,
		ChannelID:   channelID,
		VideoID:     videoID,
		Payload:     payload,
	}
}

func newNotFoundRecord(channelID, videoID string) Record {
	return Record{
		Type:        TypeNotFound,
		IngestionTS: utcNow(),
		Source:      Source,
		Entity:      EntityVideos,
		ChannelID:   channelID,
		VideoID:     videoID,
	}
}

func newInfoRecord(channelID, message string) Record {
	return Record{
		Type:        TypeInfo,
		IngestionTS: utcNow(),
		Source:      Source,
		Entity:      EntityChannels,
		ChannelID:   channelID,
		Message:     message,
	}
}
