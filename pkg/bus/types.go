package bus

import "time"

// PeerKind classifies the destination of an event.
type PeerKind string

const (
	PeerDirect  PeerKind = "direct"
	PeerGroup   PeerKind = "group"
	PeerChannel PeerKind = "channel"
)

// Peer identifies the conversation an event was sent to.
type Peer struct {
	Kind PeerKind `json:"kind"`
	ID   int64    `json:"id"`
}

// Identity is a participant as delivered by the chat client.
type Identity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat is a group or channel as delivered by the chat client.
type Chat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Directory resolves the numeric ids referenced by an event.
type Directory struct {
	Users map[int64]Identity `json:"users"`
	Chats map[int64]Chat     `json:"chats"`
}

// MediaKind is the closed set of attachment kinds.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaDocument
	MediaVideo
	MediaAudio
	MediaVoice
	MediaSticker
	MediaAnimation
	MediaVideoNote
)

var mediaKindNames = [...]string{
	MediaNone:      "none",
	MediaPhoto:     "photo",
	MediaDocument:  "document",
	MediaVideo:     "video",
	MediaAudio:     "audio",
	MediaVoice:     "voice",
	MediaSticker:   "sticker",
	MediaAnimation: "animation",
	MediaVideoNote: "video_note",
}

func (k MediaKind) String() string {
	if k < 0 || int(k) >= len(mediaKindNames) {
		return "unknown"
	}
	return mediaKindNames[k]
}

// MediaRef points at an attachment the chat client can fetch.
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	FileID   string    `json:"file_id"`
	MimeType string    `json:"mime_type,omitempty"`
	FileName string    `json:"file_name,omitempty"`
}

// Event is one inbound chat message.
type Event struct {
	Channel   string    `json:"channel"`
	MessageID string    `json:"message_id,omitempty"`
	SenderID  int64     `json:"sender_id"`
	Peer      Peer      `json:"peer"`
	Text      string    `json:"text,omitempty"`
	Media     *MediaRef `json:"media,omitempty"`
	Date      time.Time `json:"date"`
	Directory Directory `json:"directory"`
}
