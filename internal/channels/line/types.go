package line

// WebhookBody is the payload LINE posts to the webhook URL.
type WebhookBody struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is a single webhook event.
type Event struct {
	Type           string   `json:"type"`
	Mode           string   `json:"mode,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	WebhookEventID string   `json:"webhookEventId,omitempty"`
	ReplyToken     string   `json:"replyToken,omitempty"`
	Source         Source   `json:"source"`
	Message        *Message `json:"message,omitempty"`
}

// Source identifies where an event came from.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message is the message object of a "message" event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event and message types handled by the bot.
const (
	EventTypeMessage  = "message"
	EventTypeUnfollow = "unfollow"
	MessageTypeText   = "text"
	SourceTypeUser    = "user"
)

// ReplyRequest is the body of POST /v2/bot/message/reply.
type ReplyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

// TextMessage is an outbound text message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
