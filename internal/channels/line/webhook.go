package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/wolfman30/thsr-fare-bot/internal/conversation"
)

// VerifySignature checks the X-Line-Signature header, which carries the
// base64 HMAC-SHA256 of the raw body keyed by the channel secret.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseEvents extracts text messages sent by users and the ids of users who
// unfollowed the bot. Group and room events, stickers and other event types
// are ignored.
func ParseEvents(body WebhookBody) (messages []conversation.InboundMessage, unfollowed []string) {
	for _, ev := range body.Events {
		if ev.Source.Type != SourceTypeUser || ev.Source.UserID == "" {
			continue
		}
		switch ev.Type {
		case EventTypeMessage:
			if ev.Message == nil || ev.Message.Type != MessageTypeText || ev.ReplyToken == "" {
				continue
			}
			messages = append(messages, conversation.InboundMessage{
				UserID:     ev.Source.UserID,
				Text:       ev.Message.Text,
				ReplyToken: ev.ReplyToken,
			})
		case EventTypeUnfollow:
			unfollowed = append(unfollowed, ev.Source.UserID)
		}
	}
	return messages, unfollowed
}
