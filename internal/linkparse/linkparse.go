// Package linkparse parses Telegram message links of the form
// https://t.me/c/{chat_id}/{message_id} (private chat) and
// https://t.me/{username}/{message_id} (public chat), including the
// 3-segment topic variant that inserts a topic id between the chat and
// message segments.
package linkparse

import (
	"strconv"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
)

// MessageRef identifies one message reached via a t.me link.
type MessageRef struct {
	// ChatID is set when the link names a private chat (the "/c/" form).
	ChatID int64
	// Username is set when the link names a public chat by its @username.
	Username string
	// Private reports which of ChatID/Username is populated.
	Private bool

	MessageID int
}

// ParseMessageLink parses a t.me message link. A link with three path
// segments is a topic-thread link (chat/topic/message); the topic segment
// is silently dropped: topics are not modeled separately in this bridge,
// only the message they contain.
func ParseMessageLink(link string) (MessageRef, error) {
	rest, private, ok := stripLinkPrefix(link)
	if !ok {
		return MessageRef{}, bridgeerr.Validation("not a message link: %q", link)
	}

	segments := strings.Split(rest, "/")
	for i, s := range segments {
		segments[i] = strings.TrimSpace(s)
	}

	switch len(segments) {
	case 2:
		// chat/message, nothing to drop.
	case 3:
		// chat/topic/message: drop the topic segment.
		segments = []string{segments[0], segments[2]}
	default:
		return MessageRef{}, bridgeerr.Validation("message link %q does not contain 2 path segments", link)
	}

	messageID, err := strconv.Atoi(segments[1])
	if err != nil {
		return MessageRef{}, bridgeerr.Validation("message link %q has a non-numeric message id", link)
	}

	ref := MessageRef{Private: private, MessageID: messageID}
	if private {
		chatID, err := strconv.ParseInt(segments[0], 10, 64)
		if err != nil {
			return MessageRef{}, bridgeerr.Validation("message link %q has a non-numeric chat id", link)
		}
		ref.ChatID = chatID
	} else {
		ref.Username = segments[0]
	}
	return ref, nil
}

func stripLinkPrefix(link string) (rest string, private bool, ok bool) {
	if r, found := strings.CutPrefix(link, "https://t.me/c/"); found {
		return r, true, true
	}
	if r, found := strings.CutPrefix(link, "https://t.me/"); found {
		return r, false, true
	}
	return "", false, false
}

// FormatMessageLink builds the bit-exact anchor used in progress bodies and
// in linked-message replies.
func FormatMessageLink(chatID int64, messageID int, label string) string {
	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(MessageURL(chatID, messageID))
	b.WriteString(`">`)
	b.WriteString(label)
	b.WriteString(`</a>`)
	return b.String()
}

// MessageURL builds the https://t.me/c/{chat_id}/{message_id} link for a
// private-chat message, the form used throughout progress rendering.
func MessageURL(chatID int64, messageID int) string {
	return "https://t.me/c/" + strconv.FormatInt(chatID, 10) + "/" + strconv.Itoa(messageID)
}
