package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/linkparse"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

// cmdLinks enqueues n consecutive message ids starting at the message a
// t.me link points to. The Bot API has no "get message by id" call, so
// each message is reached by forwarding it into the destination chat,
// which both confirms it exists and gives the bot identity a readable
// copy to pull the attachment from.
func cmdLinks(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "Usage: /links $message_link $n"
	}

	ref, err := linkparse.ParseMessageLink(fields[0])
	if err != nil {
		return fmt.Sprintf("Invalid message link: %s", bridgeerr.UserMessage(err))
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		return "Usage: /links $message_link $n where $n is a positive integer"
	}

	fromChatID := ref.ChatID
	if !ref.Private {
		id, err := d.deps.BotClient.ResolveChatID(ctx, ref.Username)
		if err != nil {
			return fmt.Sprintf("Could not resolve chat @%s: %s", ref.Username, bridgeerr.UserMessage(err))
		}
		fromChatID = id
	}

	var notices []string
	enqueued := 0
	for i := 0; i < n; i++ {
		messageID := ref.MessageID + i

		fwd, err := d.deps.BotClient.ForwardMessage(ctx, msg.ChatID, fromChatID, messageID)
		if err != nil {
			notices = append(notices, fmt.Sprintf("message %s not found", linkparse.MessageURL(fromChatID, messageID)))
			continue
		}
		att, ok := telegram.AttachmentFrom(fwd)
		if !ok {
			notices = append(notices, fmt.Sprintf("message %s not found", linkparse.MessageURL(fromChatID, messageID)))
			continue
		}

		filename := att.FileName
		if filename == "" {
			filename = fmt.Sprintf("file_%d", messageID)
		}

		linkMsg := telegram.Incoming{
			ChatID:    msg.ChatID,
			MessageID: fwd.MessageID,
			UserID:    msg.UserID,
			Username:  msg.Username,
			IsGroup:   msg.IsGroup,
			Text:      msg.Text,
		}
		if reply := d.ingest(ctx, linkMsg, store.CmdTypeLink, filename, att.FileSize, "", att.FileID, ""); reply != "" {
			notices = append(notices, reply)
			continue
		}
		enqueued++
	}

	summary := fmt.Sprintf("Enqueued %d of %d.", enqueued, n)
	if len(notices) > 0 {
		summary += "\n" + strings.Join(notices, "\n")
	}
	return summary
}
