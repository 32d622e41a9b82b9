package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Attachment describes a file attached to an inbound message, regardless
// of which Telegram media type carried it (document, video, audio,
// largest photo size).
type Attachment struct {
	FileID   string
	FileName string
	FileSize int64
}

// OpenAttachment resolves att's download URL via GetFile and returns a
// streaming reader over its bytes. The caller must Close the reader.
func (c *Client) OpenAttachment(ctx context.Context, att Attachment) (io.ReadCloser, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: att.FileID})
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(c.bot.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram: download attachment: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// AttachmentFrom extracts the first downloadable attachment from msg,
// preferring Document, then Video, then Audio, then the largest Photo. It
// returns ok=false for text-only messages.
func AttachmentFrom(msg *tgbotapi.Message) (Attachment, bool) {
	switch {
	case msg.Document != nil:
		return Attachment{FileID: msg.Document.FileID, FileName: msg.Document.FileName, FileSize: int64(msg.Document.FileSize)}, true
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = msg.Video.FileID + ".mp4"
		}
		return Attachment{FileID: msg.Video.FileID, FileName: name, FileSize: int64(msg.Video.FileSize)}, true
	case msg.Audio != nil:
		name := msg.Audio.FileName
		if name == "" {
			name = msg.Audio.FileID + ".mp3"
		}
		return Attachment{FileID: msg.Audio.FileID, FileName: name, FileSize: int64(msg.Audio.FileSize)}, true
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		return Attachment{FileID: largest.FileID, FileName: largest.FileID + ".jpg", FileSize: int64(largest.FileSize)}, true
	default:
		return Attachment{}, false
	}
}
