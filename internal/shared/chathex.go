package shared

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// EncodeChatHex packs a chat id and a single-byte routing discriminator into
// an opaque hex string. The bot and user clients each need their own
// identifier for the same logical chat because they authenticate as
// different Telegram identities; the discriminator lets DecodeChatHex tell
// them apart without a lookup table.
func EncodeChatHex(chatID int64, discriminator byte) string {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[:8], uint64(chatID))
	buf[8] = discriminator
	return hex.EncodeToString(buf)
}

// DecodeChatHex reverses EncodeChatHex.
func DecodeChatHex(s string) (chatID int64, discriminator byte, err error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return 0, 0, fmt.Errorf("decode chat hex: %w", err)
	}
	if len(buf) != 9 {
		return 0, 0, fmt.Errorf("decode chat hex: expected 9 bytes, got %d", len(buf))
	}
	return int64(binary.BigEndian.Uint64(buf[:8])), buf[8], nil
}

const (
	// ChatHexBot marks a routing token usable by the bot identity.
	ChatHexBot byte = 0x01
	// ChatHexUser marks a routing token usable by the logged-in user identity.
	ChatHexUser byte = 0x02
)
