package port

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxObjectSize bounds a single upload.
const MaxObjectSize = 10 << 20

var (
	ErrInvalidKey = errors.New("blob: invalid key")
	ErrTooLarge   = errors.New("blob: object too large")
)

// Store persists binary objects and hands back a URL clients can fetch them from.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (url string, err error)
}

// AttachmentKey names an image attached to a conversation. The random suffix keeps two
// uploads in the same millisecond apart.
func AttachmentKey(conversationID string, at time.Time, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("chat_images/%s/chat_%d_%s%s", conversationID, at.UnixMilli(), suffix, ext)
}
