package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"go-mensajeria/internal/infrastructure/blob/port"
	"go-mensajeria/internal/infrastructure/identity"
	chat "go-mensajeria/internal/pkg/chat/application/domain"
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadAttachmentController stores an image for a conversation and returns its URL,
// which the client then sends as attachment_ref.
type UploadAttachmentController struct {
	Store port.Store
	Now   func() time.Time
}

func NewUploadAttachmentController(store port.Store) *UploadAttachmentController {
	return &UploadAttachmentController{Store: store, Now: time.Now}
}

func (h *UploadAttachmentController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		peerID := strings.TrimSpace(c.Param("peerId"))
		if peerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, port.MaxObjectSize+(1<<20))
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
			return
		}
		if fh.Size > port.MaxObjectSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		head := make([]byte, 512)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty file"})
			return
		}
		head = head[:n]
		contentType := http.DetectContentType(head)
		ext, ok := imageExt[contentType]
		if !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only images are accepted", "content_type": contentType})
			return
		}

		convID := chat.ConversationID(claims.UserID(), peerID)
		key := port.AttachmentKey(convID, h.Now(), ext)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		url, err := h.Store.Put(ctx, key, contentType, io.MultiReader(bytes.NewReader(head), f))
		if errors.Is(err, port.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store attachment"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"url":             url,
			"key":             key,
			"conversation_id": convID,
			"content_type":    contentType,
		})
	}
}
