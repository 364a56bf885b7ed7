package services

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

type AttachmentService interface {
	DecodeUpload(file *multipart.FileHeader) (types.FileAttachment, error)
}

type attachmentService struct {
	log *logger.Logger
}

func NewAttachmentService(baseLog *logger.Logger) AttachmentService {
	return &attachmentService{log: baseLog.With("service", "AttachmentService")}
}

// DecodeUpload normalizes an uploaded file into the attachment descriptor the
// generation gateway consumes: raw base64 (no data-URL prefix) plus MIME type,
// defaulting to application/octet-stream when the client sent none.
func (s *attachmentService) DecodeUpload(file *multipart.FileHeader) (types.FileAttachment, error) {
	if file == nil {
		return types.FileAttachment{}, fmt.Errorf("no file provided")
	}

	src, err := file.Open()
	if err != nil {
		return types.FileAttachment{}, fmt.Errorf("open uploaded file %q: %w", file.Filename, err)
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return types.FileAttachment{}, fmt.Errorf("read uploaded file %q: %w", file.Filename, err)
	}

	mimeType := strings.TrimSpace(file.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return types.FileAttachment{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: mimeType,
		Name:     file.Filename,
	}, nil
}
