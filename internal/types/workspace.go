package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileAttachment is the normalized in-memory form of an uploaded document:
// raw bytes base64-encoded, no data-URL header prefix.
type FileAttachment struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

type FileMetadata struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"` // pdf | ppt | txt
	UploadDate string `json:"uploadDate"`
}

type CoverageStats struct {
	Ingested  int `json:"ingested"`
	Retained  int `json:"retained"`
	Validated int `json:"validated"`
}

// Workspace is one document-derived study session. Sections are replaced
// wholesale on update; ActiveSectionIndex always indexes into Sections once
// Sections is non-empty.
type Workspace struct {
	FileInfo           FileMetadata    `json:"fileInfo"`
	Subject            string          `json:"subject"`
	Sections           []Section       `json:"sections"`
	ActiveSectionIndex int             `json:"activeSectionIndex"`
	Attachment         *FileAttachment `json:"attachment,omitempty"`
	CoverageStats      CoverageStats   `json:"coverageStats"`
}

// NewWorkspace builds a workspace from a discovered curriculum skeleton.
// The first section starts in-progress, the rest locked; all stats at zero.
func NewWorkspace(att FileAttachment, sections []Section) Workspace {
	for i := range sections {
		if i == 0 {
			sections[i].Status = SectionInProgress
		} else {
			sections[i].Status = SectionLocked
		}
	}
	return Workspace{
		FileInfo: FileMetadata{
			ID:         uuid.NewString(),
			Name:       att.Name,
			Type:       InferFileType(att.Name),
			UploadDate: time.Now().UTC().Format(time.RFC3339),
		},
		Subject:            strings.TrimSuffix(att.Name, fileExt(att.Name)),
		Sections:           sections,
		ActiveSectionIndex: 0,
		Attachment:         &att,
		CoverageStats:      CoverageStats{},
	}
}

func InferFileType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".ppt"), strings.HasSuffix(lower, ".pptx"):
		return "ppt"
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf"
	default:
		return "txt"
	}
}

func fileExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return ""
	}
	return name[idx:]
}
