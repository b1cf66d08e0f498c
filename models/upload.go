package models

import (
	"io"

	"github.com/google/uuid"
)

type UploadState uint8

const (
	UploadState_Idle UploadState = iota
	UploadState_Uploading
	UploadState_Submitting
)

func (s UploadState) String() string {
	switch s {
	case UploadState_Idle:
		return "idle"
	case UploadState_Uploading:
		return "uploading"
	case UploadState_Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// UploadItem is either raw content (Reader set) or an externally-supplied CID (Cid set).
type UploadItem struct {
	Name   string
	Reader io.Reader
	Size   int64
	Cid    string
}

func (u UploadItem) IsExternal() bool {
	return u.Reader == nil
}

type UploadEvent struct {
	JobId    uuid.UUID
	State    UploadState
	Progress int
	// Err is set on the terminal event of a failed job
	Err error
}

type UploadResult struct {
	JobId       uuid.UUID
	ManifestCid string
	Files       []BatchManifestItem
}
