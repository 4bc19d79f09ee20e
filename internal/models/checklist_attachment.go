package models

import "time"

// Attachment kinds.
const (
	AttachmentPhoto     = "PHOTO"
	AttachmentSignature = "SIGNATURE"
	AttachmentFile      = "FILE"
)

// ChecklistAttachment is binary evidence attached to an answer or directly
// to a work order. Base64Payload holds the file content until the upload
// succeeds, then it is cleared to bound local storage growth.
type ChecklistAttachment struct {
	ID              string  `gorm:"primaryKey;size:36"`
	AnswerID        *string `gorm:"size:36;index"`
	WorkOrderID     string  `gorm:"size:36;index"`
	Kind            string  `gorm:"size:16"`
	FileName        string  `gorm:"size:255"`
	LocalPath       string  `gorm:"size:512"`
	RemotePath      string  `gorm:"size:512"`
	Base64Payload   string  `gorm:"type:text"`
	SyncStatus      string  `gorm:"size:16;default:PENDING;index"`
	UploadAttempts  int     `gorm:"default:0"`
	LastUploadError string  `gorm:"type:text"`
	TechnicianID    string  `gorm:"size:36;index"`
	SyncedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
