package notification

import (
	"fmt"
	"time"
)

// Message types pushed to clients.
const (
	TypeShootProgress = "SHOOT_PROGRESS"
)

// Progress statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ServerDeviceID marks messages originating from the engine itself.
const ServerDeviceID = "server"

// secondsPerImage is the rough per-image estimate behind ETA.
const secondsPerImage = 2

// ShootProgress is the payload of a SHOOT_PROGRESS message.
type ShootProgress struct {
	ShootID        string `json:"shootId"`
	Status         string `json:"status"`
	ProcessedCount int    `json:"processedCount"`
	TotalCount     int    `json:"totalCount"`
	Provider       string `json:"provider"`
	ETA            *int   `json:"eta,omitempty"`
}

// Message is the envelope delivered to a user's connected devices.
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId"`
	UserID    string `json:"userId"`
}

// EstimateETA returns the remaining seconds for a job, or nil when nothing
// has been processed yet or the job is done.
func EstimateETA(processed, total int) *int {
	if processed <= 0 || processed >= total {
		return nil
	}
	eta := (total - processed) * secondsPerImage
	return &eta
}

// NewShootProgress builds a progress message stamped at now.
func NewShootProgress(userID, shootID, provider, status string, processed, total int, now time.Time) Message {
	return Message{
		Type: TypeShootProgress,
		Data: ShootProgress{
			ShootID:        shootID,
			Status:         status,
			ProcessedCount: processed,
			TotalCount:     total,
			Provider:       provider,
			ETA:            EstimateETA(processed, total),
		},
		Timestamp: now.UnixMilli(),
		DeviceID:  ServerDeviceID,
		UserID:    userID,
	}
}

// FormatSummary renders a one-line job outcome for command notifiers.
func FormatSummary(status, shootID string, succeeded, total int, provider string) string {
	switch status {
	case StatusCompleted:
		return fmt.Sprintf("✅ shoot %s rated %d/%d images with %s", shootID, succeeded, total, provider)
	case StatusFailed:
		return fmt.Sprintf("❌ shoot %s failed: %d/%d images rated with %s", shootID, succeeded, total, provider)
	default:
		return fmt.Sprintf("ℹ️ shoot %s %s: %d/%d images with %s", shootID, status, succeeded, total, provider)
	}
}
