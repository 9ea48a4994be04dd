package domain

import "time"

// NotificationKind is the flavour of an advisory message
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient advisory message
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	ExpiresAt time.Time        `json:"expires_at"`
}
