package push

import "time"

// Subscription is a stored Web Push endpoint for one client device.
type Subscription struct {
	ID        int64
	ProfileID string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// Message is the payload delivered to a device.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}
