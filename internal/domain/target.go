package domain

import "time"

// Partner is an organization that receives alerts directly or by webhook.
type Partner struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Provinces     []string  `json:"provinces"`
	IsActive      bool      `json:"is_active"`
	APIAccess     bool      `json:"api_access"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	WebhookSecret string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// CoversAny reports whether the partner serves any of the given provinces.
func (p *Partner) CoversAny(provinces []string) bool {
	return intersects(p.Provinces, provinces)
}

// MediaContact is a press contact at a media outlet.
type MediaContact struct {
	ID            string   `json:"id"`
	OutletName    string   `json:"outlet_name"`
	ContactName   string   `json:"contact_name"`
	Email         string   `json:"email"`
	Coverage      []string `json:"coverage"`
	IsActive      bool     `json:"is_active"`
	ReceiveAlerts bool     `json:"receive_alerts"`
}

// CoversAny reports whether the outlet's coverage includes any of the given provinces.
func (m *MediaContact) CoversAny(provinces []string) bool {
	return intersects(m.Coverage, provinces)
}

// SocialAccount is an organization-owned social media account.
type SocialAccount struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	Handle      string `json:"handle"`
	IsActive    bool   `json:"is_active"`
	IsConnected bool   `json:"is_connected"`
	AutoPost    bool   `json:"auto_post"`
}

// SubscriberKind identifies the bulk pool a subscriber belongs to.
type SubscriberKind string

// Subscriber kinds.
const (
	SubscriberKindEmail SubscriberKind = "email"
	SubscriberKindSMS   SubscriberKind = "sms"
	SubscriberKindPush  SubscriberKind = "push"
)

// Subscriber is a member of the public who opted in to alerts.
// Address holds an email, a phone number or a device token depending on Kind.
type Subscriber struct {
	ID       string         `json:"id"`
	Kind     SubscriberKind `json:"kind"`
	Address  string         `json:"address"`
	Province string         `json:"province"`
}

// PartnerNotification is an in-app message addressed to a partner.
type PartnerNotification struct {
	ID        string
	PartnerID string
	AlertID   string
	Title     string
	Body      string
	CreatedAt time.Time
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
