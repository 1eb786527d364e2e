package domain

import "time"

// Channel represents a delivery medium.
type Channel string

// Delivery channels.
const (
	ChannelPartner            Channel = "partner"
	ChannelMediaOutlet        Channel = "media_outlet"
	ChannelEmail              Channel = "email"
	ChannelPush               Channel = "push"
	ChannelSocialMedia        Channel = "social_media"
	ChannelSMS                Channel = "sms"
	ChannelRegulatedBroadcast Channel = "regulated_broadcast"
	ChannelWebhook            Channel = "webhook"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []Channel{
	ChannelPartner,
	ChannelMediaOutlet,
	ChannelEmail,
	ChannelPush,
	ChannelSocialMedia,
	ChannelSMS,
	ChannelRegulatedBroadcast,
	ChannelWebhook,
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPartner, ChannelMediaOutlet, ChannelEmail, ChannelPush,
		ChannelSocialMedia, ChannelSMS, ChannelRegulatedBroadcast, ChannelWebhook:
		return true
	}
	return false
}

// IsBulk reports whether the channel fans out to a subscriber pool.
func (c Channel) IsBulk() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// RegulatedSystem is a sub-type of the regulated broadcast channel.
type RegulatedSystem string

// Regulated broadcast systems.
const (
	RegulatedSystemWEA          RegulatedSystem = "wea"
	RegulatedSystemEAS          RegulatedSystem = "eas"
	RegulatedSystemHighwaySigns RegulatedSystem = "highway_signs"
)

// AllRegulatedSystems lists the regulated broadcast sub-types.
var AllRegulatedSystems = []RegulatedSystem{
	RegulatedSystemWEA,
	RegulatedSystemEAS,
	RegulatedSystemHighwaySigns,
}

// Valid reports whether s is a known regulated system.
func (s RegulatedSystem) Valid() bool {
	switch s {
	case RegulatedSystemWEA, RegulatedSystemEAS, RegulatedSystemHighwaySigns:
		return true
	}
	return false
}

// DistributionStatus represents the delivery state of a unit.
type DistributionStatus string

// Distribution statuses.
const (
	DistributionStatusPending   DistributionStatus = "pending"
	DistributionStatusSending   DistributionStatus = "sending"
	DistributionStatusQueued    DistributionStatus = "queued"
	DistributionStatusSent      DistributionStatus = "sent"
	DistributionStatusDelivered DistributionStatus = "delivered"
	DistributionStatusFailed    DistributionStatus = "failed"
	DistributionStatusCancelled DistributionStatus = "cancelled"
)

// AllDistributionStatuses lists every status in lifecycle order.
var AllDistributionStatuses = []DistributionStatus{
	DistributionStatusPending,
	DistributionStatusSending,
	DistributionStatusQueued,
	DistributionStatusSent,
	DistributionStatusDelivered,
	DistributionStatusFailed,
	DistributionStatusCancelled,
}

var distributionTransitions = map[DistributionStatus][]DistributionStatus{
	DistributionStatusPending: {DistributionStatusSending, DistributionStatusCancelled},
	DistributionStatusSending: {DistributionStatusSent, DistributionStatusFailed, DistributionStatusQueued},
	DistributionStatusFailed:  {DistributionStatusSending, DistributionStatusCancelled},
	DistributionStatusQueued:  {DistributionStatusCancelled},
	DistributionStatusSent:    {DistributionStatusDelivered},
}

// CanTransition reports whether a unit may move from one status to another.
func CanTransition(from, to DistributionStatus) bool {
	for _, s := range distributionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultMaxRetries is the attempt budget of a new unit.
const DefaultMaxRetries = 3

// ApprovalPendingMessage is recorded on regulated units parked for review.
const ApprovalPendingMessage = "Awaiting manual approval"

// ChannelConfig carries channel-specific delivery parameters.
type ChannelConfig struct {
	Provinces        []string        `json:"provinces,omitempty"`
	Platform         string          `json:"platform,omitempty"`
	System           RegulatedSystem `json:"system,omitempty"`
	RequiresApproval bool            `json:"requires_approval,omitempty"`
}

// DistributionUnit is one delivery attempt target for one alert on one channel.
type DistributionUnit struct {
	ID            string             `json:"id"`
	AlertID       string             `json:"alert_id"`
	Channel       Channel            `json:"channel"`
	TargetID      string             `json:"target_id"`
	TargetName    string             `json:"target_name"`
	TargetContact string             `json:"target_contact,omitempty"`
	Config        ChannelConfig      `json:"channel_config"`
	Status        DistributionStatus `json:"status"`
	RetryCount    int                `json:"retry_count"`
	MaxRetries    int                `json:"max_retries"`
	NextRetryAt   *time.Time         `json:"next_retry_at"`
	StatusMessage string             `json:"status_message,omitempty"`
	SentAt        *time.Time         `json:"sent_at"`
	FailedAt      *time.Time         `json:"failed_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IsDue reports whether the unit is eligible for a send attempt at now.
func (u *DistributionUnit) IsDue(now time.Time) bool {
	if u.Status != DistributionStatusPending && u.Status != DistributionStatusFailed {
		return false
	}
	if u.RetryCount >= u.MaxRetries {
		return false
	}
	return u.NextRetryAt == nil || !u.NextRetryAt.After(now)
}

// IsCancellable reports whether the unit can still be cancelled.
// Failed units qualify only while a retry is scheduled.
func (u *DistributionUnit) IsCancellable() bool {
	switch u.Status {
	case DistributionStatusPending, DistributionStatusQueued:
		return true
	case DistributionStatusFailed:
		return u.NextRetryAt != nil && u.RetryCount < u.MaxRetries
	}
	return false
}

// IsTerminal reports whether the unit will never be attempted again.
func (u *DistributionUnit) IsTerminal() bool {
	switch u.Status {
	case DistributionStatusSent, DistributionStatusDelivered, DistributionStatusCancelled, DistributionStatusQueued:
		return true
	case DistributionStatusFailed:
		return u.NextRetryAt == nil || u.RetryCount >= u.MaxRetries
	}
	return false
}
