package distribution

import "github.com/bissquit/amber-relay/internal/domain"

// Summary aggregates the units of one alert.
// Every known status and channel is present, zero when absent.
type Summary struct {
	AlertID   string                            `json:"alert_id"`
	Total     int                               `json:"total"`
	ByStatus  map[domain.DistributionStatus]int `json:"by_status"`
	ByChannel map[domain.Channel]int            `json:"by_channel"`
}

// BuildSummary folds per-(channel, status) counts into a summary.
func BuildSummary(alertID string, counts []UnitCount) *Summary {
	s := &Summary{
		AlertID:   alertID,
		ByStatus:  make(map[domain.DistributionStatus]int, len(domain.AllDistributionStatuses)),
		ByChannel: make(map[domain.Channel]int, len(domain.AllChannels)),
	}
	for _, st := range domain.AllDistributionStatuses {
		s.ByStatus[st] = 0
	}
	for _, c := range domain.AllChannels {
		s.ByChannel[c] = 0
	}

	for _, c := range counts {
		s.Total += c.Count
		s.ByStatus[c.Status] += c.Count
		s.ByChannel[c.Channel] += c.Count
	}
	return s
}
