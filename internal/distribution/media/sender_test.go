package media

import (
	"context"
	"errors"
	"testing"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	enabled bool
	err     error
	subject string
	body    string
	to      string
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Send(_ context.Context, subject, body, to string) error {
	f.subject, f.body, f.to = subject, body, to
	return f.err
}

func testAlert() *domain.Alert {
	return &domain.Alert{
		ID:          "alert-1",
		AlertNumber: "QC-2026-010",
		Type:        domain.AlertTypeAmber,
		Status:      domain.AlertStatusActive,
		Person:      domain.PersonDescriptor{Name: "Luc Gagnon", Age: 11},
		Location:    domain.LocationDescriptor{City: "Laval", Province: "QC"},
		Vehicle:     &domain.VehicleDescriptor{Make: "Honda", Model: "Civic", Color: "grey", LicensePlate: "ABC123"},
		Contact:     domain.ContactInfo{Agency: "Laval Police", Phone: "450-555-0142"},
	}
}

func testUnit() *domain.DistributionUnit {
	return &domain.DistributionUnit{
		ID:            "unit-1",
		Channel:       domain.ChannelMediaOutlet,
		TargetID:      "m1",
		TargetName:    "Metro News",
		TargetContact: "desk@metronews.example",
	}
}

func newTestSender(t *testing.T, mailer Mailer) *Sender {
	t.Helper()
	renderer, err := distribution.NewRenderer()
	require.NoError(t, err)
	return NewSender(mailer, renderer)
}

func TestSender_Send(t *testing.T) {
	mailer := &fakeMailer{enabled: true}
	s := newTestSender(t, mailer)

	res, err := s.Send(context.Background(), testUnit(), testAlert())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "Press release sent to Metro News", res.Note)
	assert.Equal(t, "desk@metronews.example", mailer.to)
	assert.Equal(t, "Amber Alert QC-2026-010: Luc Gagnon", mailer.subject)
	assert.Contains(t, mailer.body, "FOR IMMEDIATE RELEASE")
	assert.Contains(t, mailer.body, "Laval Police has issued an Amber Alert for Luc Gagnon, age 11.")
	assert.Contains(t, mailer.body, "Reference: QC-2026-010")
}

func TestSender_Send_TransportFailure(t *testing.T) {
	smtpErr := errors.New("421 service not available")
	s := newTestSender(t, &fakeMailer{enabled: true, err: smtpErr})

	_, err := s.Send(context.Background(), testUnit(), testAlert())

	assert.ErrorIs(t, err, smtpErr)
}

func TestSender_Send_Disabled(t *testing.T) {
	s := newTestSender(t, &fakeMailer{})

	_, err := s.Send(context.Background(), testUnit(), testAlert())

	assert.ErrorIs(t, err, distribution.ErrChannelDisabled)
}

func TestSender_Send_NoContact(t *testing.T) {
	s := newTestSender(t, &fakeMailer{enabled: true})
	unit := testUnit()
	unit.TargetContact = ""

	_, err := s.Send(context.Background(), unit, testAlert())

	assert.Error(t, err)
}
