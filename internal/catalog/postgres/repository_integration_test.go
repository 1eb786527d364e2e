//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/catalog/postgres"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testDB, err = pg.Pool(ctx)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pg.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), query, args...)
	require.NoError(t, err)
}

func TestRepository_GetAlert(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRepository(testDB)

	var id string
	require.NoError(t, testDB.QueryRow(ctx, `
		INSERT INTO alerts (case_id, alert_number, alert_type, message, person, location, vehicle, contact, target_provinces, default_channels)
		VALUES ('CASE-7', 'ON-2026-007', 'amber', 'Call 911',
		        '{"name": "Sam Lee", "age": 7, "hair_color": "brown"}',
		        '{"city": "Toronto", "province": "ON"}',
		        '{"make": "Honda", "model": "Civic", "color": "blue", "license_plate": "ABCD 123"}',
		        '{"agency": "Toronto Police Service", "phone": "416-808-2222"}',
		        '{ON,QC}', '{partner,sms}')
		RETURNING id`).Scan(&id))

	alert, err := repo.GetAlert(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "ON-2026-007", alert.AlertNumber)
	assert.Equal(t, domain.AlertStatusActive, alert.Status)
	assert.Equal(t, "Sam Lee", alert.Person.Name)
	assert.Equal(t, 7, alert.Person.Age)
	assert.Equal(t, "Toronto", alert.Location.City)
	require.NotNil(t, alert.Vehicle)
	assert.Equal(t, "ABCD 123", alert.Vehicle.LicensePlate)
	assert.Nil(t, alert.Suspect)
	assert.Nil(t, alert.IssuedAt)
	assert.Equal(t, []string{"ON", "QC"}, alert.TargetProvinces)
	assert.Equal(t, []domain.Channel{domain.ChannelPartner, domain.ChannelSMS}, alert.DefaultChannels)

	_, err = repo.GetAlert(ctx, uuid.NewString())
	assert.ErrorIs(t, err, catalog.ErrAlertNotFound)
	_, err = repo.GetAlert(ctx, "alert-1")
	assert.ErrorIs(t, err, catalog.ErrAlertNotFound)
}

func TestRepository_Directory(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRepository(testDB)

	exec(t, `
		INSERT INTO partners (name, email, provinces, is_active, api_access, webhook_url, webhook_secret)
		VALUES ('Bus Co', 'ops@bus.example', '{ON}', true, true, 'https://bus.example/hook', 's'),
		       ('Ferry Co', 'ops@ferry.example', '{BC}', true, false, NULL, NULL),
		       ('Gone Co', 'ops@gone.example', '{ON}', false, false, NULL, NULL)`)
	exec(t, `
		INSERT INTO media_contacts (outlet_name, contact_name, email, coverage, is_active, receive_alerts)
		VALUES ('CBC', 'Desk', 'desk@cbc.example', '{ON}', true, true),
		       ('Muted FM', 'Desk', 'desk@muted.example', '{ON}', true, false)`)
	exec(t, `
		INSERT INTO social_accounts (platform, handle, is_active, is_connected, auto_post)
		VALUES ('twitter', '@amber', true, true, true),
		       ('facebook', 'AmberPage', true, false, true)`)

	partners, err := repo.ListPartners(ctx)
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, "Bus Co", partners[0].Name)
	assert.Equal(t, "https://bus.example/hook", partners[0].WebhookURL)
	assert.Empty(t, partners[1].WebhookURL)

	p, err := repo.GetPartner(ctx, partners[0].ID)
	require.NoError(t, err)
	assert.True(t, p.APIAccess)
	_, err = repo.GetPartner(ctx, uuid.NewString())
	assert.ErrorIs(t, err, catalog.ErrPartnerNotFound)

	media, err := repo.ListMediaContacts(ctx)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "CBC", media[0].OutletName)

	accounts, err := repo.ListSocialAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "@amber", accounts[0].Handle)
}

func TestRepository_ListSubscribers(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRepository(testDB)

	exec(t, `
		INSERT INTO subscribers (kind, address, province, opted_in)
		VALUES ('sms', '+14165550001', 'ON', true),
		       ('sms', '+16045550002', 'BC', true),
		       ('sms', '+14165550003', 'ON', false),
		       ('push', 'device-token-1', 'ON', true)`)

	all, err := repo.ListSubscribers(ctx, domain.SubscriberKindSMS, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ontario, err := repo.ListSubscribers(ctx, domain.SubscriberKindSMS, []string{"ON"})
	require.NoError(t, err)
	require.Len(t, ontario, 1)
	assert.Equal(t, "+14165550001", ontario[0].Address)

	none, err := repo.ListSubscribers(ctx, domain.SubscriberKindSMS, []string{"NU"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_CreatePartnerNotification(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRepository(testDB)

	var alertID, partnerID string
	require.NoError(t, testDB.QueryRow(ctx, `
		INSERT INTO alerts (case_id, alert_number, alert_type) VALUES ('C', 'QC-2026-001', 'amber') RETURNING id`).Scan(&alertID))
	require.NoError(t, testDB.QueryRow(ctx, `
		INSERT INTO partners (name, email) VALUES ('Rail Co', 'ops@rail.example') RETURNING id`).Scan(&partnerID))

	n := &domain.PartnerNotification{
		PartnerID: partnerID,
		AlertID:   alertID,
		Title:     "AMBER Alert",
		Body:      "Have you seen this child?",
	}
	require.NoError(t, repo.CreatePartnerNotification(ctx, n))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
}
