// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetAlert retrieves an alert by ID.
func (r *Repository) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, catalog.ErrAlertNotFound
	}

	query := `
		SELECT id, case_id, alert_number, alert_type, status, message,
		       person, location, vehicle, suspect, contact,
		       target_provinces, default_channels, issued_at, created_at
		FROM alerts
		WHERE id = $1
	`
	var (
		alert                            domain.Alert
		person, location, contact        []byte
		vehicle, suspect                 []byte
		defaultChannels, targetProvinces []string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.CaseID,
		&alert.AlertNumber,
		&alert.Type,
		&alert.Status,
		&alert.Message,
		&person,
		&location,
		&vehicle,
		&suspect,
		&contact,
		&targetProvinces,
		&defaultChannels,
		&alert.IssuedAt,
		&alert.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}

	if err := unmarshalJSON(person, &alert.Person); err != nil {
		return nil, fmt.Errorf("decode person: %w", err)
	}
	if err := unmarshalJSON(location, &alert.Location); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	if err := unmarshalJSON(contact, &alert.Contact); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	if vehicle != nil {
		alert.Vehicle = &domain.VehicleDescriptor{}
		if err := unmarshalJSON(vehicle, alert.Vehicle); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
	}
	if suspect != nil {
		alert.Suspect = &domain.SuspectDescriptor{}
		if err := unmarshalJSON(suspect, alert.Suspect); err != nil {
			return nil, fmt.Errorf("decode suspect: %w", err)
		}
	}

	alert.TargetProvinces = targetProvinces
	alert.DefaultChannels = make([]domain.Channel, 0, len(defaultChannels))
	for _, c := range defaultChannels {
		alert.DefaultChannels = append(alert.DefaultChannels, domain.Channel(c))
	}

	return &alert, nil
}

// GetPartner retrieves a partner by ID.
func (r *Repository) GetPartner(ctx context.Context, id string) (*domain.Partner, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, catalog.ErrPartnerNotFound
	}

	query := `
		SELECT id, name, email, provinces, is_active, api_access,
		       COALESCE(webhook_url, ''), COALESCE(webhook_secret, ''), created_at
		FROM partners
		WHERE id = $1
	`
	p, err := scanPartner(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("get partner: %w", err)
	}
	return p, nil
}

// ListPartners returns active partners ordered by name.
func (r *Repository) ListPartners(ctx context.Context) ([]domain.Partner, error) {
	query := `
		SELECT id, name, email, provinces, is_active, api_access,
		       COALESCE(webhook_url, ''), COALESCE(webhook_secret, ''), created_at
		FROM partners
		WHERE is_active = true
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	partners := make([]domain.Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partners: %w", err)
	}

	return partners, nil
}

// ListMediaContacts returns active media contacts that accept alerts.
func (r *Repository) ListMediaContacts(ctx context.Context) ([]domain.MediaContact, error) {
	query := `
		SELECT id, outlet_name, contact_name, email, coverage, is_active, receive_alerts
		FROM media_contacts
		WHERE is_active = true AND receive_alerts = true
		ORDER BY outlet_name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list media contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]domain.MediaContact, 0)
	for rows.Next() {
		var m domain.MediaContact
		if err := rows.Scan(&m.ID, &m.OutletName, &m.ContactName, &m.Email, &m.Coverage, &m.IsActive, &m.ReceiveAlerts); err != nil {
			return nil, fmt.Errorf("scan media contact: %w", err)
		}
		contacts = append(contacts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media contacts: %w", err)
	}

	return contacts, nil
}

// ListSocialAccounts returns connected accounts configured for automatic posting.
func (r *Repository) ListSocialAccounts(ctx context.Context) ([]domain.SocialAccount, error) {
	query := `
		SELECT id, platform, handle, is_active, is_connected, auto_post
		FROM social_accounts
		WHERE is_active = true AND is_connected = true AND auto_post = true
		ORDER BY platform, handle
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list social accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.SocialAccount, 0)
	for rows.Next() {
		var a domain.SocialAccount
		if err := rows.Scan(&a.ID, &a.Platform, &a.Handle, &a.IsActive, &a.IsConnected, &a.AutoPost); err != nil {
			return nil, fmt.Errorf("scan social account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate social accounts: %w", err)
	}

	return accounts, nil
}

// ListSubscribers returns opted-in subscribers of a pool, optionally restricted to provinces.
func (r *Repository) ListSubscribers(ctx context.Context, kind domain.SubscriberKind, provinces []string) ([]domain.Subscriber, error) {
	if provinces == nil {
		provinces = []string{}
	}

	query := `
		SELECT id, kind, address, province
		FROM subscribers
		WHERE kind = $1 AND opted_in = true
		  AND (cardinality($2::text[]) = 0 OR province = ANY($2::text[]))
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, kind, provinces)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]domain.Subscriber, 0)
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.ID, &s.Kind, &s.Address, &s.Province); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return subscribers, nil
}

// CreatePartnerNotification stores an in-app notification for a partner.
func (r *Repository) CreatePartnerNotification(ctx context.Context, n *domain.PartnerNotification) error {
	query := `
		INSERT INTO partner_notifications (partner_id, alert_id, title, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, n.PartnerID, n.AlertID, n.Title, n.Body).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create partner notification: %w", err)
	}
	return nil
}

func scanPartner(row pgx.Row) (*domain.Partner, error) {
	var p domain.Partner
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Provinces,
		&p.IsActive,
		&p.APIAccess,
		&p.WebhookURL,
		&p.WebhookSecret,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
