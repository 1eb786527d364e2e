// Package catalog provides read access to alerts and the distribution target directory.
package catalog

import (
	"context"

	"github.com/bissquit/amber-relay/internal/domain"
)

// Repository defines the interface for catalog data operations.
type Repository interface {
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)

	GetPartner(ctx context.Context, id string) (*domain.Partner, error)
	ListPartners(ctx context.Context) ([]domain.Partner, error)
	ListMediaContacts(ctx context.Context) ([]domain.MediaContact, error)
	ListSocialAccounts(ctx context.Context) ([]domain.SocialAccount, error)

	SubscriberDirectory

	CreatePartnerNotification(ctx context.Context, n *domain.PartnerNotification) error
}

// SubscriberDirectory lists opted-in subscribers of a bulk pool.
// An empty provinces slice means every province.
type SubscriberDirectory interface {
	ListSubscribers(ctx context.Context, kind domain.SubscriberKind, provinces []string) ([]domain.Subscriber, error)
}
