// Package entitlement guarantees a player holds a valid radio-bundle
// entitlement before playlist access.
package entitlement

import (
	"context"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/infra/cloud"
)

// Backend is the subset of the cloud client the flow needs.
type Backend interface {
	PurchaseBundle(ctx context.Context, playerID, bundleID, clientRef string) (string, error)
	ConfirmPayment(ctx context.Context, req cloud.ConfirmPaymentRequest) error
}

// Regions resolves a player's billing country.
type Regions interface {
	CountryFor(ctx context.Context, playerID string) (string, error)
}

// Config represents the fixed billing profile used for confirmations.
type Config struct {
	BundleID    string
	PayType     string
	BillingType string
}

// Flow drives the purchase-and-confirm round trip. It runs before every
// catalog fetch, unconditionally; deduplication of repeat purchases is the
// backend's responsibility, aided by the client reference.
type Flow struct {
	backend Backend
	regions Regions
	cfg     Config
}

// New creates a new entitlement flow.
func New(backend Backend, regions Regions, cfg Config) *Flow {
	return &Flow{
		backend: backend,
		regions: regions,
		cfg:     cfg,
	}
}

// CreateAndConfirmTransaction purchases the given bundle for a player and
// confirms the payment with the fixed billing profile.
func (f *Flow) CreateAndConfirmTransaction(ctx context.Context, playerID, bundleID string) error {
	clientRef := uuid.New().String()

	txID, err := f.backend.PurchaseBundle(ctx, playerID, bundleID, clientRef)
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("purchase created: player_id=%s bundle_id=%s transaction_id=%s", playerID, bundleID, txID)

	country, err := f.regions.CountryFor(ctx, playerID)
	if err != nil {
		return err
	}

	if err := f.backend.ConfirmPayment(ctx, cloud.ConfirmPaymentRequest{
		TransactionID: txID,
		Country:       country,
		PayType:       f.cfg.PayType,
		BillingType:   f.cfg.BillingType,
	}); err != nil {
		return err
	}

	zlog.Info().Msgf("entitlement confirmed: player_id=%s bundle_id=%s transaction_id=%s country=%s", playerID, bundleID, txID, country)
	return nil
}

// Ensure confirms the configured bundle for a player.
func (f *Flow) Ensure(ctx context.Context, playerID string) error {
	return f.CreateAndConfirmTransaction(ctx, playerID, f.cfg.BundleID)
}
