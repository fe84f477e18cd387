package wallet

import (
	"context"

	"sak/pkg/errors"
)

// Agent is the wallet software holding the user's keys.
type Agent interface {
	IsAvailable(ctx context.Context) (bool, error)
	// RequestAccess returns errors.ErrUserDeclined when the user refuses.
	RequestAccess(ctx context.Context, walletID string) error
	GetAddress(ctx context.Context) (string, error)
}

// StaticAgent answers with an address supplied by the client, e.g. one
// reported by a browser extension. An empty address counts as declined.
type StaticAgent struct {
	Address string
}

func (a StaticAgent) IsAvailable(context.Context) (bool, error) { return true, nil }

func (a StaticAgent) RequestAccess(context.Context, string) error {
	if a.Address == "" {
		return errors.ErrUserDeclined
	}
	return nil
}

func (a StaticAgent) GetAddress(context.Context) (string, error) {
	return a.Address, nil
}

// UnavailableAgent is used when no wallet software is configured.
type UnavailableAgent struct{}

func (UnavailableAgent) IsAvailable(context.Context) (bool, error) { return false, nil }

func (UnavailableAgent) RequestAccess(context.Context, string) error {
	return errors.ErrWalletUnavailable
}

func (UnavailableAgent) GetAddress(context.Context) (string, error) {
	return "", errors.ErrWalletUnavailable
}
