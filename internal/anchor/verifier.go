package anchor

import (
	"context"
	"time"

	"sak/internal/kyc"
	"sak/pkg/domain"
	"sak/pkg/errors"
)

// VerificationRequest asks for one tier of a wallet to be verified. Data is
// optional: an empty document means "check what is already on file".
type VerificationRequest struct {
	Wallet string
	Tier   domain.KYCTier
	Data   domain.KYCData
}

type VerificationOutcome string

const (
	OutcomeValidated VerificationOutcome = "validated"
	OutcomeRejected  VerificationOutcome = "rejected"
)

// Verifier settles a verification request. Implementations must honor ctx and
// return errors.ErrVerificationTimeout when its deadline passes.
type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest) (VerificationOutcome, error)
}

// TimerVerifier waits a fixed delay and always validates. It stands in for a
// real KYC provider in demos.
type TimerVerifier struct {
	Delay time.Duration
}

func (v TimerVerifier) Verify(ctx context.Context, _ VerificationRequest) (VerificationOutcome, error) {
	if err := sleep(ctx, v.Delay); err != nil {
		return "", err
	}
	return OutcomeValidated, nil
}

// KYCService is the part of kyc.Service the store verifier drives.
type KYCService interface {
	StoreFor(ctx context.Context, wallet string) (*kyc.RecordStore, error)
	Submit(ctx context.Context, wallet string, tier domain.KYCTier, data domain.KYCData) (*domain.KYCRecord, error)
	TierStatus(ctx context.Context, wallet string, tier domain.KYCTier) (*kyc.TierStatus, error)
}

// StoreVerifier submits the document to the record store and polls the tier
// until a reviewer validates or rejects it. Documents for sepa and aaa are
// layered over the closest lower tier already on file. An aaa document without
// a screening result is screened first.
type StoreVerifier struct {
	Service      KYCService
	PollInterval time.Duration
	// Screener defaults to kyc.SimulatedScreener.
	Screener kyc.AMLScreener
}

func (v StoreVerifier) Verify(ctx context.Context, req VerificationRequest) (VerificationOutcome, error) {
	if len(req.Data) > 0 {
		data, err := v.withLowerTiers(ctx, req)
		if err != nil {
			return "", err
		}
		if req.Tier == domain.KYCTierAAA {
			if data, err = v.screen(ctx, data); err != nil {
				return "", err
			}
		}
		_, err = v.Service.Submit(ctx, req.Wallet, req.Tier, data)
		if errors.Is(err, errors.ErrAlreadyValidated) {
			return OutcomeValidated, nil
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to submit verification")
		}
	}

	interval := v.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		st, err := v.Service.TierStatus(ctx, req.Wallet, req.Tier)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctxError(ctx)
			}
			return "", errors.Wrap(err, "failed to poll verification")
		}
		switch st.Status {
		case domain.StatusValidated:
			return OutcomeValidated, nil
		case domain.StatusRejected:
			return OutcomeRejected, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return "", err
		}
	}
}

func (v StoreVerifier) withLowerTiers(ctx context.Context, req VerificationRequest) (domain.KYCData, error) {
	if req.Tier.Rank() <= 1 {
		return req.Data, nil
	}
	store, err := v.Service.StoreFor(ctx, req.Wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load kyc records")
	}
	for i := req.Tier.Rank() - 2; i >= 0; i-- {
		if rec, ok := store.GetKycByType(domain.AllTiers[i]); ok {
			return kyc.MergeData(rec.Data, req.Data), nil
		}
	}
	return req.Data, nil
}

func (v StoreVerifier) screen(ctx context.Context, data domain.KYCData) (domain.KYCData, error) {
	if domain.AMLScreeningResult(data.Text(domain.FieldAMLScreeningResult)).Valid() {
		return data, nil
	}
	screener := v.Screener
	if screener == nil {
		screener = kyc.SimulatedScreener{}
	}
	result, err := screener.Screen(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxError(ctx)
		}
		return nil, errors.Wrap(err, "aml screening failed")
	}
	out := data.Clone()
	out[domain.FieldAMLScreeningResult] = string(result)
	out[domain.FieldAMLScreeningDate] = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctxError(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctxError(ctx)
	}
}

func ctxError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return errors.ErrVerificationTimeout
	default:
		return ctx.Err()
	}
}
