package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"sak/internal/events"
	"sak/internal/fileupload"
	"sak/internal/kyc"
	"sak/internal/repository/postgres"
	"sak/internal/security"
	"sak/pkg/domain"
	"sak/pkg/errors"
)

func newValidateCmd(c *cli) *cobra.Command {
	var tier, file string
	cmd := &cobra.Command{
		Use:   "validate --tier TIER --file DATA.json",
		Short: "Check a KYC document against a tier's rules",
		Long: `Reads a JSON object of KYC fields (use - for stdin) and checks it against the
cumulative rules of the tier. Field errors are printed as JSON and the command
exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}
			var raw []byte
			if file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return errors.Wrap(err, "failed to read document")
			}
			var data domain.KYCData
			if err := json.Unmarshal(raw, &data); err != nil {
				return errors.Wrap(err, "document is not a JSON object")
			}

			if errs := kyc.Validate(t, data); len(errs) > 0 {
				_ = printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":             false,
					"tier":              t,
					"validation_errors": errs,
				})
				return errSilent
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"valid": true, "tier": t})
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "base", "KYC tier: base, sepa or aaa")
	cmd.Flags().StringVar(&file, "file", "-", "path to the JSON document")
	return cmd
}

func newVerifyCmd(c *cli) *cobra.Command {
	var wallet, tier, by, notes string
	cmd := &cobra.Command{
		Use:   "verify --wallet KEY --tier TIER",
		Short: "Mark a pending KYC submission as validated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *kyc.Service) error {
				rec, err := svc.Verify(ctx, wallet, t, by, notes)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Stellar public key of the user")
	cmd.Flags().StringVar(&tier, "tier", "", "KYC tier: base, sepa or aaa")
	cmd.Flags().StringVar(&by, "by", "operator", "reviewer recorded on the submission")
	cmd.Flags().StringVar(&notes, "notes", "", "review notes")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func newRejectCmd(c *cli) *cobra.Command {
	var wallet, tier, reason, by, details string
	cmd := &cobra.Command{
		Use:   "reject --wallet KEY --tier TIER --reason TEXT",
		Short: "Reject a pending KYC submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *kyc.Service) error {
				rec, err := svc.Reject(ctx, wallet, t, reason, by, details)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Stellar public key of the user")
	cmd.Flags().StringVar(&tier, "tier", "", "KYC tier: base, sepa or aaa")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason shown to the user")
	cmd.Flags().StringVar(&by, "by", "operator", "reviewer recorded on the submission")
	cmd.Flags().StringVar(&details, "details", "", "internal details")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("tier")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "status --wallet KEY",
		Short: "Show the KYC status of every tier for a wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *kyc.Service) error {
				st, err := svc.Status(ctx, wallet)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Stellar public key of the user")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

// withService opens the database and builds a kyc.Service for one command.
// Review commands notify registered webhooks synchronously.
func (c *cli) withService(cmd *cobra.Command, fn func(context.Context, *kyc.Service) error) error {
	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	log := c.logger(cmd.ErrOrStderr())

	var sealer security.Sealer = security.PlainSealer{}
	if c.cfg.Security.EncryptionKey != "" {
		crypto, err := security.NewCryptoService(c.cfg.Security.EncryptionKey, c.cfg.Security.HMACKey)
		if err != nil {
			return err
		}
		sealer = crypto
	}

	storage, err := fileupload.NewLocalStorage(fileupload.LocalStorageConfig{
		BasePath:      c.cfg.Storage.BasePath,
		Bucket:        c.cfg.Storage.Bucket,
		PublicBaseURL: c.cfg.Storage.PublicBaseURL,
		MaxFileSize:   int64(c.cfg.Storage.MaxFileSizeMB) << 20,
	}, log)
	if err != nil {
		return err
	}

	svc := kyc.NewService(postgres.NewKYCRepository(db, sealer), postgres.NewUserRepository(db), storage, kyc.ServiceConfig{
		Events: events.NewWebhookDispatcher(postgres.NewWebhookRepository(db), events.WebhookConfig{
			Client:      &http.Client{Timeout: c.cfg.Events.WebhookTimeout},
			MaxAttempts: c.cfg.Events.WebhookMaxAttempts,
			Backoff:     c.cfg.Events.WebhookRetryDelay,
			Logger:      log,
		}),
		Logger:        log,
		MaxFileSizeMB: c.cfg.Storage.MaxFileSizeMB,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	return fn(ctx, svc)
}

func (c *cli) openDB() (*sqlx.DB, error) {
	if c.cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	db, err := sqlx.Connect("postgres", c.cfg.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return db, nil
}
