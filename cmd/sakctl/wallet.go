package main

import (
	"github.com/spf13/cobra"

	"sak/internal/wallet"
)

func newWalletCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the locally remembered Stellar wallet",
		Long: `The connected wallet is kept in WALLET_SESSION_FILE so other sakctl
commands and later runs can use it. With USE_MOCK_WALLET set, connect always
uses the demo key.`,
	}

	session := func(cmd *cobra.Command, address string) *wallet.Session {
		return wallet.NewSession(
			wallet.StaticAgent{Address: address},
			wallet.NewFileStateStore(c.cfg.Wallet.SessionFile),
			wallet.Config{UseMock: c.cfg.Wallet.UseMock, Logger: c.logger(cmd.ErrOrStderr())},
		)
	}

	var address, walletID string
	connect := &cobra.Command{
		Use:   "connect --address KEY",
		Short: "Remember a Stellar public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := session(cmd, address)
			defer s.Close()
			if _, err := s.Connect(cmd.Context(), walletID); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.State())
		},
	}
	connect.Flags().StringVar(&address, "address", "", "Stellar public key (G...)")
	connect.Flags().StringVar(&walletID, "wallet-id", "freighter", "wallet software identifier")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the remembered wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := session(cmd, "")
			defer s.Close()
			if err := s.Restore(cmd.Context()); err != nil {
				return err
			}
			st := s.State()
			out := map[string]interface{}{"state": st}
			if st.IsConnected {
				out["shortKey"] = wallet.ShortenPublicKey(st.PublicKey, 4)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	disconnect := &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the remembered wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := session(cmd, "")
			defer s.Close()
			if err := s.Disconnect(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.State())
		},
	}

	cmd.AddCommand(connect, status, disconnect)
	return cmd
}
