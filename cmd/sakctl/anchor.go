package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sak/internal/auth"
	"sak/internal/repository/postgres"
)

func newAnchorCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Register and revoke anchors of the KYC API",
	}

	var name string
	create := &cobra.Command{
		Use:   "create --name NAME",
		Short: "Register an anchor and print its API key",
		Long: `Registers an anchor and prints its API key once. Only a hash of the key is
stored; a lost key means revoking the anchor and creating a new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			keys := auth.NewAPIKeyService(postgres.NewAnchorRepository(db), c.cfg.APIKeyIndexKey())
			a, rawKey, err := keys.CreateAnchor(cmd.Context(), name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"id":     a.ID,
				"name":   a.Name,
				"apiKey": rawKey,
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name of the anchor")
	_ = create.MarkFlagRequired("name")

	revoke := &cobra.Command{
		Use:   "revoke ANCHOR_ID",
		Short: "Deactivate an anchor; its API key stops working",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			keys := auth.NewAPIKeyService(postgres.NewAnchorRepository(db), c.cfg.APIKeyIndexKey())
			if err := keys.RevokeAnchor(cmd.Context(), id); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"id": id, "active": false})
		},
	}

	cmd.AddCommand(create, revoke)
	return cmd
}
