package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sak/pkg/config"
	"sak/pkg/errors"
	"sak/pkg/logger"
)

// errSilent marks a failure whose details were already printed.
var errSilent = errors.New("command failed")

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if err != errSilent {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

type cli struct {
	cfg      *config.Config
	logLevel string
}

func (c *cli) logger(w io.Writer) logger.Logger {
	return logger.NewWithWriter("sakctl", w, logger.ParseLevel(c.logLevel))
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "sakctl",
		Short: "Operator tool for the SAK anchor",
		Long: `sakctl checks KYC documents, prices ARS to USDC conversions and reviews
submissions against the SAK database. Database commands read DATABASE_URL and
the other service settings from the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			c.cfg = config.Load()
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		newValidateCmd(c),
		newQuoteCmd(c),
		newVerifyCmd(c),
		newRejectCmd(c),
		newStatusCmd(c),
		newWalletCmd(c),
		newAnchorCmd(c),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
