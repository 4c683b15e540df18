package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/teamgr/internal/config"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw <password>",
	Short: "Hash a shared access password",
	Long:  `Hash a password with bcrypt for use as ACCESS_PASSWORD_HASH. Honors BCRYPT_COST and PASSWORD_PEPPER from the environment.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHashpw,
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}

func runHashpw(cmd *cobra.Command, args []string) error {
	pwCfg, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}
	hash, err := pwCfg.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
