package main

import "github.com/spf13/cobra"

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "orgadmin",
		Short:         "Multi-tenant organization, user and access administration",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "configs/.env", "dotenv file read before the process environment")
	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts), newSeedCmd(opts))
	return cmd
}
