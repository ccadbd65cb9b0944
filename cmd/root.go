package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tattler-mx/tattler-go/cmd/importcsv"
	"github.com/tattler-mx/tattler-go/cmd/maintain"
	"github.com/tattler-mx/tattler-go/cmd/places"
	"github.com/tattler-mx/tattler-go/cmd/reviews"
	"github.com/tattler-mx/tattler-go/cmd/serve"
	"github.com/tattler-mx/tattler-go/internal/config"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *config.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tattler",
		Short: "Tattler restaurant directory CLI",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, ctx.Settings); err != nil {
		cobra.CheckErr(err)
	}

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		serve.Command(ctx),
		importcsv.Command(ctx),
		places.Command(ctx),
		reviews.Command(ctx),
		maintain.Command(ctx),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *config.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Mongo.URI, "mongo-uri", viper.GetString("mongo.uri"), "MongoDB connection string")
	rootCmd.PersistentFlags().StringVar(&settings.Mongo.Database, "mongo-database", viper.GetString("mongo.database"), "MongoDB database name")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
