package main

import (
	"os"

	"murmur/cmd/murmur/app"
	"murmur/cmd/murmur/catalog"
	"murmur/cmd/murmur/resolve"
	"murmur/cmd/murmur/serve"
	"murmur/cmd/murmur/transcribe"
	"murmur/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	logger.Init("")
	rootCmd := &cobra.Command{
		Use:          "murmur",
		Short:        "murmur turns spoken requests into device actions",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "path to config.toml")

	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(resolve.Cmd)
	rootCmd.AddCommand(transcribe.Cmd)
	rootCmd.AddCommand(catalog.Cmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
