package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"murmur/cmd/murmur/app"
	"murmur/internal/catalog"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the action catalog",
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a catalog file without contacting the embedding service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := load(args)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d actions, %d phrases\n", len(c.Actions), c.PhraseCount())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the normalized catalog as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := load(args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

func init() {
	Cmd.AddCommand(validateCmd, showCmd)
}

// load reads the catalog named on the command line, falling back to the
// configured one.
func load(args []string) (*catalog.Catalog, error) {
	if len(args) == 1 {
		return app.LoadCatalog(args[0])
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.LoadCatalog(cfg.Catalog.Path)
}
