package resolve

import (
	"encoding/json"
	"os"
	"strings"

	"murmur/cmd/murmur/app"
	"murmur/internal/history"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "resolve <utterance...>",
	Short: "Resolve an utterance and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		env, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		res, err := env.Resolve(cmd.Context(), history.SourceCLI, strings.Join(args, " "))
		if err != nil {
			enc.Encode(app.ErrorBody(err))
			return err
		}
		return enc.Encode(res)
	},
}
