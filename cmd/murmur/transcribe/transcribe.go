package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"murmur/cmd/murmur/app"
	"murmur/internal/history"

	"github.com/spf13/cobra"
)

var resolveText bool

var Cmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe an audio file and resolve the transcript",
	Args:  cobra.ExactArgs(1),
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

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		text, err := env.Transcriber.Transcribe(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return fmt.Errorf("transcribing %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]any{"rawText": text}
		if text == "" {
			out["rawText"] = "No speech detected"
			return enc.Encode(out)
		}
		if !resolveText {
			return enc.Encode(out)
		}

		res, err := env.Resolve(cmd.Context(), history.SourceCLI, text)
		if err != nil {
			for k, v := range app.ErrorBody(err) {
				out[k] = v
			}
			enc.Encode(out)
			return err
		}
		out["text"] = res.Output
		out["resolution"] = res
		return enc.Encode(out)
	},
}

func init() {
	Cmd.Flags().BoolVar(&resolveText, "resolve", true, "resolve the transcript to an action")
}
