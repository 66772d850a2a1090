package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var (
		save    bool
		withRaw bool
	)

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Scan one image and print the result as JSON",
		Example: `  pharmascan scan ./strip.jpg

  # Keep the result in the configured history repository
  pharmascan scan --save ./strip.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, save)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.processor.ProcessScan(ctx, &processor.ScanRequest{
				Filename: filepath.Base(args[0]),
				Image:    data,
				Metadata: map[string]interface{}{"source": "cli"},
			})
			if err != nil {
				return err
			}
			if !withRaw {
				result.Raw = nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store the result in the configured repository")
	cmd.Flags().BoolVar(&withRaw, "raw", false, "Include OCR and image diagnostics in the output")

	return cmd
}
