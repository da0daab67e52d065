package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var extractVariant string

var extractCmd = &cobra.Command{
	Use:   "extract <snapshot>",
	Short: "Extract the regulation text of a snapshot into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  extractAction,
}

func init() {
	extractCmd.Flags().StringVar(&extractVariant, "variant", "", "extraction variant (default from config)")
}

func extractAction(_ *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if extractVariant != "" {
		a.cfg.Extract.Variant = extractVariant
	}
	reg, err := a.extractors()
	if err != nil {
		return fmt.Errorf("create extractors: %w", err)
	}

	out, text, err := a.extractSnapshot(reg, a.snapshotPath(args[0]))
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("No regulation text found, nothing written.")
		return nil
	}
	fmt.Printf("Text saved to %s (%d characters).\n", out, len([]rune(text)))
	return nil
}
