package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <snapshot>",
	Short: "Diff a snapshot against the previous capture of its document",
	Long: "Compares the given snapshot (a file name in the documents directory, or a path inside it) " +
		"with the newest older snapshot of the same document, writes the diff artifact and prunes older snapshots.",
	Args: cobra.ExactArgs(1),
	RunE: diffAction,
}

func diffAction(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tr, err := a.tracker()
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	res, err := tr.Process(cmdContext(cmd), a.snapshotPath(args[0]))
	if err != nil {
		return err
	}
	fmt.Println(describeResult(res))
	for _, perr := range res.PruneErrors {
		fmt.Printf("  warning: %v\n", perr)
	}
	return nil
}

// snapshotPath resolves a bare snapshot name against the documents directory.
func (a *app) snapshotPath(arg string) string {
	if strings.ContainsRune(arg, filepath.Separator) || strings.ContainsRune(arg, '/') {
		return arg
	}
	return filepath.Join(a.cfg.Storage.DocumentsDir, arg)
}
