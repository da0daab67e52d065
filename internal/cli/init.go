package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{config.DefaultConfigFile, exampleConfig},
		{config.DefaultTargetsFile, exampleTargets},
		{config.DefaultEnvFile + ".example", exampleEnv},
	}

	created := 0
	for _, f := range files {
		wrote, err := writeIfNotExists(filepath.Join(configDir, f.name), []byte(f.content))
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# regwatch configuration

# CSV with columns url (required) and name (optional), relative to this directory.
targets: targets.csv

storage:
  documents_dir: data/html
  diffs_dir: data/diffs
  knowledge_dir: knowledge_base_data
  ledger_path: .regwatch/regwatch.db
  retain_days: 730

fetch:
  timeout: 30s
  max_bytes: 20971520
  # Announcement feeds scanned for items naming a target.
  feeds: []
  # - "https://www.publicationsduquebec.gouv.qc.ca/rss/gazette.xml"
  feed_window: 744h

extract:
  variant: regulation
  # variants:
  #   regulation:
  #     selector: "div.DefaultPageSequence.BodyPageSequence"
  #     heading_keywords: [TITRE, CHAPITRE, ANNEXE, SECTION, PARTIE]
  #     min_line_length: 50
  #     # "pre" and "post" groups are kept; they stand in for \b, which is ASCII-only.
  #     redactions:
  #       - '(?P<pre>^|[^\p{L}\p{N}_])a\.\s*\d+(?P<post>[^\p{L}\p{N}_]|$)'

report:
  keys: []
  token_limit: 10000
  keep_removed: true
  cost_per_million: 0.35
  format: terminal

summarize:
  provider: gemini          # gemini | openai | heuristic
  api_key_env: GEMINI_API_KEY
  endpoint_env: GEMINI_API_URL
  model: gemini-1.5-flash
  timeout: 60s

log:
  level: info
  # file: .regwatch/regwatch.log
`

const exampleTargets = `url,name
"https://www.legisquebec.gouv.qc.ca/fr/document/rc/Q-2,%20r.%2017.1",REAFIE
`

const exampleEnv = `# Copy to .env and fill in.
GEMINI_API_KEY=
# GEMINI_API_URL=https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent
`
