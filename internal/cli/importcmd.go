package cli

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/snapshot"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Add announcement feeds from an OPML file to fetch.feeds",
	Args:  cobra.ExactArgs(1),
	RunE:  importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be added without modifying config")
	rootCmd.AddCommand(importCmd)
}

type opml struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	XMLURL   string        `xml:"xmlUrl,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// opmlFeed is one feed outline, labelled with its title and the folders above it.
type opmlFeed struct {
	URL   string
	Label string
}

// importPlan splits the feeds of an OPML file against the configured ones.
type importPlan struct {
	Add     []opmlFeed
	Present int
	Invalid []string
}

func importAction(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read OPML: %w", err)
	}
	var doc opml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse OPML %s: %w", args[0], err)
	}

	feeds := opmlFeeds(doc.Body.Outlines, "")
	if len(feeds) == 0 {
		fmt.Println("No feed URLs found in OPML file.")
		return nil
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	plan := planImport(feeds, cfg.Fetch.Feeds)
	for _, u := range plan.Invalid {
		fmt.Printf("  ignored (not http/https): %s\n", u)
	}
	if len(plan.Add) == 0 {
		fmt.Printf("All %d feeds already configured, nothing to add.\n", plan.Present)
		return nil
	}

	verb := "Adding"
	if importDryRun {
		verb = "Would add"
	}
	fmt.Printf("%s %d notice feeds (%d already configured):\n", verb, len(plan.Add), plan.Present)
	urls := make([]string, 0, len(plan.Add))
	for _, f := range plan.Add {
		fmt.Printf("  + %s  %s\n", f.URL, f.Label)
		urls = append(urls, f.URL)
	}
	if importDryRun {
		return nil
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	if err := mergeFeeds(configPath, urls); err != nil {
		return fmt.Errorf("update %s: %w", configPath, err)
	}
	fmt.Printf("Updated %s; run \"regwatch fetch\" to check the new feeds.\n", configPath)
	return nil
}

// opmlFeeds flattens outlines depth-first. Folder names prefix the label.
func opmlFeeds(outlines []opmlOutline, folder string) []opmlFeed {
	var feeds []opmlFeed
	for _, o := range outlines {
		label := strings.TrimSpace(o.Title)
		if label == "" {
			label = strings.TrimSpace(o.Text)
		}
		if folder != "" && label != "" {
			label = folder + " / " + label
		} else if label == "" {
			label = folder
		}
		if u := strings.TrimSpace(o.XMLURL); u != "" {
			feeds = append(feeds, opmlFeed{URL: u, Label: label})
		}
		feeds = append(feeds, opmlFeeds(o.Outlines, label)...)
	}
	return feeds
}

func planImport(feeds []opmlFeed, configured []string) importPlan {
	seen := make(map[string]bool, len(configured))
	for _, u := range configured {
		seen[u] = true
	}
	var plan importPlan
	for _, f := range feeds {
		u, err := url.Parse(f.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			plan.Invalid = append(plan.Invalid, f.URL)
			continue
		}
		if seen[f.URL] {
			plan.Present++
			continue
		}
		seen[f.URL] = true
		plan.Add = append(plan.Add, f)
	}
	return plan
}

// mergeFeeds appends urls to fetch.feeds in configPath, editing the YAML
// node tree so comments and key order survive.
func mergeFeeds(configPath string, urls []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	seq := findFeedsNode(&doc, true)
	if seq == nil {
		return errors.New("fetch.feeds is not a list")
	}
	for _, u := range urls {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: u})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode YAML: %w", err)
	}
	return snapshot.WriteFile(configPath, out)
}

// findFeedsNode returns the fetch.feeds sequence of a config document, or
// nil when the document has another shape. With create set, a missing or
// null fetch mapping or feeds list is added.
func findFeedsNode(doc *yaml.Node, create bool) *yaml.Node {
	root := doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			if !create {
				return nil
			}
			root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		}
		root = root.Content[0]
	}

	fetch := mapChild(root, "fetch", yaml.MappingNode, create)
	if fetch == nil {
		return nil
	}
	feeds := mapChild(fetch, "feeds", yaml.SequenceNode, create)
	if feeds == nil {
		return nil
	}
	// "feeds: []" would otherwise stay inline once it has entries.
	feeds.Style = 0
	return feeds
}

// mapChild returns the value under key in mapping when it has the wanted
// kind. A missing or null value is replaced by an empty node of that kind
// when create is set.
func mapChild(mapping *yaml.Node, key string, kind yaml.Kind, create bool) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	idx := -1
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			idx = i + 1
			break
		}
	}

	if idx >= 0 {
		v := mapping.Content[idx]
		if v.Kind == kind {
			return v
		}
		if !create || v.Kind != yaml.ScalarNode || v.ShortTag() != "!!null" {
			return nil
		}
	} else if !create {
		return nil
	}

	tag := "!!map"
	if kind == yaml.SequenceNode {
		tag = "!!seq"
	}
	v := &yaml.Node{Kind: kind, Tag: tag}
	if idx >= 0 {
		mapping.Content[idx] = v
	} else {
		mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	}
	return v
}
