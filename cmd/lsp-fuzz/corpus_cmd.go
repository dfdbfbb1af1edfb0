package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/henryhchchc/lsp-fuzz/internal/corpus"
	"github.com/henryhchchc/lsp-fuzz/internal/triage"
)

var exportOut string

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect and export the fuzzing state directory",
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live corpus entries",
	RunE:  runCorpusList,
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize campaign state",
	RunE:  runCorpusStats,
}

var corpusExportCmd = &cobra.Command{
	Use:   "export [crash-id]",
	Short: "Export a recorded fault as a reproduction directory",
	Long: `Packages a solutions/ entry into a self-contained directory: workspace/
with the literal files and requests/ with one wire frame per message.
Embedded paths are absolute; replay from the exported location.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorpusExport,
}

func init() {
	corpusExportCmd.Flags().StringVar(&exportOut, "out", ".", "export destination directory")

	corpusCmd.AddCommand(corpusListCmd)
	corpusCmd.AddCommand(corpusStatsCmd)
	corpusCmd.AddCommand(corpusExportCmd)
}

func runCorpusList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := corpus.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}
	cases, err := store.LoadCorpus()
	if err != nil {
		return err
	}
	for _, tc := range cases {
		fmt.Printf("%s  files=%d  body=%d  edges=%d  exec=%s\n",
			tc.ID, len(tc.Workspace.Files), len(tc.Sequence.Body), tc.Edges, tc.ExecTime)
	}
	fmt.Printf("%d entries\n", len(cases))
	return nil
}

func runCorpusStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := corpus.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}
	cases, err := store.LoadCorpus()
	if err != nil {
		return err
	}
	global, err := store.LoadCoverage(mapSize(cfg))
	if err != nil {
		return err
	}

	signature, err := triage.SignatureStrategy(cfg.Triage.Signature)
	if err != nil {
		return err
	}
	crashes, err := triage.NewStore(filepath.Join(cfg.StateDir, "crashes.db"), signature, cfg.Triage.PersistRetries)
	if err != nil {
		return err
	}
	defer crashes.Close()

	records, err := crashes.Records()
	if err != nil {
		return err
	}

	fmt.Printf("state dir:     %s\n", cfg.StateDir)
	fmt.Printf("corpus:        %s entries\n", color.GreenString("%d", len(cases)))
	fmt.Printf("coverage:      %s edges\n", color.GreenString("%d", global.EdgeCount()))
	fmt.Printf("crash records: %s\n", color.RedString("%d", len(records)))
	for _, r := range records {
		fmt.Printf("  %s  %s  signal=%d  %s\n", r.Signature, r.TestCase, r.Signal, r.FoundAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runCorpusExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := corpus.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	id := args[0]
	path := filepath.Join(store.SolutionsDir(), id+".tc")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no solution with id %s: %w", id, err)
	}
	tc, err := corpus.LoadTestCase(path)
	if err != nil {
		return err
	}

	root, err := triage.Export(tc, exportOut)
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", root)
	return nil
}
