package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"campus-rag-go/internal/config"
	"campus-rag-go/internal/normalizer"
	"campus-rag-go/internal/pipeline"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingests files or directories. Directories are walked recursively and
only supported formats are read. Files whose content was already ingested are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var removeCmd = &cobra.Command{
	Use:   "remove [file-name]",
	Short: "Remove every version of a source file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(removeCmd)
}

// collectInputs 读取路径下所有受支持的文件，按路径排序。
func collectInputs(paths []string, maxBytes int64) ([]pipeline.Input, []string, error) {
	var files []string
	for _, p := range paths {
		err := filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	sort.Strings(files)

	var inputs []pipeline.Input
	var skipped []string
	for _, path := range files {
		name := filepath.Base(path)
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, err
		}
		if err := normalizer.Validate(name, info.Size(), maxBytes); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, pipeline.Input{FileName: name, Data: data})
	}
	return inputs, skipped, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	maxBytes := int64(config.Conf.Ingestion.MaxFileSizeMB) << 20
	inputs, skipped, err := collectInputs(args, maxBytes)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		cmd.PrintErrf("skip %s\n", s)
	}
	if len(inputs) == 0 {
		cmd.Println("No supported files found.")
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	run := a.Processor.IngestBatch(ctx, inputs)
	if jsonOutput {
		return printJSON(cmd, run)
	}
	for _, r := range run.Results {
		switch r.Status {
		case pipeline.StatusSuccess:
			cmd.Printf("  ✓ %s  strategy=%s chunks=%d vectors=%d events=%d\n",
				r.Filename, r.Strategy, r.ChunksProcessed, r.VectorsStored, r.EventsStored)
		case pipeline.StatusSkipped:
			cmd.Printf("  - %s  %s\n", r.Filename, r.Error)
		default:
			cmd.Printf("  ✗ %s  %s\n", r.Filename, r.Error)
		}
	}
	cmd.Printf("\n%d files: %d succeeded, %d skipped, %d failed\n",
		run.Summary.Total, run.Summary.Succeeded, run.Summary.Skipped, run.Summary.Failed)
	if run.Summary.Failed > 0 {
		return fmt.Errorf("%d files failed", run.Summary.Failed)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Documents.Delete(ctx, args[0])
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, res)
	}
	cmd.Printf("Removed %s: %d versions, %d vectors, %d events deactivated\n",
		res.FileName, res.Versions, res.VectorsDeleted, res.EventsDeactivated)
	return nil
}
