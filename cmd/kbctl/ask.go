package main

import (
	"context"
	"fmt"
	"strings"

	"campus-rag-go/internal/service"

	"github.com/spf13/cobra"
)

var searchOnly bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the knowledge base",
	Long: `Retrieves the most relevant chunks and generates an answer.
With --search-only the language model is not called and only the sources are shown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&searchOnly, "search-only", false, "only show retrieved sources")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if searchOnly {
		res, err := a.Search.Search(ctx, question)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, res)
		}
		if len(res.Sources) == 0 {
			cmd.Println("No results found.")
			return nil
		}
		for i, s := range res.Sources {
			cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, s.Filename, s.ChunkID, s.Score)
		}
		return nil
	}

	resp, err := a.Chat.Answer(ctx, "", service.ChatRequest{Message: question})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, resp)
	}
	cmd.Println(resp.Response)
	if len(resp.Metadata.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, s := range resp.Metadata.Sources {
			cmd.Printf("  - %s #%d (%.3f)\n", s.Filename, s.ChunkID, s.Score)
		}
	}
	return nil
}
