package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/glov/pkg/pipeline"
)

func newQueryCmd(root *rootOptions) *cobra.Command {
	var (
		req    pipeline.Request
		memory bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ingest one PDF and print the chunks closest to a query",
		Example: `  glov query --url https://arxiv.org/pdf/1706.03762.pdf --query "what is attention"
  glov query --url https://example.com/report.pdf --query "revenue" -k 3 --memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.config
			if err := validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			spinner := getSpinner(" Starting...")
			a, err := newApp(ctx, cfg, appOptions{
				memory: memory,
				onStage: func(stage string) {
					spinner.Describe(color.CyanString(" %s", stageLabel(stage)))
				},
			})
			if err != nil {
				spinner.Finish()
				return err
			}
			defer a.Close()

			resp, err := a.pipeline.Run(ctx, req)
			spinner.Finish()
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			printResults(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.URL, "url", "", "URL of the PDF to ingest")
	cmd.Flags().StringVar(&req.Query, "query", "", "Text to search for")
	cmd.Flags().StringVar(&req.Collection, "collection", "", "Collection to write to and search (default from config)")
	cmd.Flags().IntVarP(&req.TopK, "top-k", "k", 0, "Number of chunks to return (default from config)")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep vectors in memory instead of PostgreSQL")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func printResults(w io.Writer, resp *pipeline.Response) {
	color.New(color.FgGreen).Fprintf(w, "✓ Indexed %d chunks from %d pages\n", resp.Chunks, resp.Pages)
	if len(resp.Results) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No matching chunks")
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	score := color.New(color.FgBlue)
	for i, r := range resp.Results {
		fmt.Fprintln(w)
		header.Fprintf(w, "#%d ", i+1)
		score.Fprintf(w, "(score %.4f", r.Score)
		if page, ok := r.Metadata["page"]; ok {
			score.Fprintf(w, ", page %v", page)
		}
		score.Fprintln(w, ")")
		fmt.Fprintln(w, r.Content)
	}
}
