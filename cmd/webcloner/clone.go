package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kononmatsumoto/webcloner/clone"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <url>",
	Short: "Clone one page and write the generated HTML",
	Long: `Runs the pipeline once. The generated document goes to --output or
stdout; design stats go to stderr as JSON. With --scrape the synthesis stage
is skipped and the design summary is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		req := clone.Request{URL: args[0]}
		scrape, _ := cmd.Flags().GetBool("scrape")
		var res *clone.Result
		if scrape {
			res = a.pipeline.Scrape(cmd.Context(), req)
		} else {
			res = a.pipeline.Clone(cmd.Context(), req)
		}
		if !res.Success {
			return fmt.Errorf("%s (%s/%s, run %s)", res.Error.Message, res.Error.Category, res.Error.Kind, res.RunID)
		}

		out, _ := cmd.Flags().GetString("output")
		return writeResult(cmd, res, out, scrape)
	},
}

func writeResult(cmd *cobra.Command, res *clone.Result, out string, scrape bool) error {
	stats, err := json.MarshalIndent(res.Stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), string(stats))

	var body []byte
	if scrape {
		if body, err = json.MarshalIndent(res.Summary, "", "  "); err != nil {
			return err
		}
	} else {
		body = []byte(res.HTMLContent)
	}

	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(body))
	return nil
}

func init() {
	rootCmd.AddCommand(cloneCmd)
	cloneCmd.Flags().StringP("output", "o", "", "Write the result to this file instead of stdout")
	cloneCmd.Flags().Bool("scrape", false, "Skip synthesis and print the design summary")
}
