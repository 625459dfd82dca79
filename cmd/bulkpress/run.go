package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bulkpress/internal/models"
	"bulkpress/internal/pipeline"
	"bulkpress/internal/publish"
	"bulkpress/internal/validation"
)

type runOptions struct {
	keywords    []string
	file        string
	concurrency int
	noImages    bool
	publish     bool
}

// runOutput is what the run command prints.
type runOutput struct {
	Report    *models.AggregateReport `json:"report"`
	Published []publish.Outcome       `json:"published,omitempty"`
}

func newRunCmd(c *cli) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [keyword...]",
		Short: "Run a batch and print the JSON report",
		Long: `Run a batch of keywords through the pipeline and print the report as JSON.

Keywords come from the arguments, --keyword flags and --file (one keyword per
line, # comments allowed, "-" reads stdin). Duplicates keep their first position.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keywords, err := collectKeywords(cmd.InOrStdin(), args, opts)
			if err != nil {
				return err
			}

			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.publish && a.Dispatcher == nil {
				return errors.New("--publish needs WORDPRESS_URL, WORDPRESS_USERNAME and WORDPRESS_APP_PASSWORD")
			}

			jobCfg := a.Pipeline.JobConfig()
			if cmd.Flags().Changed("concurrency") {
				jobCfg.Concurrency = opts.concurrency
			}
			if opts.noImages {
				jobCfg.GenerateImages = false
			}

			job, err := pipeline.NewJob(keywords, jobCfg, c.cfg.MaxKeywordsPerBatch)
			if err != nil {
				return err
			}

			report, runErr := a.Orchestrator.Run(cmd.Context(), job)
			if report == nil {
				return runErr
			}
			if err := a.Store.SaveReport(cmd.Context(), report); err != nil {
				c.logger.Warn("failed to save report", "job_id", report.JobID, "error", err)
			}

			out := runOutput{Report: report}
			if runErr == nil && opts.publish {
				out.Published = a.Dispatcher.Dispatch(cmd.Context(), report)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "job %s: %d succeeded, %d failed\n", report.JobID, report.Succeeded, report.Failed)
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&opts.keywords, "keyword", "k", nil, "keyword to run (repeatable)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file with one keyword per line (- for stdin)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "tasks in flight (default from the pipeline file)")
	cmd.Flags().BoolVar(&opts.noImages, "no-images", false, "skip the image stage")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "publish successful articles to WordPress")
	return cmd
}

// collectKeywords merges arguments, flags and the keyword file in that order.
func collectKeywords(stdin io.Reader, args []string, opts runOptions) ([]string, error) {
	keywords := append([]string(nil), args...)
	keywords = append(keywords, opts.keywords...)

	if opts.file != "" {
		var data []byte
		var err error
		if opts.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opts.file)
		}
		if err != nil {
			return nil, fmt.Errorf("reading keywords: %w", err)
		}
		keywords = append(keywords, validation.ParseKeywordLines(string(data))...)
	}

	if len(keywords) == 0 {
		return nil, errors.New("no keywords: pass them as arguments, with --keyword or with --file")
	}
	return keywords, nil
}
