package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/akolanti/ProposalAPI/internal/app"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var force bool
	var evaluationPath string

	cmd := &cobra.Command{
		Use:   "run <job_id> <analysis_type>",
		Short: "Run one stage in this process and wait for it to finish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			desc := jobModel.JobDescriptor{
				JobID:        args[0],
				AnalysisType: jobModel.AnalysisType(args[1]),
				Force:        force,
			}
			if evaluationPath != "" {
				if desc.ConceptEvaluation, err = readEvaluation(evaluationPath); err != nil {
					return err
				}
			}

			a, err := app.New(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Dispatcher.Run(ctx, desc)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.StatusCode != 200 {
				return fmt.Errorf("stage %s failed: %s", desc.AnalysisType, result.Body.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "run even if the stage is marked processing")
	cmd.Flags().StringVarP(&evaluationPath, "evaluation", "e", "", "JSON file with the concept evaluation (concept_document)")
	return cmd
}

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <job_id>",
		Short: "Show the status of every stage of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.NewCore(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.Tracker.Snapshot(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), record)
			}
			return printRecord(cmd.OutOrStdout(), record)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the full record, outputs included, as JSON")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <job_id> <analysis_type>",
		Short: "Clear one stage back to not_started",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			stage := jobModel.AnalysisType(args[1])
			if !stage.Valid() {
				return fmt.Errorf("%w: %s", jobModel.ErrUnknownAnalysisType, stage)
			}
			ctx := cmd.Context()
			a, err := app.NewCore(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tracker.Reset(ctx, args[0], stage); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s reset\n", args[0], stage)
			return nil
		},
	}
}

func promptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage prompt templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Save every template of a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			a, err := app.NewCore(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Prompts.ImportYAML(ctx, f)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d templates\n", n)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.NewCore(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			templates, err := a.Prompts.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSECTION\tSUB-SECTION\tCATEGORIES\tACTIVE\tVERSION")
			for _, t := range templates {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n", t.ID, t.Section, t.SubSection, strings.Join(t.Categories, ","), t.Active, t.Version)
			}
			return w.Flush()
		},
	})
	return cmd
}

func readEvaluation(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var evaluation map[string]any
	if err := json.Unmarshal(raw, &evaluation); err != nil {
		return nil, fmt.Errorf("invalid evaluation file %s: %w", path, err)
	}
	return evaluation, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, record jobModel.JobRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tSTARTED\tFINISHED\tERROR")
	for _, stage := range jobModel.AllStages {
		state := record.Stage(stage)
		finished := state.CompletedAt
		if finished.IsZero() {
			finished = state.FailedAt
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", stage, state.Status, stamp(state.StartedAt), stamp(finished), state.Error)
	}
	return tw.Flush()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
