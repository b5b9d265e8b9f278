package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akolanti/ProposalAPI/internal/app"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/worker"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stage_status, dispatch_stage and reset_stage as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			// queued stages run in this process
			stopWorkers := make(chan bool)
			var wg sync.WaitGroup
			worker.InitServices(a.JobService, a.Dispatcher)
			worker.InitWorkerPool(stopWorkers, &wg)

			server := newMCPServer(&pipelineTools{service: a.JobService})
			err = server.Run(ctx, &mcp.StdioTransport{})

			close(stopWorkers)
			wg.Wait()
			return err
		},
	}
}

func newMCPServer(tools *pipelineTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "pipelinectl", Version: Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stage_status",
		Description: "Status of one analysis stage of a job, with its output once completed. Without analysis_type every stage is listed without outputs.",
	}, tools.stageStatus)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "dispatch_stage",
		Description: "Queue an analysis stage. A stage already processing is left alone unless force is true. concept_document needs concept_evaluation.",
	}, tools.dispatchStage)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_stage",
		Description: "Clear an analysis stage back to not_started so it can be dispatched again.",
	}, tools.resetStage)
	return server
}

type pipelineTools struct {
	service *job.Service
}

type stageStatusArgs struct {
	JobID        string `json:"job_id" jsonschema:"job code, e.g. PROP-2024-001"`
	AnalysisType string `json:"analysis_type,omitempty" jsonschema:"stage name; all stages when empty"`
}

type stageArgs struct {
	JobID        string `json:"job_id" jsonschema:"job code, e.g. PROP-2024-001"`
	AnalysisType string `json:"analysis_type" jsonschema:"rfp, reference_proposals, existing_work, concept, concept_document, structure_workplan or draft_feedback"`
}

type dispatchArgs struct {
	JobID             string         `json:"job_id" jsonschema:"job code, e.g. PROP-2024-001"`
	AnalysisType      string         `json:"analysis_type" jsonschema:"stage to run"`
	Force             bool           `json:"force,omitempty" jsonschema:"restart a stage that is processing"`
	ConceptEvaluation map[string]any `json:"concept_evaluation,omitempty" jsonschema:"evaluation of the concept analysis, required for concept_document"`
}

type stageView struct {
	AnalysisType string `json:"analysis_type"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	FailedAt     string `json:"failed_at,omitempty"`
	Error        string `json:"error,omitempty"`
	Output       any    `json:"output,omitempty"`
}

type stageStatusResult struct {
	JobID  string      `json:"job_id"`
	Stages []stageView `json:"stages"`
}

type dispatchResult struct {
	StatusCode   int    `json:"status_code"`
	JobID        string `json:"job_id"`
	AnalysisType string `json:"analysis_type"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (t *pipelineTools) stageStatus(ctx context.Context, _ *mcp.CallToolRequest, args stageStatusArgs) (*mcp.CallToolResult, stageStatusResult, error) {
	record, err := t.service.Tracker.Snapshot(ctx, args.JobID)
	if err != nil {
		return nil, stageStatusResult{}, err
	}
	result := stageStatusResult{JobID: args.JobID}
	if args.AnalysisType == "" {
		for _, stage := range jobModel.AllStages {
			result.Stages = append(result.Stages, toStageView(record.Stage(stage), false))
		}
		return nil, result, nil
	}

	stage, err := parseStage(args.AnalysisType)
	if err != nil {
		return nil, stageStatusResult{}, err
	}
	result.Stages = []stageView{toStageView(record.Stage(stage), true)}
	return nil, result, nil
}

func (t *pipelineTools) dispatchStage(ctx context.Context, _ *mcp.CallToolRequest, args dispatchArgs) (*mcp.CallToolResult, dispatchResult, error) {
	desc := jobModel.JobDescriptor{
		JobID:             args.JobID,
		AnalysisType:      jobModel.AnalysisType(args.AnalysisType),
		ConceptEvaluation: args.ConceptEvaluation,
		Force:             args.Force,
	}
	// the descriptor outlives this tool call
	res, err := t.service.Dispatch(context.WithoutCancel(ctx), desc)
	if res.StatusCode == 0 {
		return nil, dispatchResult{}, err
	}
	return nil, dispatchResult{
		StatusCode:   res.StatusCode,
		JobID:        res.Body.JobID,
		AnalysisType: string(res.Body.AnalysisType),
		Status:       string(res.Body.Status),
		Message:      res.Body.Message,
		Error:        res.Body.Error,
	}, nil
}

func (t *pipelineTools) resetStage(ctx context.Context, _ *mcp.CallToolRequest, args stageArgs) (*mcp.CallToolResult, stageView, error) {
	stage, err := parseStage(args.AnalysisType)
	if err != nil {
		return nil, stageView{}, err
	}
	if err := t.service.Reset(ctx, args.JobID, stage); err != nil {
		return nil, stageView{}, err
	}
	state, err := t.service.Tracker.Status(ctx, args.JobID, stage)
	if err != nil {
		return nil, stageView{}, err
	}
	return nil, toStageView(state, false), nil
}

func parseStage(name string) (jobModel.AnalysisType, error) {
	stage := jobModel.AnalysisType(name)
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", jobModel.ErrUnknownAnalysisType, name)
	}
	return stage, nil
}

func toStageView(state jobModel.StageState, withOutput bool) stageView {
	view := stageView{
		AnalysisType: string(state.Stage),
		Status:       string(state.Status),
		StartedAt:    rfc3339(state.StartedAt),
		CompletedAt:  rfc3339(state.CompletedAt),
		FailedAt:     rfc3339(state.FailedAt),
		Error:        state.Error,
	}
	if withOutput && len(state.Output) > 0 {
		var out any
		if err := json.Unmarshal(state.Output, &out); err == nil {
			view.Output = out
		}
	}
	return view
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
