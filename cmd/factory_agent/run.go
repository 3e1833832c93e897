package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/product-factory/internal/agents"
	"github.com/jonathan/product-factory/internal/db"
	"github.com/jonathan/product-factory/internal/fetch"
	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/observability"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

var (
	runProjectID   string
	runRequestFile string
	runProjectName string
	runUserEmail   string
	runAutoApprove bool
	runVerbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline for a project",
	Long: `Create and execute a pipeline run. Use --project with an existing project ID,
or --request-file plus --user-email to create a project from a product request file.

Without --auto-approve the run suspends at each approval gate; submit decisions
via the API and resume. With --auto-approve every gate is approved immediately.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runProjectID, "project", "", "Existing project ID")
	runCmd.Flags().StringVar(&runRequestFile, "request-file", "", "Path to a product request text file")
	runCmd.Flags().StringVar(&runProjectName, "name", "", "Project name when creating from --request-file")
	runCmd.Flags().StringVar(&runUserEmail, "user-email", "", "Owner account email when creating from --request-file")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve every gate without pausing")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print detailed stage output")
	rootCmd.AddCommand(runCmd)
}

// stdoutNotifier prints pipeline progress to the terminal.
type stdoutNotifier struct{}

func (stdoutNotifier) Emit(runID uuid.UUID, stage, message string, data map[string]any) {
	fmt.Printf("[%s] %s\n", stage, message)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), apiKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	var searcher agents.Searcher
	if key, cx := os.Getenv("GOOGLE_SEARCH_API_KEY"), os.Getenv("GOOGLE_SEARCH_CX"); key != "" && cx != "" {
		searcher, err = agents.NewGoogleSearcher(ctx, key, cx)
		if err != nil {
			return fmt.Errorf("failed to create searcher: %w", err)
		}
	}

	project, err := resolveProject(ctx, database)
	if err != nil {
		return err
	}

	notifier := stdoutNotifier{}
	orch := orchestrator.New(database, notifier, agents.Registry(client, fetch.New(), searcher))
	gates := orchestrator.NewGates(database, notifier)

	var printer *observability.Printer
	if runVerbose {
		printer = observability.NewPrinter(os.Stdout)
		printer.PrintProject(project)
	}

	run, err := database.CreateRun(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	fmt.Printf("Run %s created for project %q\n", run.ID, project.Name)

	outcome, err := orch.Start(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	for outcome == orchestrator.OutcomeSuspended {
		current, err := database.GetRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to read run: %w", err)
		}
		stage, ok := orchestrator.StageForWaitState(current.CurrentStage)
		if !ok {
			break
		}

		if printer != nil {
			artifact, err := database.LatestArtifactByType(ctx, run.ID, stage)
			if err == nil {
				printer.PrintArtifact(artifact)
			}
		}

		if !runAutoApprove {
			fmt.Printf("Run suspended at %s. Submit a decision for stage %q and resume via the API.\n", current.CurrentStage, stage)
			return nil
		}

		if _, err := gates.Submit(ctx, run.ID, stage, orchestrator.Decision{Approved: true, Action: db.ActionProceed}); err != nil {
			return fmt.Errorf("failed to approve stage %s: %w", stage, err)
		}
		outcome, err = orch.Resume(ctx, run.ID, stage)
		if err != nil {
			return fmt.Errorf("resume from %s failed: %w", stage, err)
		}
	}

	return printSummary(ctx, database, run.ID, outcome, printer)
}

// resolveProject loads or creates the project the run will execute against.
func resolveProject(ctx context.Context, database *db.DB) (*db.Project, error) {
	if runProjectID != "" {
		id, err := uuid.Parse(runProjectID)
		if err != nil {
			return nil, fmt.Errorf("invalid project ID: %w", err)
		}
		project, err := database.GetProjectByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get project: %w", err)
		}
		if project == nil {
			return nil, fmt.Errorf("project not found: %s", id)
		}
		return project, nil
	}

	if runRequestFile == "" || runUserEmail == "" {
		return nil, fmt.Errorf("either --project or both --request-file and --user-email are required")
	}

	request, err := os.ReadFile(runRequestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	owner, err := database.GetUserByEmail(ctx, runUserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("no account with email %s; register via the API first", runUserEmail)
	}

	name := runProjectName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(runRequestFile), filepath.Ext(runRequestFile))
	}

	project, err := database.CreateProject(ctx, owner.ID, name, "", string(request), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

func printSummary(ctx context.Context, database *db.DB, runID uuid.UUID, outcome orchestrator.Outcome, printer *observability.Printer) error {
	run, err := database.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}
	artifacts, err := database.ListArtifacts(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	fmt.Printf("\nRun %s: %s (outcome: %s)\n", run.ID, run.Status, outcome)
	if printer != nil {
		printer.PrintRunSummary(run, artifacts)
		return nil
	}

	fmt.Printf("Tokens: %d prompt, %d completion\n", run.PromptTokens, run.CompletionTokens)
	for _, a := range artifacts {
		marker := ""
		if a.IsFallback() {
			marker = " (fallback)"
		}
		fmt.Printf("  %s%s  %d bytes\n", a.Name, marker, len(a.Content))
	}
	return nil
}
