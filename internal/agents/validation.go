package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/orchestrator"
	"github.com/jonathan/product-factory/internal/schemas"
)

// ValidationAgent reviews generated code and produces a structured report.
// The model is asked for JSON so the report can be checked against a schema
// before it is rendered to markdown.
type ValidationAgent struct {
	client llm.Client
}

func NewValidationAgent(client llm.Client) *ValidationAgent {
	return &ValidationAgent{client: client}
}

func (a *ValidationAgent) Name() string { return "validation" }

func (a *ValidationAgent) Execute(ctx context.Context, inputs map[string]string) (*orchestrator.Result, error) {
	raw, usage, err := a.client.GenerateJSON(ctx, validationPrompt(inputs["code"]), llm.TierAdvanced)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		return failure(err), nil
	}
	raw = llm.CleanJSONBlock(raw)

	metadata := baseMetadata(usage, inputs)

	var report validationReport
	if parseErr := json.Unmarshal([]byte(raw), &report); parseErr != nil {
		return failure(fmt.Errorf("validation report is not valid JSON: %w", parseErr)), nil
	}

	if schemaErr := schemas.ValidateValidationReport(raw); schemaErr != nil {
		metadata["schema_valid"] = false
		metadata["schema_error"] = schemaErr.Error()
	} else {
		metadata["schema_valid"] = true
	}
	metadata["total_issues"] = report.Summary.TotalIssues
	metadata["critical_issues"] = report.Summary.Critical

	return &orchestrator.Result{Succeeded: true, Content: report.Markdown(), Metadata: metadata}, nil
}

type validationReport struct {
	Summary struct {
		TotalIssues int `json:"total_issues"`
		Critical    int `json:"critical"`
		High        int `json:"high"`
		Medium      int `json:"medium"`
		Low         int `json:"low"`
	} `json:"summary"`
	Issues []struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Fix         string `json:"fix"`
	} `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// Markdown renders the report as the validation_report.md artifact.
func (r validationReport) Markdown() string {
	var b strings.Builder
	b.WriteString("## Validation Report\n\n### Summary\n")
	fmt.Fprintf(&b, "- Total Issues: %d\n", r.Summary.TotalIssues)
	fmt.Fprintf(&b, "- Critical: %d\n", r.Summary.Critical)
	fmt.Fprintf(&b, "- High: %d\n", r.Summary.High)
	fmt.Fprintf(&b, "- Medium: %d\n", r.Summary.Medium)
	fmt.Fprintf(&b, "- Low: %d\n", r.Summary.Low)

	if len(r.Issues) > 0 {
		b.WriteString("\n### Issues\n")
		for i, issue := range r.Issues {
			fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, strings.ToUpper(issue.Severity), issue.Description)
			if issue.Location != "" {
				fmt.Fprintf(&b, "   - Location: %s\n", issue.Location)
			}
			if issue.Fix != "" {
				fmt.Fprintf(&b, "   - Fix: %s\n", issue.Fix)
			}
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n### Recommendations\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}

func validationPrompt(code string) string {
	return fmt.Sprintf(`You are a Validation agent. Analyze the generated code and produce a validation report.

Code to Validate:
%s

Check for:
1. Syntax errors
2. Type inconsistencies
3. Missing error handling
4. Security vulnerabilities
5. Code style issues
6. Missing tests
7. Documentation gaps
8. Performance concerns

Respond with a single JSON object matching this shape exactly:
{
  "summary": {"total_issues": 0, "critical": 0, "high": 0, "medium": 0, "low": 0},
  "issues": [{"severity": "critical|high|medium|low", "description": "...", "location": "file:line", "fix": "..."}],
  "recommendations": ["..."]
}

Return only the JSON object, no surrounding prose.`, truncate(code, 16000))
}
