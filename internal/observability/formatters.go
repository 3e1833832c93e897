// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/product-factory/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProject outputs a summary of the project the run executes against.
func (p *Printer) PrintProject(project *db.Project) {
	if project == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name:     %s\n", project.Name))
	if project.Description != "" {
		sb.WriteString(fmt.Sprintf("About:    %s\n", project.Description))
	}
	sb.WriteString("\nProduct Request:\n")

	request := strings.TrimSpace(project.ProductRequest)
	lines := strings.Split(request, "\n")
	count := min(len(lines), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  %s\n", lines[i]))
	}
	if len(lines) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more lines\n", len(lines)-maxItemsToShow))
	}

	p.printBox("PROJECT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArtifact outputs a summary of one generated artifact.
func (p *Printer) PrintArtifact(artifact *db.Artifact) {
	if artifact == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name:     %s\n", artifact.Name))
	sb.WriteString(fmt.Sprintf("Size:     %d bytes\n", len(artifact.Content)))
	if artifact.IsFallback() {
		sb.WriteString("\n⚠ Fallback artifact\n")
		if reason, ok := artifact.Metadata["error"].(string); ok {
			if len(reason) > 50 {
				reason = reason[:47] + "..."
			}
			sb.WriteString(fmt.Sprintf("  %s\n", reason))
		}
	}

	if counts := metadataCounts(artifact.Metadata); len(counts) > 0 {
		sb.WriteString("\n")
		for _, line := range counts {
			sb.WriteString(fmt.Sprintf("  %s\n", line))
		}
	}

	p.printBox("ARTIFACT: "+strings.ToUpper(artifact.ArtifactType), strings.TrimSuffix(sb.String(), "\n"))
}

// metadataCounts extracts the numeric metadata an executor reported, in a
// stable order.
func metadataCounts(metadata map[string]any) []string {
	var keys []string
	for k, v := range metadata {
		switch v.(type) {
		case int, float64:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := metadata[k].(type) {
		case int:
			lines = append(lines, fmt.Sprintf("%s: %d", k, v))
		case float64:
			lines = append(lines, fmt.Sprintf("%s: %d", k, int(v)))
		}
	}
	return lines
}

// PrintApproval outputs the decision state of a gate.
func (p *Printer) PrintApproval(approval *db.Approval) {
	if approval == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stage:    %s\n", approval.Stage))
	switch {
	case approval.Approved == nil:
		sb.WriteString("Decision: pending\n")
	case *approval.Approved:
		sb.WriteString(fmt.Sprintf("Decision: approved (%s)\n", approval.Action))
	default:
		sb.WriteString(fmt.Sprintf("Decision: declined (%s)\n", approval.Action))
	}
	if approval.Feedback != nil && *approval.Feedback != "" {
		feedback := *approval.Feedback
		if len(feedback) > 50 {
			feedback = feedback[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("Feedback: %s\n", feedback))
	}

	p.printBox("APPROVAL GATE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRunSummary outputs the final state of a run with its artifacts.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintRunSummary(run *db.Run, artifacts []db.Artifact) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Stage:    %s\n", run.CurrentStage))
	if run.ErrorMessage != nil {
		msg := *run.ErrorMessage
		if len(msg) > 50 {
			msg = msg[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("Error:    %s\n", msg))
	}
	sb.WriteString(fmt.Sprintf("Tokens:   %d prompt / %d completion\n", run.PromptTokens, run.CompletionTokens))

	if len(artifacts) > 0 {
		sb.WriteString("\nArtifacts:\n")
		count := min(len(artifacts), maxItemsToShow)
		for i := 0; i < count; i++ {
			a := artifacts[i]
			marker := ""
			if a.IsFallback() {
				marker = " ⚠"
			}
			sb.WriteString(fmt.Sprintf("  • %s (%d bytes)%s\n", a.Name, len(a.Content), marker))
		}
		if len(artifacts) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(artifacts)-maxItemsToShow))
		}
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}
