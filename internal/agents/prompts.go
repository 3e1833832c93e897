package agents

import (
	"fmt"
	"strings"
)

func epicPrompt(inputs map[string]string) string {
	feedbackSection := ""
	if feedback := inputs["feedback"]; feedback != "" {
		feedbackSection = fmt.Sprintf(`

## User Feedback from Previous Iteration
%s

Please incorporate this feedback into the epic generation.
`, feedback)
	}

	return fmt.Sprintf(`You are an Epic planning agent. Based on the product request and research, generate 3-5 comprehensive epics.

Product Request:
%s

Research Context:
%s
%s

For each epic, provide ALL of the following sections:

### Epic EP-XXX: [Clear, Action-Oriented Title]

**Goal:** One-sentence description of what this epic achieves

**Priority:** P0 (Critical) / P1 (High) / P2 (Medium)
**Priority Reasoning:** Explain why this priority was chosen based on business value, technical dependencies, user impact, and risk mitigation.

**In Scope:**
- Clearly defined deliverables that ARE part of this epic

**Out of Scope:**
- Explicitly stated items that are NOT included

**Dependencies:**
- Other epics that must be completed first (use Epic IDs)
- External dependencies (third-party services, infrastructure, etc.)

**Risks & Assumptions:**
- Risks, assumptions, and mitigation strategies

**Success Metrics:**
- Quantifiable measures of success and acceptance criteria

---

Generate 3-5 epics following this exact format.

After all epics, include a Mermaid dependency diagram:

## Epic Dependency Diagram

`+"```mermaid"+`
graph TD
    EP001["EP-001: Epic Title"]
    EP002["EP-002: Epic Title"]

    EP001 --> EP002
`+"```"+`

Color nodes by priority: P0 red (#ff9999), P1 blue (#99ccff), P2 green (#99ff99).`,
		inputs["product_request"], truncate(inputs["research"], 8000), feedbackSection)
}

func epicMetadata(content string) map[string]any {
	return map[string]any{
		"epic_count":          countOccurrences(content, "### Epic EP-"),
		"has_mermaid_diagram": strings.Contains(content, "```mermaid"),
		"priority_breakdown": map[string]any{
			"P0_critical": countOccurrences(content, "**Priority:** P0"),
			"P1_high":     countOccurrences(content, "**Priority:** P1"),
			"P2_medium":   countOccurrences(content, "**Priority:** P2"),
		},
	}
}

func storyPrompt(inputs map[string]string) string {
	return fmt.Sprintf(`You are a Story generation agent. Based on the epics, generate detailed user stories.

Epics:
%s

For each epic, generate 3-5 user stories with:
- Story ID (US-XXX)
- Epic ID reference
- Title (As a [user], I want [action] so that [benefit])
- Description
- Acceptance Criteria (Given/When/Then format)
- Edge Cases
- Non-Functional Requirements (NFRs)
- Estimate (Story Points)

Format as:
## User Stories for [Epic ID]

### Story US-001: [Title]
**Epic:** EP-XXX
**As a** [user type]
**I want** [action]
**So that** [benefit]

**Description:** [Detailed description]

**Acceptance Criteria:**
- Given [context]
  When [action]
  Then [outcome]

**Edge Cases:**
- [Edge case]

**NFRs:**
- Performance: [requirement]
- Security: [requirement]

**Estimate:** X story points

[Continue for all stories]`, truncate(inputs["epics"], 16000))
}

func storyMetadata(content string) map[string]any {
	return map[string]any{
		"story_count":             countOccurrences(content, "### Story"),
		"has_acceptance_criteria": strings.Contains(content, "Acceptance Criteria:"),
	}
}

func specPrompt(inputs map[string]string) string {
	return fmt.Sprintf(`You are a Specification agent. Based on user stories, generate formal technical specifications.

User Stories:
%s

For each story, provide:
- Spec ID (SPEC-XXX)
- Story ID reference
- Technical Requirements
- API Contracts (endpoints, methods, request/response schemas)
- Data Models (database schemas, types)
- Security Requirements
- Validation Rules
- Test Cases
- Implementation Notes

Format as:
## Specification SPEC-001
**Story:** US-XXX

### Technical Requirements
1. [Requirement]

### API Contracts
`+"```"+`
POST /api/endpoint
Request: { "field": "type" }
Response: { "field": "type" }
`+"```"+`

### Data Models
[Schemas and types]

### Security
- Authentication, authorization, data protection

### Validation Rules
- [Rule]

### Test Cases
1. Test: [description]
   - Given / When / Then

### Implementation Notes
- [Note]

[Continue for all specs]`, truncate(inputs["stories"], 16000))
}

func specMetadata(content string) map[string]any {
	return map[string]any{
		"spec_count":        countOccurrences(content, "## Specification"),
		"has_api_contracts": strings.Contains(content, "API Contracts"),
		"has_data_models":   strings.Contains(content, "Data Models"),
		"has_test_cases":    strings.Contains(content, "Test Cases"),
	}
}

func codePrompt(inputs map[string]string) string {
	return fmt.Sprintf(`You are a Code generation agent. Based on specifications, generate production-ready code.

Specifications:
%s

Generate:
1. Implementation files
2. Test files
3. Configuration files if needed
4. README with setup instructions

For each file, format as:
## File: path/to/file
`+"```"+`
code here
`+"```"+`

Include type annotations, documentation, error handling, input validation, and comprehensive tests. Generate modular, maintainable code following best practices.`,
		truncate(inputs["specs"], 16000))
}

func codeMetadata(content string) map[string]any {
	return map[string]any{
		"file_count": countOccurrences(content, "## File:"),
		"has_tests":  strings.Contains(content, "test_") || strings.Contains(content, "_test") || strings.Contains(content, "tests/"),
	}
}
