package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/product-factory/internal/fetch"
	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

const maxResearchURLs = 5

// maxPageChars bounds how much fetched page text goes into the prompt.
const maxPageChars = 4000

// ResearchAgent gathers domain context for a product request. It fetches
// URLs mentioned in the request, optionally searches the web for more, and
// asks the model to synthesize findings.
type ResearchAgent struct {
	client   llm.Client
	fetcher  *fetch.Fetcher
	searcher Searcher // nil when search is not configured
}

// NewResearchAgent creates the research executor. searcher may be nil.
func NewResearchAgent(client llm.Client, fetcher *fetch.Fetcher, searcher Searcher) *ResearchAgent {
	return &ResearchAgent{client: client, fetcher: fetcher, searcher: searcher}
}

func (a *ResearchAgent) Name() string { return "research" }

func (a *ResearchAgent) Execute(ctx context.Context, inputs map[string]string) (*orchestrator.Result, error) {
	productRequest := inputs["product_request"]

	sources := a.gatherSources(ctx, productRequest)

	content, usage, err := a.client.GenerateContent(ctx, researchPrompt(productRequest, sources), llm.TierStandard)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		return failure(err), nil
	}

	urls := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, map[string]any{"url": s.URL, "title": s.Title})
	}

	metadata := baseMetadata(usage, inputs)
	metadata["urls"] = urls
	metadata["total_urls"] = len(urls)
	return &orchestrator.Result{Succeeded: true, Content: content, Metadata: metadata}, nil
}

type researchSource struct {
	URL   string
	Title string
	Text  string
}

// gatherSources collects page text from URLs in the request plus web search
// results. Individual fetch failures are skipped.
func (a *ResearchAgent) gatherSources(ctx context.Context, productRequest string) []researchSource {
	var sources []researchSource
	seen := make(map[string]bool)

	add := func(url, title string) {
		if url == "" || seen[url] || len(sources) >= maxResearchURLs {
			return
		}
		seen[url] = true
		text, err := a.fetcher.PageText(ctx, url)
		if err != nil {
			return
		}
		sources = append(sources, researchSource{URL: url, Title: title, Text: truncate(text, maxPageChars)})
	}

	for _, url := range fetch.ExtractLinks(productRequest, maxResearchURLs) {
		add(url, url)
	}

	if a.searcher != nil && len(sources) < maxResearchURLs {
		query := searchQuery(productRequest)
		results, err := a.searcher.Search(ctx, query, maxResearchURLs-len(sources))
		if err == nil {
			for _, r := range results {
				add(r.URL, r.Title)
			}
		}
	}
	return sources
}

// searchQuery reduces a product request to a short search query.
func searchQuery(productRequest string) string {
	fields := strings.Fields(productRequest)
	if len(fields) > 12 {
		fields = fields[:12]
	}
	return strings.Join(fields, " ")
}

func researchPrompt(productRequest string, sources []researchSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a research agent tasked with understanding the product domain.

Product Request:
%s
`, productRequest)

	if len(sources) > 0 {
		b.WriteString("\nReference Material:\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "\n--- %s (%s) ---\n%s\n", s.Title, s.URL, s.Text)
		}
	}

	b.WriteString(`
Please provide:
1. Key concepts and technologies relevant to this product
2. Similar existing products or solutions
3. Important considerations for implementation
4. Potential challenges or risks

Format your response as structured research findings.`)
	return b.String()
}
