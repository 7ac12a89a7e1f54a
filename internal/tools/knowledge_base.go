package tools

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	defaultKBResults = 5
	minKBRelevance   = 0.1
	kbSnippetLen     = 200

	// per-term weights; a term hitting title, keywords and content scores kbTermMax
	kbTitleWeight   = 0.4
	kbKeywordWeight = 0.3
	kbContentWeight = 0.15
	kbTermMax       = kbTitleWeight + kbKeywordWeight + kbContentWeight
)

// KnowledgeBaseSearch scores help-center articles against a free-text query.
type KnowledgeBaseSearch struct {
	articles []Article
}

// KnowledgeBaseInput is the knowledge_base_search payload.
type KnowledgeBaseInput struct {
	Query      string `json:"query" validate:"required,max=500"`
	Category   string `json:"category,omitempty" validate:"omitempty,oneof=billing outage bug feature_request account other"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=20"`
}

// KnowledgeBaseResult is one scored article.
type KnowledgeBaseResult struct {
	ArticleID      string  `json:"article_id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
}

// KnowledgeBaseOutput is the knowledge_base_search result.
type KnowledgeBaseOutput struct {
	Query      string                `json:"query"`
	Results    []KnowledgeBaseResult `json:"results"`
	TotalFound int                   `json:"total_found"`
}

// NewKnowledgeBaseSearch creates the tool over the dataset's articles.
func NewKnowledgeBaseSearch(ds *Dataset) *KnowledgeBaseSearch {
	return &KnowledgeBaseSearch{articles: ds.KnowledgeBase}
}

func (k *KnowledgeBaseSearch) Name() string { return NameKnowledgeBase }

func (k *KnowledgeBaseSearch) Description() string {
	return `Search the help-center knowledge base for articles relevant to a customer's problem.
Returns up to max_results articles ordered by relevance score (0..1). Scores above 0.7 usually
mean the article answers the question directly.`
}

func (k *KnowledgeBaseSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "query": {"type": "string", "description": "Free-text search terms."},
            "category": {"type": "string", "enum": ["billing", "outage", "bug", "feature_request", "account", "other"]},
            "max_results": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Defaults to 5."}
        },
        "required": ["query"]
    }`)
}

func (k *KnowledgeBaseSearch) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in KnowledgeBaseInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if in.MaxResults == 0 {
		in.MaxResults = defaultKBResults
	}

	return encodeOutput(k.Name(), k.search(in))
}

func (k *KnowledgeBaseSearch) search(in KnowledgeBaseInput) KnowledgeBaseOutput {
	terms := QueryTerms(in.Query)
	results := make([]KnowledgeBaseResult, 0, len(k.articles))

	for _, a := range k.articles {
		if in.Category != "" && a.Category != in.Category {
			continue
		}
		score := scoreArticle(a, terms)
		if score < minKBRelevance {
			continue
		}
		results = append(results, KnowledgeBaseResult{
			ArticleID:      a.ID,
			Title:          a.Title,
			URL:            a.URL,
			Category:       a.Category,
			RelevanceScore: score,
			Snippet:        snippet(a.Content, kbSnippetLen),
		})
	}

	// ties keep dataset order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	total := len(results)
	if len(results) > in.MaxResults {
		results = results[:in.MaxResults]
	}
	return KnowledgeBaseOutput{Query: in.Query, Results: results, TotalFound: total}
}

func scoreArticle(a Article, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(a.Title)
	content := strings.ToLower(a.Content)

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += kbTitleWeight
		}
		for _, kw := range a.Keywords {
			if strings.Contains(strings.ToLower(kw), term) {
				score += kbKeywordWeight
				break
			}
		}
		if strings.Contains(content, term) {
			score += kbContentWeight
		}
	}

	score /= float64(len(terms)) * kbTermMax
	score = math.Min(score, 1)
	return math.Round(score*100) / 100
}

// QueryTerms lowercases q and splits it into search terms, dropping
// punctuation and single-character fragments.
func QueryTerms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

func snippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
