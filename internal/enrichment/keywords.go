package enrichment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/prompts"
)

const (
	keywordBoostPerBatch = 0.05
	keywordBoostCap      = 0.25
	keywordMaxTermRunes  = 120
)

// GenerateKeywords asks for weighted terms per character-budget batch, in
// parallel, then merges. A failed batch contributes nothing; if every batch
// fails (or returns nothing) the offline estimator takes over so the document
// always gets keywords.
func (g *Generator) GenerateKeywords(ctx context.Context, doc *types.Document, texts []string) []types.Keyword {
	batches := batchTexts(texts, keywordBatchCharBudget)
	if len(batches) == 0 {
		g.log.Warn("keywords skipped: no chunk text", "slug", doc.Slug)
		return nil
	}

	results := make([][]types.Keyword, len(batches))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(keywordMaxParallel)
	for i := range batches {
		i := i
		eg.Go(func() error {
			kws, err := g.keywordBatch(egCtx, doc, batches[i], i+1, len(batches))
			if err != nil {
				g.log.Warn("keyword batch failed", "slug", doc.Slug, "batch", i+1, "of", len(batches), "error", err)
				return nil
			}
			results[i] = kws
			return nil
		})
	}
	_ = eg.Wait()

	merged := mergeKeywords(results)
	if len(merged) == 0 {
		g.log.Warn("keyword generation failed across all batches; using offline estimator", "slug", doc.Slug)
		return estimateKeywordsOffline(strings.Join(texts, "\n\n"))
	}
	return merged
}

func (g *Generator) keywordBatch(ctx context.Context, doc *types.Document, batchText string, index, total int) ([]types.Keyword, error) {
	p, err := prompts.Build(prompts.PromptDocumentKeywords, prompts.Input{
		DocumentTitle: doc.Title,
		BatchText:     batchText,
		BatchIndex:    index,
		BatchCount:    total,
	})
	if err != nil {
		return nil, err
	}
	var out []types.Keyword
	err = g.deadlines.Run(ctx, fmt.Sprintf("document_keywords_%d", index), keywordBatchTimeout, func(ctx context.Context) error {
		obj, callErr := g.ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
		if callErr != nil {
			return callErr
		}
		logModelWarnings(g.log, "keywords", doc.Slug, obj)
		out, callErr = parseKeywords(obj)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseKeywords is fail-closed: any malformed entry fails the whole batch.
func parseKeywords(obj map[string]any) ([]types.Keyword, error) {
	raw, ok := obj["keywords"]
	if !ok {
		return nil, fmt.Errorf("response missing keywords")
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("keywords is %T, not array", raw)
	}
	out := make([]types.Keyword, 0, len(arr))
	for i, x := range arr {
		m, ok := x.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("keywords[%d] is %T, not object", i, x)
		}
		term, ok := m["term"].(string)
		if !ok {
			return nil, fmt.Errorf("keywords[%d].term is %T, not string", i, m["term"])
		}
		term = normalizeTerm(term)
		if term == "" {
			return nil, fmt.Errorf("keywords[%d].term is empty", i)
		}
		weight, ok := floatFromAny(m["weight"])
		if !ok {
			return nil, fmt.Errorf("keywords[%d].weight is %T, not number", i, m["weight"])
		}
		out = append(out, types.Keyword{Term: term, Weight: weight})
	}
	return out, nil
}

// batchTexts packs consecutive texts into batches of at most budget runes,
// covering every text exactly once. A single text over the budget becomes its
// own truncated batch.
func batchTexts(texts []string, budget int) []string {
	var batches []string
	var cur strings.Builder
	curRunes := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			batches = append(batches, s)
		}
		cur.Reset()
		curRunes = 0
	}

	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		r := []rune(t)
		if len(r) > budget {
			flush()
			batches = append(batches, string(r[:budget]))
			continue
		}
		if curRunes > 0 && curRunes+2+len(r) > budget {
			flush()
		}
		if curRunes > 0 {
			cur.WriteString("\n\n")
			curRunes += 2
		}
		cur.WriteString(t)
		curRunes += len(r)
	}
	flush()
	return batches
}

// mergeKeywords folds per-batch results by lowercased term: running-average
// weight, a bounded boost for terms recurring across batches, then a min-max
// stretch onto [0.1, 1.0] and the top cut.
func mergeKeywords(batchResults [][]types.Keyword) []types.Keyword {
	type agg struct {
		sum     float64
		count   int
		batches int
	}
	byTerm := map[string]*agg{}
	for _, batch := range batchResults {
		seen := map[string]bool{}
		for _, kw := range batch {
			term := normalizeTerm(kw.Term)
			if term == "" {
				continue
			}
			a := byTerm[term]
			if a == nil {
				a = &agg{}
				byTerm[term] = a
			}
			a.sum += kw.Weight
			a.count++
			if !seen[term] {
				a.batches++
				seen[term] = true
			}
		}
	}
	if len(byTerm) == 0 {
		return nil
	}

	out := make([]types.Keyword, 0, len(byTerm))
	for term, a := range byTerm {
		avg := a.sum / float64(a.count)
		boost := keywordBoostPerBatch * float64(a.batches-1)
		if boost > keywordBoostCap {
			boost = keywordBoostCap
		}
		out = append(out, types.Keyword{Term: term, Weight: avg * (1 + boost)})
	}

	renormalizeWeights(out)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

// renormalizeWeights stretches weights onto [0.1, 1.0] so the spread is
// meaningful regardless of the magnitudes the provider reported. A set with a
// single distinct weight maps to 1.0.
func renormalizeWeights(kws []types.Keyword) {
	if len(kws) == 0 {
		return
	}
	min, max := kws[0].Weight, kws[0].Weight
	for _, kw := range kws[1:] {
		if kw.Weight < min {
			min = kw.Weight
		}
		if kw.Weight > max {
			max = kw.Weight
		}
	}
	if max == min {
		for i := range kws {
			kws[i].Weight = 1.0
		}
		return
	}
	span := max - min
	for i := range kws {
		kws[i].Weight = 0.1 + 0.9*(kws[i].Weight-min)/span
	}
}

func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.Join(strings.Fields(term), " ")
	r := []rune(term)
	if len(r) > keywordMaxTermRunes {
		term = strings.TrimSpace(string(r[:keywordMaxTermRunes]))
	}
	return term
}
