package enrichment

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	types "github.com/yungbote/docbridge-backend/internal/domain"
)

// Offline keyword estimation: stop-word filtered unigram/bigram/trigram
// frequency counting. It runs when the inference service failed outright, so
// it must work with nothing but the text.

var offlinePageMarkerRe = regexp.MustCompile(`\[Page \d+\]`)

var stopWords = map[string]bool{
	"a": true, "about": true, "above": true, "after": true, "again": true,
	"against": true, "all": true, "also": true, "an": true, "and": true, "any": true,
	"are": true, "as": true, "at": true, "be": true, "because": true,
	"been": true, "before": true, "being": true, "below": true, "between": true,
	"both": true, "but": true, "by": true, "can": true, "could": true,
	"did": true, "do": true, "does": true, "doing": true, "down": true,
	"during": true, "each": true, "few": true, "for": true, "from": true,
	"further": true, "had": true, "has": true, "have": true, "having": true,
	"he": true, "her": true, "here": true, "hers": true, "him": true,
	"his": true, "how": true, "i": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "just": true,
	"like": true, "may": true, "me": true, "might": true, "more": true,
	"most": true, "much": true, "my": true, "no": true, "nor": true,
	"not": true, "now": true, "of": true, "off": true, "on": true,
	"once": true, "one": true, "only": true, "or": true, "other": true,
	"our": true, "out": true, "over": true, "own": true, "same": true,
	"she": true, "should": true, "so": true, "some": true, "such": true,
	"than": true, "that": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "to": true, "too": true, "under": true,
	"until": true, "up": true, "us": true, "very": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "who": true, "whom": true, "why": true,
	"will": true, "with": true, "would": true, "you": true, "your": true,
}

// phrase length → score multiplier; longer phrases are more specific.
var ngramMultiplier = [4]float64{0, 1.0, 2.0, 3.0}

func estimateKeywordsOffline(text string) []types.Keyword {
	text = offlinePageMarkerRe.ReplaceAllString(text, " ")

	scores := map[string]float64{}
	for _, sentence := range splitSentences(text) {
		for _, run := range tokenRuns(sentence) {
			countNgrams(run, scores)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	// A phrase seen once is noise, unless the document is so short that
	// nothing repeats.
	kws := make([]types.Keyword, 0, len(scores))
	for term, score := range scores {
		if score >= 2*ngramScoreUnit(term) {
			kws = append(kws, types.Keyword{Term: term, Weight: score})
		}
	}
	if len(kws) == 0 {
		for term, score := range scores {
			kws = append(kws, types.Keyword{Term: term, Weight: score})
		}
	}

	sort.Slice(kws, func(i, j int) bool {
		if kws[i].Weight != kws[j].Weight {
			return kws[i].Weight > kws[j].Weight
		}
		return kws[i].Term < kws[j].Term
	})
	if len(kws) > maxKeywords {
		kws = kws[:maxKeywords]
	}
	renormalizeWeights(kws)
	return kws
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', ';', ':', '\n':
			return true
		}
		return false
	})
}

// tokenRuns tokenizes one sentence into maximal runs of keyword-worthy
// tokens. Stop words and junk tokens break a run, so phrases never span them.
func tokenRuns(sentence string) [][]string {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	var runs [][]string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}
	for _, w := range words {
		w = strings.Trim(w, "-")
		if !keywordWorthy(w) {
			flush()
			continue
		}
		cur = append(cur, w)
	}
	flush()
	return runs
}

func keywordWorthy(w string) bool {
	if len(w) < 3 || stopWords[w] {
		return false
	}
	for _, r := range w {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false // digits/hyphens only
}

func countNgrams(run []string, scores map[string]float64) {
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(run); i++ {
			term := strings.Join(run[i:i+n], " ")
			scores[term] += ngramMultiplier[n]
		}
	}
}

func ngramScoreUnit(term string) float64 {
	return ngramMultiplier[strings.Count(term, " ")+1]
}
