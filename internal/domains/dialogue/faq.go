package dialogue

import (
	"strings"
)

// FAQEntry is one operator-authored question/answer pair.
type FAQEntry struct {
	Question string
	Answer   string
}

// FAQ matches caller utterances against a small knowledge base using
// token overlap. Operators author the corpus as plain text, one
// "question | answer" pair per line, editable without a deploy.
type FAQ struct {
	entries []FAQEntry
	minHit  float64
}

// ParseFAQ builds a matcher from corpus text. Malformed lines are
// skipped so one typo never empties the knowledge base.
func ParseFAQ(corpus string) *FAQ {
	f := &FAQ{minHit: 0.5}
	for _, line := range strings.Split(corpus, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		q := strings.TrimSpace(parts[0])
		a := strings.TrimSpace(parts[1])
		if q == "" || a == "" {
			continue
		}
		f.entries = append(f.entries, FAQEntry{Question: q, Answer: a})
	}
	return f
}

func (f *FAQ) Len() int { return len(f.entries) }

// Match returns the best answer when enough of a question's tokens
// appear in the utterance.
func (f *FAQ) Match(utterance string) (string, bool) {
	tokens := tokenSet(utterance)
	if len(tokens) == 0 {
		return "", false
	}

	bestScore := 0.0
	bestAnswer := ""
	for _, entry := range f.entries {
		qTokens := tokenSet(entry.Question)
		if len(qTokens) == 0 {
			continue
		}
		hits := 0
		for tok := range qTokens {
			if tokens[tok] {
				hits++
			}
		}
		score := float64(hits) / float64(len(qTokens))
		if score > bestScore {
			bestScore = score
			bestAnswer = entry.Answer
		}
	}
	if bestScore >= f.minHit {
		return bestAnswer, true
	}
	return "", false
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"do": true, "does": true, "what": true, "how": true, "i": true,
	"you": true, "it": true, "this": true, "that": true, "to": true,
	"of": true, "for": true, "in": true, "on": true, "and": true,
	"or": true, "my": true, "your": true, "me": true, "can": true,
	"will": true, "be": true,
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalize(text)) {
		if stopWords[tok] || len(tok) < 2 {
			continue
		}
		set[tok] = true
	}
	return set
}
