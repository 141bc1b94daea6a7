// Package textnorm turns raw bug-report text into a cleaned token stream
// suitable for feature extraction. Normalization is a pure function of its
// input and idempotent: normalizing already-normalized text is a no-op.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	markupRE = regexp.MustCompile(`<[^>]+>`)
	urlRE    = regexp.MustCompile(`https?://\S+`)
	// ticketKeyRE matches tracker issue keys like PROJ-1234.
	ticketKeyRE = regexp.MustCompile(`[A-Z]+-\d+`)
	multiWSRE   = regexp.MustCompile(`\s+`)
)

// punctuation is the ASCII punctuation set stripped from tokens.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"the a an is are was were be been being " +
			"have has had do does did will would could " +
			"should may might shall can to of in for " +
			"on with at by from as into through during " +
			"before after above below between out off over " +
			"under again further then once and but or nor " +
			"not so very just about up down here there " +
			"this that these those i me my we our you " +
			"your he him his she her it its they them") {
		stopWords[w] = true
	}
}

// Normalizer cleans raw text. The lemmatizer capability is resolved once at
// construction: callers never probe for linguistic resources per call.
type Normalizer struct {
	lemma func(string) string
}

// New builds a Normalizer. mode selects the lemmatizer: "plural" enables the
// built-in plural-suffix reducer, anything else passes tokens through
// unchanged.
func New(mode string) *Normalizer {
	n := &Normalizer{lemma: func(s string) string { return s }}
	if mode == "plural" {
		n.lemma = pluralRoot
	}
	return n
}

// Normalize applies the full cleaning pipeline: strip markup, URLs, and
// ticket keys; lowercase; strip punctuation; reduce plurals; drop stop words
// and one-char tokens; rejoin with single spaces.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = markupRE.ReplaceAllString(text, " ")
	text = urlRE.ReplaceAllString(text, " ")
	text = ticketKeyRE.ReplaceAllString(text, " ")
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, text)

	// Lemmatize before filtering so a plural of a stop word ("wills") is
	// dropped like the stop word itself, keeping Normalize idempotent.
	var kept []string
	for _, tok := range strings.Fields(text) {
		tok = n.lemma(tok)
		if len(tok) <= 1 || stopWords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return multiWSRE.ReplaceAllString(strings.Join(kept, " "), " ")
}

// NormalizeBug normalizes the combined summary + description of one bug.
// The description may be empty.
func (n *Normalizer) NormalizeBug(summary, description string) string {
	return n.Normalize(summary + " " + description)
}

// pluralRoot reduces common English plural suffixes. The rules are chosen to
// be a fixed point: applying pluralRoot to its own output changes nothing,
// which keeps Normalize idempotent.
func pluralRoot(tok string) string {
	if len(tok) <= 3 {
		return tok
	}
	if strings.HasSuffix(tok, "ies") {
		return tok[:len(tok)-3] + "y"
	}
	for _, suf := range []string{"sses", "xes", "ches", "shes"} {
		if strings.HasSuffix(tok, suf) {
			return tok[:len(tok)-2]
		}
	}
	if strings.HasSuffix(tok, "s") &&
		!strings.HasSuffix(tok, "ss") &&
		!strings.HasSuffix(tok, "us") &&
		!strings.HasSuffix(tok, "is") {
		return tok[:len(tok)-1]
	}
	return tok
}
