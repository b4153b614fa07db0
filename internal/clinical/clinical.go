// Package clinical provides pure text preprocessing used by the
// entailment adapter and its heuristic fallback: abbreviation expansion,
// clinically-aware sentence splitting, and context chunking sized for a
// 512-token NLI model. No package-level mutable state.
package clinical

import (
	"regexp"
	"strings"
	"unicode"
)

// expansion pairs a compiled pattern with its replacement. Order matters:
// longer or more specific abbreviations are listed before substrings of
// themselves (T2DM before DM).
type expansion struct {
	re   *regexp.Regexp
	with string
}

// Only abbreviations that change meaning for NLI are expanded. Lab names
// (WBC, Hgb) stay as-is since the model handles them as tokens.
var expansions = []expansion{
	// frequency
	{regexp.MustCompile(`\bBID\b`), "twice daily"},
	{regexp.MustCompile(`\bTID\b`), "three times daily"},
	{regexp.MustCompile(`\bQID\b`), "four times daily"},
	{regexp.MustCompile(`\bQ\.?D\.?\b`), "once daily"},
	{regexp.MustCompile(`\bQ\.?H\.?S\.?\b`), "at bedtime"},
	{regexp.MustCompile(`\bPRN\b`), "as needed"},
	{regexp.MustCompile(`\bAC\b`), "before meals"},
	{regexp.MustCompile(`\bPC\b`), "after meals"},
	{regexp.MustCompile(`\bHS\b`), "at bedtime"},
	// route
	{regexp.MustCompile(`\bPO\b`), "by mouth"},
	{regexp.MustCompile(`\bIV\b`), "intravenous"},
	{regexp.MustCompile(`\bIM\b`), "intramuscular"},
	{regexp.MustCompile(`\bSQ\b`), "subcutaneous"},
	{regexp.MustCompile(`\bSL\b`), "sublingual"},
	{regexp.MustCompile(`\bPR\b`), "per rectum"},
	// common clinical
	{regexp.MustCompile(`\bNKDA\b`), "no known drug allergies"},
	{regexp.MustCompile(`\bNKA\b`), "no known allergies"},
	{regexp.MustCompile(`\bWNL\b`), "within normal limits"},
	{regexp.MustCompile(`\bNAD\b`), "no acute distress"},
	{regexp.MustCompile(`\bA&O\s*x\s*3\b`), "alert and oriented times three"},
	// RA only when followed by a separator, so "RAte" style words survive
	{regexp.MustCompile(`\bRA\b([\s,.)]|$)`), "room air$1"},
	// history
	{regexp.MustCompile(`\bPMH\b`), "past medical history"},
	{regexp.MustCompile(`\bPSH\b`), "past surgical history"},
	{regexp.MustCompile(`\bFH\b`), "family history"},
	{regexp.MustCompile(`\bSH\b`), "social history"},
	{regexp.MustCompile(`\bHPI\b`), "history of present illness"},
	{regexp.MustCompile(`\bROS\b`), "review of systems"},
	// conditions
	{regexp.MustCompile(`\bHTN\b`), "hypertension"},
	{regexp.MustCompile(`\bT2DM\b`), "type 2 diabetes mellitus"},
	{regexp.MustCompile(`\bT1DM\b`), "type 1 diabetes mellitus"},
	{regexp.MustCompile(`\bDM\b`), "diabetes mellitus"},
	{regexp.MustCompile(`\bCHF\b`), "congestive heart failure"},
	{regexp.MustCompile(`\bCOPD\b`), "chronic obstructive pulmonary disease"},
	{regexp.MustCompile(`\bCAD\b`), "coronary artery disease"},
	{regexp.MustCompile(`\bAFib\b`), "atrial fibrillation"},
	{regexp.MustCompile(`\bCKD\b`), "chronic kidney disease"},
	{regexp.MustCompile(`\bGERD\b`), "gastroesophageal reflux disease"},
	{regexp.MustCompile(`\bDVT\b`), "deep vein thrombosis"},
	{regexp.MustCompile(`\bPE\b`), "pulmonary embolism"},
	{regexp.MustCompile(`\bACS\b`), "acute coronary syndrome"},
	{regexp.MustCompile(`\bSTEMI\b`), "ST-elevation myocardial infarction"},
	{regexp.MustCompile(`\bNSTEMI\b`), "non-ST-elevation myocardial infarction"},
	{regexp.MustCompile(`\bCVA\b`), "cerebrovascular accident"},
	{regexp.MustCompile(`\bTIA\b`), "transient ischemic attack"},
	{regexp.MustCompile(`\bUTI\b`), "urinary tract infection"},
	{regexp.MustCompile(`\bCAP\b`), "community-acquired pneumonia"},
	// procedures and testing
	{regexp.MustCompile(`\bECG\b`), "electrocardiogram"},
	{regexp.MustCompile(`\bEKG\b`), "electrocardiogram"},
	{regexp.MustCompile(`\bCXR\b`), "chest X-ray"},
	{regexp.MustCompile(`\bCT\b`), "computed tomography"},
	{regexp.MustCompile(`\bMRI\b`), "magnetic resonance imaging"},
	{regexp.MustCompile(`\bEBL\b`), "estimated blood loss"},
	{regexp.MustCompile(`\bPICC\b`), "peripherally inserted central catheter"},
	{regexp.MustCompile(`\bPACU\b`), "post-anesthesia care unit"},
	// anatomical locations
	{regexp.MustCompile(`\bRLL\b`), "right lower lobe"},
	{regexp.MustCompile(`\bRUL\b`), "right upper lobe"},
	{regexp.MustCompile(`\bLLL\b`), "left lower lobe"},
	{regexp.MustCompile(`\bLUL\b`), "left upper lobe"},
	{regexp.MustCompile(`\bRUQ\b`), "right upper quadrant"},
	{regexp.MustCompile(`\bLUQ\b`), "left upper quadrant"},
	{regexp.MustCompile(`\bRLQ\b`), "right lower quadrant"},
	{regexp.MustCompile(`\bLLQ\b`), "left lower quadrant"},
}

// ExpandAbbreviations replaces clinical shorthand with full terms.
// Idempotent: expanded text contains no remaining abbreviations.
func ExpandAbbreviations(text string) string {
	out := text
	for _, e := range expansions {
		out = e.re.ReplaceAllString(out, e.with)
	}
	return out
}

// Abbreviation-style words that end in a period without ending a sentence.
var nonSentenceEnding = regexp.MustCompile(
	`\b(?:Dr|Mr|Mrs|Ms|Prof|Jr|Sr|vs|etc|approx|est|` +
		`q\.\d+h|q\.h\.s|q\.d|a\.m|p\.m|e\.g|i\.e|pt|wt|ht|` +
		`Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.\s*$`)

var trailingDecimal = regexp.MustCompile(`\d+\.\d+\.$`)

// SplitSentences splits text into sentences without breaking on decimals
// ("T 39.1" stays intact) or non-terminal abbreviations ("Dr. Smith").
// Fragments of 10 characters or fewer are dropped.
func SplitSentences(text string) []string {
	words := strings.Fields(text)
	var sentences []string
	var current []string

	for i, word := range words {
		current = append(current, word)

		switch {
		case strings.HasSuffix(word, ".") && len(word) > 1:
			joined := strings.Join(current, " ")
			if nonSentenceEnding.MatchString(joined) {
				continue
			}
			if trailingDecimal.MatchString(word) {
				// "14.2." ends a sentence only if the next word opens
				// a new one with an uppercase letter.
				if i+1 < len(words) && startsUpper(words[i+1]) {
					sentences = append(sentences, joined)
					current = nil
				}
				continue
			}
			sentences = append(sentences, joined)
			current = nil
		case strings.HasSuffix(word, "!"), strings.HasSuffix(word, "?"):
			sentences = append(sentences, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}

	out := sentences[:0]
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			out = append(out, s)
		}
	}
	return out
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// Chunking defaults leave headroom for the hypothesis within the NLI
// model's 512-token window, using word count as a token proxy.
const (
	DefaultChunkWords   = 380
	DefaultOverlapWords = 50
)

// ChunkContext splits text into overlapping word windows. Text at or
// under maxWords is returned as a single chunk.
func ChunkContext(text string, maxWords, overlapWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultChunkWords
	}
	if overlapWords < 0 || overlapWords >= maxWords {
		overlapWords = DefaultOverlapWords
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
		start = end - overlapWords
	}
	return chunks
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "was": {}, "were": {},
	"are": {}, "been": {}, "be": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "shall": {},
	"can": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "into": {}, "that": {}, "which": {},
	"who": {}, "whom": {}, "this": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "not": {}, "no": {}, "nor": {}, "so": {},
	"if": {}, "then": {}, "than": {}, "too": {}, "very": {},
	"just": {}, "about": {}, "also": {}, "only": {},
}

// MeaningfulWords lowercases and tokenizes text, dropping stopwords.
func MeaningfulWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[w]; !stop {
			out[w] = struct{}{}
		}
	}
	return out
}

// MostRelevantChunk picks the chunk sharing the most meaningful words
// with the claim. Ties keep the earliest chunk.
func MostRelevantChunk(chunks []string, claim string) string {
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) == 1 {
		return chunks[0]
	}
	claimWords := MeaningfulWords(claim)
	best, bestScore := chunks[0], 0
	for _, chunk := range chunks {
		score := 0
		for w := range MeaningfulWords(chunk) {
			if _, ok := claimWords[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = chunk, score
		}
	}
	return best
}
