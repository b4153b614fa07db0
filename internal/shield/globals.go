package shield

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode"

	"github.com/meerkat-ai/gateway/internal/core"
)

// Global checks run against the whole input regardless of section
// structure. Any finding here short-circuits to full quarantine.

const (
	maxInputLength    = 10000
	minBase64Length   = 40
	printableFraction = 0.70
)

var (
	base64Run = regexp.MustCompile(`[A-Za-z0-9+/=]{40,}`)
	// "aHR0c" is base64 for "http" - an encoded URL smuggled into text.
	base64HTTP = regexp.MustCompile(`aHR0c[A-Za-z0-9+/=]*`)

	systemMarkers = []string{
		"```system",
		"[INST]",
		"<<SYS>>",
		"<|im_start|>system",
		"<|begin_of_text|>",
		"### System:",
	}

	hiddenHTML = []*regexp.Regexp{
		regexp.MustCompile(`(?i)display\s*:\s*none`),
		regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
		regexp.MustCompile(`(?i)color\s*:\s*(white|#fff(fff)?)\b`),
		regexp.MustCompile(`(?i)font-size\s*:\s*[01](\.\d+)?(px|pt|em)`),
	}
	htmlCommentDirective = regexp.MustCompile(`(?i)<!--[^>]{0,200}(instruct|ignore|system|prompt|secret)[^>]{0,200}-->`)
)

func decodesPrintable(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return false
		}
	}
	if len(raw) == 0 {
		return false
	}
	printable := 0
	for _, b := range raw {
		if b >= 0x20 && b < 0x7f {
			printable++
		}
	}
	return float64(printable)/float64(len(raw)) > printableFraction
}

func hasInvisibleUnicode(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x200B && r <= 0x200F,
			r >= 0x2028 && r <= 0x202F,
			r >= 0x2060 && r <= 0x2064,
			r == 0xFEFF, r == 0x00AD:
			return true
		}
	}
	return false
}

// hasHomoglyphMix reports Latin letters mixed with Cyrillic or Greek
// inside a single word, the classic lookalike-substitution trick.
func hasHomoglyphMix(s string) bool {
	for _, word := range strings.Fields(s) {
		var latin, confusable bool
		for _, r := range word {
			if !unicode.IsLetter(r) {
				continue
			}
			switch {
			case unicode.Is(unicode.Latin, r):
				latin = true
			case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
				confusable = true
			}
		}
		if latin && confusable {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// globalScan returns full-input threats. hasSectionSignals controls the
// overlong check at medium sensitivity.
func globalScan(input string, sens core.Sensitivity, hasSectionSignals bool) []core.Threat {
	var threats []core.Threat

	add := func(t core.AttackType, sev core.Severity, label, text string) {
		threats = append(threats, core.Threat{
			Type:           t,
			Severity:       sev,
			Location:       "full input",
			MatchedPattern: label,
			OriginalText:   truncate(text, 200),
			ActionTaken:    core.SectionQuarantined,
		})
	}

	if m := base64HTTP.FindString(input); m != "" && len(m) >= 8 {
		add(core.AttackEncoding, core.SeverityHigh, "base64_encoded_url", m)
	}
	for _, run := range base64Run.FindAllString(input, 4) {
		if len(run) >= minBase64Length && decodesPrintable(run) {
			add(core.AttackEncoding, core.SeverityHigh, "base64_payload", run)
			break
		}
	}
	if hasInvisibleUnicode(input) {
		add(core.AttackEncoding, core.SeverityHigh, "invisible_unicode", input)
	}
	if hasHomoglyphMix(input) {
		add(core.AttackEncoding, core.SeverityHigh, "homoglyph_mixing", input)
	}
	for _, marker := range systemMarkers {
		if strings.Contains(input, marker) {
			add(core.AttackIndirectInjection, core.SeverityCritical, "system_prompt_marker", marker)
			break
		}
	}
	for _, re := range hiddenHTML {
		if m := re.FindString(input); m != "" {
			add(core.AttackIndirectInjection, core.SeverityHigh, "hidden_html_styling", m)
			break
		}
	}
	if m := htmlCommentDirective.FindString(input); m != "" {
		add(core.AttackIndirectInjection, core.SeverityHigh, "html_comment_directive", m)
	}
	if len(input) > maxInputLength {
		if sens == core.SensitivityHigh || (sens == core.SensitivityMedium && (hasSectionSignals || len(threats) > 0)) {
			add(core.AttackIndirectInjection, core.SeverityMedium, "oversized_input", input)
		}
	}
	return threats
}
