// Package language is a script-range language tagger. It stands in for the
// external per-chunk tagger service behind the LanguageTagger port; counts
// are letter-based so punctuation and digits never skew the distribution.
package language

import (
	"unicode"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
)

// minLanguageRatio is the share of letters below which a language is not
// reported in the languages list.
const minLanguageRatio = 0.1

type Tagger struct{}

func New() *Tagger {
	return &Tagger{}
}

func (t *Tagger) Analyze(text string) domain.LanguageInfo {
	counts := make(map[string]int)
	var order []string
	total := 0

	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		lang := scriptLanguage(r)
		if lang == "" {
			continue
		}
		if counts[lang] == 0 {
			order = append(order, lang)
		}
		counts[lang]++
		total++
	}

	if total == 0 {
		return domain.LanguageInfo{
			Languages:    []string{},
			Distribution: map[string]float64{},
		}
	}

	distribution := make(map[string]float64, len(counts))
	primary := ""
	for lang, count := range counts {
		distribution[lang] = float64(count) / float64(total)
		if primary == "" || count > counts[primary] || (count == counts[primary] && lang < primary) {
			primary = lang
		}
	}

	// Languages keep first-appearance order; trace amounts are dropped.
	languages := make([]string, 0, len(order))
	for _, lang := range order {
		if distribution[lang] >= minLanguageRatio {
			languages = append(languages, lang)
		}
	}
	if len(languages) == 0 {
		languages = append(languages, primary)
	}

	return domain.LanguageInfo{
		PrimaryLanguage: primary,
		IsMultilingual:  len(languages) > 1,
		Languages:       languages,
		Distribution:    distribution,
	}
}

func scriptLanguage(r rune) string {
	switch {
	case unicode.Is(unicode.Hebrew, r):
		return "he"
	case unicode.Is(unicode.Arabic, r):
		return "ar"
	case unicode.Is(unicode.Cyrillic, r):
		return "ru"
	case unicode.Is(unicode.Greek, r):
		return "el"
	case unicode.Is(unicode.Han, r):
		return "zh"
	case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
		return "ja"
	case unicode.Is(unicode.Hangul, r):
		return "ko"
	case unicode.Is(unicode.Latin, r):
		return "en"
	default:
		return ""
	}
}
