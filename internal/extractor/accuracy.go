package extractor

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// ScoreAccuracy compares recognized text against the reading the user
// expected. CER is the character edit distance over the expected length,
// WER the word edit distance over the expected word count, and MatchScore
// is 1-CER floored at 0.
func ScoreAccuracy(expected, actual string) models.Accuracy {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)
	acc := models.Accuracy{ExpectedText: expected}

	n := utf8.RuneCountInString(expected)
	if n == 0 {
		if actual != "" {
			acc.CER, acc.WER = 1, 1
		} else {
			acc.MatchScore = 1
		}
		return acc
	}

	acc.CER = float64(levenshtein.Distance(expected, actual)) / float64(n)

	refWords := strings.Fields(expected)
	werRate, _ := wer.WER(refWords, strings.Fields(actual))
	acc.WER = werRate

	acc.MatchScore = math.Max(0, 1-acc.CER)
	return acc
}
