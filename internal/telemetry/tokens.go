package telemetry

import "strings"

// EstimateTokens estimates BPE token count from text using a content-type
// heuristic: code ~2.5 chars/token, markdown ~3.0, prose ~4.0. Exact
// counting is deliberately out of scope.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := len(text)
	lines := strings.Split(text, "\n")
	totalLines := len(lines)
	if totalLines == 0 {
		totalLines = 1
	}

	codeChars := 0
	mdChars := 0
	for _, c := range text {
		if strings.ContainsRune("{}[]();=<>|&!@#$%^*~`\\", c) {
			codeChars++
		}
		if strings.ContainsRune("#-*_>", c) {
			mdChars++
		}
	}

	indentLines := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			indentLines++
		}
	}
	indentRatio := float64(indentLines) / float64(totalLines)

	codeFraction := min(float64(codeChars)/float64(totalChars)*10.0+indentRatio*0.5, 1.0)
	mdFraction := min(float64(mdChars)/float64(totalChars)*8.0, 1.0-codeFraction)
	proseFraction := 1.0 - codeFraction - mdFraction

	charsPerToken := codeFraction*2.5 + mdFraction*3.0 + proseFraction*4.0

	tokens := int(float64(totalChars) / charsPerToken)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
