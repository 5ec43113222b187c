package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensEmpty(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokensCode(t *testing.T) {
	code := "func main() {\n\tfmt.Println(\"hello\")\n}"
	tokens := EstimateTokens(code)
	// Code-heavy content lands near 2.5 chars/token.
	assert.GreaterOrEqual(t, tokens, 12)
	assert.LessOrEqual(t, tokens, 20)
}

func TestEstimateTokensProse(t *testing.T) {
	prose := "This is a simple sentence with natural language that should be counted at about four characters per token."
	tokens := EstimateTokens(prose)
	assert.GreaterOrEqual(t, tokens, 20)
	assert.LessOrEqual(t, tokens, 32)
}

func TestEstimateTokensCodeDenserThanProse(t *testing.T) {
	prose := "a plain sentence about nothing in particular with ordinary words"
	code := "x := map[string]int{\"a\": 1}; if x[\"a\"] > 0 { return }"
	proseDensity := float64(EstimateTokens(prose)) / float64(len(prose))
	codeDensity := float64(EstimateTokens(code)) / float64(len(code))
	assert.Greater(t, codeDensity, proseDensity)
}
