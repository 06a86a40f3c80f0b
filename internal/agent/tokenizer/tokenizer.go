package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	logx "github.com/ranops-core/server/pkg/logger"
)

// charsPerToken approximates how many characters one token covers in
// typical operational English text.
const charsPerToken = 4

// Heuristic estimates token counts from character length. Used as the
// fallback when no BPE encoding can be loaded, and in tests where exact
// counts must be controllable.
type Heuristic struct{}

func (Heuristic) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Tiktoken counts tokens with a real BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. Falls back to nil enc (and
// heuristic counting) when the encoding data cannot be fetched, so agents
// still start in offline environments.
func NewTiktoken() *Tiktoken {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		logx.Warn().Err(err).Msg("tiktoken encoding unavailable, using heuristic token counts")
		return &Tiktoken{}
	}
	return &Tiktoken{enc: enc}
}

func (t *Tiktoken) CountTokens(text string) int {
	if t.enc == nil {
		return Heuristic{}.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
