package tokens

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter approximates how many tokens a text costs. Gemini does not publish
// its tokenizer, cl100k_base is close enough for a running estimate.
type Counter struct {
	codec tokenizer.Codec
}

func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load cl100k_base tokenizer")
	}
	return &Counter{codec: codec}, nil
}

// Count returns the token count of text, 0 when it cannot be encoded.
func (c *Counter) Count(text string) int {
	if c == nil || text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}
