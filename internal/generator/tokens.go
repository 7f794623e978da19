package generator

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens estimates the prompt size with the cl100k encoding. It returns -1 when the codec is unavailable.
func CountTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return -1
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
