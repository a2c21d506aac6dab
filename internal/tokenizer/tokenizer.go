// Package tokenizer provides text tokenization for the musicdaemon inference
// engines. The implementation is a byte-pair tokenizer loaded from a JSON
// vocabulary (vocab.json + merges), shared by both back-ends' text encoders.
package tokenizer

// Tokenizer encodes a text prompt into token ids and an attention mask of
// the same length (all ones; no padding is applied at this layer).
type Tokenizer interface {
	Encode(text string) (ids []int64, attentionMask []int64, err error)
}
