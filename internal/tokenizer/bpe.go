package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyPath is returned when NewBPETokenizer is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer vocabulary path must not be empty")

type vocabFile struct {
	Vocab    map[string]int64 `json:"vocab"`
	Merges   []string         `json:"merges"`
	UnkToken string           `json:"unk_token"`
	BOSToken string           `json:"bos_token"`
	EOSToken string           `json:"eos_token"`
}

type mergePair struct {
	left, right string
}

// BPETokenizer implements Tokenizer using a byte-level byte-pair-encoding
// vocabulary loaded from JSON (HuggingFace-style vocab + merges), matching
// the conditioning tokenizer of both inference back-ends.
type BPETokenizer struct {
	vocab     map[string]int64
	rank      map[mergePair]int
	byteToRune [256]rune

	unkID        int64
	bosID        int64
	eosID        int64
	hasBOS       bool
	hasEOS       bool
}

// NewBPETokenizer loads a JSON vocabulary file from path.
func NewBPETokenizer(path string) (*BPETokenizer, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer vocabulary %q: %w", path, err)
	}

	return NewBPETokenizerFromBytes(data)
}

// NewBPETokenizerFromBytes loads a JSON vocabulary from raw bytes.
func NewBPETokenizerFromBytes(data []byte) (*BPETokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("tokenizer vocabulary data must not be empty")
	}

	var vf vocabFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("decode tokenizer vocabulary: %w", err)
	}

	if len(vf.Vocab) == 0 {
		return nil, errors.New("tokenizer vocabulary has no entries")
	}

	t := &BPETokenizer{
		vocab:      vf.Vocab,
		rank:       make(map[mergePair]int, len(vf.Merges)),
		byteToRune: byteToUnicode(),
	}

	for i, line := range vf.Merges {
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed merge rule %d: %q", i, line)
		}

		t.rank[mergePair{parts[0], parts[1]}] = i
	}

	if vf.UnkToken != "" {
		id, ok := vf.Vocab[vf.UnkToken]
		if !ok {
			return nil, fmt.Errorf("unk_token %q not present in vocabulary", vf.UnkToken)
		}

		t.unkID = id
	}

	if vf.BOSToken != "" {
		id, ok := vf.Vocab[vf.BOSToken]
		if !ok {
			return nil, fmt.Errorf("bos_token %q not present in vocabulary", vf.BOSToken)
		}

		t.bosID = id
		t.hasBOS = true
	}

	if vf.EOSToken != "" {
		id, ok := vf.Vocab[vf.EOSToken]
		if !ok {
			return nil, fmt.Errorf("eos_token %q not present in vocabulary", vf.EOSToken)
		}

		t.eosID = id
		t.hasEOS = true
	}

	return t, nil
}

// Encode normalizes text to NFC, applies byte-level BPE word by word, and
// returns token ids alongside an all-ones attention mask of the same length.
func (t *BPETokenizer) Encode(text string) ([]int64, []int64, error) {
	normalized := norm.NFC.String(text)

	var ids []int64
	if t.hasBOS {
		ids = append(ids, t.bosID)
	}

	for _, word := range strings.FieldsFunc(normalized, unicode.IsSpace) {
		symbols := t.encodeWord(word)
		for _, sym := range symbols {
			if id, ok := t.vocab[sym]; ok {
				ids = append(ids, id)
				continue
			}

			ids = append(ids, t.unkID)
		}
	}

	if t.hasEOS {
		ids = append(ids, t.eosID)
	}

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}

	return ids, mask, nil
}

// encodeWord runs the BPE merge loop on one whitespace-delimited word,
// returning the final list of vocabulary symbols.
func (t *BPETokenizer) encodeWord(word string) []string {
	symbols := t.byteSymbols(word)
	if len(symbols) <= 1 {
		return symbols
	}

	for {
		bestRank := -1
		bestIdx := -1

		for i := 0; i < len(symbols)-1; i++ {
			r, ok := t.rank[mergePair{symbols[i], symbols[i+1]}]
			if !ok {
				continue
			}

			if bestRank == -1 || r < bestRank {
				bestRank = r
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			return symbols
		}

		merged := make([]string, 0, len(symbols)-1)
		merged = append(merged, symbols[:bestIdx]...)
		merged = append(merged, symbols[bestIdx]+symbols[bestIdx+1])
		merged = append(merged, symbols[bestIdx+2:]...)
		symbols = merged
	}
}

// byteSymbols maps each UTF-8 byte of word through the GPT-2-style
// byte-to-unicode table, so every byte value round-trips to a printable,
// whitespace-free rune before merges are applied.
func (t *BPETokenizer) byteSymbols(word string) []string {
	b := []byte(word)
	symbols := make([]string, len(b))
	for i, c := range b {
		symbols[i] = string(t.byteToRune[c])
	}

	return symbols
}

// byteToUnicode builds the reversible byte<->rune table used by GPT-2-family
// byte-level BPE: printable ASCII/Latin-1 bytes map to themselves, the
// remaining byte values map to unused codepoints from U+0100 upward so no merge
// symbol ever collides with whitespace or control characters.
func byteToUnicode() [256]rune {
	var table [256]rune

	printable := map[int]bool{}
	for i := int('!'); i <= int('~'); i++ {
		printable[i] = true
	}
	for i := int('¡'); i <= int('¬'); i++ {
		printable[i] = true
	}
	for i := int('®'); i <= int('ÿ'); i++ {
		printable[i] = true
	}

	keys := make([]int, 0, len(printable))
	for k := range printable {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for _, k := range keys {
		table[k] = rune(k)
	}

	next := 256
	for b := 0; b < 256; b++ {
		if !printable[b] {
			table[b] = rune(next)
			next++
		}
	}

	return table
}
