package tokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTestVocab(t *testing.T, vf vocabFile) string {
	t.Helper()

	data, err := json.Marshal(vf)
	if err != nil {
		t.Fatalf("marshal vocab: %v", err)
	}

	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	return path
}

func smallVocab() vocabFile {
	// Bytes for "lo", "hi", "l", "o", "h", "i" under the byte-to-unicode map
	// for printable ASCII are just the literal characters themselves.
	return vocabFile{
		Vocab: map[string]int64{
			"l":  0,
			"o":  1,
			"h":  2,
			"i":  3,
			"lo": 4,
			"hi": 5,
			"<unk>": 6,
			"<s>":   7,
			"</s>":  8,
		},
		Merges:   []string{"l o", "h i"},
		UnkToken: "<unk>",
		BOSToken: "<s>",
		EOSToken: "</s>",
	}
}

func TestNewBPETokenizer_EmptyPath(t *testing.T) {
	if _, err := NewBPETokenizer(""); err != ErrEmptyPath {
		t.Fatalf("err = %v, want ErrEmptyPath", err)
	}
}

func TestNewBPETokenizerFromBytes_Empty(t *testing.T) {
	if _, err := NewBPETokenizerFromBytes(nil); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestNewBPETokenizerFromBytes_MissingSpecialToken(t *testing.T) {
	vf := smallVocab()
	vf.UnkToken = "<missing>"

	data, _ := json.Marshal(vf)
	if _, err := NewBPETokenizerFromBytes(data); err == nil {
		t.Fatal("expected error for unresolvable unk_token")
	}
}

func TestBPETokenizer_EncodeMergesAndWrapsBOSEOS(t *testing.T) {
	path := writeTestVocab(t, smallVocab())

	tok, err := NewBPETokenizer(path)
	if err != nil {
		t.Fatalf("NewBPETokenizer: %v", err)
	}

	ids, mask, err := tok.Encode("lo hi")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []int64{7, 4, 5, 8} // <s> lo hi </s>
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}

	if len(mask) != len(ids) {
		t.Fatalf("mask length = %d, want %d", len(mask), len(ids))
	}
	for _, m := range mask {
		if m != 1 {
			t.Errorf("mask entries should all be 1, got %d", m)
		}
	}
}

func TestBPETokenizer_UnknownByteFallsBackToUnk(t *testing.T) {
	vf := smallVocab()
	// Remove the merged forms so unmerged bytes must resolve through <unk>.
	delete(vf.Vocab, "lo")
	delete(vf.Vocab, "hi")
	vf.Merges = nil

	path := writeTestVocab(t, vf)

	tok, err := NewBPETokenizer(path)
	if err != nil {
		t.Fatalf("NewBPETokenizer: %v", err)
	}

	ids, _, err := tok.Encode("z")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []int64{7, 6, 8} // <s> <unk> </s>
	if len(ids) != len(want) || ids[1] != 6 {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestBPETokenizer_EmptyInputStillWrapsBOSEOS(t *testing.T) {
	path := writeTestVocab(t, smallVocab())

	tok, err := NewBPETokenizer(path)
	if err != nil {
		t.Fatalf("NewBPETokenizer: %v", err)
	}

	ids, mask, err := tok.Encode("")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(ids) != 2 || ids[0] != 7 || ids[1] != 8 {
		t.Fatalf("ids = %v, want [<s> </s>]", ids)
	}
	if len(mask) != 2 {
		t.Fatalf("mask = %v, want length 2", mask)
	}
}

func TestByteToUnicode_Reversible(t *testing.T) {
	table := byteToUnicode()

	seen := make(map[rune]bool, 256)
	for b := 0; b < 256; b++ {
		r := table[b]
		if seen[r] {
			t.Fatalf("byte %d produced duplicate rune %q", b, r)
		}
		seen[r] = true
	}
}
