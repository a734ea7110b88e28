package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/bits"
	"strings"

	"github.com/loanworks/granite/internal/core/model"
)

// Fingerprint computes the content identity of a document: an exact sha256
// over the page text and a 64-bit simhash for near-duplicate similarity.
// A document with no readable text cannot be fingerprinted and is routed to
// manual review by the caller.
func Fingerprint(doc model.Document) (exactHash string, perceptual uint64, err error) {
	var sb strings.Builder
	for _, p := range doc.Pages {
		sb.WriteString(p.Text)
		sb.WriteByte('\n')
	}
	content := sb.String()

	if strings.TrimSpace(content) == "" {
		return "", 0, fmt.Errorf("document %s has no readable content", doc.ID)
	}

	sum := sha256.Sum256([]byte(content))
	exactHash = hex.EncodeToString(sum[:])

	perceptual = simhash(content)
	return exactHash, perceptual, nil
}

// IsExactDuplicate reports hash equality. Unfingerprintable documents never
// match anything.
func IsExactDuplicate(a, b model.Document) bool {
	return a.ExactHash != "" && a.ExactHash == b.ExactHash
}

// Similarity returns the normalized perceptual-hash similarity in [0,1]:
// 1 minus the Hamming distance over 64 bits.
func Similarity(a, b model.Document) float64 {
	if a.ExactHash == "" || b.ExactHash == "" {
		return 0
	}
	distance := bits.OnesCount64(a.PerceptualHash ^ b.PerceptualHash)
	return 1.0 - float64(distance)/64.0
}

// simhash computes a 64-bit simhash over word 3-shingles. Token hashing uses
// FNV-1a; each shingle votes its bits up or down and the sign of each column
// becomes the output bit.
func simhash(content string) uint64 {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return 0
	}

	var counts [64]int
	shingleSize := 3
	if len(tokens) < shingleSize {
		shingleSize = len(tokens)
	}

	for i := 0; i+shingleSize <= len(tokens); i++ {
		h := fnv.New64a()
		for j := i; j < i+shingleSize; j++ {
			h.Write([]byte(tokens[j]))
			h.Write([]byte{' '})
		}
		v := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if v&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	var out uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

func tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}
