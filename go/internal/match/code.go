package match

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength = 6
)

// GenerateCode returns a random human-shareable code.
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(src io.Reader) (string, error) {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, err := rand.Int(src, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b), nil
}
