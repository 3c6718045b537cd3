package booking

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	codePrefix   = "BKG"
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffix   = 6
)

// NewCode returns a booking code such as BKG250101A1B2C3.
func NewCode(now time.Time) (string, error) {
	buf := make([]byte, 0, len(codePrefix)+6+codeSuffix)
	buf = append(buf, codePrefix...)
	buf = now.UTC().AppendFormat(buf, "060102")

	size := big.NewInt(int64(len(codeAlphabet)))
	for range codeSuffix {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf = append(buf, codeAlphabet[n.Int64()])
	}

	return string(buf), nil
}
