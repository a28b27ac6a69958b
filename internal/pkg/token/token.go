package token

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet omits characters that are easy to confuse when typed from an email.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of generated access codes.
const CodeLength = 12

// NewAccessCode generates a random personal access code of CodeLength characters.
func NewAccessCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
