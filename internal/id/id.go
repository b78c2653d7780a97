// Package id generates short random identifiers for operations and scratch files.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// fileSafeAlphabet avoids characters that need quoting in shells or URLs.
const fileSafeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Operation creates a prefixed identifier used to correlate log lines of a
// single archive, refresh or inbox run (e.g. "arc-V1StGXR8_Z5jdHi6B-myT").
func Operation(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustOperation is like Operation but panics if the system has no entropy.
func MustOperation(prefix string) string {
	id, err := Operation(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Suffix returns n lowercase alphanumeric characters for temporary file names.
func Suffix(n int) (string, error) {
	s, err := gonanoid.Generate(fileSafeAlphabet, n)
	if err != nil {
		return "", fmt.Errorf("generate suffix: %w", err)
	}
	return s, nil
}
