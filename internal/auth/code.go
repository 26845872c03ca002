// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"
	"strconv"

	"github.com/samber/oops"
)

// DefaultCodeLength is the number of digits in a one-time code.
const DefaultCodeLength = 6

// maxCodeLength keeps 10^length within int64.
const maxCodeLength = 18

// GenerateNumericCode returns a code of exactly length decimal digits drawn
// uniformly from [10^(length-1), 10^length) using crypto/rand.
func GenerateNumericCode(length int) (string, error) {
	return generateNumericCode(rand.Reader, length)
}

func generateNumericCode(src io.Reader, length int) (string, error) {
	if length < 1 || length > maxCodeLength {
		return "", oops.Code("CODE_INVALID_LENGTH").
			With("length", length).
			Errorf("code length must be between 1 and %d", maxCodeLength)
	}

	low := int64(1)
	for i := 1; i < length; i++ {
		low *= 10
	}
	high := low * 10

	n, err := rand.Int(src, big.NewInt(high-low))
	if err != nil {
		return "", oops.Code("CODE_GENERATE_FAILED").Wrap(err)
	}

	return strconv.FormatInt(n.Int64()+low, 10), nil
}

// codesEqual compares a presented code with the pending one in constant time.
// An absent pending code never matches.
func codesEqual(pending *string, presented string) bool {
	if pending == nil || *pending == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*pending), []byte(presented)) == 1
}
