// Package format validates the PSD file signature on ingested bytes.
package format

import (
	"bytes"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
)

// Signature is the 4-byte magic every PSD file starts with.
var Signature = []byte("8BPS")

// ValidateSignature checks the first decompressed chunk of a session.
// Runs exactly once per session; failure is unrecoverable for the
// session.
func ValidateSignature(data []byte) error {
	if len(data) < len(Signature) || !bytes.Equal(data[:len(Signature)], Signature) {
		return apperrors.InvalidSignature()
	}
	return nil
}
