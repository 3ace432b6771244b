/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package push

import (
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// MinKeySize is the smallest accepted HS256 key, in bytes.
const MinKeySize = 32

var (
	// ErrShortKey is returned for keys below MinKeySize.
	ErrShortKey = errors.New("push: signing key is too short")

	// ErrInvalidSignature wraps every parse or verification failure.
	ErrInvalidSignature = errors.New("push: invalid payload signature")
)

// Verifier checks payloads signed by the push gateway as compact HS256 JWS.
type Verifier struct {
	key []byte
}

// NewVerifier creates a Verifier for the shared gateway key.
func NewVerifier(key []byte) (*Verifier, error) {
	if len(key) < MinKeySize {
		return nil, ErrShortKey
	}
	return &Verifier{key: append([]byte(nil), key...)}, nil
}

// Verify returns the payload of a compact JWS.
func (v *Verifier) Verify(compact string) ([]byte, error) {
	obj, err := jose.ParseSigned(compact, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	payload, err := obj.Verify(v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return payload, nil
}

// Sign produces the compact JWS the gateway would send for payload.
func (v *Verifier) Sign(payload []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: v.key}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return obj.CompactSerialize()
}
