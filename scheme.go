// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"fmt"
	"math/big"
)

// Ciphertext is an opaque scheme-specific ciphertext. Only the scheme that
// produced it can interpret it.
type Ciphertext = any

// Scheme is the encryption capability the packer needs: a plaintext bound and
// encrypt/decrypt of non-negative integers below it.
type Scheme interface {
	// Name identifies the scheme family in logs and wire envelopes.
	Name() string
	// MaxPlaintext returns the largest positive plaintext the scheme can
	// represent safely.
	MaxPlaintext() *big.Int
	// Encrypt encrypts m, which must be in [0, MaxPlaintext()].
	Encrypt(m *big.Int) (Ciphertext, error)
	// Decrypt recovers the plaintext of ct.
	Decrypt(ct Ciphertext) (*big.Int, error)
}

// Adder is implemented by schemes that can add two ciphertexts without
// decrypting them.
type Adder interface {
	Add(a, b Ciphertext) (Ciphertext, error)
}

// ScalarMultiplier is implemented by schemes that can multiply a ciphertext by
// a known non-negative plaintext constant.
type ScalarMultiplier interface {
	ScalarMultiply(ct Ciphertext, k *big.Int) (Ciphertext, error)
}

// CiphertextCodec is implemented by schemes whose ciphertexts can be written
// to storage or put on the wire.
type CiphertextCodec interface {
	MarshalCiphertext(ct Ciphertext) ([]byte, error)
	UnmarshalCiphertext(data []byte) (Ciphertext, error)
}

// SupportsMerge reports whether s exposes both homomorphic primitives needed
// to merge ciphertexts.
func SupportsMerge(s Scheme) bool {
	_, add := s.(Adder)
	_, mul := s.(ScalarMultiplier)
	return add && mul
}

// UsableBits returns the bit length of the scheme's plaintext bound minus the
// one bit reserved against overflow.
func UsableBits(s Scheme) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: nil scheme", ErrUnsupportedScheme)
	}
	max := s.MaxPlaintext()
	if max == nil || max.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s has no positive plaintext bound", ErrUnsupportedScheme, s.Name())
	}
	bits := max.BitLen() - 1
	if bits < 1 {
		return 0, fmt.Errorf("%w: %s plaintext bound %s is too small", ErrUnsupportedScheme, s.Name(), max)
	}
	return bits, nil
}
