// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package affine

import (
	"fmt"
	"math/big"
)

// Scheme adapts a Key to the packer's scheme capabilities.
type Scheme struct {
	key *Key
}

// NewScheme wraps key.
func NewScheme(key *Key) *Scheme {
	return &Scheme{key: key}
}

func (s *Scheme) Name() string { return SchemeName }

func (s *Scheme) MaxPlaintext() *big.Int { return s.key.MaxPlaintext() }

func (s *Scheme) Encrypt(m *big.Int) (any, error) {
	return s.key.Encrypt(m)
}

func (s *Scheme) Decrypt(ct any) (*big.Int, error) {
	c, ok := ct.(*big.Int)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotCiphertext, ct)
	}
	return s.key.Decrypt(c)
}

func (s *Scheme) MarshalCiphertext(ct any) ([]byte, error) {
	c, ok := ct.(*big.Int)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotCiphertext, ct)
	}
	return c.Bytes(), nil
}

// UnmarshalCiphertext rejects values outside the last round's modulus.
func (s *Scheme) UnmarshalCiphertext(data []byte) (any, error) {
	c := new(big.Int).SetBytes(data)
	if c.Cmp(s.key.N[len(s.key.N)-1]) >= 0 {
		return nil, ErrCiphertextRange
	}
	return c, nil
}
