// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package paillier

import (
	"fmt"
	"io"
	"math/big"
)

// SchemeName identifies Paillier in logs and wire envelopes.
const SchemeName = "paillier"

// Scheme adapts a Paillier key pair to the packer's scheme capabilities.
// Without a private key it can encrypt and merge but not decrypt.
type Scheme struct {
	pk     *PublicKey
	sk     *PrivateKey
	random io.Reader
}

// NewScheme returns a scheme that can encrypt, merge and decrypt.
func NewScheme(sk *PrivateKey) *Scheme {
	return &Scheme{pk: &sk.PublicKey, sk: sk}
}

// NewPublicScheme returns a scheme for a party holding only the public key.
func NewPublicScheme(pk *PublicKey) *Scheme {
	return &Scheme{pk: pk}
}

// WithRandom sets the randomness source used for encryption.
func (s *Scheme) WithRandom(r io.Reader) *Scheme {
	s.random = r
	return s
}

// PublicKey returns the scheme's public key.
func (s *Scheme) PublicKey() *PublicKey { return s.pk }

func (s *Scheme) Name() string { return SchemeName }

// MaxPlaintext returns public_key.max_int.
func (s *Scheme) MaxPlaintext() *big.Int { return new(big.Int).Set(s.pk.MaxInt) }

func (s *Scheme) Encrypt(m *big.Int) (any, error) {
	return s.pk.Encrypt(s.random, m)
}

func (s *Scheme) Decrypt(ct any) (*big.Int, error) {
	if s.sk == nil {
		return nil, ErrNoPrivateKey
	}
	c, err := cipher(ct)
	if err != nil {
		return nil, err
	}
	return s.sk.Decrypt(c)
}

func (s *Scheme) Add(a, b any) (any, error) {
	ca, err := cipher(a)
	if err != nil {
		return nil, err
	}
	cb, err := cipher(b)
	if err != nil {
		return nil, err
	}
	return s.pk.Add(ca, cb), nil
}

func (s *Scheme) ScalarMultiply(ct any, k *big.Int) (any, error) {
	c, err := cipher(ct)
	if err != nil {
		return nil, err
	}
	if k.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative scalar", ErrPlaintextRange)
	}
	return s.pk.MulConst(c, k), nil
}

// MarshalCiphertext writes the ciphertext as a big-endian integer.
func (s *Scheme) MarshalCiphertext(ct any) ([]byte, error) {
	c, err := cipher(ct)
	if err != nil {
		return nil, err
	}
	return c.Bytes(), nil
}

func (s *Scheme) UnmarshalCiphertext(data []byte) (any, error) {
	c := new(big.Int).SetBytes(data)
	if c.Sign() == 0 || c.Cmp(s.pk.NSquare) >= 0 {
		return nil, ErrCiphertextRange
	}
	return c, nil
}

func cipher(ct any) (*big.Int, error) {
	c, ok := ct.(*big.Int)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotCiphertext, ct)
	}
	return c, nil
}
