// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package affine implements an iterative affine cipher: the plaintext is
// multiplied by a secret unit modulo each of an increasing chain of moduli.
//
// The scheme offers no ciphertext-domain scalar multiplication, so packers
// built on it never merge ciphertexts.
package affine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Common errors.
var (
	ErrKeySize         = errors.New("affine: key size too small")
	ErrRounds          = errors.New("affine: at least one round required")
	ErrPlaintextRange  = errors.New("affine: plaintext out of range")
	ErrCiphertextRange = errors.New("affine: ciphertext out of range")
	ErrNotCiphertext   = errors.New("affine: not an affine ciphertext")
)

// SchemeName identifies the iterative affine scheme in logs and wire envelopes.
const SchemeName = "iterative_affine"

// MinKeyBits is the smallest first-round modulus accepted by GenerateKey.
const MinKeyBits = 64

// DefaultRounds is the number of affine rounds used when none is given.
const DefaultRounds = 5

// roundGrowthBits is how much larger each round's modulus is than the last.
const roundGrowthBits = 8

// Key holds the modulus chain and the per-round multipliers and inverses.
type Key struct {
	N    []*big.Int
	A    []*big.Int
	AInv []*big.Int
}

// GenerateKey creates a key whose first modulus has bits bits.
func GenerateKey(random io.Reader, bits, rounds int) (*Key, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d < %d", ErrKeySize, bits, MinKeyBits)
	}
	if rounds < 1 {
		return nil, ErrRounds
	}
	if random == nil {
		random = rand.Reader
	}

	k := &Key{
		N:    make([]*big.Int, rounds),
		A:    make([]*big.Int, rounds),
		AInv: make([]*big.Int, rounds),
	}
	for i := 0; i < rounds; i++ {
		n, err := randomModulus(random, bits+i*roundGrowthBits)
		if err != nil {
			return nil, err
		}
		a, inv, err := randomUnit(random, n)
		if err != nil {
			return nil, err
		}
		k.N[i], k.A[i], k.AInv[i] = n, a, inv
	}
	return k, nil
}

// randomModulus returns a random odd integer with exactly bits bits.
func randomModulus(random io.Reader, bits int) (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	n, err := rand.Int(random, limit)
	if err != nil {
		return nil, fmt.Errorf("sample modulus: %w", err)
	}
	n.Add(n, limit)
	n.SetBit(n, 0, 1)
	return n, nil
}

func randomUnit(random io.Reader, n *big.Int) (a, inv *big.Int, err error) {
	two := big.NewInt(2)
	span := new(big.Int).Sub(n, two)
	for {
		a, err = rand.Int(random, span)
		if err != nil {
			return nil, nil, fmt.Errorf("sample multiplier: %w", err)
		}
		a.Add(a, two)
		if inv = new(big.Int).ModInverse(a, n); inv != nil {
			return a, inv, nil
		}
	}
}

// MaxPlaintext is floor(0.9 * N[0]) - 1. The remaining tenth of the first
// modulus is reserved for negative numbers.
func (k *Key) MaxPlaintext() *big.Int {
	m := new(big.Int).Mul(k.N[0], big.NewInt(9))
	m.Quo(m, big.NewInt(10))
	return m.Sub(m, big.NewInt(1))
}

// Encrypt applies every round in order.
func (k *Key) Encrypt(m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(k.N[0]) >= 0 {
		return nil, ErrPlaintextRange
	}
	c := new(big.Int).Set(m)
	for i := range k.N {
		c.Mul(c, k.A[i])
		c.Mod(c, k.N[i])
	}
	return c, nil
}

// Decrypt undoes the rounds in reverse order.
func (k *Key) Decrypt(c *big.Int) (*big.Int, error) {
	last := k.N[len(k.N)-1]
	if c.Sign() < 0 || c.Cmp(last) >= 0 {
		return nil, ErrCiphertextRange
	}
	m := new(big.Int).Set(c)
	for i := len(k.N) - 1; i >= 0; i-- {
		m.Mul(m, k.AInv[i])
		m.Mod(m, k.N[i])
	}
	return m, nil
}
