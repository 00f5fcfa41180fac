// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package paillier implements the Paillier additive homomorphic public-key
// scheme over math/big, with the capabilities the packer needs to merge
// ciphertexts: ciphertext addition and multiplication by a plaintext constant.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Common errors.
var (
	ErrKeySize         = errors.New("paillier: key size too small")
	ErrPlaintextRange  = errors.New("paillier: plaintext out of range")
	ErrCiphertextRange = errors.New("paillier: ciphertext out of range")
	ErrNoPrivateKey    = errors.New("paillier: private key required")
	ErrNotCiphertext   = errors.New("paillier: not a paillier ciphertext")
)

// MinKeyBits is the smallest modulus size accepted by GenerateKey.
const MinKeyBits = 128

var one = big.NewInt(1)

// PublicKey is a Paillier public key with generator g = n + 1.
type PublicKey struct {
	N       *big.Int
	NSquare *big.Int
	// MaxInt is the largest positive plaintext treated as non-negative.
	// Plaintexts in (MaxInt, N) are reserved for negative numbers.
	MaxInt *big.Int
}

// NewPublicKey derives the public key for modulus n.
func NewPublicKey(n *big.Int) *PublicKey {
	maxInt := new(big.Int).Div(n, big.NewInt(3))
	maxInt.Sub(maxInt, one)
	return &PublicKey{
		N:       new(big.Int).Set(n),
		NSquare: new(big.Int).Mul(n, n),
		MaxInt:  maxInt,
	}
}

// PrivateKey holds lambda = lcm(p-1, q-1) and mu = lambda^-1 mod n.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int
}

// GenerateKey creates a key pair with an n of the given bit size.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d < %d", ErrKeySize, bits, MinKeyBits)
	}
	if random == nil {
		random = rand.Reader
	}

	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate p: %w", err)
		}
		q, err := rand.Prime(random, bits-bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate q: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
		lambda := new(big.Int).Mul(pm1, qm1)
		lambda.Div(lambda, gcd)

		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}

		return &PrivateKey{
			PublicKey: *NewPublicKey(n),
			Lambda:    lambda,
			Mu:        mu,
		}, nil
	}
}

// Encrypt computes (1 + m*n) * r^n mod n^2 for a random r in Z*_n.
func (pk *PublicKey) Encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, ErrPlaintextRange
	}
	if random == nil {
		random = rand.Reader
	}

	r, err := pk.randomUnit(random)
	if err != nil {
		return nil, err
	}

	gm := new(big.Int).Mul(m, pk.N)
	gm.Add(gm, one)
	gm.Mod(gm, pk.NSquare)

	rn := new(big.Int).Exp(r, pk.N, pk.NSquare)
	return gm.Mul(gm, rn).Mod(gm, pk.NSquare), nil
}

func (pk *PublicKey) randomUnit(random io.Reader) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pk.N)
		if err != nil {
			return nil, fmt.Errorf("sample randomness: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// Add returns a ciphertext of the sum of the plaintexts of a and b.
func (pk *PublicKey) Add(a, b *big.Int) *big.Int {
	c := new(big.Int).Mul(a, b)
	return c.Mod(c, pk.NSquare)
}

// MulConst returns a ciphertext of k times the plaintext of c.
func (pk *PublicKey) MulConst(c, k *big.Int) *big.Int {
	return new(big.Int).Exp(c, k, pk.NSquare)
}

// Decrypt computes L(c^lambda mod n^2) * mu mod n, with L(x) = (x-1)/n.
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if c.Sign() <= 0 || c.Cmp(sk.NSquare) >= 0 {
		return nil, ErrCiphertextRange
	}
	x := new(big.Int).Exp(c, sk.Lambda, sk.NSquare)
	x.Sub(x, one)
	x.Div(x, sk.N)
	x.Mul(x, sk.Mu)
	return x.Mod(x, sk.N), nil
}
