// Package lattice implements an additive RLWE scheme over luxfi/lattice for
// packing integers: a plaintext m in [0, 2^LogT) is encoded as m*floor(Q/2^LogT)
// in the constant coefficient, so ciphertext addition and multiplication by a
// small constant act directly on the packed integer.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package lattice

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Common errors.
var (
	ErrPlaintextModulus = errors.New("lattice: plaintext modulus does not fit ciphertext modulus")
	ErrModulus          = errors.New("lattice: ciphertext modulus is not an NTT-friendly prime")
	ErrRingDegree       = errors.New("lattice: ring degree out of range")
	ErrPlaintextRange   = errors.New("lattice: plaintext out of range")
	ErrScalarRange      = errors.New("lattice: scalar out of range")
	ErrNotCiphertext    = errors.New("lattice: not an rlwe ciphertext")
)

// noiseMarginBits is the headroom kept between the largest merge scalar times
// fresh noise and half the encoding step.
const noiseMarginBits = 8

// Supported ring degrees, as log2(N).
const (
	MinLogN = 10
	MaxLogN = 16
)

// ParametersLiteral is a user-friendly parameter specification.
type ParametersLiteral struct {
	// LogN is log2 of the ring dimension.
	LogN int
	// Q is the NTT-friendly ciphertext modulus.
	Q uint64
	// LogT is log2 of the plaintext modulus.
	LogT int
}

// DefaultQ is a 54-bit prime with Q = 1 mod 2^17, so it is NTT-friendly for
// every ring degree up to 2^MaxLogN and leaves room for LogT up to 23.
const DefaultQ uint64 = 0x3fffffffd60001

// Standard parameter sets
var (
	// PN11QP54T20 packs up to 19 usable bits per ciphertext.
	// N=2048, Q=DefaultQ (54 bits), T=2^20
	PN11QP54T20 = ParametersLiteral{
		LogN: 11,
		Q:    DefaultQ,
		LogT: 20,
	}

	// PN10QP27T8 is a small set for tests and demos: 7 usable bits.
	// N=1024, Q=134215681, T=2^8
	PN10QP27T8 = ParametersLiteral{
		LogN: 10,
		Q:    0x7fff801,
		LogT: 8,
	}
)

// Parameters defines the scheme parameter set.
type Parameters struct {
	params rlwe.Parameters
	logT   int
}

// Validate reports whether lit describes a usable parameter set. Q must be a
// prime with Q = 1 mod 2N and wide enough for LogT plus the noise margin.
func (lit ParametersLiteral) Validate() error {
	if lit.LogN < MinLogN || lit.LogN > MaxLogN {
		return fmt.Errorf("%w: LogN=%d, want %d..%d", ErrRingDegree, lit.LogN, MinLogN, MaxLogN)
	}
	twoN := uint64(2) << lit.LogN
	if lit.Q < 3 || lit.Q%twoN != 1 || !new(big.Int).SetUint64(lit.Q).ProbablyPrime(20) {
		return fmt.Errorf("%w: Q=%#x, LogN=%d", ErrModulus, lit.Q, lit.LogN)
	}
	qBits := bits.Len64(lit.Q)
	if lit.LogT < 2 || 2*lit.LogT+noiseMarginBits > qBits {
		return fmt.Errorf("%w: LogT=%d, Q has %d bits", ErrPlaintextModulus, lit.LogT, qBits)
	}
	return nil
}

// NewParametersFromLiteral creates Parameters from a literal specification.
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	if err := lit.Validate(); err != nil {
		return Parameters{}, err
	}

	params, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return Parameters{}, fmt.Errorf("rlwe parameters: %w", err)
	}

	return Parameters{params: params, logT: lit.LogT}, nil
}

// N returns the ring dimension.
func (p Parameters) N() int {
	return p.params.N()
}

// Q returns the ciphertext modulus.
func (p Parameters) Q() uint64 {
	return p.params.Q()[0]
}

// LogT returns log2 of the plaintext modulus.
func (p Parameters) LogT() int {
	return p.logT
}

// T returns the plaintext modulus.
func (p Parameters) T() uint64 {
	return uint64(1) << p.logT
}

// Delta returns the encoding step floor(Q/T).
func (p Parameters) Delta() uint64 {
	return p.Q() / p.T()
}

// SecretKey is the RLWE secret key used for both encryption and decryption.
type SecretKey struct {
	*rlwe.SecretKey
}

// GenSecretKey generates a new secret key.
func GenSecretKey(params Parameters) *SecretKey {
	kgen := rlwe.NewKeyGenerator(params.params)
	return &SecretKey{kgen.GenSecretKeyNew()}
}
