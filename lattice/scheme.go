// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/big"
	"math/bits"
	"sync"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// SchemeName identifies the lattice scheme in logs and wire envelopes.
const SchemeName = "rlwe_additive"

// Scheme encrypts packed integers under an RLWE secret key and supports
// ciphertext addition and scalar multiplication.
type Scheme struct {
	params Parameters
	ringQ  *ring.Ring
	delta  uint64

	// rlwe encryptors and decryptors keep internal buffers.
	mu        sync.Mutex
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
}

// NewScheme creates a scheme from parameters and a secret key.
func NewScheme(params Parameters, sk *SecretKey) *Scheme {
	return &Scheme{
		params:    params,
		ringQ:     params.params.RingQ(),
		delta:     params.Delta(),
		encryptor: rlwe.NewEncryptor(params.params, sk.SecretKey),
		decryptor: rlwe.NewDecryptor(params.params, sk.SecretKey),
	}
}

// Parameters returns the scheme parameters.
func (s *Scheme) Parameters() Parameters { return s.params }

func (s *Scheme) Name() string { return SchemeName }

// MaxPlaintext returns T - 1.
func (s *Scheme) MaxPlaintext() *big.Int {
	return new(big.Int).SetUint64(s.params.T() - 1)
}

func (s *Scheme) Encrypt(m *big.Int) (any, error) {
	if m.Sign() < 0 || !m.IsUint64() || m.Uint64() >= s.params.T() {
		return nil, ErrPlaintextRange
	}

	p := s.params.params
	pt := rlwe.NewPlaintext(p, p.MaxLevel())
	pt.Value.Coeffs[0][0] = m.Uint64() * s.delta
	s.ringQ.NTT(pt.Value, pt.Value)

	ct := rlwe.NewCiphertext(p, 1, p.MaxLevel())

	s.mu.Lock()
	err := s.encryptor.Encrypt(pt, ct)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rlwe encrypt: %w", err)
	}
	return ct, nil
}

func (s *Scheme) Decrypt(ct any) (*big.Int, error) {
	c, err := ciphertext(ct)
	if err != nil {
		return nil, err
	}

	pt := rlwe.NewPlaintext(s.params.params, c.Level())
	s.mu.Lock()
	s.decryptor.Decrypt(c, pt)
	s.mu.Unlock()

	if pt.IsNTT {
		s.ringQ.INTT(pt.Value, pt.Value)
	}

	return new(big.Int).SetUint64(s.decode(pt.Value.Coeffs[0][0])), nil
}

// decode computes round(c*T/Q) mod T.
func (s *Scheme) decode(c uint64) uint64 {
	q := s.params.Q()
	t := s.params.T()
	hi, lo := bits.Mul64(c, t)
	lo, carry := bits.Add64(lo, q>>1, 0)
	hi += carry
	quo, _ := bits.Div64(hi, lo, q)
	return quo & (t - 1)
}

// Add adds two ciphertexts element-wise.
func (s *Scheme) Add(a, b any) (any, error) {
	ca, err := ciphertext(a)
	if err != nil {
		return nil, err
	}
	cb, err := ciphertext(b)
	if err != nil {
		return nil, err
	}

	result := rlwe.NewCiphertext(s.params.params, 1, ca.Level())

	s.ringQ.Add(ca.Value[0], cb.Value[0], result.Value[0])
	s.ringQ.Add(ca.Value[1], cb.Value[1], result.Value[1])

	result.IsNTT = ca.IsNTT

	return result, nil
}

// ScalarMultiply multiplies every coefficient by k modulo Q. The map is
// linear, so it is valid in both coefficient and NTT representation.
func (s *Scheme) ScalarMultiply(ct any, k *big.Int) (any, error) {
	c, err := ciphertext(ct)
	if err != nil {
		return nil, err
	}
	if k.Sign() < 0 || !k.IsUint64() || k.Uint64() >= s.params.T() {
		return nil, ErrScalarRange
	}

	q := s.params.Q()
	scalar := k.Uint64()
	result := c.CopyNew()
	for j := 0; j < 2; j++ {
		coeffs := result.Value[j].Coeffs[0]
		for i, v := range coeffs {
			hi, lo := bits.Mul64(v, scalar)
			coeffs[i] = bits.Rem64(hi, lo, q)
		}
	}
	return result, nil
}

// MarshalCiphertext serializes a ciphertext with gob.
func (s *Scheme) MarshalCiphertext(ct any) ([]byte, error) {
	c, err := ciphertext(ct)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode ciphertext: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalCiphertext deserializes a ciphertext written by MarshalCiphertext.
func (s *Scheme) UnmarshalCiphertext(data []byte) (any, error) {
	ct := new(rlwe.Ciphertext)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(ct); err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return ct, nil
}

func ciphertext(ct any) (*rlwe.Ciphertext, error) {
	c, ok := ct.(*rlwe.Ciphertext)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotCiphertext, ct)
	}
	return c, nil
}
