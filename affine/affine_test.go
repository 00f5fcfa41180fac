// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package affine

import (
	"crypto/rand"
	"errors"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/luxfi/packer"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	k, err := GenerateKey(rand.Reader, 128, DefaultRounds)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func TestGenerateKey(t *testing.T) {
	k := testKey(t)
	if len(k.N) != DefaultRounds {
		t.Fatalf("got %d rounds, want %d", len(k.N), DefaultRounds)
	}
	for i := range k.N {
		if want := 128 + i*roundGrowthBits; k.N[i].BitLen() != want {
			t.Errorf("round %d modulus has %d bits, want %d", i, k.N[i].BitLen(), want)
		}
		check := new(big.Int).Mul(k.A[i], k.AInv[i])
		if check.Mod(check, k.N[i]).Cmp(big.NewInt(1)) != 0 {
			t.Errorf("round %d: AInv is not the inverse of A", i)
		}
	}

	if _, err := GenerateKey(rand.Reader, 32, 1); !errors.Is(err, ErrKeySize) {
		t.Errorf("small key: got %v", err)
	}
	if _, err := GenerateKey(rand.Reader, 128, 0); !errors.Is(err, ErrRounds) {
		t.Errorf("zero rounds: got %v", err)
	}
}

func TestMaxPlaintext(t *testing.T) {
	k := testKey(t)
	want := new(big.Int).Mul(k.N[0], big.NewInt(9))
	want.Div(want, big.NewInt(10))
	want.Sub(want, big.NewInt(1))
	if got := k.MaxPlaintext(); got.Cmp(want) != 0 {
		t.Errorf("MaxPlaintext = %s, want %s", got, want)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	k := testKey(t)
	rng := mrand.New(mrand.NewSource(9))

	values := []*big.Int{big.NewInt(0), big.NewInt(1), k.MaxPlaintext()}
	for i := 0; i < 50; i++ {
		values = append(values, new(big.Int).Rand(rng, k.MaxPlaintext()))
	}
	for _, m := range values {
		c, err := k.Encrypt(m)
		if err != nil {
			t.Fatalf("Encrypt(%s): %v", m, err)
		}
		got, err := k.Decrypt(c)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got.Cmp(m) != 0 {
			t.Fatalf("Decrypt(Encrypt(%s)) = %s", m, got)
		}
	}

	if _, err := k.Encrypt(big.NewInt(-1)); !errors.Is(err, ErrPlaintextRange) {
		t.Errorf("Encrypt(-1): got %v", err)
	}
	if _, err := k.Decrypt(k.N[len(k.N)-1]); !errors.Is(err, ErrCiphertextRange) {
		t.Errorf("Decrypt(N_last): got %v", err)
	}
}

func TestSchemeHasNoHomomorphism(t *testing.T) {
	s := NewScheme(testKey(t))
	if packer.SupportsMerge(s) {
		t.Fatal("affine scheme must not advertise merging")
	}

	p, err := packer.New(packer.FieldsFromUint64(1000, 1000, 255), s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.CompressionPlan(); got != packer.NoCompression {
		t.Errorf("CompressionPlan = %v, want %v", got, packer.NoCompression)
	}

	rec := []*big.Int{big.NewInt(1), big.NewInt(999), big.NewInt(200)}
	ct, err := p.PackAndEncrypt(rec)
	if err != nil {
		t.Fatalf("PackAndEncrypt: %v", err)
	}
	pkgs, err := p.Compress([]packer.CipherTensor{ct, ct})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want one per record", len(pkgs))
	}
	got, err := p.DecryptAndUnpack(pkgs[0], pkgs[1])
	if err != nil {
		t.Fatalf("DecryptAndUnpack: %v", err)
	}
	for _, r := range got {
		for j := range rec {
			if r[j].Cmp(rec[j]) != 0 {
				t.Errorf("field %d: got %s, want %s", j, r[j], rec[j])
			}
		}
	}
}

func TestCiphertextCodec(t *testing.T) {
	s := NewScheme(testKey(t))
	ct, _ := s.Encrypt(big.NewInt(31337))

	data, err := s.MarshalCiphertext(ct)
	if err != nil {
		t.Fatalf("MarshalCiphertext: %v", err)
	}
	back, err := s.UnmarshalCiphertext(data)
	if err != nil {
		t.Fatalf("UnmarshalCiphertext: %v", err)
	}
	if got, _ := s.Decrypt(back); got.Int64() != 31337 {
		t.Errorf("got %s, want 31337", got)
	}
	last := s.key.N[len(s.key.N)-1]
	if _, err := s.UnmarshalCiphertext(last.Bytes()); !errors.Is(err, ErrCiphertextRange) {
		t.Errorf("UnmarshalCiphertext(N_last): got %v", err)
	}
	below := new(big.Int).Sub(last, big.NewInt(1))
	if _, err := s.UnmarshalCiphertext(below.Bytes()); err != nil {
		t.Errorf("UnmarshalCiphertext(N_last-1): %v", err)
	}
	if _, err := s.MarshalCiphertext(42); !errors.Is(err, ErrNotCiphertext) {
		t.Errorf("MarshalCiphertext(int): got %v", err)
	}
}
