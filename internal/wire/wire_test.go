package wire

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/packer"
	"github.com/luxfi/packer/paillier"
)

func newPacker(t *testing.T, bounds ...uint64) *packer.IntegerPacker {
	t.Helper()
	sk, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	p, err := packer.New(packer.FieldsFromUint64(bounds...), paillier.NewScheme(sk))
	require.NoError(t, err)
	return p
}

func records(rows ...[]int64) [][]*big.Int {
	out := make([][]*big.Int, len(rows))
	for i, row := range rows {
		out[i] = make([]*big.Int, len(row))
		for j, v := range row {
			out[i][j] = big.NewInt(v)
		}
	}
	return out
}

func decimal(recs [][]*big.Int) [][]string {
	out := make([][]string, len(recs))
	for i, r := range recs {
		out[i] = make([]string, len(r))
		for j, v := range r {
			out[i][j] = v.String()
		}
	}
	return out
}

func encryptAll(t *testing.T, p *packer.IntegerPacker, recs [][]*big.Int) []packer.CipherTensor {
	t.Helper()
	out := make([]packer.CipherTensor, len(recs))
	for i, r := range recs {
		ct, err := p.PackAndEncrypt(r)
		require.NoError(t, err)
		out[i] = ct
	}
	return out
}

func TestRecordsRoundTrip(t *testing.T) {
	in := records([]int64{1, 2, 3}, []int64{0, 999, 1000})
	data, err := EncodeRecords(in)
	require.NoError(t, err)

	out, err := DecodeRecords(data)
	require.NoError(t, err)
	assert.Equal(t, decimal(in), decimal(out))
}

func TestDecodeRecordsRejects(t *testing.T) {
	_, err := DecodeRecords([]byte(`{"version":2,"kind":"records"}`))
	assert.ErrorIs(t, err, ErrVersion)

	_, err = DecodeRecords([]byte(`{"version":1,"kind":"tensors"}`))
	assert.ErrorIs(t, err, ErrKind)

	_, err = DecodeRecords([]byte(`{"version":1,"kind":"records","records":[[1,null]]}`))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte(`not json`))
	assert.Error(t, err)
}

func TestTensorsRoundTrip(t *testing.T) {
	p := newPacker(t, 1000, 1000, 255)
	in := records([]int64{5, 6, 7}, []int64{1000, 0, 255})

	data, err := EncodeTensors(p, encryptAll(t, p, in))
	require.NoError(t, err)

	tensors, err := DecodeTensors(p, data)
	require.NoError(t, err)
	require.Len(t, tensors, 2)

	items := make([]packer.Decryptable, len(tensors))
	for i, ct := range tensors {
		items[i] = ct
	}
	out, err := p.DecryptAndUnpack(items...)
	require.NoError(t, err)
	assert.Equal(t, decimal(in), decimal(out))
}

func TestPackagesRoundTrip(t *testing.T) {
	p := newPacker(t, 1000, 1000, 1000, 1000)
	require.True(t, p.CompressionPlan().Enabled())

	var rows [][]int64
	for i := int64(0); i < 9; i++ {
		rows = append(rows, []int64{i, 10 * i, 100 * i, 1000})
	}
	in := records(rows...)

	pkgs, err := p.Compress(encryptAll(t, p, in))
	require.NoError(t, err)

	data, err := EncodePackages(p, pkgs)
	require.NoError(t, err)

	decoded, err := DecodePackages(p, data)
	require.NoError(t, err)
	require.Len(t, decoded, len(pkgs))

	items, err := DecodeDecryptables(p, data)
	require.NoError(t, err)

	out, err := p.DecryptAndUnpack(items...)
	require.NoError(t, err)
	assert.Equal(t, decimal(in), decimal(out))
}

func TestEncodeUnsealedPackage(t *testing.T) {
	p := newPacker(t, 1000)
	pkg := p.NewPackage()
	require.NoError(t, pkg.Add(encryptAll(t, p, records([]int64{3}))[0]))

	_, err := EncodePackages(p, []*packer.CipherPackage{pkg})
	assert.ErrorIs(t, err, ErrUnsealedPackage)
}

func TestFingerprintMismatch(t *testing.T) {
	p := newPacker(t, 1000, 1000)
	data, err := EncodeTensors(p, encryptAll(t, p, records([]int64{1, 2})))
	require.NoError(t, err)

	other, err := packer.New(packer.FieldsFromUint64(255, 255), p.Scheme())
	require.NoError(t, err)

	_, err = DecodeTensors(other, data)
	assert.ErrorIs(t, err, ErrFingerprint)
}

func TestSchemeMismatch(t *testing.T) {
	p := newPacker(t, 1000)
	data, err := EncodeTensors(p, encryptAll(t, p, records([]int64{1})))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Scheme = "rot13"
	data, err = json.Marshal(env)
	require.NoError(t, err)

	_, err = DecodeDecryptables(p, data)
	assert.ErrorIs(t, err, ErrSchemeMismatch)
}

func TestDecodeDecryptablesRejectsRecords(t *testing.T) {
	p := newPacker(t, 1000)
	env := Envelope{Version: Version, Kind: KindRecords, Scheme: p.Scheme().Name(), Fingerprint: p.Fingerprint()}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = DecodeDecryptables(p, data)
	assert.ErrorIs(t, err, ErrKind)
}
