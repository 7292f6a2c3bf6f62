package cert

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRecord(t *testing.T, sig SignatureType, key PublicKeyType, issuer, name string) []byte {
	t.Helper()

	b := make([]byte, 0, MaxSize)
	b = append(b, byte(sig>>24), byte(sig>>16), byte(sig>>8), byte(sig))
	b = append(b, make([]byte, sig.blockSize()-4)...)

	var issuerBuf [issuerLen]byte
	copy(issuerBuf[:], issuer)
	b = append(b, issuerBuf[:]...)

	b = append(b, byte(key>>24), byte(key>>16), byte(key>>8), byte(key))

	var nameBuf [nameLen]byte
	copy(nameBuf[:], name)
	b = append(b, nameBuf[:]...)
	b = append(b, 0, 0, 0, 0) // certificate id

	b = append(b, make([]byte, key.blockSize())...)
	return b
}

func TestParse(t *testing.T) {
	tests := []struct {
		sig SignatureType
		key PublicKeyType
	}{
		{SigRsa4096Sha256, KeyRsa4096},
		{SigRsa2048Sha1, KeyRsa2048},
		{SigRsa2048Sha256, KeyEcdsa240},
		{SigEcdsa240Sha256, KeyRsa2048},
	}
	for _, tt := range tests {
		rec := buildRecord(t, tt.sig, tt.key, "Root-CA00000003", "XS00000020")

		c, err := Parse(rec)
		require.NoError(t, err, "%s/%s", tt.sig, tt.key)
		assert.Equal(t, tt.sig, c.SignatureType)
		assert.Equal(t, tt.key, c.PublicKeyType)
		assert.Equal(t, "Root-CA00000003", c.Issuer)
		assert.Equal(t, "XS00000020", c.Name)
		assert.Len(t, c.Signature, tt.sig.sigSize())
		assert.Len(t, c.PublicKey, tt.key.keySize())
	}
}

func TestParseRejectsBadSizes(t *testing.T) {
	_, err := Parse(make([]byte, MinSize-1))
	assert.Error(t, err)
	_, err = Parse(make([]byte, MaxSize+1))
	assert.Error(t, err)
}

func TestParseRejectsUnknownSignatureType(t *testing.T) {
	rec := buildRecord(t, SigRsa2048Sha256, KeyRsa2048, "Root", "CA")
	rec[3] = 0xFF

	_, err := Parse(rec)
	assert.Error(t, err)
}

func TestParseRejectsSizeMismatch(t *testing.T) {
	rec := buildRecord(t, SigRsa2048Sha256, KeyRsa2048, "Root", "CA")
	// A truncated key block no longer walks exactly to the end.
	_, err := Parse(rec[:len(rec)-8])
	assert.Error(t, err)
}

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(fstest.MapFS{
		"CA00000003": {Data: buildRecord(t, SigRsa4096Sha256, KeyRsa2048, "Root", "CA00000003")},
		"XS00000020": {Data: buildRecord(t, SigRsa2048Sha256, KeyRsa2048, "Root-CA00000003", "XS00000020")},
	})
}

func TestStoreCertificate(t *testing.T) {
	s := testStore(t)

	c, err := s.Certificate("CA00000003")
	require.NoError(t, err)
	assert.Equal(t, "CA00000003", c.Name)

	_, err = s.Certificate("CA00000099")
	assert.Error(t, err)
	_, err = s.Certificate("")
	assert.Error(t, err)
}

func TestStoreChain(t *testing.T) {
	s := testStore(t)

	chain, err := s.Chain("Root-CA00000003-XS00000020")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "CA00000003", chain[0].Name)
	assert.Equal(t, "XS00000020", chain[1].Name)

	raw := chain.Raw()
	assert.Len(t, raw, len(chain[0].Raw)+len(chain[1].Raw))
	assert.Equal(t, chain[0].Raw, raw[:len(chain[0].Raw)])
}

func TestStoreChainInvalidIssuer(t *testing.T) {
	s := testStore(t)

	_, err := s.Chain("CA00000003")
	assert.Error(t, err)
	_, err = s.Chain("Root-")
	assert.Error(t, err)
	_, err = s.Chain("Root-CA00000003-XS00000099")
	assert.Error(t, err)
}
