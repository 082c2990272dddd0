package callback

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(s string) *string {
	return &s
}

func TestSigner_Configured(t *testing.T) {
	tests := []struct {
		secret   string
		expected bool
	}{
		{"", false},
		{"replace_me", false},
		{"changeme", false},
		{"secret", false},
		{" replace_me ", false},
		{"s3cr3t-value", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NewSigner(tt.secret, true).Configured(), tt.secret)
	}
}

func TestSigner_HMAC(t *testing.T) {
	s := NewSigner("shared-secret", true)
	body := []byte(`{"result":"approved","gateway_token":"g-1","logs":[],"requisites":null}`)

	sig := s.SignHMAC(body)
	_, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.True(t, s.VerifyHMAC(body, sig))
	assert.False(t, s.VerifyHMAC([]byte(`{"result":"declined"}`), sig))
	assert.False(t, NewSigner("other", true).VerifyHMAC(body, sig))
}

func TestSigner_SecureBlock(t *testing.T) {
	block := SecureBlock{Status: "approved", Amount: int64Ptr(1000), Currency: strPtr("RUB")}

	t.Run("legacy iv matches fixed zero-character iv", func(t *testing.T) {
		secret := "shared-secret"
		s := NewSigner(secret, true)

		encoded, err := s.EncryptSecure(block)
		require.NoError(t, err)

		// Decrypt independently with the zero-padded key and ASCII '0' IV.
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		key := make([]byte, 32)
		copy(key, secret)
		c, err := aes.NewCipher(key)
		require.NoError(t, err)
		plain := make([]byte, len(raw))
		cipher.NewCBCDecrypter(c, []byte("0000000000000000")).CryptBlocks(plain, raw)
		pad := int(plain[len(plain)-1])
		plain = plain[:len(plain)-pad]

		var got SecureBlock
		require.NoError(t, json.Unmarshal(plain, &got))
		assert.Equal(t, block, got)
	})

	t.Run("legacy iv is deterministic", func(t *testing.T) {
		s := NewSigner("k", true)
		a, err := s.EncryptSecure(block)
		require.NoError(t, err)
		b, err := s.EncryptSecure(block)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("random iv round trips and differs per call", func(t *testing.T) {
		s := NewSigner("k", false)
		a, err := s.EncryptSecure(block)
		require.NoError(t, err)
		b, err := s.EncryptSecure(block)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)

		got, err := s.DecryptSecure(a)
		require.NoError(t, err)
		assert.Equal(t, block, *got)
	})

	t.Run("long secret is truncated to 32 bytes", func(t *testing.T) {
		long := "0123456789abcdef0123456789abcdef-extra"
		encoded, err := NewSigner(long, true).EncryptSecure(block)
		require.NoError(t, err)

		got, err := NewSigner(long[:32], true).DecryptSecure(encoded)
		require.NoError(t, err)
		assert.Equal(t, "approved", got.Status)
	})

	t.Run("wrong secret fails to decrypt", func(t *testing.T) {
		encoded, err := NewSigner("right", true).EncryptSecure(block)
		require.NoError(t, err)
		_, err = NewSigner("wrong", true).DecryptSecure(encoded)
		assert.Error(t, err)
	})
}

func TestSigner_JWT(t *testing.T) {
	s := NewSigner("shared-secret", true)
	tx := &Transaction{
		Token:        "tok-1",
		GatewayToken: strPtr("g-1"),
		Status:       "approved",
		Currency:     strPtr("RUB"),
		Amount:       int64Ptr(1000),
		Secure:       "c2VjdXJl",
	}

	token, err := s.SignJWT(tx)
	require.NoError(t, err)

	claims, err := s.ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", claims["token"])
	assert.Equal(t, "g-1", claims["gateway_token"])
	assert.Equal(t, "approved", claims["status"])
	assert.Equal(t, float64(1000), claims["amount"])
	assert.Equal(t, "c2VjdXJl", claims["secure"])

	_, err = NewSigner("other", true).ParseJWT(token)
	assert.Error(t, err)
}
