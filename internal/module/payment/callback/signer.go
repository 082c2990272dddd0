package callback

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the scheme B body signature.
const SignatureHeader = "X-RP-Signature"

const aesKeySize = 32

// legacyIV is the fixed IV the existing platform consumer decrypts with.
var legacyIV = []byte("0000000000000000")

// placeholderSecrets are shipped defaults that must never sign anything.
var placeholderSecrets = map[string]bool{
	"":           true,
	"replace_me": true,
	"changeme":   true,
	"secret":     true,
}

// ErrInvalidSecureBlock is returned when a secure block cannot be decrypted.
var ErrInvalidSecureBlock = errors.New("invalid secure block")

// Signer signs outbound platform callbacks with the shared secret.
type Signer struct {
	secret   string
	legacyIV bool
}

// NewSigner creates a signer. legacyIV keeps the fixed all-'0' IV of the
// secure block; otherwise a random IV is prepended to the ciphertext.
func NewSigner(secret string, legacyIV bool) *Signer {
	return &Signer{secret: secret, legacyIV: legacyIV}
}

// Configured reports whether the secret is set to something other than a placeholder.
func (s *Signer) Configured() bool {
	return !placeholderSecrets[strings.TrimSpace(s.secret)]
}

// SignHMAC returns base64(HMAC-SHA256(secret, body)).
func (s *Signer) SignHMAC(body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a scheme B signature in constant time.
func (s *Signer) VerifyHMAC(body []byte, signature string) bool {
	expected := s.SignHMAC(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// EncryptSecure returns base64(AES-256-CBC(JSON(block))) with PKCS#7 padding.
func (s *Signer) EncryptSecure(block SecureBlock) (string, error) {
	plain, err := json.Marshal(block)
	if err != nil {
		return "", fmt.Errorf("marshal secure block: %w", err)
	}

	c, err := aes.NewCipher(aesKey(s.secret))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := legacyIV
	if !s.legacyIV {
		iv = make([]byte, aes.BlockSize)
		if _, err := rand.Read(iv); err != nil {
			return "", fmt.Errorf("generate iv: %w", err)
		}
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, padded)
	if !s.legacyIV {
		out = append(append([]byte{}, iv...), out...)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptSecure reverses EncryptSecure.
func (s *Signer) DecryptSecure(encoded string) (*SecureBlock, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecureBlock, err)
	}

	iv := legacyIV
	if !s.legacyIV {
		if len(data) < aes.BlockSize {
			return nil, ErrInvalidSecureBlock
		}
		iv, data = data[:aes.BlockSize], data[aes.BlockSize:]
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidSecureBlock
	}

	c, err := aes.NewCipher(aesKey(s.secret))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(c, iv).CryptBlocks(plain, data)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	var block SecureBlock
	if err := json.Unmarshal(plain, &block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecureBlock, err)
	}
	return &block, nil
}

// SignJWT signs the scheme A payload as HS512 claims.
func (s *Signer) SignJWT(payload *Transaction) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("build claims: %w", err)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(s.secret))
}

// ParseJWT verifies an HS512 bearer and returns its claims.
func (s *Signer) ParseJWT(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// aesKey zero-pads or truncates the secret to 32 bytes.
func aesKey(secret string) []byte {
	key := make([]byte, aesKeySize)
	copy(key, secret)
	return key
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidSecureBlock
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidSecureBlock
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidSecureBlock
		}
	}
	return data[:len(data)-n], nil
}
