package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// sealedPrefix marks values written by CryptoService.Seal. Values without it
// are read back as plaintext.
const sealedPrefix = "enc:v1:"

var (
	ErrInvalidKey         = errors.New("invalid encryption key format")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Sealer protects stored documents.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(stored string) ([]byte, error)
}

// PlainSealer stores values as they are. Used when no ENCRYPTION_KEY is set.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext []byte) (string, error) { return string(plaintext), nil }

func (PlainSealer) Open(stored string) ([]byte, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return nil, errors.New("sealed value found but no encryption key configured")
	}
	return []byte(stored), nil
}

// CryptoService handles encryption and hashing for data security
type CryptoService struct {
	encryptionKey []byte
	hmacKey       []byte
}

// NewCryptoService takes hex keys. The encryption key must decode to 16, 24
// or 32 bytes; an empty HMAC key falls back to a random one, which makes
// blind indexes valid for this process only.
func NewCryptoService(encryptionKeyHex, hmacKeyHex string) (*CryptoService, error) {
	encKey, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, ErrInvalidKey
	}
	switch len(encKey) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}

	var hmacKey []byte
	if hmacKeyHex == "" {
		hmacKey = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, hmacKey); err != nil {
			return nil, err
		}
	} else {
		hmacKey, err = hex.DecodeString(hmacKeyHex)
		if err != nil {
			return nil, errors.New("invalid hmac key format")
		}
	}

	return &CryptoService{
		encryptionKey: encKey,
		hmacKey:       hmacKey,
	}, nil
}

// Seal encrypts with AES-GCM and returns the prefixed base64 form.
func (s *CryptoService) Seal(plaintext []byte) (string, error) {
	ct, err := s.encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return sealedPrefix + ct, nil
}

// Open reverses Seal. Unprefixed values are returned untouched so rows
// written before encryption was enabled stay readable.
func (s *CryptoService) Open(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return []byte(stored), nil
	}
	return s.decrypt(strings.TrimPrefix(stored, sealedPrefix))
}

func (s *CryptoService) encrypt(plaintext []byte) (string, error) {
	aesGCM, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *CryptoService) decrypt(cryptoText string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return nil, err
	}

	aesGCM, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return aesGCM.Open(nil, nonce, ciphertext, nil)
}

func (s *CryptoService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// BlindIndex computes a deterministic hash for searching
func (s *CryptoService) BlindIndex(data string) string {
	return BlindIndex(s.hmacKey, data)
}

// BlindIndex is HMAC-SHA256 of data under key, hex encoded.
func BlindIndex(key []byte, data string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
