// Package fieldcrypt encrypts individual account fields at the storage
// boundary.
//
// Keys are derived with HKDF from a shared secret using a configured digest.
// Ciphertext layout, base64url without padding:
//
//	[0..1]  uint16 version
//	[2..13] 12-byte nonce
//	[14..]  AES-GCM output (ciphertext + tag)
//
// The field name is bound as additional data, so a value sealed as a target
// will not open as a name. Deterministic sealing derives the nonce from an HMAC
// of the plaintext; it is used for lookup keys, which must map to the same
// ciphertext every time.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/MrEthical07/goStepUp/internal/digest"
	"golang.org/x/crypto/hkdf"
)

const (
	versionRandom        uint16 = 1
	versionDeterministic uint16 = 2

	gcmNonceSize = 12
	minSecretLen = 16
)

// Field names an encryptable account field.
type Field string

const (
	FieldName   Field = "name"
	FieldTarget Field = "target"
	FieldKey    Field = "key"
)

var (
	// ErrNotConfigured is returned by a nil Encryptor.
	ErrNotConfigured = errors.New("fieldcrypt: encryptor not configured")
	// ErrSecretTooShort is returned for secrets under 16 bytes.
	ErrSecretTooShort = errors.New("fieldcrypt: secret must be at least 16 bytes")
	// ErrUnsupportedCipher is returned for unknown cipher names.
	ErrUnsupportedCipher = errors.New("fieldcrypt: unsupported cipher")
	// ErrMalformed is returned for ciphertext that cannot be parsed.
	ErrMalformed = errors.New("fieldcrypt: malformed ciphertext")
	// ErrDecryptFailed does not distinguish wrong key, wrong field or tampering.
	ErrDecryptFailed = errors.New("fieldcrypt: decrypt failed")
)

// Config names the key material and algorithms.
type Config struct {
	Secret []byte
	// Digest drives HKDF and the deterministic nonce HMAC. Default SHA-256.
	Digest string
	// Cipher is "AES-256-GCM" (default) or "AES-128-GCM".
	Cipher string
}

// Encryptor seals and opens field values.
type Encryptor struct {
	aead    cipher.AEAD
	newHash func() hash.Hash
	macKey  []byte
	rand    io.Reader
}

// New derives keys from cfg.
func New(cfg Config) (*Encryptor, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, ErrSecretTooShort
	}
	newHash, err := digest.Func(cfg.Digest)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}

	var keyLen int
	switch digest.Normalize(cfg.Cipher) {
	case "", "AES256GCM", "AES/GCM", "AESGCM":
		keyLen = 32
	case "AES128GCM":
		keyLen = 16
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, cfg.Cipher)
	}

	encKey := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(newHash, cfg.Secret, nil, []byte("stepup field encryption v1")), encKey); err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive key: %w", err)
	}
	macKey := make([]byte, newHash().Size())
	if _, err := io.ReadFull(hkdf.New(newHash, cfg.Secret, nil, []byte("stepup field nonce v1")), macKey); err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive nonce key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: aes init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: gcm init failed: %w", err)
	}

	return &Encryptor{aead: aead, newHash: newHash, macKey: macKey, rand: rand.Reader}, nil
}

// Encrypt seals plaintext with a random nonce. The empty string is passed through.
func (e *Encryptor) Encrypt(field Field, plaintext string) (string, error) {
	if e == nil {
		return "", ErrNotConfigured
	}
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce generation failed: %w", err)
	}
	return e.seal(versionRandom, nonce, field, plaintext), nil
}

// EncryptDeterministic seals plaintext so equal inputs give equal outputs.
func (e *Encryptor) EncryptDeterministic(field Field, plaintext string) (string, error) {
	if e == nil {
		return "", ErrNotConfigured
	}
	if plaintext == "" {
		return "", nil
	}
	mac := hmac.New(e.newHash, e.macKey)
	mac.Write([]byte(field))
	mac.Write([]byte{0})
	mac.Write([]byte(plaintext))
	nonce := mac.Sum(nil)[:gcmNonceSize]
	return e.seal(versionDeterministic, nonce, field, plaintext), nil
}

func (e *Encryptor) seal(version uint16, nonce []byte, field Field, plaintext string) string {
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), []byte(field))

	out := make([]byte, 2+gcmNonceSize+len(sealed))
	binary.BigEndian.PutUint16(out[0:2], version)
	copy(out[2:2+gcmNonceSize], nonce)
	copy(out[2+gcmNonceSize:], sealed)
	return base64.RawURLEncoding.EncodeToString(out)
}

// Decrypt opens a value produced by Encrypt or EncryptDeterministic.
func (e *Encryptor) Decrypt(field Field, ciphertext string) (string, error) {
	if e == nil {
		return "", ErrNotConfigured
	}
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < 2+gcmNonceSize+e.aead.Overhead() {
		return "", ErrMalformed
	}
	switch binary.BigEndian.Uint16(raw[0:2]) {
	case versionRandom, versionDeterministic:
	default:
		return "", fmt.Errorf("%w: unknown version", ErrMalformed)
	}

	plain, err := e.aead.Open(nil, raw[2:2+gcmNonceSize], raw[2+gcmNonceSize:], []byte(field))
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
