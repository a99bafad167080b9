package evidence

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed container layout: magic, format version, PBKDF2 iteration
// count, salt, GCM nonce, ciphertext. The password never appears in the
// container; only the derivation parameters do.
const (
	sealMagic      = "THEV"
	sealVersion    = 1
	saltSize       = 16
	keySize        = 32
	kdfIterations  = 600_000
	sealHeaderSize = 4 + 1 + 4 + saltSize
)

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
}

// seal encrypts an archive with AES-256-GCM under a PBKDF2-derived key.
func seal(plain []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeaderSize+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, sealVersion)
	out = binary.BigEndian.AppendUint32(out, kdfIterations)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plain, nil), nil
}

// unseal reverses seal. A wrong password surfaces as an authentication
// failure, indistinguishable from tampering.
func unseal(sealed []byte, password string) ([]byte, error) {
	if len(sealed) < sealHeaderSize || string(sealed[:4]) != sealMagic {
		return nil, fmt.Errorf("not a sealed evidence container")
	}
	if sealed[4] != sealVersion {
		return nil, fmt.Errorf("unsupported container version %d", sealed[4])
	}
	iterations := int(binary.BigEndian.Uint32(sealed[5:9]))
	salt := sealed[9:sealHeaderSize]

	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	rest := sealed[sealHeaderSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed container truncated")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt archive: wrong password or tampered data")
	}
	return plain, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt, iterations))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
