package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSecretEnv = "OBT_ENCRYPTION_SECRET"
	encryptionEnableEnv = "OBT_ENABLE_ENCRYPTION"

	encryptionSalt = "obt-helper-store-salt-v1"
	keySize        = 32
	nonceSize      = 12
	kdfIterations  = 100000
)

// encryptor transparently encrypts values at rest in the SQLite backend.
// Keys stay in plaintext so prefix listing keeps working; only values
// (session history, link data) are sealed.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	if !encryptionEnabled() {
		return &encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func encryptionEnabled() bool {
	return os.Getenv(encryptionEnableEnv) == "true"
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv(encryptionSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", encryptionSecretEnv)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), kdfIterations, keySize, sha256.New)
	return key, nil
}

func (e *encryptor) seal(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (e *encryptor) open(stored string) (string, error) {
	if stored == "" || e.gcm == nil {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
