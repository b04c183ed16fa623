package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	log "github.com/inconshreveable/log15/v3"
)

var secretKey []byte

// InitCrypto configures AES-256-GCM for tokens at rest. An empty key leaves
// encryption disabled (values are stored as-is); a key of the wrong length is
// a hard startup error.
func InitCrypto(key string) error {
	if key == "" {
		log.Warn("ENCRYPTION_KEY not set, group Jira tokens will be stored unencrypted")
		return nil
	}
	if len(key) != 32 {
		return errors.New("ENCRYPTION_KEY must be 32 characters long for AES-256 encryption")
	}
	secretKey = []byte(key)
	log.Info("encryption key initialized")
	return nil
}

// CryptoEnabled reports whether a key is loaded.
func CryptoEnabled() bool {
	return len(secretKey) == 32
}

func Encrypt(plainText string) (string, error) {
	if !CryptoEnabled() {
		return plainText, nil
	}
	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	cipherText := aesGCM.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

func Decrypt(encrypted string) (string, error) {
	if !CryptoEnabled() {
		return encrypted, nil
	}
	cipherData, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return "", err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := aesGCM.NonceSize()
	if len(cipherData) < nonceSize {
		return "", errors.New("cipher text too short")
	}
	nonce, cipherText := cipherData[:nonceSize], cipherData[nonceSize:]
	plain, err := aesGCM.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// ResetCryptoForTest clears the loaded key. Only for tests.
func ResetCryptoForTest() {
	secretKey = nil
}
