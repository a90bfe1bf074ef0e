package tokenstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"

	"github.com/jonandersen/tda/internal/auth"
)

const (
	saltLen = 16
	keyLen  = 32
)

// ErrDecrypt is returned when the token file cannot be decrypted with the
// configured passphrase.
var ErrDecrypt = errors.New("cannot decrypt token file: wrong passphrase or corrupt file")

// sealedFile is the on-disk layout of an encrypted record.
type sealedFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptedFileStore keeps the record encrypted with AES-GCM under a key
// derived from a passphrase with Argon2id. Every save uses a fresh salt
// and nonce.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
}

// NewEncryptedFileStore returns a store backed by path.
func NewEncryptedFileStore(path string, passphrase []byte) (*EncryptedFileStore, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase is required")
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Path returns the backing file.
func (s *EncryptedFileStore) Path() string { return s.path }

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Load decrypts the record. A missing file is auth.ErrNotFound.
func (s *EncryptedFileStore) Load(_ context.Context) (auth.TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return auth.TokenRecord{}, auth.ErrNotFound
		}
		return auth.TokenRecord{}, err
	}

	var sealed sealedFile
	if err := json.Unmarshal(data, &sealed); err != nil {
		return auth.TokenRecord{}, fmt.Errorf("invalid encrypted token file: %w", err)
	}
	if sealed.Version != formatVersion {
		return auth.TokenRecord{}, fmt.Errorf("unsupported encrypted token file version %d", sealed.Version)
	}

	aead, err := newGCM(deriveKey(s.passphrase, sealed.Salt))
	if err != nil {
		return auth.TokenRecord{}, err
	}
	if len(sealed.Nonce) != aead.NonceSize() {
		return auth.TokenRecord{}, ErrDecrypt
	}

	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return auth.TokenRecord{}, ErrDecrypt
	}
	return decode(plaintext)
}

// Save encrypts rec and replaces the file atomically.
func (s *EncryptedFileStore) Save(_ context.Context, rec auth.TokenRecord) error {
	plaintext, err := encode(rec)
	if err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	aead, err := newGCM(deriveKey(s.passphrase, salt))
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	data, err := json.Marshal(sealedFile{
		Version:    formatVersion,
		KDF:        "argon2id",
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// Close implements Store.
func (s *EncryptedFileStore) Close() error { return nil }
