// Package envelope seals and opens the telemetry records that monitored nodes
// send to the collector.
//
// An envelope is base64(IV || ciphertext), where the ciphertext is the JSON
// encoding of a Record encrypted with AES-256-CBC and PKCS#7 padding. The key
// is supplied by a KeyProvider; SharedSecret derives it as sha256(secret).
//
// Known weaknesses:
//   - There is no MAC. Tampering is only detected through padding and payload
//     validation, and flipping IV bits changes the first plaintext block in a
//     predictable way.
//   - The whole fleet shares one key, so a single compromised node exposes
//     every node's telemetry.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var (
	// ErrDecryption is returned for any envelope that cannot be opened
	ErrDecryption = errors.New("decryption failed")

	// ErrEmptySecret is returned when a key is derived from an empty secret
	ErrEmptySecret = errors.New("shared secret is empty")
)

// Supplies the symmetric key used by a Cipher
type KeyProvider interface {
	Key() ([]byte, error)
}

// SharedSecret derives a 32-byte key from a secret string known to every node.
type SharedSecret struct {
	key []byte
}

// Derives the key once; the result is reused for the lifetime of the provider.
func NewSharedSecret(secret string) (*SharedSecret, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	sum := sha256.Sum256([]byte(secret))
	return &SharedSecret{key: sum[:]}, nil
}

func (s *SharedSecret) Key() ([]byte, error) {
	key := make([]byte, len(s.key))
	copy(key, s.key)
	return key, nil
}

// Cipher seals and opens envelopes. It is safe for concurrent use.
type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

func New(kp KeyProvider) (*Cipher, error) {
	if kp == nil {
		return nil, errors.New("key provider is required")
	}

	key, err := kp.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Cipher{block: block, rand: rand.Reader}, nil
}

// Encrypts a record under a fresh random IV
func (c *Cipher) Seal(rec Record) (string, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	blockSize := c.block.BlockSize()
	padded := pad(plaintext, blockSize)

	out := make([]byte, blockSize+len(padded))
	iv := out[:blockSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[blockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypts and validates an envelope
func (c *Cipher) Open(envelope string) (Record, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envelope))
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid base64: %v", ErrDecryption, err)
	}

	blockSize := c.block.BlockSize()
	if len(raw) < 2*blockSize || len(raw)%blockSize != 0 {
		return Record{}, fmt.Errorf("%w: invalid envelope length %d", ErrDecryption, len(raw))
	}

	iv, ciphertext := raw[:blockSize], raw[blockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpad(plaintext, blockSize)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	rec, err := parseRecord(plaintext)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return rec, nil
}

// wireRecord uses pointers so missing fields can be told apart from zero values
type wireRecord struct {
	ServerID  *int    `json:"server_id"`
	Load      *int    `json:"load"`
	Timestamp *string `json:"timestamp"`
}

func parseRecord(plaintext []byte) (Record, error) {
	if !utf8.Valid(plaintext) {
		return Record{}, errors.New("payload is not valid utf-8")
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()

	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return Record{}, fmt.Errorf("invalid payload: %w", err)
	}
	if dec.More() {
		return Record{}, errors.New("invalid payload: trailing data")
	}

	if w.ServerID == nil || w.Load == nil || w.Timestamp == nil {
		return Record{}, errors.New("invalid payload: missing field")
	}

	rec := Record{
		ServerID:  *w.ServerID,
		Load:      *w.Load,
		Timestamp: *w.Timestamp,
	}

	if _, err := rec.Time(); err != nil {
		return Record{}, err
	}

	return rec, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}

	return data[:len(data)-n], nil
}
