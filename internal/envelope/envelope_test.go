package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, secret string) *Cipher {
	t.Helper()

	kp, err := NewSharedSecret(secret)
	require.NoError(t, err)

	c, err := New(kp)
	require.NoError(t, err)
	return c
}

func TestSharedSecret(t *testing.T) {
	t.Run("EmptySecretRejected", func(t *testing.T) {
		_, err := NewSharedSecret("")
		require.ErrorIs(t, err, ErrEmptySecret)
	})

	t.Run("KeyIsSHA256OfSecret", func(t *testing.T) {
		kp, err := NewSharedSecret("secret-key")
		require.NoError(t, err)

		key, err := kp.Key()
		require.NoError(t, err)
		require.Len(t, key, 32)

		again, err := kp.Key()
		require.NoError(t, err)
		require.Equal(t, key, again)
	})
}

type failingProvider struct{}

func (failingProvider) Key() ([]byte, error) { return nil, errors.New("vault unavailable") }

func TestNewRejectsBadProviders(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(failingProvider{})
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t, "secret-key")

	records := []Record{
		NewRecord(1, 0, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		NewRecord(7, 55, time.Date(2024, 5, 1, 10, 0, 5, 123456000, time.UTC)),
		NewRecord(42, 100, time.Now()),
		{ServerID: 3, Load: 12, Timestamp: "2024-05-01T10:00:00.654321"},
	}

	for _, rec := range records {
		sealed, err := c.Seal(rec)
		require.NoError(t, err)

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, rec, opened)
	}
}

func TestSealUsesFreshIV(t *testing.T) {
	c := newTestCipher(t, "secret-key")
	rec := NewRecord(7, 55, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	first, err := c.Seal(rec)
	require.NoError(t, err)
	second, err := c.Seal(rec)
	require.NoError(t, err)

	require.NotEqual(t, first, second)

	a, err := c.Open(first)
	require.NoError(t, err)
	b, err := c.Open(second)
	require.NoError(t, err)
	require.Equal(t, rec, a)
	require.Equal(t, a, b)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t, "secret-key")
	rec := NewRecord(7, 55, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	sealed, err := c.Seal(rec)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	for i := aes.BlockSize; i < len(raw); i++ {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0xFF

		_, err := c.Open(base64.StdEncoding.EncodeToString(tampered))
		require.ErrorIs(t, err, ErrDecryption, "byte %d", i)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sender := newTestCipher(t, "other-key")
	receiver := newTestCipher(t, "secret-key")

	sealed, err := sender.Seal(NewRecord(7, 55, time.Now()))
	require.NoError(t, err)

	_, err = receiver.Open(sealed)
	require.ErrorIs(t, err, ErrDecryption)
}

// sealRaw encrypts arbitrary plaintext the way a node would
func sealRaw(t *testing.T, secret string, plaintext []byte) string {
	t.Helper()

	kp, err := NewSharedSecret(secret)
	require.NoError(t, err)
	key, err := kp.Key()
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	_, err = rand.Read(out[:aes.BlockSize])
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out)
}

func TestOpenRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t, "secret-key")

	tests := []struct {
		name     string
		envelope string
	}{
		{name: "Empty", envelope: ""},
		{name: "NotBase64", envelope: "!!!not-base64!!!"},
		{name: "OnlyIV", envelope: base64.StdEncoding.EncodeToString(make([]byte, aes.BlockSize))},
		{name: "NotBlockAligned", envelope: base64.StdEncoding.EncodeToString(make([]byte, 40))},
		{name: "NotJSON", envelope: sealRaw(t, "secret-key", []byte("hello world"))},
		{name: "MissingField", envelope: sealRaw(t, "secret-key", []byte(`{"server_id":1,"load":5}`))},
		{name: "UnknownField", envelope: sealRaw(t, "secret-key", []byte(`{"server_id":1,"load":5,"timestamp":"2024-05-01T10:00:00Z","cpu":3}`))},
		{name: "BadTimestamp", envelope: sealRaw(t, "secret-key", []byte(`{"server_id":1,"load":5,"timestamp":"yesterday"}`))},
		{name: "WrongTypes", envelope: sealRaw(t, "secret-key", []byte(`{"server_id":"1","load":5,"timestamp":"2024-05-01T10:00:00Z"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Open(tt.envelope)
			require.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestOpenAcceptsPythonReporterPayload(t *testing.T) {
	c := newTestCipher(t, "secret-key")

	payload, err := json.Marshal(map[string]any{
		"server_id": 1,
		"load":      37,
		"timestamp": "2024-05-01T10:00:00.123456",
	})
	require.NoError(t, err)

	rec, err := c.Open(sealRaw(t, "secret-key", payload))
	require.NoError(t, err)
	require.Equal(t, 1, rec.ServerID)
	require.Equal(t, 37, rec.Load)

	ts, err := rec.Time()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), ts)
}

func TestRecordTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-05-01T10:00:00Z", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-05-01T12:00:00+02:00", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-05-01T10:00:00", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2024-05-01 10:00:00", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Record{Timestamp: tt.in}.Time()
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := Record{Timestamp: "01/05/2024"}.Time()
	require.Error(t, err)
}
