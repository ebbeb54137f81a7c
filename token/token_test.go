package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := New("test-secret", WithClock(clock.Now))
	require.NoError(t, err)
	return codec, clock
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Generate(PurposeConfirm, 42, "", time.Hour)
	require.NoError(t, err)

	claims, err := codec.Verify(tok, PurposeConfirm)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, PurposeConfirm, claims.Purpose)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerate_CarriesNewEmail(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Generate(PurposeChangeEmail, 7, "new@example.com", 0)
	require.NoError(t, err)

	claims, err := codec.Verify(tok, PurposeChangeEmail)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", claims.NewEmail)
}

func TestGenerate_DefaultExpiration(t *testing.T) {
	codec, clock := newTestCodec(t)

	tok, err := codec.Generate(PurposeReset, 1, "", 0)
	require.NoError(t, err)

	clock.Advance(DefaultExpiration - time.Second)
	_, err = codec.Verify(tok, PurposeReset)
	assert.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = codec.Verify(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	codec, clock := newTestCodec(t)

	tok, err := codec.Generate(PurposeConfirm, 1, "", time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	_, err = codec.Verify(tok, PurposeConfirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	codec, _ := newTestCodec(t)
	other, err := New("another-secret")
	require.NoError(t, err)

	tok, err := other.Generate(PurposeConfirm, 1, "", time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(tok, PurposeConfirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Tampered(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Generate(PurposeConfirm, 1, "", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	forged, err := codec.Generate(PurposeConfirm, 2, "", time.Hour)
	require.NoError(t, err)
	// payload of the forged token with the signature of the original one
	tampered := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]

	_, err = codec.Verify(tampered, PurposeConfirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	codec, _ := newTestCodec(t)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(tok, PurposeConfirm)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestVerify_WrongPurpose(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Generate(PurposeChangeEmail, 3, "x@example.com", time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(tok, PurposeReset)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	codec, clock := newTestCodec(t)

	claims := &Claims{
		Purpose: PurposeConfirm,
		UserID:  1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(unsigned, PurposeConfirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_MissingExpiration(t *testing.T) {
	codec, _ := newTestCodec(t)

	claims := &Claims{Purpose: PurposeConfirm, UserID: 1}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(signed, PurposeConfirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
