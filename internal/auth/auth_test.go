package auth

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprasolov/betledger/internal/domain"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

// signPersonal produces a wallet-style personal signature with v in {27,28}.
func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()

	sig, err := ethcrypto.Sign(personalHash(message), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifyPersonalSign(t *testing.T) {
	key, address := testKey(t)
	message := LoginMessage(address, "nonce-1")

	assert.NoError(t, VerifyPersonalSign(address, message, signPersonal(t, key, message)))
}

func TestVerifyPersonalSign_AcceptsRawRecoveryID(t *testing.T) {
	key, address := testKey(t)
	message := LoginMessage(address, "nonce-1")

	// Some signers emit v in {0,1} instead of {27,28}.
	sig, err := ethcrypto.Sign(personalHash(message), key)
	require.NoError(t, err)

	assert.NoError(t, VerifyPersonalSign(address, message, hexutil.Encode(sig)))
}

func TestVerifyPersonalSign_Rejects(t *testing.T) {
	key, address := testKey(t)
	otherKey, _ := testKey(t)
	message := LoginMessage(address, "nonce-1")

	tests := []struct {
		name      string
		address   string
		message   string
		signature string
		wantErr   error
	}{
		{
			name:      "signed by someone else",
			address:   address,
			message:   message,
			signature: signPersonal(t, otherKey, message),
			wantErr:   domain.ErrUnauthenticated,
		},
		{
			name:      "signature over different message",
			address:   address,
			message:   message,
			signature: signPersonal(t, key, LoginMessage(address, "nonce-2")),
			wantErr:   domain.ErrUnauthenticated,
		},
		{
			name:      "not hex",
			address:   address,
			message:   message,
			signature: "0xzz",
			wantErr:   domain.ErrInvalidInput,
		},
		{
			name:      "truncated signature",
			address:   address,
			message:   message,
			signature: "0xdeadbeef",
			wantErr:   domain.ErrInvalidInput,
		},
		{
			name:      "bad address",
			address:   "not-an-address",
			message:   message,
			signature: signPersonal(t, key, message),
			wantErr:   domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPersonalSign(tt.address, tt.message, tt.signature)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)

	token, expiresAt, err := issuer.Issue("0xabc", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	identity, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("0xabc"), identity)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)

	token, _, err := issuer.Issue("0xabc", time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	a := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)
	b := NewTokenIssuer([]byte("another sixteen byte secret"), []byte("salt"), "betledger", time.Hour)

	token, _, err := a.Issue("0xabc", time.Now().UTC())
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestMemoryNonceStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNonceStore()

	require.NoError(t, store.Put(ctx, "0xABCDEF", "nonce-1", time.Minute))

	// Address lookup is case insensitive and a nonce can be taken once.
	got, err := store.Take(ctx, "0xabcdef")
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", got)

	_, err = store.Take(ctx, "0xabcdef")
	assert.ErrorIs(t, err, domain.ErrNonceNotFound)
}

func TestMemoryNonceStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNonceStore()

	require.NoError(t, store.Put(ctx, "0xabc", "nonce-1", -time.Second))

	_, err := store.Take(ctx, "0xabc")
	assert.ErrorIs(t, err, domain.ErrNonceNotFound)
}

func TestService_LoginFlow(t *testing.T) {
	ctx := context.Background()
	key, address := testKey(t)

	tokens := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)
	svc := NewService(NewMemoryNonceStore(), tokens, 5*time.Minute, discardLogger())

	nonce, message, err := svc.BeginLogin(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, LoginMessage(address, nonce), message)

	token, identity, expiresAt, err := svc.CompleteLogin(ctx, address, signPersonal(t, key, message))
	require.NoError(t, err)
	assert.Equal(t, domain.NormalizeIdentity(address), identity)
	assert.True(t, expiresAt.After(time.Now()))

	verified, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity, verified)

	// The challenge was consumed; replaying the same signature fails.
	_, _, _, err = svc.CompleteLogin(ctx, address, signPersonal(t, key, message))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestService_WrongSignerConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	key, address := testKey(t)
	otherKey, _ := testKey(t)

	tokens := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)
	svc := NewService(NewMemoryNonceStore(), tokens, 5*time.Minute, discardLogger())

	_, message, err := svc.BeginLogin(ctx, address)
	require.NoError(t, err)

	_, _, _, err = svc.CompleteLogin(ctx, address, signPersonal(t, otherKey, message))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	// The nonce is gone, so even the right key cannot finish this challenge.
	_, _, _, err = svc.CompleteLogin(ctx, address, signPersonal(t, key, message))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestService_BeginLogin_BadAddress(t *testing.T) {
	tokens := NewTokenIssuer([]byte("a sixteen byte secret value"), []byte("salt"), "betledger", time.Hour)
	svc := NewService(NewMemoryNonceStore(), tokens, 5*time.Minute, discardLogger())

	_, _, err := svc.BeginLogin(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
