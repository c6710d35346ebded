package auth_test

import (
	"testing"

	"github.com/lofire/broker/auth"
	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/overlay"
	"github.com/stretchr/testify/require"
)

func TestHandshakeSuccess(t *testing.T) {
	userPub, userPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	client := ids.ClientId{1}

	accounts := overlay.NewAccounts(userPub)
	require.NoError(t, accounts.AddClient(userPub, client))

	var nonce [32]byte
	for i := range nonce {
		nonce[i] = 0xAA
	}

	clientAuth := auth.ClientRespond(userPub, client, userPriv, nonce)
	result := auth.ServerVerify(accounts, nonce, clientAuth)
	require.Equal(t, errs.OK, result.Result)
}

func TestHandshakeRejectsWrongNonce(t *testing.T) {
	userPub, userPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	client := ids.ClientId{1}
	accounts := overlay.NewAccounts(userPub)
	require.NoError(t, accounts.AddClient(userPub, client))

	var nonce, otherNonce [32]byte
	nonce[0] = 1
	otherNonce[0] = 2

	clientAuth := auth.ClientRespond(userPub, client, userPriv, nonce)
	result := auth.ServerVerify(accounts, otherNonce, clientAuth)
	require.Equal(t, errs.InvalidState, result.Result)
}

func TestHandshakeRejectsUnknownClient(t *testing.T) {
	userPub, userPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	accounts := overlay.NewAccounts(userPub)

	var nonce [32]byte
	clientAuth := auth.ClientRespond(userPub, ids.ClientId{5}, userPriv, nonce)
	result := auth.ServerVerify(accounts, nonce, clientAuth)
	require.Equal(t, errs.NotFound, result.Result)
}

func TestHandshakeRejectsBadSignature(t *testing.T) {
	userPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	client := ids.ClientId{1}
	accounts := overlay.NewAccounts(userPub)
	require.NoError(t, accounts.AddClient(userPub, client))

	var nonce [32]byte
	clientAuth := auth.ClientRespond(userPub, client, otherPriv, nonce)
	result := auth.ServerVerify(accounts, nonce, clientAuth)
	require.Equal(t, errs.SignatureError, result.Result)
}

func TestExtMacKeyDerivedFromObjectKey(t *testing.T) {
	var key1, key2 ids.SymKey
	key1[0] = 1
	key2[0] = 2

	mac1 := auth.ExtMacKey([]ids.ObjectRef{{Key: key1}})
	mac2 := auth.ExtMacKey([]ids.ObjectRef{{Key: key2}})
	require.NotEqual(t, mac1, mac2)
}
