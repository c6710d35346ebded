// Package auth implements the connection handshake (spec.md §4.7): a
// server-chosen nonce challenge, a client signature over it, and a
// result the client gates proceeding on.
package auth

import (
	"crypto/rand"

	"github.com/lofire/broker/crypto"
	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/overlay"
	"github.com/lofire/broker/wire"
)

// ServerChallenge generates the 32-byte random nonce a server sends in
// ServerHello after receiving a ClientHello.
func ServerChallenge() ([32]byte, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, errs.Wrap(errs.StorageError, err)
	}
	return nonce, nil
}

// ServerVerify checks a ClientAuth against the nonce the server issued
// and the account registry, returning the AuthResult to send back
// (spec.md §4.7 step 4).
func ServerVerify(accounts *overlay.Accounts, nonce [32]byte, auth wire.ClientAuth) wire.AuthResult {
	if auth.Content.Nonce != nonce {
		return wire.AuthResult{Result: errs.InvalidState}
	}
	if err := crypto.Verify(auth.Content.User, auth.Content.Encode(), auth.Sig); err != nil {
		return wire.AuthResult{Result: errs.SignatureError}
	}
	if !accounts.HasUser(auth.Content.User) {
		return wire.AuthResult{Result: errs.NotFound}
	}
	if !accounts.HasClient(auth.Content.User, auth.Content.Client) {
		return wire.AuthResult{Result: errs.NotFound}
	}
	return wire.AuthResult{Result: errs.OK}
}

// ClientRespond builds the signed ClientAuth a client sends in response
// to a ServerHello (spec.md §4.7 step 3).
func ClientRespond(user ids.UserId, client ids.ClientId, userPriv ids.PrivKey, nonce [32]byte) wire.ClientAuth {
	content := wire.ClientAuthContent{User: user, Client: client, Nonce: nonce}
	sig := crypto.Sign(userPriv, content.Encode())
	return wire.ClientAuth{Content: content, Sig: sig}
}

// ExtMacKey derives the key an external (non-member) request's MAC is
// computed under, from an object link's per-object keys (spec.md §6,
// SPEC_FULL.md §C.7): the first key in the link seeds a single shared MAC
// key for every request a holder of that link issues.
func ExtMacKey(objectKeys []ids.ObjectRef) ids.SymKey {
	if len(objectKeys) == 0 {
		return crypto.DeriveKey(crypto.LabelExtRequestBlake3, nil)
	}
	return crypto.DeriveKey(crypto.LabelExtRequestBlake3, objectKeys[0].Key[:])
}
