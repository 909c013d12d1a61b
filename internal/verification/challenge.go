package verification

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/openforum/gating-service/internal/gating"
)

// Challenge is a single-use, short-lived proof-of-control request. The
// Message is what the wallet signs; the ID identifies the nonce so a
// completion call can be matched to its issuance.
type Challenge struct {
	ID        string
	Message   string
	ExpiresAt time.Time
}

// NewChallenge builds a challenge bound to (user, lock, category,
// address). The nonce is embedded in a human-readable message shown to
// the user before signing.
func NewChallenge(userID string, lockID int64, category gating.CategoryType, address string, ttl time.Duration) Challenge {
	id := uuid.New().String()
	issued := time.Now().UTC()

	message := fmt.Sprintf(
		"Verify wallet ownership to unlock gated content.\n\n"+
			"User: %s\nLock: %d\nCategory: %s\nWallet: %s\nNonce: %s\nIssued: %s\n\n"+
			"This signature proves you control this wallet. It does not "+
			"authorize a transaction or spend any funds.",
		userID, lockID, category, address, id, issued.Format(time.RFC3339))

	return Challenge{
		ID:        id,
		Message:   message,
		ExpiresAt: issued.Add(ttl),
	}
}

// RecoverAddress recovers the signer of an EIP-191 personal-sign
// signature over message. The signature is the 65-byte r||s||v hex
// string produced by personal_sign; both v=27/28 and v=0/1 are
// accepted.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// Normalize the recovery ID. Wallets emit 27/28, secp256k1 wants 0/1.
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery ID %d", sig[64])
	}
	normalized := make([]byte, 65)
	copy(normalized, sig[:64])
	normalized[64] = v

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that signature over message was produced by
// claimed. The address comparison is case-insensitive: checksummed and
// lowercase forms of the same address are equal.
func VerifySignature(message, signature, claimed string) error {
	if !common.IsHexAddress(claimed) {
		return fmt.Errorf("invalid wallet address %q", claimed)
	}

	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}

	if recovered != common.HexToAddress(claimed) {
		return ErrSignatureMismatch
	}
	return nil
}
