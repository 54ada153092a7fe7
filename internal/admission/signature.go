package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// canonicalBytes builds the exact byte sequence a miner must sign:
// newline-joined UTF-8 fields, submitted_at truncated to the minute so
// clock skew of a few seconds doesn't invalidate a signature.
func canonicalBytes(r Request) ([]byte, error) {
	submittedAt, err := time.Parse(time.RFC3339, r.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	truncated := submittedAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
	fields := []string{
		r.VideoHash,
		r.VideoKey,
		r.PromptID,
		strconv.FormatInt(r.MinerUID, 10),
		truncated,
	}
	return []byte(strings.Join(fields, "\n")), nil
}

// verifySignature checks an ECDSA/secp256k1 signature over the SHA-256
// digest of the canonical submission bytes, against a hex-encoded
// 33-byte compressed public key (the miner's hotkey).
func verifySignature(r Request) error {
	msg, err := canonicalBytes(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	digest := sha256.Sum256(msg)

	pubKeyBytes, err := hex.DecodeString(r.MinerHotkey)
	if err != nil {
		return fmt.Errorf("%w: decode hotkey: %v", ErrBadSignature, err)
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("%w: parse hotkey: %v", ErrBadSignature, err)
	}

	sigBytes, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrBadSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: parse signature: %v", ErrBadSignature, err)
	}
	if !sig.Verify(digest[:], pubKey) {
		return ErrBadSignature
	}
	return nil
}
