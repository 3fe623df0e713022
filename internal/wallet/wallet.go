package wallet

import (
	"encoding/json"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"SwapSentinel/internal/model"
)

// Wallet holds the trading key pair.
type Wallet struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

// Load decodes a secret key given either as base58 or as the JSON byte
// array written by solana-keygen.
func Load(secret string) (*Wallet, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("wallet private key is empty: %w", model.ErrConfiguration)
	}

	var key solana.PrivateKey
	if strings.HasPrefix(secret, "[") {
		var raw []byte
		if err := json.Unmarshal([]byte(secret), &raw); err != nil {
			return nil, fmt.Errorf("decode key array: %v: %w", err, model.ErrConfiguration)
		}
		key = solana.PrivateKey(raw)
	} else {
		k, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, fmt.Errorf("decode base58 key: %v: %w", err, model.ErrConfiguration)
		}
		key = k
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("secret key must be 64 bytes, got %d: %w", len(key), model.ErrConfiguration)
	}
	return &Wallet{key: key, pub: key.PublicKey()}, nil
}

// New wraps an existing key.
func New(key solana.PrivateKey) *Wallet {
	return &Wallet{key: key, pub: key.PublicKey()}
}

func (w *Wallet) PublicKey() solana.PublicKey { return w.pub }
func (w *Wallet) Address() string             { return w.pub.String() }

// PrepareTransaction inspects the wallet's signature slot of a serialized
// transaction. A valid signature means the aggregator already signed and the
// bytes are returned untouched. A zero placeholder (or a signature that does
// not verify) is replaced by the wallet's signature over the message.
func (w *Wallet) PrepareTransaction(raw []byte) (signed []byte, alreadySigned bool, err error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, false, fmt.Errorf("decode transaction: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(w.pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, false, fmt.Errorf("transaction does not require a signature from %s", w.pub)
	}
	if slot >= len(tx.Signatures) {
		return nil, false, fmt.Errorf("transaction carries %d signatures, signer slot is %d", len(tx.Signatures), slot)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, false, fmt.Errorf("encode message: %w", err)
	}

	current := tx.Signatures[slot]
	if current != (solana.Signature{}) && current.Verify(w.pub, msg) {
		return raw, true, nil
	}

	sig, err := w.key.Sign(msg)
	if err != nil {
		return nil, false, fmt.Errorf("sign message: %w", err)
	}
	tx.Signatures[slot] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, false, fmt.Errorf("encode transaction: %w", err)
	}
	return out, false, nil
}
