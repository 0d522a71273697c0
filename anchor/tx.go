package anchor

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
)

// UTXO is a funding output controlled by the anchor key.
type UTXO struct {
	TxID         string // display hex
	Vout         uint32
	Amount       uint64 // satoshis
	ScriptPubKey []byte // locking script; P2PKH to the anchor key when empty
}

// TxParams holds the inputs for BuildAnchorTx.
type TxParams struct {
	TipHash string
	Index   uint64
	Inputs  []*UTXO
	Key     *ec.PrivateKey // signs every input and receives the change
	FeeRate uint64         // sat/KB
	Mainnet bool
}

// AnchorTx is a signed anchor transaction ready for broadcast.
type AnchorTx struct {
	Hex    string
	TxID   string
	Fee    uint64
	Change uint64 // zero when the remainder was dust
}

// ParseKey parses a funding key given as WIF or 32-byte hex.
func ParseKey(s string) (*ec.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(s) == 64 {
		if _, err := hex.DecodeString(s); err == nil {
			key, err := ec.PrivateKeyFromHex(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
			}
			return key, nil
		}
	}
	key, err := ec.PrivateKeyFromWif(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return key, nil
}

// Address returns the P2PKH address funding and change use for key.
func Address(key *ec.PrivateKey, mainnet bool) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(key.PubKey(), mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	return addr.AddressString, nil
}

// p2pkhScript creates the P2PKH locking script paying to key.
func p2pkhScript(key *ec.PrivateKey, mainnet bool) (*script.Script, error) {
	addr, err := script.NewAddressFromPublicKey(key.PubKey(), mainnet)
	if err != nil {
		return nil, fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock script: %w", ErrScriptBuild, err)
	}
	return lock, nil
}

// BuildAnchorTx builds and signs a transaction committing to the tip.
//
// Output layout:
//
//	[0] OP_FALSE OP_RETURN ["custody", tip hash, index]  (0 sat)
//	[1] P2PKH -> anchor key (change, omitted when dust)
//
// Every input spends an output of the anchor key.
func BuildAnchorTx(p *TxParams) (*AnchorTx, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: params", ErrNilParam)
	}
	if p.Key == nil {
		return nil, fmt.Errorf("%w: Key", ErrNilParam)
	}
	if len(p.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no funding inputs", ErrInsufficientFunds)
	}

	pushes, err := BuildAnchorData(p.TipHash, p.Index)
	if err != nil {
		return nil, err
	}
	opReturn, err := buildOPReturnScript(pushes)
	if err != nil {
		return nil, err
	}
	keyLock, err := p2pkhScript(p.Key, p.Mainnet)
	if err != nil {
		return nil, err
	}

	var total uint64
	for i, in := range p.Inputs {
		if in == nil {
			return nil, fmt.Errorf("%w: input[%d]", ErrNilParam, i)
		}
		total += in.Amount
	}

	fee := EstimateFee(EstimateTxSize(len(p.Inputs), 1), p.FeeRate)
	if total < fee {
		return nil, fmt.Errorf("%w: need %d sat, have %d sat", ErrInsufficientFunds, fee, total)
	}

	sdkTx := transaction.NewTransaction()
	for i, in := range p.Inputs {
		hash, err := chainhash.NewHashFromHex(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: input[%d] txid: %w", ErrScriptBuild, i, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       hash,
			SourceTxOutIndex: in.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
	}

	sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
		Satoshis:      0,
		LockingScript: opReturn,
	})

	change := total - fee
	if change > DustLimit {
		sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
			Satoshis:      change,
			LockingScript: keyLock,
		})
	} else {
		change = 0
	}

	if err := signInputs(sdkTx, p.Inputs, p.Key, keyLock); err != nil {
		return nil, err
	}

	return &AnchorTx{
		Hex:    sdkTx.Hex(),
		TxID:   sdkTx.TxID().String(),
		Fee:    total - change,
		Change: change,
	}, nil
}

// signInputs attaches source outputs and P2PKH unlockers, then signs.
func signInputs(sdkTx *transaction.Transaction, inputs []*UTXO, key *ec.PrivateKey, keyLock *script.Script) error {
	unlocker, err := p2pkh.Unlock(key, nil)
	if err != nil {
		return fmt.Errorf("%w: unlocker: %w", ErrSigningFailed, err)
	}
	for i, in := range inputs {
		lock := keyLock
		if len(in.ScriptPubKey) > 0 {
			lock = script.NewFromBytes(in.ScriptPubKey)
		}
		sdkTx.Inputs[i].SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      in.Amount,
			LockingScript: lock,
		})
		sdkTx.Inputs[i].UnlockingScriptTemplate = unlocker
	}
	if err := sdkTx.Sign(); err != nil {
		return fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return nil
}
