// Package anchor periodically commits the custody ledger tip to a BSV
// transaction. Once mined, the anchor proves the chain up to that block
// existed at that time; rewriting history would require a new anchor.
package anchor

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"

	"github.com/bitfsorg/custody-go/hashing"
)

// ProtocolFlag is the first push of every anchor OP_RETURN.
var ProtocolFlag = []byte("custody")

const (
	// DustLimit is the minimum P2PKH output value in satoshis.
	DustLimit = uint64(546)

	// DefaultFeeRate is the default fee rate in sat/KB.
	DefaultFeeRate = uint64(1)

	// TipHashLen is the length of a decoded tip hash.
	TipHashLen = hashing.DigestSize / 2

	// IndexLen is the length of the encoded block index.
	IndexLen = 8
)

// BuildAnchorData constructs the OP_RETURN data pushes for a ledger tip.
//
// Layout:
//
//	pushdata[0]: ProtocolFlag (7 bytes, "custody")
//	pushdata[1]: tip hash     (32 bytes)
//	pushdata[2]: block index  (8 bytes, big-endian)
func BuildAnchorData(tipHash string, index uint64) ([][]byte, error) {
	if !hashing.IsDigest(tipHash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTip, tipHash)
	}
	raw, err := hex.DecodeString(tipHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTip, err)
	}
	idx := make([]byte, IndexLen)
	binary.BigEndian.PutUint64(idx, index)
	return [][]byte{ProtocolFlag, raw, idx}, nil
}

// ParseAnchorData extracts the tip hash and block index from OP_RETURN
// data pushes.
func ParseAnchorData(pushes [][]byte) (string, uint64, error) {
	if len(pushes) < 3 {
		return "", 0, fmt.Errorf("%w: expected 3 data pushes, got %d", ErrInvalidOPReturn, len(pushes))
	}
	if !bytes.Equal(pushes[0], ProtocolFlag) {
		return "", 0, ErrNotAnchor
	}
	if len(pushes[1]) != TipHashLen {
		return "", 0, fmt.Errorf("%w: tip hash must be %d bytes, got %d", ErrInvalidOPReturn, TipHashLen, len(pushes[1]))
	}
	if len(pushes[2]) != IndexLen {
		return "", 0, fmt.Errorf("%w: index must be %d bytes, got %d", ErrInvalidOPReturn, IndexLen, len(pushes[2]))
	}
	return hex.EncodeToString(pushes[1]), binary.BigEndian.Uint64(pushes[2]), nil
}

// buildOPReturnScript creates an OP_FALSE OP_RETURN script from data pushes.
func buildOPReturnScript(pushes [][]byte) (*script.Script, error) {
	s := &script.Script{}
	*s = append(*s, script.Op0, script.OpRETURN)
	for _, push := range pushes {
		if err := s.AppendPushData(push); err != nil {
			return nil, fmt.Errorf("%w: OP_RETURN push data: %w", ErrScriptBuild, err)
		}
	}
	return s, nil
}

// ParseAnchorScript decodes an OP_FALSE OP_RETURN locking script built by
// BuildAnchorTx and returns the anchored tip hash and index.
func ParseAnchorScript(lockingScript []byte) (string, uint64, error) {
	if len(lockingScript) < 2 || lockingScript[0] != script.Op0 || lockingScript[1] != script.OpRETURN {
		return "", 0, ErrNotAnchor
	}
	pushes, err := splitPushes(lockingScript[2:])
	if err != nil {
		return "", 0, err
	}
	return ParseAnchorData(pushes)
}

// splitPushes reads consecutive data pushes. Any non-push opcode is an error.
func splitPushes(b []byte) ([][]byte, error) {
	var pushes [][]byte
	for len(b) > 0 {
		op := b[0]
		b = b[1:]
		var n int
		switch {
		case op >= 0x01 && op <= 0x4b:
			n = int(op)
		case op == script.OpPUSHDATA1:
			if len(b) < 1 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA1", ErrInvalidOPReturn)
			}
			n, b = int(b[0]), b[1:]
		case op == script.OpPUSHDATA2:
			if len(b) < 2 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA2", ErrInvalidOPReturn)
			}
			n, b = int(binary.LittleEndian.Uint16(b)), b[2:]
		case op == script.OpPUSHDATA4:
			if len(b) < 4 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA4", ErrInvalidOPReturn)
			}
			n, b = int(binary.LittleEndian.Uint32(b)), b[4:]
		case op == script.Op0:
			n = 0
		default:
			return nil, fmt.Errorf("%w: unexpected opcode 0x%02x", ErrInvalidOPReturn, op)
		}
		if n > len(b) {
			return nil, fmt.Errorf("%w: push of %d bytes overruns script", ErrInvalidOPReturn, n)
		}
		pushes = append(pushes, b[:n])
		b = b[n:]
	}
	return pushes, nil
}

// EstimateFee returns ceil(txSizeBytes * feeRate / 1000).
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	fee := uint64(txSizeBytes) * feeRate
	return (fee + 999) / 1000
}

// EstimateTxSize estimates the size of an anchor transaction with the given
// number of P2PKH inputs and change outputs.
func EstimateTxSize(numInputs, numChange int) int {
	// Base: version(4) + locktime(4) + input count(1) + output count(1) = 10
	// Per input: outpoint(36) + scriptlen(1) + P2PKH unlock(~107) + sequence(4) = 148
	// Per P2PKH output: value(8) + scriptlen(1) + script(25) = 34
	// OP_RETURN output: value(8) + scriptlen(1) + OP_FALSE OP_RETURN(2) + pushes
	pushes := 1 + len(ProtocolFlag) + 1 + TipHashLen + 1 + IndexLen
	return 10 + numInputs*148 + numChange*34 + 11 + pushes
}
