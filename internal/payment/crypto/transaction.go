package crypto

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxRequest is what the wallet is asked to send: the call the order API
// prepared, signed and funded by the wallet itself.
type TxRequest struct {
	To      *common.Address
	Value   *big.Int
	Data    []byte
	ChainID *big.Int
}

// Envelopes of the typed transactions. The tail absorbs signature fields so
// both signed and unsigned encodings decode.
type dynamicFeeEnvelope struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList
	Rest       []rlp.RawValue `rlp:"tail"`
}

type accessListEnvelope struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList
	Rest       []rlp.RawValue `rlp:"tail"`
}

type legacyEnvelope struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	Rest     []*big.Int `rlp:"tail"`
}

// ParseTransaction decodes a hex serialized EVM transaction, signed or not,
// into the request a wallet should send.
func ParseTransaction(serialized string) (*TxRequest, error) {
	raw, err := hexutil.Decode(serialized)
	if err != nil {
		return nil, fmt.Errorf("decode transaction hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}

	switch {
	case raw[0] == types.DynamicFeeTxType:
		var env dynamicFeeEnvelope
		if err := rlp.DecodeBytes(raw[1:], &env); err != nil {
			return nil, fmt.Errorf("decode dynamic fee transaction: %w", err)
		}
		return &TxRequest{To: env.To, Value: orZero(env.Value), Data: env.Data, ChainID: env.ChainID}, nil
	case raw[0] == types.AccessListTxType:
		var env accessListEnvelope
		if err := rlp.DecodeBytes(raw[1:], &env); err != nil {
			return nil, fmt.Errorf("decode access list transaction: %w", err)
		}
		return &TxRequest{To: env.To, Value: orZero(env.Value), Data: env.Data, ChainID: env.ChainID}, nil
	case raw[0] >= 0xc0:
		var env legacyEnvelope
		if err := rlp.Decode(bytes.NewReader(raw), &env); err != nil {
			return nil, fmt.Errorf("decode legacy transaction: %w", err)
		}
		return &TxRequest{To: env.To, Value: orZero(env.Value), Data: env.Data, ChainID: legacyChainID(env.Rest)}, nil
	default:
		return nil, fmt.Errorf("unsupported transaction type %#x", raw[0])
	}
}

// legacyChainID recovers the EIP-155 chain id: unsigned encodings carry
// [chainId, 0, 0], signed ones fold it into v.
func legacyChainID(rest []*big.Int) *big.Int {
	if len(rest) != 3 || rest[0] == nil {
		return nil
	}
	if rest[1].Sign() == 0 && rest[2].Sign() == 0 {
		return rest[0]
	}
	v := rest[0]
	if v.Cmp(big.NewInt(35)) < 0 {
		return nil
	}
	id := new(big.Int).Sub(v, big.NewInt(35))
	return id.Rsh(id, 1)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
