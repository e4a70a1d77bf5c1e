package aptos

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/stretchr/testify/require"

	"github.com/splito-labs/settlement_gateway/internal/chain/chaintest"
)

func TestDecodeRawTransactionHex(t *testing.T) {
	sender, err := ParseAddress("0xa11ce")
	require.NoError(t, err)
	tx := chaintest.AptosTransferTx(t, sender, 2)

	decoded, err := DecodeRawTransactionHex("0x" + chaintest.AptosTransfer(t, sender, 2))
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
	require.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001::aptos_account::transfer", FunctionName(decoded))
	require.Equal(t, uint8(2), decoded.ChainId)

	_, err = DecodeRawTransactionHex("0xzz")
	require.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeRawTransactionHex("")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRawTransactionLayout(t *testing.T) {
	sender, err := ParseAddress("0xa11ce")
	require.NoError(t, err)
	b, err := hex.DecodeString(chaintest.AptosTransfer(t, sender, 2))
	require.NoError(t, err)

	require.Equal(t, sender[:], b[:32])
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(b[32:40]))
	require.Equal(t, byte(aptossdk.TransactionPayloadVariantEntryFunction), b[40])
	require.Equal(t, byte(2), b[len(b)-1], "chain id is the final byte")
	require.Equal(t, uint64(1_700_000_000), binary.LittleEndian.Uint64(b[len(b)-9:len(b)-1]))
}

func TestScriptPayload(t *testing.T) {
	sender, err := ParseAddress("0xb0b")
	require.NoError(t, err)
	raw := &aptossdk.RawTransaction{
		Sender: sender,
		Payload: aptossdk.TransactionPayload{Payload: &aptossdk.Script{
			Code:     []byte{0xa1, 0x1c, 0xeb, 0x0b},
			ArgTypes: []aptossdk.TypeTag{},
			Args:     []aptossdk.ScriptArgument{},
		}},
		ChainId: 2,
	}
	encoded, err := EncodeHex(raw)
	require.NoError(t, err)

	decoded, err := DecodeRawTransactionHex(encoded)
	require.NoError(t, err)
	require.Equal(t, "script", FunctionName(decoded))
	require.Equal(t, raw.Payload.Payload.(*aptossdk.Script).Code, decoded.Payload.Payload.(*aptossdk.Script).Code)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	sender, err := ParseAddress("0xa11ce")
	require.NoError(t, err)
	good, err := bcs.Serialize(chaintest.AptosTransferTx(t, sender, 2))
	require.NoError(t, err)

	bundle := append([]byte{}, good[:40]...)
	bundle = append(bundle, byte(aptossdk.TransactionPayloadVariantModuleBundle))

	cases := map[string][]byte{
		"truncated":     good[:len(good)-3],
		"trailing":      append(append([]byte{}, good...), 0x00),
		"module bundle": bundle,
		"bad payload":   append(append([]byte{}, good[:40]...), 0x09),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRawTransactionHex(hex.EncodeToString(input))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err = DecodeRawTransactionHex(strings.Repeat("00", maxTransactionSize+1))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)
	require.Equal(t, byte(1), addr[31])
	require.Equal(t, "0x"+strings.Repeat("0", 63)+"1", FormatAddress(addr))

	upper, err := ParseAddress(" 0XA11CE ")
	require.NoError(t, err)
	lower, err := ParseAddress("0xa11ce")
	require.NoError(t, err)
	require.Equal(t, lower, upper)

	_, err = ParseAddress("0x" + strings.Repeat("a", 65))
	require.Error(t, err)
	_, err = ParseAddress("nothex")
	require.Error(t, err)
	_, err = ParseAddress("")
	require.Error(t, err)
}
