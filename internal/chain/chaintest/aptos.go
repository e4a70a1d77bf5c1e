package chaintest

import (
	"encoding/hex"
	"testing"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// AptosTransferTx is an APT transfer from sender to 0x1.
func AptosTransferTx(t testing.TB, sender aptossdk.AccountAddress, chainID uint8) *aptossdk.RawTransaction {
	t.Helper()
	payload, err := aptossdk.CoinTransferPayload(nil, aptossdk.AccountOne, 1_000)
	if err != nil {
		t.Fatalf("transfer payload: %v", err)
	}
	return &aptossdk.RawTransaction{
		Sender:                     sender,
		SequenceNumber:             7,
		Payload:                    aptossdk.TransactionPayload{Payload: payload},
		MaxGasAmount:               100,
		GasUnitPrice:               100,
		ExpirationTimestampSeconds: 1_700_000_000,
		ChainId:                    chainID,
	}
}

// AptosTransfer is AptosTransferTx as unsigned hex BCS.
func AptosTransfer(t testing.TB, sender aptossdk.AccountAddress, chainID uint8) string {
	t.Helper()
	b, err := bcs.Serialize(AptosTransferTx(t, sender, chainID))
	if err != nil {
		t.Fatalf("encode transaction: %v", err)
	}
	return hex.EncodeToString(b)
}
