// Package aptos decodes, signs and verifies the hex BCS transactions the
// backend produces for Aptos settlements.
package aptos

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
)

// ErrMalformed is wrapped by every transaction decoding failure.
var ErrMalformed = errors.New("malformed aptos transaction")

// Aptos rejects transactions above 64 KiB; larger payloads are never decoded.
const maxTransactionSize = 64 << 10

// ParseAddress parses a 0x-prefixed (or bare) hex address. Short forms such
// as 0x1 are left-padded.
func ParseAddress(s string) (aptossdk.AccountAddress, error) {
	var addr aptossdk.AccountAddress
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw[2:]
	}
	if err := addr.ParseStringRelaxed(raw); err != nil {
		return addr, fmt.Errorf("invalid aptos address %q: %w", s, err)
	}
	return addr, nil
}

// FormatAddress renders the 64-digit long form used as the wallet address.
func FormatAddress(addr aptossdk.AccountAddress) string {
	return addr.StringLong()
}

// FunctionName is the fully qualified entry function, "script", or
// "multisig".
func FunctionName(raw *aptossdk.RawTransaction) string {
	switch p := raw.Payload.Payload.(type) {
	case *aptossdk.EntryFunction:
		return fmt.Sprintf("%s::%s::%s", p.Module.Address.StringLong(), p.Module.Name, p.Function)
	case *aptossdk.Multisig:
		return "multisig"
	}
	return "script"
}

// DecodeRawTransactionHex decodes a hex (optionally 0x-prefixed) BCS raw
// transaction. Trailing bytes are an error.
func DecodeRawTransactionHex(s string) (*aptossdk.RawTransaction, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	raw := &aptossdk.RawTransaction{}
	if err := bcs.Deserialize(raw, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}

// EncodeHex is the 0x-prefixed hex BCS form the backend accepts.
func EncodeHex(v bcs.Marshaler) (string, error) {
	b, err := bcs.Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// TODO: bound BCS length prefixes before decoding once the SDK deserializer
// stops allocating the declared length up front.
func decodeHex(s string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if len(raw) > 2*maxTransactionSize {
		return nil, fmt.Errorf("%w: transaction exceeds %d bytes", ErrMalformed, maxTransactionSize)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}
