package wallets

import (
	"context"
	"errors"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

var substringCodes = []struct {
	code    apperr.Code
	needles []string
}{
	{apperr.CodeWalletNotConnected, []string{"not connected", "no wallet", "wallet not found", "locked"}},
	{apperr.CodeUserRejected, []string{"reject", "denied", "declined", "cancel"}},
	{apperr.CodeInsufficientFunds, []string{"insufficient", "underfunded", "not enough", "op_low_reserve"}},
	{apperr.CodeMalformedTx, []string{"malformed", "deserializ", "invalid transaction", "xdr"}},
	{apperr.CodeNetwork, []string{"network", "timeout", "timed out", "connection", "failed to fetch", "unreachable"}},
}

// Classify maps a signing or submission failure to a code. Coded errors keep
// their code; plain errors from wallets fall back to matching their text.
// Cancelled or expired contexts are network failures, not user rejections.
func Classify(err error) apperr.Code {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.CodeNetwork
	}
	var coded *apperr.Error
	if errors.As(err, &coded) && coded.Code != apperr.CodeUnknown {
		return coded.Code
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage maps a free-form wallet error message to a code.
func ClassifyMessage(msg string) apperr.Code {
	lower := strings.ToLower(msg)
	for _, entry := range substringCodes {
		for _, needle := range entry.needles {
			if strings.Contains(lower, needle) {
				return entry.code
			}
		}
	}
	return apperr.CodeUnknown
}
