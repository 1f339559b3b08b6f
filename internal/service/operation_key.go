package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const operationKeyBytes = 16

// zeroKeySentinel replaces a degenerate all-zero key
var zeroKeySentinel = strings.Repeat("0", operationKeyBytes*2-1) + "1"

// OperationKey derives the idempotency key of the operation scheduled for
// sku inside batch batchID. The key is the hex form of the first 128 bits of
// SHA-256("batchID|sku").
func OperationKey(batchID, sku string) string {
	sum := sha256.Sum256([]byte(batchID + "|" + sku))
	key := hex.EncodeToString(sum[:operationKeyBytes])
	if strings.Trim(key, "0") == "" {
		return zeroKeySentinel
	}
	return key
}
