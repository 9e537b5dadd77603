package engine

import (
	"time"

	"github.com/certen/ton-relay/pkg/retry"
)

// addressVerificationGasLimit bounds the one-off ETH transaction sent
// during identity bootstrap; the verification call carries no contract
// logic beyond recording the sender, so a fixed conservative limit is
// enough (mirrors the reference's hardcoded verification gas limit).
const addressVerificationGasLimit = 100_000

// addressVerificationPolicy builds the retry policy for the identity
// bootstrap's ETH transaction, reusing the same exponential shape C4's
// scanner uses rather than inventing a second backoff idiom.
func addressVerificationPolicy() retry.Policy {
	return retry.Exponential(time.Second, 2.0, 30*time.Second, 5*time.Minute)
}
