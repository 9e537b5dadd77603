package elections

import (
	"context"
	"errors"
	"fmt"

	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/tonobserve"
)

// ErrIdentityMismatch is returned when the UserData contract's recorded
// TON pubkey or ETH address does not match the keystore's, mirroring
// StakingError::UserDataEthAddressMismatch /
// StakingError::UserDataTonPublicKeyMismatch.
var ErrIdentityMismatch = errors.New("elections: UserData identity does not match keystore")

// EthAddressVerifier triggers the ETH-side address-verification
// transaction (the staker's on-chain proof that it controls its EVM
// address), supplied by the caller since it depends on which EVM network
// the bridge's event configuration names.
type EthAddressVerifier func(ctx context.Context) error

// EnsureUserDataVerified implements ensure_user_data_verified: it checks
// the UserData contract's recorded identity against the keystore, then
// confirms the TON pubkey and (via verifyEth) the ETH address
// concurrently. It waits for both waits to finish before returning; if
// either failed, the TON-side error is reported first.
func EnsureUserDataVerified(ctx context.Context, handle *keystore.Handle, userData tonobserve.UserDataContract, delivery *tonobserve.Delivery, verifyEth EthAddressVerifier) error {
	details, err := userData.GetDetails(ctx)
	if err != nil {
		return fmt.Errorf("elections: read user data: %w", err)
	}

	var wantTonPubkey [32]byte
	copy(wantTonPubkey[:], handle.TonPubkey())
	if details.TonPubkey != wantTonPubkey {
		return fmt.Errorf("%w: ton pubkey", ErrIdentityMismatch)
	}
	if details.EthAddress != handle.EthAddress() {
		return fmt.Errorf("%w: eth address", ErrIdentityMismatch)
	}

	tonDone := make(chan error, 1)
	go func() {
		if details.TonPubkeyConfirmed {
			tonDone <- nil
			return
		}
		tonDone <- delivery.DeliverMessage(ctx, handle, userData.ConfirmTonAccount(0))
	}()

	ethDone := make(chan error, 1)
	go func() {
		if details.EthAddressConfirmed {
			ethDone <- nil
			return
		}
		ethDone <- verifyEth(ctx)
	}()

	tonErr := <-tonDone
	ethErr := <-ethDone
	if tonErr != nil {
		return fmt.Errorf("elections: confirm ton pubkey: %w", tonErr)
	}
	if ethErr != nil {
		return fmt.Errorf("elections: confirm eth address: %w", ethErr)
	}
	return nil
}
