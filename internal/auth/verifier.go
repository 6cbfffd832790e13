package auth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/kprasolov/betledger/internal/domain"
)

// LoginMessage returns the exact text a wallet must personal-sign to prove
// control of an address. Both sides rebuild it from the address and nonce, so
// the signature never covers client-supplied free text.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("betledger login\naddress: %s\nnonce: %s", strings.ToLower(address), nonce)
}

// personalHash computes the EIP-191 personal_sign digest:
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(message) || message)
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}

// VerifyPersonalSign recovers the signer of an EIP-191 personal signature and
// checks that it matches the claimed address.
func VerifyPersonalSign(address, message, signatureHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("auth: %q is not a hex address: %w", address, domain.ErrInvalidInput)
	}

	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return fmt.Errorf("auth: decoding signature: %v: %w", err, domain.ErrInvalidInput)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return fmt.Errorf("auth: signature must be %d bytes, got %d: %w", ethcrypto.SignatureLength, len(sig), domain.ErrInvalidInput)
	}

	// Wallets report the recovery id as 27/28; SigToPub expects 0/1.
	recoverable := make([]byte, len(sig))
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalHash(message), recoverable)
	if err != nil {
		return fmt.Errorf("auth: recovering signer: %v: %w", err, domain.ErrUnauthenticated)
	}
	if ethcrypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return fmt.Errorf("auth: signature was not made by %s: %w", address, domain.ErrUnauthenticated)
	}
	return nil
}
