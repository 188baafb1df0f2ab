package ticket

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// LoadKey reads a hex-encoded secp256k1 private key from a file. The file
// format matches what cmd/keygen writes: one hex line, optional 0x prefix.
func LoadKey(path string) (*secp256k1.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signer key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer key must be 32 bytes, got %d", len(raw))
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// SignerAddress derives the 0x-prefixed EVM address of the key, for logging
// and for checking the deployed contract trusts this signer.
func SignerAddress(key *secp256k1.PrivateKey) string {
	pub := key.PubKey().SerializeUncompressed()
	h := hashID(string(pub[1:]))
	return "0x" + hex.EncodeToString(h[12:])
}
