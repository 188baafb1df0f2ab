package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/massarena/backend/internal/ticket"
)

// keygen writes a fresh secp256k1 signer key for a room server. The derived
// address must be registered as a trusted signer on the settlement contract.
func main() {
	out := flag.String("out", "signer.key", "path to write the hex-encoded private key")
	force := flag.Bool("force", false, "overwrite an existing key file")
	flag.Parse()

	if _, err := os.Stat(*out); err == nil && !*force {
		log.Fatalf("refusing to overwrite %s (use -force)", *out)
	}

	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	data := hex.EncodeToString(key.Serialize()) + "\n"
	if err := os.WriteFile(*out, []byte(data), 0600); err != nil {
		log.Fatalf("failed to write key file: %v", err)
	}

	fmt.Printf("wrote %s\nsigner address: %s\n", *out, ticket.SignerAddress(key))
}
