package ticket

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const testContract = "0x1111111111111111111111111111111111111111"
const testWallet = "0x2222222222222222222222222222222222222222"

func newTestIssuer(t *testing.T) (*Issuer, *secp256k1.PrivateKey) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	iss, err := NewIssuer(testContract, "server-1", key, nil, nil)
	if err != nil {
		t.Fatalf("issuer init failed: %v", err)
	}
	return iss, key
}

func TestDigestIsDeterministic(t *testing.T) {
	iss, _ := newTestIssuer(t)
	sid := hashID("session-1")
	var player [20]byte
	deadline := time.Unix(1700000000, 0)

	d1 := iss.Digest(sid, player, 500, deadline)
	d2 := iss.Digest(sid, player, 500, deadline)
	if d1 != d2 {
		t.Fatal("same inputs produced different digests")
	}

	d3 := iss.Digest(sid, player, 501, deadline)
	if d1 == d3 {
		t.Fatal("different payouts produced the same digest")
	}
	d4 := iss.Digest(sid, player, 500, deadline.Add(time.Second))
	if d1 == d4 {
		t.Fatal("different deadlines produced the same digest")
	}
}

func TestSignatureRecoversToSignerKey(t *testing.T) {
	iss, key := newTestIssuer(t)

	ticket, err := iss.Create(context.Background(), "session-1", testWallet, 500, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sig, err := hex.DecodeString(ticket.Signature)
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Errorf("recovery byte = %d, want 27 or 28", v)
	}

	// Rebuild the digest the contract would and recover the signer.
	deadline := ticket.Deadline
	var player [20]byte
	raw, _ := hex.DecodeString(testWallet[2:])
	copy(player[:], raw)
	digest := iss.Digest(hashID("session-1"), player, 500, deadline)

	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])
	pub, _, err := secpecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if !pub.IsEqual(key.PubKey()) {
		t.Fatal("recovered key does not match signer")
	}
}

func TestCreateRejectsPastDeadline(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, err := iss.Create(context.Background(), "session-1", testWallet, 500, time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("ticket issued with a past deadline")
	}
}

func TestCreateRejectsBadWallet(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, err := iss.Create(context.Background(), "session-1", "not-a-wallet", 500, time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("ticket issued for malformed wallet")
	}
}

func TestMassPayoutRoundTrip(t *testing.T) {
	const rate = int64(10)
	for _, mass := range []int64{1, 9, 10, 11, 999, 1000, 22500} {
		payout := MassToPayout(mass, rate)
		back := PayoutToMass(payout, rate)
		if back > mass {
			t.Errorf("round trip gained mass: %d -> %d -> %d", mass, payout, back)
		}
		if mass-back >= rate {
			t.Errorf("round trip error too large: %d -> %d -> %d", mass, payout, back)
		}
	}
	if MassToPayout(100, 0) != 0 {
		t.Error("zero rate must not divide")
	}
}
