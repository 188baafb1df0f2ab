package ticket

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"
)

// signedMessagePrefix is what EVM verifiers prepend before recovering the
// signer of a 32-byte digest.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

const ticketKeyPrefix = "exit_ticket:"

var ErrNotFound = errors.New("ticket: not found")

// Ticket is a signed claim a player submits to the settlement contract to
// withdraw their payout. ServerID and SessionID are 32-byte values, Player is
// the 20-byte wallet address, all hex-encoded. Signature is r||s||v.
type Ticket struct {
	ServerID  string    `json:"server_id"`
	SessionID string    `json:"session_id"`
	Player    string    `json:"player"`
	Payout    int64     `json:"payout"`
	Deadline  time.Time `json:"deadline"`
	Signature string    `json:"signature"`
}

// Issuer builds and signs exit tickets and keeps the hot copy in Redis with a
// TTL matching the ticket deadline. When a database is attached every issued
// ticket also gets a durable audit row.
type Issuer struct {
	contract [20]byte
	serverID [32]byte
	serverHx string
	key      *secp256k1.PrivateKey
	rdb      *redis.Client
	db       *sqlx.DB
}

// NewIssuer derives the fixed digest fields once. contractAddress is a
// 0x-prefixed 20-byte hex address; serverID is the room's UUID, folded to a
// fixed 32-byte value the contract receives verbatim.
func NewIssuer(contractAddress, serverID string, key *secp256k1.PrivateKey, rdb *redis.Client, db *sqlx.DB) (*Issuer, error) {
	iss := &Issuer{key: key, rdb: rdb, db: db}

	raw, err := hex.DecodeString(strings.TrimPrefix(contractAddress, "0x"))
	if err != nil || len(raw) != 20 {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	copy(iss.contract[:], raw)

	iss.serverID = hashID(serverID)
	iss.serverHx = hex.EncodeToString(iss.serverID[:])
	return iss, nil
}

// hashID folds an arbitrary string id into the fixed 32-byte form used in the
// digest and handed to the settlement contract.
func hashID(id string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Digest is the exact 32-byte message the settlement contract reconstructs:
// keccak256 of the fixed-width field concatenation, wrapped in the signed
// message prefix and hashed again.
func (iss *Issuer) Digest(sessionID [32]byte, player [20]byte, payout int64, deadline time.Time) [32]byte {
	buf := make([]byte, 0, 20+32+32+20+32+32)
	buf = append(buf, iss.contract[:]...)
	buf = append(buf, iss.serverID[:]...)
	buf = append(buf, sessionID[:]...)
	buf = append(buf, player[:]...)
	buf = appendUint256(buf, uint64(payout))
	buf = appendUint256(buf, uint64(deadline.Unix()))

	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	var inner [32]byte
	h.Sum(inner[:0])

	h = sha3.NewLegacyKeccak256()
	h.Write([]byte(signedMessagePrefix))
	h.Write(inner[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// appendUint256 appends v as a 32-byte big-endian word.
func appendUint256(buf []byte, v uint64) []byte {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], v)
	return append(buf, word[:]...)
}

// sign produces the 65-byte r||s||v signature EVM verifiers expect. The
// compact form puts the recovery byte first, so it gets rearranged.
func (iss *Issuer) sign(digest [32]byte) []byte {
	compact := secpecdsa.SignCompact(iss.key, digest[:], false)
	sig := make([]byte, 65)
	copy(sig[0:64], compact[1:65])
	sig[64] = compact[0]
	return sig
}

// Create signs an exit ticket and stores it under the session id with a TTL
// running out at the deadline. The caller must already hold an exit
// reservation for the same session and payout.
func (iss *Issuer) Create(ctx context.Context, sessionID, playerWallet string, payout int64, deadline time.Time) (*Ticket, error) {
	ttl := time.Until(deadline)
	if ttl <= 0 {
		return nil, fmt.Errorf("ticket deadline %v already passed", deadline)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(playerWallet, "0x"))
	if err != nil || len(raw) != 20 {
		return nil, fmt.Errorf("invalid player wallet %q", playerWallet)
	}
	var player [20]byte
	copy(player[:], raw)

	sid := hashID(sessionID)
	digest := iss.Digest(sid, player, payout, deadline)
	sig := iss.sign(digest)

	t := &Ticket{
		ServerID:  iss.serverHx,
		SessionID: hex.EncodeToString(sid[:]),
		Player:    hex.EncodeToString(player[:]),
		Payout:    payout,
		Deadline:  deadline,
		Signature: hex.EncodeToString(sig),
	}

	if iss.rdb != nil {
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		if err := iss.rdb.SetEx(ctx, ticketKeyPrefix+sessionID, data, ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to store ticket: %w", err)
		}
	}

	if iss.db != nil {
		_, err := iss.db.ExecContext(ctx, `INSERT INTO exit_tickets (server_id, session_id, player, payout, deadline, signature, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			t.ServerID, sessionID, t.Player, t.Payout, t.Deadline, t.Signature)
		if err != nil {
			log.Printf("[TICKET] Failed to write audit row for session %s: %v", sessionID, err)
		}
	}

	log.Printf("[TICKET] Issued exit ticket: session=%s payout=%d deadline=%v", sessionID, payout, deadline.UTC().Format(time.RFC3339))
	return t, nil
}

// Get returns the live ticket for a session, or ErrNotFound once it expired
// or was redeemed.
func (iss *Issuer) Get(ctx context.Context, sessionID string) (*Ticket, error) {
	if iss.rdb == nil {
		return nil, ErrNotFound
	}
	data, err := iss.rdb.Get(ctx, ticketKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete drops the hot copy of a ticket, and marks the audit row redeemed.
// Called by reconciliation once the matching on-chain exit is observed.
func (iss *Issuer) Delete(ctx context.Context, sessionID string) error {
	if iss.rdb != nil {
		if err := iss.rdb.Del(ctx, ticketKeyPrefix+sessionID).Err(); err != nil {
			return err
		}
	}
	if iss.db != nil {
		_, err := iss.db.ExecContext(ctx, `UPDATE exit_tickets SET redeemed_at=NOW()
			WHERE session_id=$1 AND redeemed_at IS NULL`, sessionID)
		if err != nil {
			log.Printf("[TICKET] Failed to mark ticket redeemed for session %s: %v", sessionID, err)
		}
	}
	return nil
}

// MassToPayout converts in-game mass to settlement units, flooring.
func MassToPayout(mass, massPerUnit int64) int64 {
	if massPerUnit <= 0 {
		return 0
	}
	return mass / massPerUnit
}

// PayoutToMass converts settlement units back to in-game mass.
func PayoutToMass(payout, massPerUnit int64) int64 {
	return payout * massPerUnit
}
