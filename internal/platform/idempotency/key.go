// Package idempotency replays the first successful response for a repeated Idempotency-Key so
// clients can retry order placement and payment creation safely.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

const (
	// DefaultTTL is how long a completed response stays replayable.
	DefaultTTL = 24 * time.Hour
	// DefaultLockTimeout bounds how long an in-flight claim blocks retries. A claim left behind
	// by a crashed instance frees itself after this.
	DefaultLockTimeout = 2 * time.Minute
)

// ErrKeyReused means the key was already claimed for a request with a different fingerprint.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Key identifies a client supplied key within the caller that sent it.
type Key struct {
	Scope string
	Value string
}

func (k Key) id() string {
	sum := sha256.Sum256([]byte(k.Scope + "\x00" + k.Value))
	return hex.EncodeToString(sum[:])
}

// Outcome says what the middleware should do after a claim.
type Outcome int

const (
	// OutcomeOwned means the caller holds the key and must run the request.
	OutcomeOwned Outcome = iota
	// OutcomeReplay means Entry carries a response to send back.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// Entry is the stored state of one key.
type Entry struct {
	Key         Key
	Fingerprint string
	Done        bool
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Claim is the result of Store.Claim.
type Claim struct {
	Outcome Outcome
	Entry   Entry
}

// Response is a captured handler response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists claims and completed responses.
type Store interface {
	// Claim takes key for fingerprint, holding it for lock unless it is already taken.
	Claim(ctx context.Context, key Key, fingerprint string, now time.Time, lock time.Duration) (Claim, error)
	// Complete stores resp as the replay for key, kept until now+ttl.
	Complete(ctx context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	// Abandon frees key so the client may retry.
	Abandon(ctx context.Context, key Key) error
	// Purge removes up to limit entries that expired before now.
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

func pendingEntry(key Key, fingerprint string, now time.Time, lock time.Duration) Entry {
	if lock <= 0 {
		lock = DefaultLockTimeout
	}
	return Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(lock)}
}

// settle turns a pending entry into a completed one.
func settle(entry Entry, resp Response, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry.Done = true
	entry.Status = resp.Status
	entry.Header = replayableHeader(resp.Header)
	entry.Body = append([]byte(nil), resp.Body...)
	entry.ExpiresAt = now.Add(ttl)
	return entry
}

// decide reports the claim for an existing entry. ok is false when the entry has expired and
// the key may be claimed afresh.
func decide(existing Entry, fingerprint string, now time.Time) (claim Claim, ok bool, err error) {
	if !now.Before(existing.ExpiresAt) {
		return Claim{}, false, nil
	}
	if existing.Fingerprint != fingerprint {
		return Claim{}, true, ErrKeyReused
	}
	if existing.Done {
		return Claim{Outcome: OutcomeReplay, Entry: existing}, true, nil
	}
	return Claim{Outcome: OutcomeInFlight, Entry: existing}, true, nil
}

func replayableHeader(header http.Header) map[string][]string {
	var out map[string][]string
	for name, values := range header {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Date", "Connection", "Transfer-Encoding", "Set-Cookie":
			continue
		}
		if out == nil {
			out = make(map[string][]string, len(header))
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
