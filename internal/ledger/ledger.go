// Package ledger tracks per-user point balances.
//
// The durable copy lives in the device-local store; the realtime store
// carries a best-effort mirror so other devices can show the number.
// Balances never go negative and an unknown user simply has zero.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"starledger/internal/localstore"
)

type Ledger struct {
	local  *localstore.Store
	client *redis.Client
	room   string
	now    func() time.Time
}

// New builds a ledger over the local store and an optional realtime mirror.
// A nil client disables the mirror; all remote calls become no-ops or misses.
func New(local *localstore.Store, client *redis.Client, room string) *Ledger {
	return &Ledger{local: local, client: client, room: room, now: time.Now}
}

func localKey(userID string) string {
	return "score_" + userID + "_v1"
}

func (l *Ledger) remoteKey(userID string) string {
	return "room:" + l.room + ":score:" + userID
}

// Balance returns the local balance, zero for users never credited.
func (l *Ledger) Balance(userID string) (int64, error) {
	raw, err := l.local.Get(localKey(userID))
	if errors.Is(err, localstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance for %q: %w", userID, err)
	}
	return score, nil
}

func (l *Ledger) setLocal(userID string, score int64) error {
	return l.local.Set(localKey(userID), strconv.FormatInt(score, 10))
}

// Credit adds points and returns the new balance.
func (l *Ledger) Credit(userID string, points int64) (int64, error) {
	balance, err := l.Balance(userID)
	if err != nil {
		return 0, err
	}
	balance += points
	if err := l.setLocal(userID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit subtracts points, clamping at zero. Charging more than the balance
// is not an error: the remainder is simply forgiven.
func (l *Ledger) Debit(userID string, points int64) (int64, error) {
	balance, err := l.Balance(userID)
	if err != nil {
		return 0, err
	}
	balance -= points
	if balance < 0 {
		balance = 0
	}
	if err := l.setLocal(userID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// remoteScore is the mirror payload in the realtime store.
type remoteScore struct {
	Score     int64 `json:"score"`
	UpdatedAt int64 `json:"updatedAt"`
}

// PushRemote mirrors the current local balance to the realtime store.
// Without a configured mirror it is a silent no-op.
func (l *Ledger) PushRemote(ctx context.Context, userID string) error {
	if l.client == nil {
		return nil
	}
	balance, err := l.Balance(userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(remoteScore{Score: balance, UpdatedAt: l.now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, l.remoteKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("push remote score: %w", err)
	}
	return nil
}

// FetchRemote reads the mirrored balance. ok is false when no mirror exists
// for the user or the mirror is not configured.
func (l *Ledger) FetchRemote(ctx context.Context, userID string) (int64, bool, error) {
	if l.client == nil {
		return 0, false, nil
	}
	raw, err := l.client.Get(ctx, l.remoteKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("fetch remote score: %w", err)
	}
	var score remoteScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return 0, false, fmt.Errorf("corrupt remote score for %q: %w", userID, err)
	}
	return score.Score, true, nil
}

// Reconcile merges the local and mirrored balances by taking the larger one
// and writing it back to both stores. Device clocks are untrusted, so the
// max wins regardless of which copy was updated last; earned points survive
// a device swap, while a spend on one device only settles once that device
// pushes its lower mirror.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (int64, error) {
	local, err := l.Balance(userID)
	if err != nil {
		return 0, err
	}
	remote, ok, err := l.FetchRemote(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := l.PushRemote(ctx, userID); err != nil {
			return 0, err
		}
		return local, nil
	}

	merged := local
	if remote > merged {
		merged = remote
	}
	if merged != local {
		if err := l.setLocal(userID, merged); err != nil {
			return 0, err
		}
	}
	if err := l.PushRemote(ctx, userID); err != nil {
		return 0, err
	}
	return merged, nil
}
