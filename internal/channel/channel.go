// Package channel is the shared realtime submission collection.
//
// Every device in a room publishes pending submissions into one Redis hash
// and listens for change notifications on a pub/sub topic. Listeners never
// diff: every notification triggers a full snapshot rebuild, sorted pending
// first and newest first, which is what all dedup and lookup checks run
// against.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"starledger/internal/util"
)

// StatusPending is the only status ever stored in the collection. Approved
// and rejected submissions are removed, not updated.
const StatusPending = "pending"

// ErrUnavailable is returned when the realtime store is not configured or
// not reachable at action time. Callers fail immediately; nothing queues.
var ErrUnavailable = errors.New("channel: realtime store not configured")

// Submission is one in-flight claim awaiting approval.
type Submission struct {
	Key           string `json:"key,omitempty"`
	TaskID        string `json:"taskId"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	Reward        int64  `json:"reward"`
	SubmitterID   string `json:"submitterId"`
	SubmitterName string `json:"submitterName"`
	Note          string `json:"note,omitempty"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
}

// Snapshot is the full live submission set as last read from the store.
type Snapshot struct {
	List  []Submission
	ByKey map[string]Submission
}

type Channel struct {
	client *redis.Client
	room   string

	mu         sync.Mutex
	active     *Subscription
	current    Snapshot
	hasCurrent bool
}

// New connects to the realtime store and verifies reachability.
func New(redisURL, room string) (*Channel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Channel{client: client, room: room}, nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, room string) *Channel {
	return &Channel{client: client, room: room}
}

// NewUnconfigured builds a channel with no backing store. Every operation
// fails with ErrUnavailable; subscriptions cannot be opened.
func NewUnconfigured(room string) *Channel {
	return &Channel{room: room}
}

// Client exposes the underlying Redis client for components that share the
// realtime store, like the ledger's score mirror. Nil when unconfigured.
func (c *Channel) Client() *redis.Client {
	return c.client
}

func (c *Channel) hashKey() string    { return "room:" + c.room + ":submissions" }
func (c *Channel) counterKey() string { return "room:" + c.room + ":submissions:seq" }
func (c *Channel) notifyKey() string  { return "room:" + c.room + ":events" }

func (c *Channel) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Channel) Ping(ctx context.Context) error {
	if c.client == nil {
		return ErrUnavailable
	}
	return c.client.Ping(ctx).Err()
}

// Publish appends a new pending submission and returns its channel-assigned
// key. Keys are opaque to callers; the sequence component only guarantees
// uniqueness, never ordering semantics.
func (c *Channel) Publish(ctx context.Context, sub Submission) (string, error) {
	if c.client == nil {
		return "", ErrUnavailable
	}
	seq, err := c.client.Incr(ctx, c.counterKey()).Result()
	if err != nil {
		return "", fmt.Errorf("allocate submission key: %w", err)
	}
	sub.Key = fmt.Sprintf("sub_%08d_%s", seq, util.ShortToken())
	sub.Status = StatusPending
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}
	if err := c.client.HSet(ctx, c.hashKey(), sub.Key, payload).Err(); err != nil {
		return "", fmt.Errorf("publish submission: %w", err)
	}
	c.notify(ctx, "publish", sub.Key)
	return sub.Key, nil
}

// Remove deletes a submission by key. Removing an absent key succeeds
// silently; that idempotency is what keeps concurrent reject/approve safe.
func (c *Channel) Remove(ctx context.Context, key string) error {
	if c.client == nil {
		return ErrUnavailable
	}
	if err := c.client.HDel(ctx, c.hashKey(), key).Err(); err != nil {
		return fmt.Errorf("remove submission: %w", err)
	}
	c.notify(ctx, "remove", key)
	return nil
}

// takeOutScript atomically reads and deletes one hash field, so exactly one
// caller can ever claim a given submission.
var takeOutScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if raw then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return raw
`)

// TakeOut claims a submission: it returns the record and removes it in one
// atomic step. The second claimant of the same key gets ok=false, which is
// the idempotency token that makes approval safe to call twice.
func (c *Channel) TakeOut(ctx context.Context, key string) (Submission, bool, error) {
	if c.client == nil {
		return Submission{}, false, ErrUnavailable
	}
	raw, err := takeOutScript.Run(ctx, c.client, []string{c.hashKey()}, key).Text()
	if errors.Is(err, redis.Nil) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, fmt.Errorf("take out submission: %w", err)
	}
	var sub Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return Submission{}, false, fmt.Errorf("decode submission %q: %w", key, err)
	}
	c.notify(ctx, "remove", key)
	return sub, true, nil
}

// Snapshot rebuilds the full live set from the store.
func (c *Channel) Snapshot(ctx context.Context) (Snapshot, error) {
	if c.client == nil {
		return Snapshot{}, ErrUnavailable
	}
	raw, err := c.client.HGetAll(ctx, c.hashKey()).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read submissions: %w", err)
	}

	snap := Snapshot{
		List:  make([]Submission, 0, len(raw)),
		ByKey: make(map[string]Submission, len(raw)),
	}
	for key, value := range raw {
		var sub Submission
		if err := json.Unmarshal([]byte(value), &sub); err != nil {
			log.Printf("channel: skipping undecodable submission %q: %v", key, err)
			continue
		}
		sub.Key = key
		snap.List = append(snap.List, sub)
		snap.ByKey[key] = sub
	}

	sort.Slice(snap.List, func(i, j int) bool {
		left, right := snap.List[i], snap.List[j]
		leftPending := left.Status == StatusPending
		rightPending := right.Status == StatusPending
		if leftPending != rightPending {
			return leftPending
		}
		if left.CreatedAt != right.CreatedAt {
			return left.CreatedAt > right.CreatedAt
		}
		return left.Key > right.Key
	})
	return snap, nil
}

// Current returns the last delivered snapshot without touching the store.
// Before the first delivery it is empty, never nil maps.
func (c *Channel) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCurrent {
		return Snapshot{List: nil, ByKey: map[string]Submission{}}
	}
	return c.current
}

func (c *Channel) setCurrent(snap Snapshot) {
	c.mu.Lock()
	c.current = snap
	c.hasCurrent = true
	c.mu.Unlock()
}

func (c *Channel) notify(ctx context.Context, op, key string) {
	// Best effort: a lost notification only delays the next snapshot until
	// another change lands.
	if err := c.client.Publish(ctx, c.notifyKey(), op+":"+key).Err(); err != nil {
		log.Printf("channel: notify %s %s failed: %v", op, key, err)
	}
}

// Subscription is one active snapshot feed. One per process at a time.
type Subscription struct {
	channel *Channel
	pubsub  *redis.PubSub
	done    chan struct{}
}

// Subscribe opens the snapshot feed: the current snapshot is delivered
// immediately, then once per remote change. Calling Subscribe while a
// subscription is active is a no-op returning the live handle.
func (c *Channel) Subscribe(ctx context.Context, onSnapshot func(Snapshot)) (*Subscription, error) {
	if c.client == nil {
		return nil, ErrUnavailable
	}

	c.mu.Lock()
	if c.active != nil {
		active := c.active
		c.mu.Unlock()
		return active, nil
	}
	pubsub := c.client.Subscribe(ctx, c.notifyKey())
	sub := &Subscription{channel: c, pubsub: pubsub, done: make(chan struct{})}
	c.active = sub
	c.mu.Unlock()

	snap, err := c.Snapshot(ctx)
	if err != nil {
		// The feed goroutine has not started yet; release the slot directly.
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		_ = pubsub.Close()
		close(sub.done)
		return nil, err
	}
	c.setCurrent(snap)
	if onSnapshot != nil {
		onSnapshot(snap)
	}

	go sub.loop(onSnapshot)
	return sub, nil
}

func (sub *Subscription) loop(onSnapshot func(Snapshot)) {
	defer close(sub.done)
	for range sub.pubsub.Channel() {
		// The notification payload is ignored: snapshots are always rebuilt
		// wholesale from the store.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snap, err := sub.channel.Snapshot(ctx)
		cancel()
		if err != nil {
			log.Printf("channel: snapshot rebuild failed: %v", err)
			continue
		}
		sub.channel.setCurrent(snap)
		if onSnapshot != nil {
			onSnapshot(snap)
		}
	}
}

// Unsubscribe stops delivery and releases the single-subscription slot.
func (sub *Subscription) Unsubscribe() {
	sub.channel.mu.Lock()
	if sub.channel.active == sub {
		sub.channel.active = nil
	}
	sub.channel.mu.Unlock()
	_ = sub.pubsub.Close()
	<-sub.done
}
