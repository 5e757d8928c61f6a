// Package engine implements the submission and settlement rules.
//
// The engine is the only writer of point movements. Rewards move through the
// submit/approve cycle on the shared channel; penalties, purchases and quick
// approvals settle immediately. Every settled movement is archived, but the
// ledger alone answers "how many points": history is never replayed.
package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"starledger/internal/catalog"
	"starledger/internal/channel"
	"starledger/internal/history"
)

// Actor identifies who performs or is affected by an operation.
type Actor struct {
	ID   string
	Name string
}

// Catalog resolves enabled definitions at the moment of action.
type Catalog interface {
	Resolve(c catalog.Category, id string) (catalog.Definition, error)
}

// Snapshots exposes the last delivered view of the shared channel.
type Snapshots interface {
	Current() channel.Snapshot
}

// Transport mutates the shared channel.
type Transport interface {
	Publish(ctx context.Context, sub channel.Submission) (string, error)
	Remove(ctx context.Context, key string) error
	TakeOut(ctx context.Context, key string) (channel.Submission, bool, error)
}

// Books is the ledger surface the engine settles against.
type Books interface {
	Balance(userID string) (int64, error)
	Credit(userID string, points int64) (int64, error)
	Debit(userID string, points int64) (int64, error)
	PushRemote(ctx context.Context, userID string) error
}

// Archive records settled movements.
type Archive interface {
	Append(ctx context.Context, rec history.Record) error
}

type Engine struct {
	catalog   Catalog
	snapshots Snapshots
	transport Transport
	books     Books
	archive   Archive
	now       func() time.Time
	logf      func(format string, args ...any)
}

func New(cat Catalog, snapshots Snapshots, transport Transport, books Books, archive Archive) *Engine {
	return &Engine{
		catalog:   cat,
		snapshots: snapshots,
		transport: transport,
		books:     books,
		archive:   archive,
		now:       time.Now,
		logf:      log.Printf,
	}
}

func mapChannelErr(err error) error {
	if errors.Is(err, channel.ErrUnavailable) {
		return channelUnavailable()
	}
	return err
}

// Submit publishes a pending claim for a task. A user may have at most one
// pending submission per task; duplicates are rejected before publishing.
func (e *Engine) Submit(ctx context.Context, actor Actor, cat catalog.Category, taskID, note string) (channel.Submission, error) {
	if !catalog.IsTaskCategory(cat) {
		return channel.Submission{}, validationError("category is not submittable")
	}
	def, err := e.catalog.Resolve(cat, taskID)
	if errors.Is(err, catalog.ErrNotFound) {
		return channel.Submission{}, notFound("task not found")
	}
	if err != nil {
		return channel.Submission{}, err
	}

	for _, pending := range e.snapshots.Current().List {
		if pending.Status == channel.StatusPending && pending.TaskID == taskID && pending.SubmitterID == actor.ID {
			return channel.Submission{}, alreadySubmitted(taskID)
		}
	}

	sub := channel.Submission{
		TaskID:        def.ID,
		Name:          def.Name,
		Category:      string(cat),
		Reward:        def.Points,
		SubmitterID:   actor.ID,
		SubmitterName: actor.Name,
		Note:          strings.TrimSpace(note),
		CreatedAt:     e.now().UnixMilli(),
	}
	key, err := e.transport.Publish(ctx, sub)
	if err != nil {
		return channel.Submission{}, mapChannelErr(err)
	}
	sub.Key = key
	sub.Status = channel.StatusPending
	return sub, nil
}

// Approve settles a pending submission: the approver claims it off the
// channel, the reward is credited to the submitter, and the movement is
// archived. The claim is atomic, so two concurrent approvals of the same key
// credit exactly once; the loser sees not-found.
func (e *Engine) Approve(ctx context.Context, approver Actor, key string) (channel.Submission, int64, error) {
	sub, ok, err := e.transport.TakeOut(ctx, key)
	if err != nil {
		return channel.Submission{}, 0, mapChannelErr(err)
	}
	if !ok {
		return channel.Submission{}, 0, notFound("submission not found")
	}

	e.record(ctx, history.Record{
		TaskID:      sub.TaskID,
		Name:        sub.Name,
		Points:      sub.Reward,
		Category:    sub.Category,
		ActorID:     approver.ID,
		ActorName:   approver.Name,
		SubjectID:   sub.SubmitterID,
		SubjectName: sub.SubmitterName,
		CompletedAt: e.now(),
	})

	balance, err := e.books.Credit(sub.SubmitterID, sub.Reward)
	if err != nil {
		return channel.Submission{}, 0, err
	}
	e.mirror(ctx, sub.SubmitterID)
	return sub, balance, nil
}

// Reject removes a pending submission without moving any points and without
// an archive entry. A rejected claim can simply be submitted again.
func (e *Engine) Reject(ctx context.Context, reviewer Actor, key string) (channel.Submission, error) {
	sub, ok := e.snapshots.Current().ByKey[key]
	if !ok {
		return channel.Submission{}, notFound("submission not found")
	}
	if err := e.transport.Remove(ctx, key); err != nil {
		return channel.Submission{}, mapChannelErr(err)
	}
	return sub, nil
}

// ApplyPenalty charges a penalty to the subject immediately. The debit clamps
// at zero but the archive records the full nominal cost.
func (e *Engine) ApplyPenalty(ctx context.Context, admin Actor, subject Actor, penaltyID string) (int64, error) {
	def, err := e.catalog.Resolve(catalog.CategoryPenalty, penaltyID)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, notFound("penalty not found")
	}
	if err != nil {
		return 0, err
	}

	balance, err := e.books.Debit(subject.ID, def.Points)
	if err != nil {
		return 0, err
	}
	e.record(ctx, history.Record{
		TaskID:      def.ID,
		Name:        def.Name,
		Points:      -def.Points,
		Category:    string(catalog.CategoryPenalty),
		ActorID:     admin.ID,
		ActorName:   admin.Name,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		CompletedAt: e.now(),
	})
	e.mirror(ctx, subject.ID)
	return balance, nil
}

// BuyItem redeems a store item for the buyer. Unlike penalties, a purchase
// must be covered in full: an insufficient balance fails before any debit.
func (e *Engine) BuyItem(ctx context.Context, buyer Actor, itemID string) (int64, error) {
	def, err := e.catalog.Resolve(catalog.CategoryStore, itemID)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, notFound("store item not found")
	}
	if err != nil {
		return 0, err
	}

	balance, err := e.books.Balance(buyer.ID)
	if err != nil {
		return 0, err
	}
	if balance < def.Points {
		return 0, insufficientFunds(balance, def.Points)
	}

	balance, err = e.books.Debit(buyer.ID, def.Points)
	if err != nil {
		return 0, err
	}
	e.record(ctx, history.Record{
		TaskID:      def.ID,
		Name:        def.Name,
		Points:      -def.Points,
		Category:    string(catalog.CategoryStore),
		ActorID:     buyer.ID,
		ActorName:   buyer.Name,
		SubjectID:   buyer.ID,
		SubjectName: buyer.Name,
		CompletedAt: e.now(),
	})
	e.mirror(ctx, buyer.ID)
	return balance, nil
}

// QuickApprove credits a task directly, skipping the submission cycle. Used
// by an admin marking work done on the spot.
func (e *Engine) QuickApprove(ctx context.Context, admin Actor, subject Actor, cat catalog.Category, taskID string) (int64, error) {
	if !catalog.IsTaskCategory(cat) {
		return 0, validationError("category is not approvable")
	}
	def, err := e.catalog.Resolve(cat, taskID)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, notFound("task not found")
	}
	if err != nil {
		return 0, err
	}

	balance, err := e.books.Credit(subject.ID, def.Points)
	if err != nil {
		return 0, err
	}
	e.record(ctx, history.Record{
		TaskID:      def.ID,
		Name:        def.Name,
		Points:      def.Points,
		Category:    string(cat),
		ActorID:     admin.ID,
		ActorName:   admin.Name,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		CompletedAt: e.now(),
	})
	e.mirror(ctx, subject.ID)
	return balance, nil
}

// record archives a settled movement. Archive failures never undo a ledger
// move; the points have already settled and the archive is display-only.
func (e *Engine) record(ctx context.Context, rec history.Record) {
	if err := e.archive.Append(ctx, rec); err != nil {
		e.logf("engine: archive append failed for %s/%s: %v", rec.Category, rec.TaskID, err)
	}
}

// mirror pushes the subject's balance to the realtime store, best effort.
func (e *Engine) mirror(ctx context.Context, userID string) {
	if err := e.books.PushRemote(ctx, userID); err != nil {
		e.logf("engine: remote score push failed for %s: %v", userID, err)
	}
}
