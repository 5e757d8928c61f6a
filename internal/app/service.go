// Package app wires the component services behind the HTTP surface.
package app

import (
	"context"
	"errors"

	"starledger/internal/account"
	"starledger/internal/catalog"
	"starledger/internal/channel"
	"starledger/internal/engine"
	"starledger/internal/history"
	"starledger/internal/ledger"
	"starledger/internal/localstore"
)

type Service struct {
	Catalog  *catalog.Service
	Engine   *engine.Engine
	Accounts *account.Service
	Books    *ledger.Ledger
	Channel  *channel.Channel
	Archive  history.Archive
	Local    *localstore.Store
}

func NewService(
	cat *catalog.Service,
	eng *engine.Engine,
	accounts *account.Service,
	books *ledger.Ledger,
	ch *channel.Channel,
	archive history.Archive,
	local *localstore.Store,
) *Service {
	return &Service{
		Catalog:  cat,
		Engine:   eng,
		Accounts: accounts,
		Books:    books,
		Channel:  ch,
		Archive:  archive,
		Local:    local,
	}
}

// ReadyCheck is one dependency's readiness result.
type ReadyCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready probes every dependency. The local store and the realtime channel
// are required; the history archive is optional and reports "disabled" when
// not configured without failing readiness.
func (s *Service) Ready(ctx context.Context) (bool, map[string]ReadyCheck) {
	ready := true
	checks := map[string]ReadyCheck{}

	if err := s.Local.Ping(ctx); err != nil {
		ready = false
		checks["local"] = ReadyCheck{Status: "error", Error: err.Error()}
	} else {
		checks["local"] = ReadyCheck{Status: "ok"}
	}

	if err := s.Channel.Ping(ctx); err != nil {
		ready = false
		checks["channel"] = ReadyCheck{Status: "error", Error: err.Error()}
	} else {
		checks["channel"] = ReadyCheck{Status: "ok"}
	}

	if err := s.Archive.Ping(ctx); errors.Is(err, history.ErrDisabled) {
		checks["archive"] = ReadyCheck{Status: "disabled"}
	} else if err != nil {
		ready = false
		checks["archive"] = ReadyCheck{Status: "error", Error: err.Error()}
	} else {
		checks["archive"] = ReadyCheck{Status: "ok"}
	}

	return ready, checks
}

// subjectActor resolves a username into an engine actor, using the account
// nickname when the account is known on this device.
func (s *Service) subjectActor(username string) engine.Actor {
	if user, err := s.Accounts.Get(username); err == nil {
		return engine.Actor{ID: user.Username, Name: user.Nickname}
	}
	return engine.Actor{ID: username, Name: username}
}
