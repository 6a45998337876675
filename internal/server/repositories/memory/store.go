// Package memory is an in-process backend used for local development and
// service tests. A Store is both a dbx.Transactor and a
// repomanager.RepositoryManager; the DBTX handles it receives are ignored.
package memory

import (
	"context"
	"database/sql"
	"sync"

	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/friendrequests"
	"github.com/matenet/backend/internal/server/repositories/interactions"
	"github.com/matenet/backend/internal/server/repositories/nonces"
	"github.com/matenet/backend/internal/server/repositories/users"
	"github.com/matenet/backend/internal/timex"
)

type txKey struct{}

type state struct {
	users        map[string]*models.User
	friends      map[string][]string
	interactions []*models.Interaction
	requests     []*models.FriendRequest
	nonces       map[string]*models.Nonce
}

func newState() *state {
	return &state{
		users:   make(map[string]*models.User),
		friends: make(map[string][]string),
		nonces:  make(map[string]*models.Nonce),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		c.users[id] = cloneUser(u)
	}
	for id, f := range s.friends {
		c.friends[id] = append([]string(nil), f...)
	}
	c.interactions = make([]*models.Interaction, len(s.interactions))
	for i, in := range s.interactions {
		cp := *in
		c.interactions[i] = &cp
	}
	c.requests = make([]*models.FriendRequest, len(s.requests))
	for i, r := range s.requests {
		cp := *r
		c.requests[i] = &cp
	}
	for k, n := range s.nonces {
		cp := *n
		c.nonces[k] = &cp
	}
	return c
}

// Store holds all data in memory. Operations are serialized; WithinTx holds
// the lock for the whole callback and restores a snapshot when it fails.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock timex.Clock
}

func NewStore(clock timex.Clock) *Store {
	return &Store{data: newState(), clock: clock}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store lock unless ctx already runs inside one of this
// store's transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Conn() dbx.DBTX { return nil }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s), nil)
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Users(dbx.DBTX) users.Repository { return &userRepo{s: s} }

func (s *Store) Interactions(dbx.DBTX) interactions.Repository { return &interactionRepo{s: s} }

func (s *Store) FriendRequests(dbx.DBTX) friendrequests.Repository { return &friendRequestRepo{s: s} }

func (s *Store) Nonces(dbx.DBTX) nonces.Repository { return &nonceRepo{s: s} }
