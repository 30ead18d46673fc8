package calendar_provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
)

// OAuthState is the one-time state parameter of a provider login.
type OAuthState struct {
	Nonce     string
	UserId    string
	Provider  calendar.Provider
	FinalUrl  string
	CreatedAt time.Time
}

type StateRepository interface {
	// StoreState replaces any pending login of the same user and provider.
	StoreState(ctx context.Context, state OAuthState) error
	// ConsumeState removes and returns the state. It returns nil when the nonce is unknown or
	// was already used.
	ConsumeState(ctx context.Context, nonce string) (*OAuthState, error)
}

type StateRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewStateRepository(db *pgxpool.Pool) *StateRepositoryImpl {
	return &StateRepositoryImpl{db: db}
}

func (r *StateRepositoryImpl) StoreState(ctx context.Context, state OAuthState) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		err := fmt.Errorf("could not start transaction: %v", err)
		log.Error(err)
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "DELETE FROM oauth_state WHERE user_id = $1 AND provider = $2", state.UserId, state.Provider)
	if err != nil {
		err := fmt.Errorf("could not delete previous oauth state: %v", err)
		log.Error(err)
		return err
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO oauth_state (nonce, user_id, provider, final_url, created_at) VALUES ($1, $2, $3, $4, $5)",
		state.Nonce, state.UserId, state.Provider, state.FinalUrl, state.CreatedAt,
	)
	if err != nil {
		err := fmt.Errorf("could not store oauth state: %v", err)
		log.Error(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		err := fmt.Errorf("could not commit oauth state: %v", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *StateRepositoryImpl) ConsumeState(ctx context.Context, nonce string) (*OAuthState, error) {
	var state OAuthState
	err := r.db.QueryRow(ctx,
		"DELETE FROM oauth_state WHERE nonce = $1 RETURNING nonce, user_id, provider, final_url, created_at",
		nonce,
	).Scan(&state.Nonce, &state.UserId, &state.Provider, &state.FinalUrl, &state.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		err := fmt.Errorf("could not consume oauth state: %v", err)
		log.Error(err)
		return nil, err
	}
	return &state, nil
}

type StateRepositoryStub struct {
	mu     sync.Mutex
	states map[string]OAuthState
}

func NewStateRepositoryStub() *StateRepositoryStub {
	return &StateRepositoryStub{states: make(map[string]OAuthState)}
}

func (r *StateRepositoryStub) StoreState(_ context.Context, state OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for nonce, s := range r.states {
		if s.UserId == state.UserId && s.Provider == state.Provider {
			delete(r.states, nonce)
		}
	}
	r.states[state.Nonce] = state
	return nil
}

func (r *StateRepositoryStub) ConsumeState(_ context.Context, nonce string) (*OAuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[nonce]
	if !ok {
		return nil, nil
	}
	delete(r.states, nonce)
	return &state, nil
}
