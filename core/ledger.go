package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"twitt3r/core/events"
	"twitt3r/core/types"
	"twitt3r/crypto"
	"twitt3r/native/tweet"
	"twitt3r/observability"
	"twitt3r/state"
)

// Ledger is the single-writer entry point for every operation. Mutations are
// fully serialized: each one is validated, staged, committed (or discarded),
// and its events published before the next begins. Queries run concurrently
// under a read lock and only ever observe committed state.
type Ledger struct {
	mu     sync.RWMutex
	state  *state.Manager
	engine *tweet.Engine
	logger *slog.Logger

	journal EventJournal
	buffer  eventBuffer

	streamMu sync.Mutex
	seq      uint64
	subID    uint64
	subs     map[uint64]chan StreamEvent
	history  []StreamEvent
}

// eventBuffer collects the events an engine operation emits so the ledger can
// publish them only after the operation commits.
type eventBuffer struct {
	events []events.Event
}

func (b *eventBuffer) Emit(evt events.Event) {
	b.events = append(b.events, evt)
}

func (b *eventBuffer) reset() { b.events = nil }

// NewLedger wires the engine to the state manager. The journal is optional;
// without one, subscribers can only resume from the in-memory backlog.
func NewLedger(manager *state.Manager, logger *slog.Logger, journal EventJournal) (*Ledger, error) {
	if manager == nil {
		return nil, fmt.Errorf("core: state manager not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		state:   manager,
		engine:  tweet.NewEngine(),
		logger:  logger,
		journal: journal,
		subs:    make(map[uint64]chan StreamEvent),
	}
	l.engine.SetState(manager)
	l.engine.SetEmitter(&l.buffer)
	if journal != nil {
		last, err := journal.LastSequence()
		if err != nil {
			return nil, fmt.Errorf("core: restore journal cursor: %w", err)
		}
		l.seq = last
	}
	return l, nil
}

// Engine exposes the underlying engine so callers can inject deterministic
// clock and draw sources. Intended for tests and daemon wiring only.
func (l *Ledger) Engine() *tweet.Engine { return l.engine }

// InitGenesis seeds owner, settings, and the initial treasury on first boot.
func (l *Ledger) InitGenesis(owner [20]byte, settings types.Settings, initialTreasury *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.InitGenesis(owner, settings, initialTreasury)
}

// Initialized reports whether genesis state exists.
func (l *Ledger) Initialized() (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Initialized()
}

// apply runs one engine operation under the write lock with commit-or-discard
// semantics and publishes its events on success.
func (l *Ledger) apply(method string, op func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Begin()
	l.buffer.reset()
	if err := op(); err != nil {
		l.state.Discard()
		observability.LedgerMetrics().ObserveOperation(method, "rejected")
		return err
	}
	if err := l.state.Commit(); err != nil {
		l.state.Discard()
		observability.LedgerMetrics().ObserveOperation(method, "error")
		return err
	}
	observability.LedgerMetrics().ObserveOperation(method, "ok")
	observability.LedgerMetrics().SetTreasury(l.state.Treasury())
	observability.LedgerMetrics().SetTweetTotal(l.state.TweetCount())
	l.publish(l.buffer.events)
	l.buffer.reset()
	return nil
}

// CreateTweet appends a new tweet, resolving price and lottery atomically.
func (l *Ledger) CreateTweet(caller [20]byte, message string, replyTo, retweetOf uint64, payment *big.Int) (uint64, error) {
	var id uint64
	err := l.apply("create", func() error {
		var err error
		id, err = l.engine.CreateTweet(caller, message, replyTo, retweetOf, payment)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("tweet created",
		slog.Uint64("id", id),
		slog.String("author", crypto.MustNewAddress(caller).String()))
	return id, nil
}

// EditTweet rewrites the message of an active tweet owned by caller.
func (l *Ledger) EditTweet(caller [20]byte, id uint64, message string) error {
	return l.apply("edit", func() error {
		return l.engine.EditTweet(caller, id, message)
	})
}

// DeleteTweet soft-deletes an active tweet owned by caller.
func (l *Ledger) DeleteTweet(caller [20]byte, id uint64) error {
	return l.apply("delete", func() error {
		return l.engine.DeleteTweet(caller, id)
	})
}

// Pause gates create/edit/delete. Owner-only.
func (l *Ledger) Pause(caller [20]byte) error {
	return l.apply("pause", func() error {
		return l.engine.Pause(caller)
	})
}

// Unpause resumes normal operation. Owner-only.
func (l *Ledger) Unpause(caller [20]byte) error {
	return l.apply("unpause", func() error {
		return l.engine.Unpause(caller)
	})
}

// UpdateSettings overwrites odds, price, and jackpot. Owner-only.
func (l *Ledger) UpdateSettings(caller [20]byte, odds uint32, price, jackpot *big.Int) error {
	return l.apply("updateSettings", func() error {
		return l.engine.UpdateSettings(caller, odds, price, jackpot)
	})
}

// Withdraw sweeps the entire treasury to the owner.
func (l *Ledger) Withdraw(caller [20]byte) (*big.Int, error) {
	var swept *big.Int
	err := l.apply("withdraw", func() error {
		var err error
		swept, err = l.engine.Withdraw(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("treasury withdrawn", slog.String("amount", swept.String()))
	return swept, nil
}

// Deposit credits the treasury. Callable by anyone.
func (l *Ledger) Deposit(from [20]byte, amount *big.Int) error {
	err := l.apply("deposit", func() error {
		return l.engine.Deposit(amount)
	})
	if err != nil {
		return err
	}
	l.logger.Info("treasury deposit",
		slog.String("from", crypto.MustNewAddress(from).String()),
		slog.String("amount", amount.String()))
	return nil
}

// Clear wipes the tweet collection and re-bases the id counter. Owner-only.
func (l *Ledger) Clear(caller [20]byte) error {
	return l.apply("clear", func() error {
		return l.engine.Clear(caller)
	})
}

// --- queries ---

// GetTweet returns a clone of the tweet with the given id.
func (l *Ledger) GetTweet(id uint64) (*types.Tweet, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.TweetGet(id)
}

// ListTweets returns all stored tweets in id order, soft-deleted included.
func (l *Ledger) ListTweets() []*types.Tweet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.TweetList()
}

// GetTotalTweets returns the number of ids allocated since the last clear.
func (l *Ledger) GetTotalTweets() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.TweetCount()
}

// GetOwner returns the ledger owner.
func (l *Ledger) GetOwner() [20]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Owner()
}

// GetBalance returns the current treasury balance.
func (l *Ledger) GetBalance() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Treasury()
}

// GetSettings returns the current lottery settings.
func (l *Ledger) GetSettings() types.Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Settings()
}

// IsPaused reports whether mutations are gated.
func (l *Ledger) IsPaused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Paused()
}
