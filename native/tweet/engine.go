package tweet

import (
	"encoding/binary"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"twitt3r/core/events"
	"twitt3r/core/types"
)

// CooldownPeriod is the minimum gap, in seconds, between two successful tweets
// from the same sender.
const CooldownPeriod = 60

// ledgerState captures the state manager capabilities the engine needs. Writes
// are staged by the backing manager; the engine never observes a partially
// committed operation.
type ledgerState interface {
	TweetGet(id uint64) (*types.Tweet, bool)
	TweetPut(*types.Tweet) error
	NextTweetID() uint64
	SetNextTweetID(uint64)
	TweetCount() uint64
	Settings() types.Settings
	SetSettings(types.Settings)
	Treasury() *big.Int
	SetTreasury(*big.Int)
	Cooldown(addr [20]byte) (int64, bool)
	SetCooldown(addr [20]byte, now int64)
	Owner() [20]byte
	Paused() bool
	SetPaused(bool)
	ClearTweets()
}

// DrawFunc produces the lottery percentile in [0,100) for a tweet. The inputs
// are the observable values the draw is derived from; tests substitute a fixed
// function to force wins and losses.
type DrawFunc func(caller [20]byte, now int64, id uint64) uint32

// Engine implements the ledger's state machine: authorization, timing and
// payment guards, tweet mutations, administrative controls, and the posting
// lottery. Every operation validates fully before staging any write, so a
// rejected call leaves state untouched.
type Engine struct {
	state   ledgerState
	emitter events.Emitter
	nowFn   func() int64
	drawFn  DrawFunc
}

// NewEngine creates a tweet engine with a no-op emitter and the default clock
// and draw sources. Callers override them via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		drawFn:  defaultDraw,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetDrawFunc overrides the lottery draw source. Passing nil restores the
// default derivation.
func (e *Engine) SetDrawFunc(draw DrawFunc) {
	if draw == nil {
		e.drawFn = defaultDraw
		return
	}
	e.drawFn = draw
}

// defaultDraw hashes caller-observable values into a percentile. The recipe is
// deliberately predictable (a caller who controls its timing can foresee the
// outcome); deployments that need an unpredictable lottery must inject a draw
// backed by a real entropy source.
func defaultDraw(caller [20]byte, now int64, id uint64) uint32 {
	seed := make([]byte, 0, 36)
	seed = append(seed, caller[:]...)
	seed = binary.BigEndian.AppendUint64(seed, uint64(now))
	seed = binary.BigEndian.AppendUint64(seed, id)
	digest := ethcrypto.Keccak256(seed)
	draw := new(big.Int).SetBytes(digest)
	return uint32(draw.Mod(draw, big.NewInt(100)).Uint64())
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) requireState() (ledgerState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state, nil
}

func (e *Engine) requireOwner(caller [20]byte) (ledgerState, error) {
	state, err := e.requireState()
	if err != nil {
		return nil, err
	}
	if state.Owner() != caller {
		return nil, ErrNotOwner
	}
	return state, nil
}

// loadActive fetches a tweet that must exist and must not be soft-deleted.
func loadActive(state ledgerState, id uint64) (*types.Tweet, error) {
	if id == 0 || id >= state.NextTweetID() {
		return nil, ErrInvalidID
	}
	tweet, ok := state.TweetGet(id)
	if !ok {
		return nil, ErrInvalidID
	}
	if tweet.Deleted {
		return nil, ErrDeletedTweet
	}
	return tweet, nil
}

// CreateTweet appends a new tweet for caller. The attached payment must equal
// the configured price exactly; the price is credited to the treasury and the
// lottery resolved in the same atomic operation. A winning draw against an
// underfunded treasury voids the whole call: no tweet, no charge.
func (e *Engine) CreateTweet(caller [20]byte, message string, replyTo, retweetOf uint64, payment *big.Int) (uint64, error) {
	state, err := e.requireState()
	if err != nil {
		return 0, err
	}
	if state.Paused() {
		return 0, ErrPaused
	}
	if len(message) > types.MaxMessageLength {
		return 0, ErrInvalidMessage
	}
	if replyTo != 0 && retweetOf != 0 {
		return 0, ErrInvalidID
	}
	if retweetOf != 0 && message != "" {
		// A retweet is pure republication; the message slot stays empty.
		return 0, ErrInvalidMessage
	}
	now := e.now()
	if last, ok := state.Cooldown(caller); ok && now-last < CooldownPeriod {
		return 0, ErrSenderCooldown
	}
	settings := state.Settings()
	paid := big.NewInt(0)
	if payment != nil {
		paid.Set(payment)
	}
	if paid.Cmp(settings.Price) != 0 {
		return 0, ErrInvalidPrice
	}

	id := state.NextTweetID()
	treasury := new(big.Int).Add(state.Treasury(), paid)
	draw := e.drawFn(caller, now, id)
	won := draw < settings.Odds
	if won {
		if treasury.Cmp(settings.Jackpot) < 0 {
			return 0, ErrInsufficientBalance
		}
		treasury.Sub(treasury, settings.Jackpot)
	}

	record := &types.Tweet{
		ID:        id,
		Author:    caller,
		CreatedAt: now,
		Message:   message,
		ReplyTo:   replyTo,
		RetweetOf: retweetOf,
	}
	if err := state.TweetPut(record); err != nil {
		return 0, err
	}
	state.SetNextTweetID(id + 1)
	state.SetCooldown(caller, now)
	state.SetTreasury(treasury)

	e.emit(events.TweetCreated{
		ID:        record.ID,
		Author:    record.Author,
		Timestamp: record.CreatedAt,
		Message:   record.Message,
		Deleted:   record.Deleted,
		ReplyTo:   record.ReplyTo,
		RetweetOf: record.RetweetOf,
	})
	if won {
		e.emit(events.LotteryWon{Winner: caller, Jackpot: new(big.Int).Set(settings.Jackpot)})
	}
	return id, nil
}

// EditTweet replaces the message of an existing, non-deleted tweet. Only the
// original author may edit.
func (e *Engine) EditTweet(caller [20]byte, id uint64, message string) error {
	state, err := e.requireState()
	if err != nil {
		return err
	}
	if state.Paused() {
		return ErrPaused
	}
	record, err := loadActive(state, id)
	if err != nil {
		return err
	}
	if record.Author != caller {
		return ErrUnauthorized
	}
	if len(message) > types.MaxMessageLength {
		return ErrInvalidMessage
	}
	if record.RetweetOf != 0 && message != "" {
		return ErrInvalidMessage
	}
	record.Message = message
	if err := state.TweetPut(record); err != nil {
		return err
	}
	e.emit(events.TweetEdited{
		ID:        record.ID,
		Author:    record.Author,
		Timestamp: record.CreatedAt,
		Message:   record.Message,
		Deleted:   record.Deleted,
		ReplyTo:   record.ReplyTo,
		RetweetOf: record.RetweetOf,
	})
	return nil
}

// DeleteTweet soft-deletes a tweet. The record stays addressable but can no
// longer be mutated; the flag never reverts.
func (e *Engine) DeleteTweet(caller [20]byte, id uint64) error {
	state, err := e.requireState()
	if err != nil {
		return err
	}
	if state.Paused() {
		return ErrPaused
	}
	record, err := loadActive(state, id)
	if err != nil {
		return err
	}
	if record.Author != caller {
		return ErrUnauthorized
	}
	record.Deleted = true
	if err := state.TweetPut(record); err != nil {
		return err
	}
	e.emit(events.TweetDeleted{
		ID:        record.ID,
		Author:    record.Author,
		Timestamp: record.CreatedAt,
		Message:   record.Message,
		Deleted:   record.Deleted,
		ReplyTo:   record.ReplyTo,
		RetweetOf: record.RetweetOf,
	})
	return nil
}

// Pause halts create/edit/delete. Owner-only; admin operations stay available
// while paused so funds can still be protected.
func (e *Engine) Pause(caller [20]byte) error {
	state, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if state.Paused() {
		return ErrPaused
	}
	state.SetPaused(true)
	return nil
}

// Unpause resumes normal operation. Owner-only.
func (e *Engine) Unpause(caller [20]byte) error {
	state, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if !state.Paused() {
		return ErrNotPaused
	}
	state.SetPaused(false)
	return nil
}

// UpdateSettings overwrites odds, price, and jackpot in one step. Owner-only.
// Odds are not bounds-checked; the owner is trusted with the 0-100 range.
func (e *Engine) UpdateSettings(caller [20]byte, odds uint32, price, jackpot *big.Int) error {
	state, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	state.SetSettings(types.Settings{Odds: odds, Price: price, Jackpot: jackpot})
	return nil
}

// Withdraw sweeps the entire treasury to the owner and returns the swept
// amount. It is intentionally unconditional: pending jackpot exposure is not
// checked.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	state, err := e.requireOwner(caller)
	if err != nil {
		return nil, err
	}
	swept := state.Treasury()
	state.SetTreasury(big.NewInt(0))
	return swept, nil
}

// Deposit credits the treasury. Callable by anyone; the depositing address is
// recorded only by the surrounding ledger's log line.
func (e *Engine) Deposit(amount *big.Int) error {
	state, err := e.requireState()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	state.SetTreasury(new(big.Int).Add(state.Treasury(), amount))
	return nil
}

// Clear drops every stored tweet and re-bases the id counter at 1. Owner-only,
// available while paused.
func (e *Engine) Clear(caller [20]byte) error {
	state, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	state.ClearTweets()
	e.emit(events.TweetsCleared{Owner: caller, Timestamp: e.now()})
	return nil
}
