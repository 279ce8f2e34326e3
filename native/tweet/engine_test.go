package tweet

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"twitt3r/core/events"
	"twitt3r/core/types"
)

type mockState struct {
	tweets    map[uint64]*types.Tweet
	nextID    uint64
	settings  types.Settings
	treasury  *big.Int
	cooldowns map[[20]byte]int64
	owner     [20]byte
	paused    bool
}

func newMockState(owner [20]byte) *mockState {
	return &mockState{
		tweets:    make(map[uint64]*types.Tweet),
		nextID:    1,
		settings:  types.Settings{Odds: 1, Price: big.NewInt(10), Jackpot: big.NewInt(100)},
		treasury:  big.NewInt(200),
		cooldowns: make(map[[20]byte]int64),
		owner:     owner,
	}
}

func (s *mockState) TweetGet(id uint64) (*types.Tweet, bool) {
	tweet, ok := s.tweets[id]
	if !ok {
		return nil, false
	}
	return tweet.Clone(), true
}

func (s *mockState) TweetPut(tweet *types.Tweet) error {
	s.tweets[tweet.ID] = tweet.Clone()
	return nil
}

func (s *mockState) NextTweetID() uint64 { return s.nextID }

func (s *mockState) SetNextTweetID(next uint64) { s.nextID = next }

func (s *mockState) TweetCount() uint64 { return s.nextID - 1 }

func (s *mockState) Settings() types.Settings { return s.settings.Clone() }

func (s *mockState) SetSettings(settings types.Settings) { s.settings = settings.Clone() }

func (s *mockState) Treasury() *big.Int { return new(big.Int).Set(s.treasury) }
func (s *mockState) SetTreasury(balance *big.Int) {
	s.treasury = new(big.Int).Set(balance)
}

func (s *mockState) Cooldown(addr [20]byte) (int64, bool) {
	ts, ok := s.cooldowns[addr]
	return ts, ok
}

func (s *mockState) SetCooldown(addr [20]byte, now int64) { s.cooldowns[addr] = now }

func (s *mockState) Owner() [20]byte { return s.owner }

func (s *mockState) Paused() bool { return s.paused }

func (s *mockState) SetPaused(paused bool) { s.paused = paused }

func (s *mockState) ClearTweets() {
	s.tweets = make(map[uint64]*types.Tweet)
	s.nextID = 1
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

// newTestEngine returns an engine over a fresh mock state with a fixed clock
// and a losing draw. Tests adjust the clock and draw as needed.
func newTestEngine(t *testing.T) (*Engine, *mockState, *events.CaptureEmitter, *int64) {
	t.Helper()
	owner := newTestAddress(0x01)
	state := newMockState(owner)
	emitter := &events.CaptureEmitter{}
	now := int64(1_000_000)
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return now })
	engine.SetDrawFunc(func([20]byte, int64, uint64) uint32 { return 99 })
	return engine, state, emitter, &now
}

func price() *big.Int { return big.NewInt(10) }

func TestCreateTweetAssignsSequentialIDs(t *testing.T) {
	engine, state, _, now := newTestEngine(t)
	alice := newTestAddress(0xAA)
	bob := newTestAddress(0xBB)

	id, err := engine.CreateTweet(alice, "first", 0, 0, price())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	*now += CooldownPeriod
	id, err = engine.CreateTweet(bob, "second", 0, 0, price())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected id 2, got %d", id)
	}
	if got := state.TweetCount(); got != 2 {
		t.Fatalf("expected 2 tweets, got %d", got)
	}
}

func TestCreateTweetRoundTrip(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	id, err := engine.CreateTweet(alice, "hello ledger", 0, 0, price())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	record, ok := state.TweetGet(id)
	if !ok {
		t.Fatalf("tweet %d not stored", id)
	}
	if record.Author != alice {
		t.Fatalf("author mismatch")
	}
	if record.Message != "hello ledger" {
		t.Fatalf("message mismatch: %q", record.Message)
	}
	if record.ReplyTo != 0 || record.RetweetOf != 0 {
		t.Fatalf("unexpected linkage: reply=%d retweet=%d", record.ReplyTo, record.RetweetOf)
	}
	if record.Deleted {
		t.Fatalf("new tweet must not be deleted")
	}
	if record.CreatedAt != 1_000_000 {
		t.Fatalf("unexpected timestamp %d", record.CreatedAt)
	}
}

func TestCreateTweetReplyAndRetweetLinkage(t *testing.T) {
	engine, state, _, now := newTestEngine(t)
	alice := newTestAddress(0xAA)
	bob := newTestAddress(0xBB)

	if _, err := engine.CreateTweet(alice, "root", 0, 0, price()); err != nil {
		t.Fatalf("create root: %v", err)
	}
	*now += CooldownPeriod
	replyID, err := engine.CreateTweet(bob, "reply", 1, 0, price())
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	*now += CooldownPeriod
	retweetID, err := engine.CreateTweet(alice, "", 0, 1, price())
	if err != nil {
		t.Fatalf("create retweet: %v", err)
	}

	reply, _ := state.TweetGet(replyID)
	if !reply.IsReply() || reply.ReplyTo != 1 {
		t.Fatalf("expected reply to 1, got %+v", reply)
	}
	retweet, _ := state.TweetGet(retweetID)
	if !retweet.IsRetweet() || retweet.RetweetOf != 1 || retweet.Message != "" {
		t.Fatalf("expected empty retweet of 1, got %+v", retweet)
	}

	*now += CooldownPeriod
	if _, err := engine.CreateTweet(bob, "", 1, 1, price()); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for double linkage, got %v", err)
	}
	if _, err := engine.CreateTweet(bob, "text", 0, 1, price()); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for retweet with text, got %v", err)
	}
}

func TestCreateTweetMessageLimit(t *testing.T) {
	engine, _, _, now := newTestEngine(t)
	alice := newTestAddress(0xAA)

	exact := strings.Repeat("a", types.MaxMessageLength)
	if _, err := engine.CreateTweet(alice, exact, 0, 0, price()); err != nil {
		t.Fatalf("280-char message must be accepted: %v", err)
	}
	*now += CooldownPeriod
	tooLong := strings.Repeat("a", types.MaxMessageLength+1)
	if _, err := engine.CreateTweet(alice, tooLong, 0, 0, price()); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestCreateTweetExactPriceRequired(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.CreateTweet(alice, "no payment", 0, 0, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for zero payment, got %v", err)
	}
	if _, err := engine.CreateTweet(alice, "overpay", 0, 0, big.NewInt(11)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for overpayment, got %v", err)
	}
	if got := state.TweetCount(); got != 0 {
		t.Fatalf("rejected creates must not allocate ids, got %d", got)
	}
}

func TestCreateTweetCooldown(t *testing.T) {
	engine, _, _, now := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.CreateTweet(alice, "first", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	*now += CooldownPeriod - 1
	if _, err := engine.CreateTweet(alice, "too soon", 0, 0, price()); !errors.Is(err, ErrSenderCooldown) {
		t.Fatalf("expected ErrSenderCooldown, got %v", err)
	}
	*now++
	if _, err := engine.CreateTweet(alice, "after the window", 0, 0, price()); err != nil {
		t.Fatalf("create after cooldown: %v", err)
	}
}

func TestCooldownNotUpdatedOnRejectedCreate(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.CreateTweet(alice, "bad", 0, 0, big.NewInt(1)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, ok := state.Cooldown(alice); ok {
		t.Fatalf("cooldown must not be recorded for a rejected create")
	}
}

func TestCreateTweetCreditsTreasury(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.CreateTweet(alice, "paid", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := state.Treasury(); got.Cmp(big.NewInt(210)) != 0 {
		t.Fatalf("expected treasury 210, got %s", got)
	}
}

func TestLotteryGuaranteedWin(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)
	state.settings.Odds = 100
	engine.SetDrawFunc(func([20]byte, int64, uint64) uint32 { return 0 })

	if _, err := engine.CreateTweet(alice, "winner", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	// 200 + 10 price - 100 jackpot
	if got := state.Treasury(); got.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("expected treasury 110, got %s", got)
	}
	if len(emitter.Events) != 2 {
		t.Fatalf("expected TweetCreated + LotteryWon, got %d events", len(emitter.Events))
	}
	won, ok := emitter.Events[1].(events.LotteryWon)
	if !ok {
		t.Fatalf("expected LotteryWon second, got %T", emitter.Events[1])
	}
	if won.Winner != alice || won.Jackpot.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected payout: %+v", won)
	}
}

func TestLotteryWinWithEmptyTreasuryVoidsCreate(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)
	state.settings.Odds = 100
	state.treasury = big.NewInt(0)
	engine.SetDrawFunc(func([20]byte, int64, uint64) uint32 { return 0 })

	_, err := engine.CreateTweet(alice, "doomed", 0, 0, price())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := state.TweetCount(); got != 0 {
		t.Fatalf("voided create must not store a tweet, got %d", got)
	}
	if got := state.Treasury(); got.Sign() != 0 {
		t.Fatalf("voided create must not charge the price, treasury %s", got)
	}
	if len(emitter.Events) != 0 {
		t.Fatalf("voided create must emit nothing, got %d events", len(emitter.Events))
	}
}

func TestLotteryLossKeepsPrice(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)
	state.settings.Odds = 50
	engine.SetDrawFunc(func([20]byte, int64, uint64) uint32 { return 50 })

	if _, err := engine.CreateTweet(alice, "loser", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := state.Treasury(); got.Cmp(big.NewInt(210)) != 0 {
		t.Fatalf("expected treasury 210, got %s", got)
	}
	if len(emitter.Events) != 1 {
		t.Fatalf("expected only TweetCreated, got %d events", len(emitter.Events))
	}
}

func TestEditTweet(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)
	bob := newTestAddress(0xBB)

	if _, err := engine.CreateTweet(alice, "original", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := engine.EditTweet(alice, 2, "nope"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for absent id, got %v", err)
	}
	if err := engine.EditTweet(alice, 0, "nope"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for id 0, got %v", err)
	}
	if err := engine.EditTweet(bob, 1, "hijack"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	record, _ := state.TweetGet(1)
	if record.Message != "original" {
		t.Fatalf("failed edit must not change the message, got %q", record.Message)
	}
	if err := engine.EditTweet(alice, 1, strings.Repeat("a", types.MaxMessageLength+1)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}

	if err := engine.EditTweet(alice, 1, "revised"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	record, _ = state.TweetGet(1)
	if record.Message != "revised" {
		t.Fatalf("expected revised message, got %q", record.Message)
	}
	last := emitter.Events[len(emitter.Events)-1]
	edited, ok := last.(events.TweetEdited)
	if !ok {
		t.Fatalf("expected TweetEdited, got %T", last)
	}
	if edited.ID != 1 || edited.Message != "revised" {
		t.Fatalf("unexpected edit event: %+v", edited)
	}
}

func TestDeleteTweet(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)
	bob := newTestAddress(0xBB)

	if _, err := engine.CreateTweet(alice, "short lived", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.DeleteTweet(bob, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.DeleteTweet(alice, 2); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := engine.DeleteTweet(alice, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	record, ok := state.TweetGet(1)
	if !ok || !record.Deleted {
		t.Fatalf("tweet must remain addressable with deleted flag set")
	}
	if err := engine.DeleteTweet(alice, 1); !errors.Is(err, ErrDeletedTweet) {
		t.Fatalf("expected ErrDeletedTweet on re-delete, got %v", err)
	}
	if err := engine.EditTweet(alice, 1, "zombie"); !errors.Is(err, ErrDeletedTweet) {
		t.Fatalf("expected ErrDeletedTweet on edit after delete, got %v", err)
	}
}

func TestPauseGatesMutations(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := state.owner
	alice := newTestAddress(0xAA)

	if err := engine.Pause(alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.Unpause(owner); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused while running, got %v", err)
	}
	if err := engine.Pause(owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := engine.Pause(owner); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on double pause, got %v", err)
	}

	if _, err := engine.CreateTweet(alice, "blocked", 0, 0, price()); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on create, got %v", err)
	}
	if err := engine.EditTweet(alice, 1, "blocked"); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on edit, got %v", err)
	}
	if err := engine.DeleteTweet(alice, 1); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on delete, got %v", err)
	}

	// Admin operations stay available while paused.
	if err := engine.UpdateSettings(owner, 5, big.NewInt(1), big.NewInt(2)); err != nil {
		t.Fatalf("updateSettings while paused: %v", err)
	}
	if _, err := engine.Withdraw(owner); err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
	if err := engine.Clear(owner); err != nil {
		t.Fatalf("clear while paused: %v", err)
	}
	if err := engine.Deposit(big.NewInt(5)); err != nil {
		t.Fatalf("deposit while paused: %v", err)
	}

	if err := engine.Unpause(owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if state.Paused() {
		t.Fatalf("expected running state after unpause")
	}
}

func TestUpdateSettingsOwnerOnly(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if err := engine.UpdateSettings(alice, 20, big.NewInt(1), big.NewInt(2)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.UpdateSettings(state.owner, 120, big.NewInt(1), big.NewInt(2)); err != nil {
		t.Fatalf("updateSettings: %v", err)
	}
	// Odds are intentionally not bounds-checked.
	if got := state.Settings().Odds; got != 120 {
		t.Fatalf("expected odds 120, got %d", got)
	}
}

func TestWithdrawSweepsTreasury(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	swept, err := engine.Withdraw(state.owner)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if swept.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected to sweep 200, got %s", swept)
	}
	if got := state.Treasury(); got.Sign() != 0 {
		t.Fatalf("expected empty treasury, got %s", got)
	}
}

func TestDeposit(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)

	if err := engine.Deposit(nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if err := engine.Deposit(big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := engine.Deposit(big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := state.Treasury(); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected treasury 250, got %s", got)
	}
}

func TestClearResetsCounter(t *testing.T) {
	engine, state, emitter, now := newTestEngine(t)
	alice := newTestAddress(0xAA)

	if _, err := engine.CreateTweet(alice, "one", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}
	*now += CooldownPeriod
	if _, err := engine.CreateTweet(alice, "two", 0, 0, price()); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := engine.Clear(alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.Clear(state.owner); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := state.TweetCount(); got != 0 {
		t.Fatalf("expected 0 tweets after clear, got %d", got)
	}
	last := emitter.Events[len(emitter.Events)-1]
	if _, ok := last.(events.TweetsCleared); !ok {
		t.Fatalf("expected TweetsCleared, got %T", last)
	}

	*now += CooldownPeriod
	id, err := engine.CreateTweet(alice, "fresh start", 0, 0, price())
	if err != nil {
		t.Fatalf("create after clear: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1 after clear, got %d", id)
	}
}

func TestDefaultDrawIsAPercentile(t *testing.T) {
	for i := byte(0); i < 50; i++ {
		draw := defaultDraw(newTestAddress(i), int64(i)*7919, uint64(i))
		if draw >= 100 {
			t.Fatalf("draw %d out of range", draw)
		}
	}
}
