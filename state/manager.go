package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"twitt3r/core/types"
	"twitt3r/storage"
)

// State layout. Every record is RLP encoded except the raw owner and paused
// bytes, which are fixed width.
var (
	keyNextTweetID = []byte("meta/nexttweetid")
	keySettings    = []byte("meta/settings")
	keyTreasury    = []byte("meta/treasury")
	keyOwner       = []byte("meta/owner")
	keyPaused      = []byte("meta/paused")
)

const (
	tweetKeyPrefix    = "tweet/"
	cooldownKeyPrefix = "cooldown/"
)

func tweetKey(id uint64) []byte {
	key := make([]byte, len(tweetKeyPrefix)+8)
	copy(key, tweetKeyPrefix)
	binary.BigEndian.PutUint64(key[len(tweetKeyPrefix):], id)
	return key
}

func cooldownKey(addr [20]byte) []byte {
	key := make([]byte, len(cooldownKeyPrefix)+20)
	copy(key, cooldownKeyPrefix)
	copy(key[len(cooldownKeyPrefix):], addr[:])
	return key
}

// storedTweet mirrors types.Tweet with an unsigned timestamp so the record can
// travel through RLP.
type storedTweet struct {
	ID        uint64
	Author    [20]byte
	CreatedAt uint64
	Message   string
	Deleted   bool
	ReplyTo   uint64
	RetweetOf uint64
}

type storedSettings struct {
	Odds    uint32
	Price   *big.Int
	Jackpot *big.Int
}

// Manager owns the materialised ledger state and its persistence. All reads are
// served from memory; every mutation is staged into a changeset and either
// committed as one database batch or discarded, so a failed operation leaves no
// trace in memory or on disk.
type Manager struct {
	db storage.Database

	tweets    map[uint64]*types.Tweet
	nextID    uint64
	settings  types.Settings
	treasury  *big.Int
	cooldowns map[[20]byte]uint64
	owner     [20]byte
	paused    bool

	pending *changeset
}

type changeset struct {
	tweets      map[uint64]*types.Tweet
	clearTweets bool
	nextID      *uint64
	settings    *types.Settings
	treasury    *big.Int
	cooldowns   map[[20]byte]uint64
	paused      *bool
}

func newChangeset() *changeset {
	return &changeset{
		tweets:    make(map[uint64]*types.Tweet),
		cooldowns: make(map[[20]byte]uint64),
	}
}

// NewManager loads (or initialises) the ledger state from the supplied
// database. A fresh database starts uninitialised; callers seed it via
// InitGenesis before applying operations.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	m := &Manager{
		db:        db,
		tweets:    make(map[uint64]*types.Tweet),
		nextID:    1,
		settings:  types.Settings{Price: big.NewInt(0), Jackpot: big.NewInt(0)},
		treasury:  big.NewInt(0),
		cooldowns: make(map[[20]byte]uint64),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	ok, err := m.db.Has(keyOwner)
	if err != nil {
		return fmt.Errorf("state: probe owner: %w", err)
	}
	if !ok {
		return nil
	}
	raw, err := m.db.Get(keyOwner)
	if err != nil {
		return fmt.Errorf("state: load owner: %w", err)
	}
	if len(raw) != 20 {
		return fmt.Errorf("state: malformed owner record (%d bytes)", len(raw))
	}
	copy(m.owner[:], raw)

	if raw, err = m.db.Get(keyNextTweetID); err != nil {
		return fmt.Errorf("state: load counter: %w", err)
	}
	if err := rlp.DecodeBytes(raw, &m.nextID); err != nil {
		return fmt.Errorf("state: decode counter: %w", err)
	}

	if raw, err = m.db.Get(keySettings); err != nil {
		return fmt.Errorf("state: load settings: %w", err)
	}
	var stored storedSettings
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return fmt.Errorf("state: decode settings: %w", err)
	}
	m.settings = types.Settings{Odds: stored.Odds, Price: stored.Price, Jackpot: stored.Jackpot}.Clone()

	if raw, err = m.db.Get(keyTreasury); err != nil {
		return fmt.Errorf("state: load treasury: %w", err)
	}
	treasury := new(big.Int)
	if err := rlp.DecodeBytes(raw, treasury); err != nil {
		return fmt.Errorf("state: decode treasury: %w", err)
	}
	m.treasury = treasury

	if raw, err = m.db.Get(keyPaused); err != nil {
		return fmt.Errorf("state: load paused: %w", err)
	}
	m.paused = len(raw) == 1 && raw[0] == 1

	for id := uint64(1); id < m.nextID; id++ {
		raw, err := m.db.Get(tweetKey(id))
		if err == storage.ErrKeyNotFound {
			// Gap left by a historical clear; ids are never reused so the
			// record is simply absent.
			continue
		}
		if err != nil {
			return fmt.Errorf("state: load tweet %d: %w", id, err)
		}
		var stored storedTweet
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return fmt.Errorf("state: decode tweet %d: %w", id, err)
		}
		m.tweets[id] = &types.Tweet{
			ID:        stored.ID,
			Author:    stored.Author,
			CreatedAt: int64(stored.CreatedAt),
			Message:   stored.Message,
			Deleted:   stored.Deleted,
			ReplyTo:   stored.ReplyTo,
			RetweetOf: stored.RetweetOf,
		}
	}
	return nil
}

// Initialized reports whether genesis state has been written.
func (m *Manager) Initialized() (bool, error) {
	return m.db.Has(keyOwner)
}

// InitGenesis seeds the owner, lottery settings, and initial treasury in one
// batch. It mirrors the constructor arguments of the ledger: the deployer
// becomes the owner and may fund the treasury up front so early winners can be
// paid.
func (m *Manager) InitGenesis(owner [20]byte, settings types.Settings, initialTreasury *big.Int) error {
	ok, err := m.Initialized()
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("state: genesis already initialised")
	}
	settings = settings.Clone()
	treasury := big.NewInt(0)
	if initialTreasury != nil {
		treasury.Set(initialTreasury)
	}

	batch := m.db.NewBatch()
	batch.Put(keyOwner, owner[:])
	encodedCounter, err := rlp.EncodeToBytes(uint64(1))
	if err != nil {
		return fmt.Errorf("state: encode counter: %w", err)
	}
	batch.Put(keyNextTweetID, encodedCounter)
	encodedSettings, err := rlp.EncodeToBytes(&storedSettings{Odds: settings.Odds, Price: settings.Price, Jackpot: settings.Jackpot})
	if err != nil {
		return fmt.Errorf("state: encode settings: %w", err)
	}
	batch.Put(keySettings, encodedSettings)
	encodedTreasury, err := rlp.EncodeToBytes(treasury)
	if err != nil {
		return fmt.Errorf("state: encode treasury: %w", err)
	}
	batch.Put(keyTreasury, encodedTreasury)
	batch.Put(keyPaused, []byte{0})
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: write genesis: %w", err)
	}

	m.owner = owner
	m.nextID = 1
	m.settings = settings
	m.treasury = treasury
	m.paused = false
	return nil
}

// Begin opens a staged changeset. Exactly one transaction may be open at a
// time; the ledger's single-writer discipline guarantees that.
func (m *Manager) Begin() {
	if m.pending != nil {
		panic("state: transaction already open")
	}
	m.pending = newChangeset()
}

// Discard drops the open changeset without touching memory or disk.
func (m *Manager) Discard() {
	m.pending = nil
}

// Commit writes the open changeset as one database batch and, only after the
// batch lands, folds it into the in-memory view.
func (m *Manager) Commit() error {
	cs := m.pending
	if cs == nil {
		return fmt.Errorf("state: no open transaction")
	}

	batch := m.db.NewBatch()
	if cs.clearTweets {
		for id := range m.tweets {
			batch.Delete(tweetKey(id))
		}
	}
	for id, tweet := range cs.tweets {
		encoded, err := rlp.EncodeToBytes(&storedTweet{
			ID:        tweet.ID,
			Author:    tweet.Author,
			CreatedAt: uint64(tweet.CreatedAt),
			Message:   tweet.Message,
			Deleted:   tweet.Deleted,
			ReplyTo:   tweet.ReplyTo,
			RetweetOf: tweet.RetweetOf,
		})
		if err != nil {
			return fmt.Errorf("state: encode tweet %d: %w", id, err)
		}
		batch.Put(tweetKey(id), encoded)
	}
	if cs.nextID != nil {
		encoded, err := rlp.EncodeToBytes(*cs.nextID)
		if err != nil {
			return fmt.Errorf("state: encode counter: %w", err)
		}
		batch.Put(keyNextTweetID, encoded)
	}
	if cs.settings != nil {
		encoded, err := rlp.EncodeToBytes(&storedSettings{Odds: cs.settings.Odds, Price: cs.settings.Price, Jackpot: cs.settings.Jackpot})
		if err != nil {
			return fmt.Errorf("state: encode settings: %w", err)
		}
		batch.Put(keySettings, encoded)
	}
	if cs.treasury != nil {
		encoded, err := rlp.EncodeToBytes(cs.treasury)
		if err != nil {
			return fmt.Errorf("state: encode treasury: %w", err)
		}
		batch.Put(keyTreasury, encoded)
	}
	for addr, ts := range cs.cooldowns {
		encoded, err := rlp.EncodeToBytes(ts)
		if err != nil {
			return fmt.Errorf("state: encode cooldown: %w", err)
		}
		batch.Put(cooldownKey(addr), encoded)
	}
	if cs.paused != nil {
		if *cs.paused {
			batch.Put(keyPaused, []byte{1})
		} else {
			batch.Put(keyPaused, []byte{0})
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}

	if cs.clearTweets {
		m.tweets = make(map[uint64]*types.Tweet)
	}
	for id, tweet := range cs.tweets {
		m.tweets[id] = tweet
	}
	if cs.nextID != nil {
		m.nextID = *cs.nextID
	}
	if cs.settings != nil {
		m.settings = *cs.settings
	}
	if cs.treasury != nil {
		m.treasury = cs.treasury
	}
	for addr, ts := range cs.cooldowns {
		m.cooldowns[addr] = ts
	}
	if cs.paused != nil {
		m.paused = *cs.paused
	}
	m.pending = nil
	return nil
}

func (m *Manager) mustPending() *changeset {
	if m.pending == nil {
		panic("state: mutation outside a transaction")
	}
	return m.pending
}

// --- reads (overlay aware) ---

// TweetGet returns a clone of the tweet with the given id.
func (m *Manager) TweetGet(id uint64) (*types.Tweet, bool) {
	if m.pending != nil {
		if m.pending.clearTweets {
			if tweet, ok := m.pending.tweets[id]; ok {
				return tweet.Clone(), true
			}
			return nil, false
		}
		if tweet, ok := m.pending.tweets[id]; ok {
			return tweet.Clone(), true
		}
	}
	tweet, ok := m.tweets[id]
	if !ok {
		return nil, false
	}
	return tweet.Clone(), true
}

// NextTweetID returns the id the next created tweet will receive.
func (m *Manager) NextTweetID() uint64 {
	if m.pending != nil && m.pending.nextID != nil {
		return *m.pending.nextID
	}
	return m.nextID
}

// TweetCount returns the number of ids allocated since the last clear.
func (m *Manager) TweetCount() uint64 {
	return m.NextTweetID() - 1
}

// TweetList returns clones of all stored tweets in id order.
func (m *Manager) TweetList() []*types.Tweet {
	ids := make([]uint64, 0, len(m.tweets))
	for id := range m.tweets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	list := make([]*types.Tweet, 0, len(ids))
	for _, id := range ids {
		list = append(list, m.tweets[id].Clone())
	}
	return list
}

// Settings returns a clone of the current lottery settings.
func (m *Manager) Settings() types.Settings {
	if m.pending != nil && m.pending.settings != nil {
		return m.pending.settings.Clone()
	}
	return m.settings.Clone()
}

// Treasury returns a copy of the current treasury balance.
func (m *Manager) Treasury() *big.Int {
	if m.pending != nil && m.pending.treasury != nil {
		return new(big.Int).Set(m.pending.treasury)
	}
	return new(big.Int).Set(m.treasury)
}

// Cooldown returns the timestamp of the sender's last successful tweet.
func (m *Manager) Cooldown(addr [20]byte) (int64, bool) {
	if m.pending != nil {
		if ts, ok := m.pending.cooldowns[addr]; ok {
			return int64(ts), true
		}
	}
	ts, ok := m.cooldowns[addr]
	return int64(ts), ok
}

// Owner returns the ledger owner set at genesis.
func (m *Manager) Owner() [20]byte { return m.owner }

// Paused reports whether mutations are gated.
func (m *Manager) Paused() bool {
	if m.pending != nil && m.pending.paused != nil {
		return *m.pending.paused
	}
	return m.paused
}

// --- staged writes ---

// TweetPut stages a tweet record under its id.
func (m *Manager) TweetPut(tweet *types.Tweet) error {
	if tweet == nil || tweet.ID == 0 {
		return fmt.Errorf("state: invalid tweet record")
	}
	m.mustPending().tweets[tweet.ID] = tweet.Clone()
	return nil
}

// SetNextTweetID stages the id counter.
func (m *Manager) SetNextTweetID(next uint64) {
	cs := m.mustPending()
	cs.nextID = &next
}

// SetSettings stages a full settings overwrite.
func (m *Manager) SetSettings(settings types.Settings) {
	cloned := settings.Clone()
	m.mustPending().settings = &cloned
}

// SetTreasury stages the treasury balance.
func (m *Manager) SetTreasury(balance *big.Int) {
	next := big.NewInt(0)
	if balance != nil {
		next.Set(balance)
	}
	m.mustPending().treasury = next
}

// SetCooldown stages the sender's last-tweet timestamp.
func (m *Manager) SetCooldown(addr [20]byte, now int64) {
	m.mustPending().cooldowns[addr] = uint64(now)
}

// SetPaused stages the pause flag.
func (m *Manager) SetPaused(paused bool) {
	cs := m.mustPending()
	cs.paused = &paused
}

// ClearTweets stages the removal of every stored tweet and re-bases the id
// counter at 1. Cooldown entries survive a clear.
func (m *Manager) ClearTweets() {
	cs := m.mustPending()
	cs.clearTweets = true
	cs.tweets = make(map[uint64]*types.Tweet)
	next := uint64(1)
	cs.nextID = &next
}
