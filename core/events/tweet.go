package events

import "math/big"

const (
	// TypeTweetCreated is emitted when a new tweet is appended to the ledger.
	TypeTweetCreated = "tweet.created"
	// TypeTweetEdited is emitted when an author rewrites the message of one of
	// their tweets.
	TypeTweetEdited = "tweet.edited"
	// TypeTweetDeleted is emitted when an author soft-deletes one of their
	// tweets.
	TypeTweetDeleted = "tweet.deleted"
	// TypeTweetsCleared is emitted when the owner wipes the whole tweet
	// collection and re-bases the id counter.
	TypeTweetsCleared = "tweet.cleared"
	// TypeLotteryWon is emitted alongside tweet.created when the posting
	// lottery pays out.
	TypeLotteryWon = "tweet.lottery.won"
)

// TweetCreated carries the full record of a newly stored tweet. Indexers use
// it as the canonical feed of new posts.
type TweetCreated struct {
	ID        uint64
	Author    [20]byte
	Timestamp int64
	Message   string
	Deleted   bool
	ReplyTo   uint64
	RetweetOf uint64
}

// EventType implements the Event interface.
func (TweetCreated) EventType() string { return TypeTweetCreated }

// TweetEdited carries the post-edit record of a tweet, same shape as
// TweetCreated so consumers can upsert either.
type TweetEdited struct {
	ID        uint64
	Author    [20]byte
	Timestamp int64
	Message   string
	Deleted   bool
	ReplyTo   uint64
	RetweetOf uint64
}

// EventType implements the Event interface.
func (TweetEdited) EventType() string { return TypeTweetEdited }

// TweetDeleted carries the record of a tweet after its soft delete.
type TweetDeleted struct {
	ID        uint64
	Author    [20]byte
	Timestamp int64
	Message   string
	Deleted   bool
	ReplyTo   uint64
	RetweetOf uint64
}

// EventType implements the Event interface.
func (TweetDeleted) EventType() string { return TypeTweetDeleted }

// TweetsCleared marks an administrative wipe of the tweet collection. The
// timestamp lets indexers order the wipe against surrounding posts.
type TweetsCleared struct {
	Owner     [20]byte
	Timestamp int64
}

// EventType implements the Event interface.
func (TweetsCleared) EventType() string { return TypeTweetsCleared }

// LotteryWon reports a jackpot payout triggered by a new tweet.
type LotteryWon struct {
	Winner  [20]byte
	Jackpot *big.Int
}

// EventType implements the Event interface.
func (LotteryWon) EventType() string { return TypeLotteryWon }
