package types

import "math/big"

// MaxMessageLength is the longest message a tweet may carry, in bytes.
const MaxMessageLength = 280

// Tweet captures a single stored message. Tweets are identified by a 1-based
// sequential id; id 0 is the sentinel "no target" used by ReplyTo/RetweetOf.
// Author and CreatedAt are immutable after creation, Message changes only via
// an edit, and Deleted only ever flips false to true.
type Tweet struct {
	ID        uint64
	Author    [20]byte
	CreatedAt int64
	Message   string
	Deleted   bool
	ReplyTo   uint64
	RetweetOf uint64
}

// Clone returns a copy of the tweet so callers can safely mutate the copy
// without affecting the stored instance.
func (t *Tweet) Clone() *Tweet {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// IsReply reports whether the tweet targets another tweet as a reply.
func (t *Tweet) IsReply() bool { return t != nil && t.ReplyTo != 0 }

// IsRetweet reports whether the tweet republishes another tweet.
func (t *Tweet) IsRetweet() bool { return t != nil && t.RetweetOf != 0 }

// Settings holds the owner-controlled lottery configuration: the exact price
// required to post, the integer-percent odds of a win, and the jackpot paid
// out on a win.
type Settings struct {
	Odds    uint32
	Price   *big.Int
	Jackpot *big.Int
}

// Clone deep-copies the settings, normalising nil amounts to zero.
func (s Settings) Clone() Settings {
	return Settings{
		Odds:    s.Odds,
		Price:   cloneAmount(s.Price),
		Jackpot: cloneAmount(s.Jackpot),
	}
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
