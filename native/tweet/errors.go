package tweet

import "errors"

var (
	// ErrNotOwner rejects admin operations from anyone but the ledger owner.
	ErrNotOwner = errors.New("tweet: caller is not the owner")
	// ErrUnauthorized rejects edits/deletes from anyone but the tweet author.
	ErrUnauthorized = errors.New("tweet: unauthorized")
	// ErrInvalidID rejects references to tweet ids that were never allocated.
	ErrInvalidID = errors.New("tweet: invalid id")
	// ErrDeletedTweet rejects mutation of a soft-deleted tweet.
	ErrDeletedTweet = errors.New("tweet: tweet deleted")
	// ErrInvalidMessage rejects messages longer than the 280-character limit.
	ErrInvalidMessage = errors.New("tweet: invalid message")
	// ErrInvalidPrice rejects payments that do not exactly match the price.
	ErrInvalidPrice = errors.New("tweet: invalid price")
	// ErrSenderCooldown rejects a second tweet within the cooldown window.
	ErrSenderCooldown = errors.New("tweet: sender cooldown")
	// ErrPaused rejects create/edit/delete while the ledger is paused, and a
	// pause while already paused.
	ErrPaused = errors.New("tweet: paused")
	// ErrNotPaused rejects an unpause while the ledger is running.
	ErrNotPaused = errors.New("tweet: not paused")
	// ErrInsufficientBalance voids a tweet whose winning draw cannot be paid
	// from the treasury.
	ErrInsufficientBalance = errors.New("tweet: insufficient balance")
	// ErrInvalidAmount rejects nil or negative deposit amounts.
	ErrInvalidAmount = errors.New("tweet: invalid amount")

	errNilState = errors.New("tweet engine: state not configured")
)
