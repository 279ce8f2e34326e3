package core

import (
	"context"
	"fmt"
	"strconv"

	"twitt3r/core/events"
	"twitt3r/core/types"
	"twitt3r/crypto"
	"twitt3r/observability"
)

// streamHistoryLimit bounds the in-memory backlog kept for websocket resume.
// Older events are served from the journal when one is configured.
const streamHistoryLimit = 2048

// StreamEvent is one journaled, sequenced ledger event as delivered to
// subscribers. The attribute-map form keeps the wire shape stable across event
// kinds.
type StreamEvent struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Event    *types.Event `json:"event"`
}

// EventJournal persists sequenced events so indexers can replay beyond the
// in-memory backlog. Implemented by the journal package.
type EventJournal interface {
	Append(StreamEvent) error
	ReadAfter(seq uint64, limit int) ([]StreamEvent, error)
	LastSequence() (uint64, error)
}

// publish assigns sequence numbers to the events of a committed operation,
// journals them, and fans them out. Delivery to live subscribers is
// non-blocking; a slow consumer misses and resumes by cursor.
func (l *Ledger) publish(committed []events.Event) {
	if len(committed) == 0 {
		return
	}
	l.streamMu.Lock()
	published := make([]StreamEvent, 0, len(committed))
	for _, evt := range committed {
		l.seq++
		stream := StreamEvent{
			Sequence: l.seq,
			Cursor:   strconv.FormatUint(l.seq, 10),
			Event:    eventAttributes(evt),
		}
		if l.journal != nil {
			if err := l.journal.Append(stream); err != nil {
				l.logger.Error("journal append failed", "sequence", stream.Sequence, "error", err)
			}
		}
		l.history = append(l.history, stream)
		published = append(published, stream)
		if stream.Event.Type == events.TypeLotteryWon {
			observability.LedgerMetrics().ObserveLotteryWin()
		}
	}
	if len(l.history) > streamHistoryLimit {
		excess := len(l.history) - streamHistoryLimit
		trimmed := make([]StreamEvent, streamHistoryLimit)
		copy(trimmed, l.history[excess:])
		l.history = trimmed
	}
	subscribers := make([]chan StreamEvent, 0, len(l.subs))
	for _, ch := range l.subs {
		subscribers = append(subscribers, ch)
	}
	l.streamMu.Unlock()

	for _, ch := range subscribers {
		for _, stream := range published {
			select {
			case ch <- stream:
			default:
			}
		}
	}
}

// SubscribeEvents registers a subscriber starting after the supplied cursor
// (empty means "live only"). It returns the live channel, a cancel func, and
// the backlog of events past the cursor.
func (l *Ledger) SubscribeEvents(ctx context.Context, cursor string) (<-chan StreamEvent, func(), []StreamEvent, error) {
	var after uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("core: invalid cursor %q: %w", cursor, err)
		}
		after = parsed
	}

	l.streamMu.Lock()
	defer l.streamMu.Unlock()

	var backlog []StreamEvent
	historyStart := l.seq - uint64(len(l.history))
	if cursor != "" {
		if after < historyStart {
			if l.journal == nil {
				return nil, nil, nil, fmt.Errorf("core: cursor %q precedes retained history and no journal is configured", cursor)
			}
			journaled, err := l.journal.ReadAfter(after, streamHistoryLimit)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("core: journal replay: %w", err)
			}
			backlog = journaled
		} else {
			for _, stream := range l.history {
				if stream.Sequence > after {
					backlog = append(backlog, stream)
				}
			}
		}
	}

	l.subID++
	id := l.subID
	ch := make(chan StreamEvent, 64)
	l.subs[id] = ch

	// cancel only removes the channel from the fanout map and never closes it:
	// publish sends outside streamMu, so a closed channel could be hit by an
	// in-flight send. Consumers exit via ctx instead.
	cancel := func() {
		l.streamMu.Lock()
		delete(l.subs, id)
		l.streamMu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, backlog, nil
}

// eventAttributes flattens a typed event into the attribute-map wire form.
func eventAttributes(evt events.Event) *types.Event {
	out := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	switch e := evt.(type) {
	case events.TweetCreated:
		tweetAttributes(out.Attributes, e.ID, e.Author, e.Timestamp, e.Message, e.Deleted, e.ReplyTo, e.RetweetOf)
	case events.TweetEdited:
		tweetAttributes(out.Attributes, e.ID, e.Author, e.Timestamp, e.Message, e.Deleted, e.ReplyTo, e.RetweetOf)
	case events.TweetDeleted:
		tweetAttributes(out.Attributes, e.ID, e.Author, e.Timestamp, e.Message, e.Deleted, e.ReplyTo, e.RetweetOf)
	case events.TweetsCleared:
		out.Attributes["owner"] = crypto.MustNewAddress(e.Owner).String()
		out.Attributes["timestamp"] = strconv.FormatInt(e.Timestamp, 10)
	case events.LotteryWon:
		out.Attributes["winner"] = crypto.MustNewAddress(e.Winner).String()
		if e.Jackpot != nil {
			out.Attributes["jackpot"] = e.Jackpot.String()
		}
	}
	return out
}

func tweetAttributes(attrs map[string]string, id uint64, author [20]byte, ts int64, message string, deleted bool, replyTo, retweetOf uint64) {
	attrs["id"] = strconv.FormatUint(id, 10)
	attrs["author"] = crypto.MustNewAddress(author).String()
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	attrs["message"] = message
	attrs["deleted"] = strconv.FormatBool(deleted)
	attrs["replyTo"] = strconv.FormatUint(replyTo, 10)
	attrs["retweetOf"] = strconv.FormatUint(retweetOf, 10)
}
