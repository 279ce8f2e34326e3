package rpc

import (
	"fmt"

	"twitt3r/core/types"
	"twitt3r/crypto"
)

type getTweetParams struct {
	ID uint64 `json:"id"`
}

// TweetView is the wire form of a stored tweet.
type TweetView struct {
	ID        uint64 `json:"id"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
	Deleted   bool   `json:"deleted"`
	ReplyTo   uint64 `json:"replyTo"`
	RetweetOf uint64 `json:"retweetOf"`
}

func tweetView(t *types.Tweet) TweetView {
	return TweetView{
		ID:        t.ID,
		Author:    crypto.MustNewAddress(t.Author).String(),
		Timestamp: t.CreatedAt,
		Message:   t.Message,
		Deleted:   t.Deleted,
		ReplyTo:   t.ReplyTo,
		RetweetOf: t.RetweetOf,
	}
}

func (s *Server) handleGetTweet(req *RPCRequest) (interface{}, *RPCError) {
	var params getTweetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	record, ok := s.ledger.GetTweet(params.ID)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("tweet %d not found", params.ID)}
	}
	return tweetView(record), nil
}

func (s *Server) handleListTweets(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "expected no params"}
	}
	records := s.ledger.ListTweets()
	views := make([]TweetView, 0, len(records))
	for _, record := range records {
		views = append(views, tweetView(record))
	}
	return views, nil
}

func (s *Server) handleGetOwner(req *RPCRequest) (interface{}, *RPCError) {
	return crypto.MustNewAddress(s.ledger.GetOwner()).String(), nil
}

func (s *Server) handleGetBalance(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.GetBalance().String(), nil
}

func (s *Server) handleGetPrice(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.GetSettings().Price.String(), nil
}

func (s *Server) handleGetOdds(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.GetSettings().Odds, nil
}

func (s *Server) handleGetJackpot(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.GetSettings().Jackpot.String(), nil
}

func (s *Server) handleGetTotalTweets(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.GetTotalTweets(), nil
}

func (s *Server) handleIsPaused(req *RPCRequest) (interface{}, *RPCError) {
	return s.ledger.IsPaused(), nil
}
