package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"twitt3r/crypto"
)

type sendTweetParams struct {
	Caller    string `json:"caller"`
	Message   string `json:"message"`
	ReplyTo   uint64 `json:"replyTo,omitempty"`
	RetweetOf uint64 `json:"retweetOf,omitempty"`
	Payment   string `json:"payment"`
}

type editTweetParams struct {
	Caller  string `json:"caller"`
	ID      uint64 `json:"id"`
	Message string `json:"message"`
}

type deleteTweetParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type callerParams struct {
	Caller string `json:"caller"`
}

type updateSettingsParams struct {
	Caller  string `json:"caller"`
	Odds    uint32 `json:"odds"`
	Price   string `json:"price"`
	Jackpot string `json:"jackpot"`
}

type depositParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type sendTweetResult struct {
	ID uint64 `json:"id"`
}

type withdrawResult struct {
	Amount string `json:"amount"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func parseAddressParam(field, value string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address: %v", field, err)}
	}
	return addr.Bytes(), nil
}

func parseAmountParam(field, value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s amount %q", field, value)}
	}
	return amount, nil
}

func (s *Server) handleSendTweet(req *RPCRequest) (interface{}, *RPCError) {
	var params sendTweetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	payment, rpcErr := parseAmountParam("payment", params.Payment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.ledger.CreateTweet(caller, params.Message, params.ReplyTo, params.RetweetOf, payment)
	if err != nil {
		return nil, errorForLedger(err)
	}
	return sendTweetResult{ID: id}, nil
}

func (s *Server) handleEditTweet(req *RPCRequest) (interface{}, *RPCError) {
	var params editTweetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.EditTweet(caller, params.ID, params.Message); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handleDeleteTweet(req *RPCRequest) (interface{}, *RPCError) {
	var params deleteTweetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.DeleteTweet(caller, params.ID); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handlePause(req *RPCRequest) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Pause(caller); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handleUnpause(req *RPCRequest) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Unpause(caller); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handleUpdateSettings(req *RPCRequest) (interface{}, *RPCError) {
	var params updateSettingsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmountParam("price", params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	jackpot, rpcErr := parseAmountParam("jackpot", params.Jackpot)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.UpdateSettings(caller, params.Odds, price, jackpot); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handleWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	swept, err := s.ledger.Withdraw(caller)
	if err != nil {
		return nil, errorForLedger(err)
	}
	return withdrawResult{Amount: swept.String()}, nil
}

func (s *Server) handleDeposit(req *RPCRequest) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddressParam("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Deposit(from, amount); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}

func (s *Server) handleClear(req *RPCRequest) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Clear(caller); err != nil {
		return nil, errorForLedger(err)
	}
	return true, nil
}
