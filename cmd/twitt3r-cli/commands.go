package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"twitt3r/crypto"
	"twitt3r/rpc"
)

func rpcCall(method string, params interface{}, result interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed RPC response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

func loadAddress(keyFile string) (string, error) {
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return "", err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return "", fmt.Errorf("malformed key file: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(decoded)
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

func runGenerateKey(args []string) int {
	if len(args) != 1 {
		fmt.Println("Error: expected a key file path.")
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	encoded := hex.EncodeToString(key.Bytes())
	if err := os.WriteFile(args[0], []byte(encoded+"\n"), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Address:", key.PubKey().Address().String())
	return 0
}

func runSendTweet(args []string) int {
	fs := flag.NewFlagSet("tweet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var replyTo, retweetOf uint64
	var payment string
	fs.Uint64Var(&replyTo, "reply-to", 0, "Tweet id being replied to")
	fs.Uint64Var(&retweetOf, "retweet-of", 0, "Tweet id being retweeted")
	fs.StringVar(&payment, "payment", "", "Payment attached to the tweet (defaults to the current price)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	positional := fs.Args()
	if len(positional) < 1 || len(positional) > 2 {
		fmt.Println("Error: expected a key file and an optional message.")
		return 1
	}
	message := ""
	if len(positional) == 2 {
		message = positional[1]
	}
	caller, err := loadAddress(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if strings.TrimSpace(payment) == "" {
		if err := rpcCall("tweet_getPrice", nil, &payment); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	var result struct {
		ID uint64 `json:"id"`
	}
	err = rpcCall("tweet_send", map[string]interface{}{
		"caller":    caller,
		"message":   message,
		"replyTo":   replyTo,
		"retweetOf": retweetOf,
		"payment":   payment,
	}, &result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Tweet id:", result.ID)
	return 0
}

func runEditTweet(args []string) int {
	if len(args) != 3 {
		fmt.Println("Error: expected a key file, a tweet id, and a message.")
		return 1
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Println("Error: invalid tweet id.")
		return 1
	}
	err = rpcCall("tweet_edit", map[string]interface{}{
		"caller":  caller,
		"id":      id,
		"message": args[2],
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Edited.")
	return 0
}

func runDeleteTweet(args []string) int {
	if len(args) != 2 {
		fmt.Println("Error: expected a key file and a tweet id.")
		return 1
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Println("Error: invalid tweet id.")
		return 1
	}
	err = rpcCall("tweet_delete", map[string]interface{}{"caller": caller, "id": id}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Deleted.")
	return 0
}

func runGetTweet(args []string) int {
	if len(args) != 1 {
		fmt.Println("Error: expected a tweet id.")
		return 1
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Println("Error: invalid tweet id.")
		return 1
	}
	var view rpc.TweetView
	if err := rpcCall("tweet_get", map[string]interface{}{"id": id}, &view); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printTweet(view)
	return 0
}

func runListTweets(args []string) int {
	var views []rpc.TweetView
	if err := rpcCall("tweet_list", nil, &views); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, view := range views {
		printTweet(view)
	}
	return 0
}

func printTweet(view rpc.TweetView) {
	when := time.Unix(view.Timestamp, 0).UTC().Format(time.RFC3339)
	marker := ""
	if view.Deleted {
		marker = " [deleted]"
	}
	switch {
	case view.RetweetOf != 0:
		fmt.Printf("#%d %s %s retweeted #%d%s\n", view.ID, when, view.Author, view.RetweetOf, marker)
	case view.ReplyTo != 0:
		fmt.Printf("#%d %s %s (reply to #%d)%s: %s\n", view.ID, when, view.Author, view.ReplyTo, marker, view.Message)
	default:
		fmt.Printf("#%d %s %s%s: %s\n", view.ID, when, view.Author, marker, view.Message)
	}
}

func runStatus(args []string) int {
	var owner, balance, price, jackpot string
	var odds uint32
	var total uint64
	var paused bool
	calls := []struct {
		method string
		out    interface{}
	}{
		{"tweet_getOwner", &owner},
		{"tweet_getBalance", &balance},
		{"tweet_getPrice", &price},
		{"tweet_getOdds", &odds},
		{"tweet_getJackpot", &jackpot},
		{"tweet_getTotalTweets", &total},
		{"tweet_isPaused", &paused},
	}
	for _, call := range calls {
		if err := rpcCall(call.method, nil, call.out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	fmt.Println("Owner:   ", owner)
	fmt.Println("Balance: ", balance)
	fmt.Println("Price:   ", price)
	fmt.Println("Odds:    ", odds)
	fmt.Println("Jackpot: ", jackpot)
	fmt.Println("Tweets:  ", total)
	fmt.Println("Paused:  ", paused)
	return 0
}

func runAdminSimple(method string, args []string) int {
	if len(args) != 1 {
		fmt.Println("Error: expected a key file.")
		return 1
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := rpcCall(method, map[string]interface{}{"caller": caller}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("OK.")
	return 0
}

func runWithdraw(args []string) int {
	if len(args) != 1 {
		fmt.Println("Error: expected a key file.")
		return 1
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	var result struct {
		Amount string `json:"amount"`
	}
	if err := rpcCall("tweet_withdraw", map[string]interface{}{"caller": caller}, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Swept:", result.Amount)
	return 0
}

func runUpdateSettings(args []string) int {
	if len(args) != 4 {
		fmt.Println("Error: expected a key file, odds, price, and jackpot.")
		return 1
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	odds, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Println("Error: invalid odds.")
		return 1
	}
	err = rpcCall("tweet_updateSettings", map[string]interface{}{
		"caller":  caller,
		"odds":    uint32(odds),
		"price":   args[2],
		"jackpot": args[3],
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Settings updated.")
	return 0
}

func runDeposit(args []string) int {
	if len(args) != 2 {
		fmt.Println("Error: expected a key file and an amount.")
		return 1
	}
	from, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	err = rpcCall("tweet_deposit", map[string]interface{}{"from": from, "amount": args[1]}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println("Deposited.")
	return 0
}
