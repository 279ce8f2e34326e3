package main

import (
	"fmt"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("TWITT3R_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8645"
}

func applyGlobalFlags(args []string) ([]string, error) {
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			rpcEndpoint = strings.TrimSpace(args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimSpace(strings.TrimPrefix(arg, "--rpc="))
			continue
		}
		remaining = append(remaining, arg)
	}
	return remaining, nil
}

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		os.Exit(runGenerateKey(args[1:]))
	case "tweet":
		os.Exit(runSendTweet(args[1:]))
	case "edit":
		os.Exit(runEditTweet(args[1:]))
	case "delete":
		os.Exit(runDeleteTweet(args[1:]))
	case "get":
		os.Exit(runGetTweet(args[1:]))
	case "list":
		os.Exit(runListTweets(args[1:]))
	case "status":
		os.Exit(runStatus(args[1:]))
	case "pause":
		os.Exit(runAdminSimple("tweet_pause", args[1:]))
	case "unpause":
		os.Exit(runAdminSimple("tweet_unpause", args[1:]))
	case "withdraw":
		os.Exit(runWithdraw(args[1:]))
	case "clear":
		os.Exit(runAdminSimple("tweet_clear", args[1:]))
	case "settings":
		os.Exit(runUpdateSettings(args[1:]))
	case "deposit":
		os.Exit(runDeposit(args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: twitt3r-cli [--rpc <url>] <command> [args]

Commands:
  generate-key <file>                       Create a new key file and print its address
  tweet <key-file> <message> [flags]        Post a tweet (flags: --reply-to, --retweet-of, --payment)
  edit <key-file> <id> <message>            Edit one of your tweets
  delete <key-file> <id>                    Soft-delete one of your tweets
  get <id>                                  Fetch one tweet
  list                                      Fetch all tweets
  status                                    Show owner, balance, settings, pause state
  pause <key-file>                          Owner: pause posting
  unpause <key-file>                        Owner: resume posting
  settings <key-file> <odds> <price> <jackpot>  Owner: update lottery settings
  withdraw <key-file>                       Owner: sweep the treasury
  deposit <key-file> <amount>               Fund the treasury
  clear <key-file>                          Owner: wipe all tweets

The RPC endpoint comes from --rpc or RPC_URL; mutating commands send the
bearer token from TWITT3R_RPC_TOKEN.`)
}
