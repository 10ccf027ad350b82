// chat-cli is a terminal client for the Xstudio assistant. It keeps the
// transcript in a local history file, walks the lead-capture flow offline,
// and streams ordinary replies from the chat API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"xstudio-chat-backend/internal/config"
	"xstudio-chat-backend/internal/logger"
	"xstudio-chat-backend/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.IsProduction(), cfg.LogLevel)

	transport := session.NewHTTPTransport(cfg.ChatAPIURL)
	sess, err := session.New(session.NewFileStore(cfg.HistoryFile), transport, cfg.WhatsAppPhone)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session")
	}

	if model, err := transport.Health(context.Background()); err == nil {
		fmt.Printf("Connected to %s (model: %s)\n", cfg.ChatAPIURL, model)
	} else {
		fmt.Printf("Warning: chat API at %s is not reachable: %v\n", cfg.ChatAPIURL, err)
	}

	// Streamed snapshots replace the whole line; redraw in place.
	sess.OnUpdate = func(m session.Message) {
		fmt.Printf("\r\033[Kassistant> %s", lastLine(m.Content))
	}

	for _, m := range sess.Messages() {
		fmt.Printf("%s> %s\n", m.Role, m.Content)
	}
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/help":
			printHelp()
			continue
		case "/clear":
			if err := sess.Clear(); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("Conversation cleared.")
			}
			continue
		case "/retry":
			reply, err := sess.Retry(context.Background())
			printReply(reply, err)
			continue
		case "/actions":
			for i, a := range session.QuickActions {
				fmt.Printf("  %d. %s — %q\n", i+1, a.Label, a.Message)
			}
			continue
		}

		if action, ok := quickAction(line); ok {
			line = action
			fmt.Printf("you> %s\n", line)
		}

		reply, err := sess.Send(context.Background(), line)
		printReply(reply, err)
	}
}

// quickAction resolves "!services"-style shortcuts to their canned prompt.
func quickAction(line string) (string, bool) {
	if !strings.HasPrefix(line, "!") {
		return "", false
	}
	id := strings.TrimPrefix(line, "!")
	for _, a := range session.QuickActions {
		if a.ID == id {
			return a.Message, true
		}
	}
	return "", false
}

func printReply(reply session.Message, err error) {
	if err != nil {
		fmt.Printf("\r\033[Kerror: %v (type /retry to resend)\n", err)
		return
	}
	fmt.Printf("\r\033[Kassistant> %s\n", reply.Content)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func printHelp() {
	fmt.Println("Commands: /clear /retry /actions /help /quit — or !services !pricing !contact !cases !consultation")
}
