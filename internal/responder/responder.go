// Package responder generates assistant replies, either from a rule-based
// topic table or by delegating to a chat-completion backend. Both paths speak
// the same streaming contract: every emitted snapshot is the full accumulated
// reply so far.
package responder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xstudio-chat-backend/internal/types"
)

// ErrUnavailable marks failures of the delegated model backend (unreachable
// host, missing model). The rule-based path never returns it.
var ErrUnavailable = errors.New("model backend unavailable")

// Streamer produces a reply for a message, pushing accumulated snapshots
// through emit. Returning emit's error stops production; the caller owns
// stream termination.
type Streamer interface {
	Stream(ctx context.Context, message string, history []types.Turn, emit func(snapshot string) error) error
}

// Spec is the prompt/topic definition loaded from YAML.
type Spec struct {
	System   string  `yaml:"system"`
	Default  string  `yaml:"default"`
	Fallback string  `yaml:"fallback"`
	Topics   []Topic `yaml:"topics"`
}

// Topic is one keyword-matched canned answer. Topics are tried in file
// order; the first with a matching keyword wins.
type Topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// LoadSpec reads the responder definition from a YAML file.
func LoadSpec(path string) (Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read responder spec: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse responder spec: %w", err)
	}
	if spec.Default == "" {
		return Spec{}, errors.New("responder spec: default reply is required")
	}
	return spec, nil
}

// Rules answers from the topic table, pacing word-chunks with a small delay
// to read like a typed reply.
type Rules struct {
	spec  Spec
	delay time.Duration
}

// NewRules builds the rule-based responder. delay is the inter-chunk pacing;
// zero disables it (tests).
func NewRules(spec Spec, delay time.Duration) *Rules {
	return &Rules{spec: spec, delay: delay}
}

// Reply picks the canned answer for a message without streaming.
func (r *Rules) Reply(message string) string {
	lower := strings.ToLower(message)
	for _, topic := range r.spec.Topics {
		for _, kw := range topic.Keywords {
			if strings.Contains(lower, kw) {
				return topic.Reply
			}
		}
	}
	return r.spec.Default
}

// Fallback is the fixed contact-us text used when reply generation fails
// after the response has been committed.
func (r *Rules) Fallback() string { return r.spec.Fallback }

// Tokens are words with their trailing whitespace so the accumulated text
// reassembles exactly.
var tokenRe = regexp.MustCompile(`\S+\s*|\s+`)

func (r *Rules) Stream(ctx context.Context, message string, _ []types.Turn, emit func(string) error) error {
	reply := r.Reply(message)

	var acc strings.Builder
	for _, tok := range tokenRe.FindAllString(reply, -1) {
		acc.WriteString(tok)
		if err := emit(acc.String()); err != nil {
			return err
		}
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	// Final snapshot carries the complete reply even for empty token lists.
	return emit(reply)
}
