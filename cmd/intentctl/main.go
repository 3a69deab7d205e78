// Intent CLI - classify messages offline, without redis or NATS
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/config"
	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/intent"
	"github.com/creatorbot/intent-kernel/internal/jsonx"
)

func main() {
	text := flag.String("text", "", "Message to classify (default: one message per stdin line)")
	name := flag.String("name", "", "User display name")
	greeting := flag.String("greeting", "", "Time-of-day greeting used for canned replies")
	contextual := flag.Bool("contextual", false, "Enable contextual intent rules")
	pending := flag.String("pending", "", "Tag of the yes/no question the assistant is waiting on")
	pendingCtx := flag.String("pending-context", "", "JSON payload attached to the pending question")
	topic := flag.String("topic", "", "Topic of the assistant's previous reply")
	question := flag.Bool("question", false, "The previous reply ended with a question")
	summary := flag.String("summary", "", "Conversation summary")
	stateFile := flag.String("state", "", "Path to a dialogue state JSON document (overrides the context flags)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")

	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	engineCfg := cfg.EngineConfig()
	if *contextual {
		engineCfg.ContextualLogicEnabled = true
	}
	engine := intent.NewEngine(engineCfg, logger)

	state, err := buildState(*stateFile, *pending, *pendingCtx, *topic, *question, *summary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	user := intent.User{Name: *name}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	classify := func(line string) {
		res := engine.Classify(line, user, state, *greeting)
		data, err := jsonx.Marshal(res)
		if err != nil {
			logger.Error("Failed to encode result", zap.Error(err))
			return
		}
		out.Write(data)
		out.WriteByte('\n')
	}

	if *text != "" {
		classify(*text)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		classify(line)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
		os.Exit(1)
	}
}

func buildState(path, pending, pendingCtx, topic string, question bool, summary string) (dialogue.State, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return dialogue.State{}, fmt.Errorf("failed to read state %s: %w", path, err)
		}
		var st dialogue.State
		if err := jsonx.Unmarshal(data, &st); err != nil {
			return dialogue.State{}, fmt.Errorf("failed to parse state %s: %w", path, err)
		}
		return st, nil
	}

	now := time.Now()
	st := dialogue.DefaultState()
	if pending != "" {
		st.LastAIQuestionType = dialogue.StringPtr(pending)
	}
	if pendingCtx != "" {
		if !jsonx.Valid([]byte(pendingCtx)) {
			return st, fmt.Errorf("pending-context is not valid JSON")
		}
		st.PendingActionContext = json.RawMessage(pendingCtx)
	}
	if topic != "" || question {
		rc := &dialogue.ResponseContext{WasQuestion: question, Timestamp: now.UnixMilli()}
		if topic != "" {
			rc.Topic = dialogue.StringPtr(topic)
		}
		st.LastResponseContext = rc
	}
	if summary != "" {
		st.ConversationSummary = dialogue.StringPtr(summary)
	}
	if pending != "" || topic != "" || question || summary != "" {
		st.LastInteraction = now.UnixMilli()
	}
	return st, nil
}
