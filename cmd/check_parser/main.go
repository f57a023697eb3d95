package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vitos/tg_signal_trader/internal/domain"
	"github.com/vitos/tg_signal_trader/internal/events"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/logger"
	"github.com/vitos/tg_signal_trader/internal/usecase"
)

// Feeds a message through the parser and prints the verdict. The message
// comes from the arguments, or from stdin when none are given.
func main() {
	var text string
	if len(os.Args) > 1 {
		text = strings.Join(os.Args[1:], " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil || len(data) == 0 {
			fmt.Println("usage: check_parser <message text> (or pipe text on stdin)")
			os.Exit(1)
		}
		text = string(data)
	}

	log, err := logger.NewLogger("debug")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	em := events.NewEmitter(log)
	em.AddSink(events.NewLogSink(log))
	parser := usecase.NewParser(em, log)

	res := parser.Parse(domain.Signal{Text: text, Source: "check_parser", ReceivedAt: time.Now()})
	switch res.Outcome {
	case usecase.OutcomeParsed:
		out, _ := json.MarshalIndent(res.Intent, "", "  ")
		fmt.Printf("✅ Parsed (%s):\n%s\n", res.Intent.Origin, out)
	case usecase.OutcomeIgnored:
		fmt.Printf("ℹ️ Ignored: %s\n", res.Reason)
	case usecase.OutcomeError:
		fmt.Printf("❌ Parse error: %v\n", res.Err)
		os.Exit(1)
	}
}
