package turn

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/llm"
)

// Compressor folds older conversation turns into a running summary so the
// analyzer works against a bounded context window. Compression is best
// effort: a model failure leaves the thread untouched and never blocks the
// turn.
type Compressor struct {
	provider llm.Provider
	cfg      config.TurnConfig
	route    config.LLMRoutingConfig
	logger   *log.Logger
}

func NewCompressor(provider llm.Provider, cfg config.TurnConfig, route config.LLMRoutingConfig, logger *log.Logger) *Compressor {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPRESS] ", log.LstdFlags)
	}
	return &Compressor{provider: provider, cfg: cfg, route: route, logger: logger}
}

// Compress returns an updated summary and whether the thread's messages may
// be pruned. Pruning is only ever allowed together with a non-empty summary;
// a short thread or a failed summarization returns the prior summary with
// prune=false.
func (c *Compressor) Compress(ctx context.Context, th Thread) (string, bool) {
	// The last message is the query this turn is answering; it belongs to
	// the analyzer, not the history, so it never enters the summary.
	history := th.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	if len(history) < c.cfg.SummaryMinMessages {
		return th.Summary, false
	}

	window := history
	if len(window) > c.cfg.SummaryWindow {
		window = window[len(window)-c.cfg.SummaryWindow:]
	}

	prompt := fmt.Sprintf(summaryPrompt, orEmpty(th.Summary), renderTranscript(window))
	out, err := c.provider.Generate(ctx, prompt, c.route.Model("compression"), map[string]interface{}{
		"temperature": 0.2,
	})
	if err != nil {
		c.logger.Printf("summary generation failed, keeping prior summary: %v", err)
		return th.Summary, false
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		return th.Summary, false
	}
	return summary, true
}

func renderTranscript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func orEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
