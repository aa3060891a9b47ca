// Package metrics implements the usage tracker: a JSONL append log of
// per-call token usage and cost, grounded on picoclaw's pkg/metrics, plus
// an exact-token-count helper backed by pkoukk/tiktoken-go for callers
// that need a count before a provider has responded (e.g. sizing a prompt
// against a context window).
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hybridchat/hub/pkg/logger"
)

// TokenEvent records usage for a single LLM call.
type TokenEvent struct {
	Timestamp    string   `json:"ts"`
	SessionID    string   `json:"session"`
	AgentName    string   `json:"agent,omitempty"`
	Model        string   `json:"model"`
	InputTokens  int      `json:"in"`
	OutputTokens int      `json:"out"`
	CacheRead    int      `json:"cache_read,omitempty"`
	CacheCreate  int      `json:"cache_create,omitempty"`
	CostUSD      float64  `json:"cost"`
	ToolsUsed    []string `json:"tools,omitempty"`
	Iteration    int      `json:"iter"`
}

// Tracker appends token usage events to a JSONL file and provides an exact
// token-count estimator for text not yet sent to a provider.
type Tracker struct {
	filePath string
	mu       sync.Mutex

	encMu sync.Mutex
	enc   *tiktoken.Tiktoken
}

// NewTracker creates a tracker that writes to <dataDir>/metrics/tokens.jsonl.
func NewTracker(dataDir string) *Tracker {
	dir := filepath.Join(dataDir, "metrics")
	os.MkdirAll(dir, 0755)
	return &Tracker{filePath: filepath.Join(dir, "tokens.jsonl")}
}

// Record appends a token event to the JSONL file, computing its cost.
func (t *Tracker) Record(event TokenEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}
	event.CostUSD = calculateCost(event.Model, event.InputTokens, event.OutputTokens, event.CacheRead, event.CacheCreate)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(data)
	f.Write([]byte("\n"))
}

// CountTokens returns the exact cl100k_base token count of text, used to
// budget a prompt before it's ever sent to a provider. Falls back to a
// length-based estimate (estimateTokens) if the tiktoken encoding can't be loaded
// (e.g. no network access to fetch its vocabulary file on first use).
func (t *Tracker) CountTokens(text string) int {
	enc, err := t.encoding()
	if err != nil {
		logger.WarnCF("metrics", "tiktoken encoding unavailable, estimating", map[string]interface{}{"error": err.Error()})
		return estimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (t *Tracker) encoding() (*tiktoken.Tiktoken, error) {
	t.encMu.Lock()
	defer t.encMu.Unlock()
	if t.enc != nil {
		return t.enc, nil
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	t.enc = enc
	return enc, nil
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

type modelPricing struct {
	inputPerM       float64
	outputPerM      float64
	cacheReadPerM   float64
	cacheCreatePerM float64
}

var pricing = map[string]modelPricing{
	"claude-sonnet-4-5-20250929": {3.0, 15.0, 0.3, 3.75},
	"claude-sonnet-4-20250514":   {3.0, 15.0, 0.3, 3.75},
	"claude-haiku-4-5-20251001":  {0.8, 4.0, 0.08, 1.0},
	"claude-opus-4-20250514":     {15.0, 75.0, 1.5, 18.75},
	"gpt-4o":                     {2.5, 10.0, 1.25, 0},
	"gpt-4o-mini":                {0.15, 0.6, 0.075, 0},
}

func calculateCost(model string, input, output, cacheRead, cacheCreate int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = modelPricing{3.0, 15.0, 0.3, 3.75}
	}

	return float64(input)*p.inputPerM/1e6 +
		float64(output)*p.outputPerM/1e6 +
		float64(cacheRead)*p.cacheReadPerM/1e6 +
		float64(cacheCreate)*p.cacheCreatePerM/1e6
}
