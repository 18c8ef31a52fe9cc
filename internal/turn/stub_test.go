package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// stubProvider replays scripted completions in order. A nil script entry (or
// an exhausted script) yields errScriptExhausted so tests fail loudly when a
// component makes more model calls than expected.
type stubProvider struct {
	mu      sync.Mutex
	script  []stubReply
	calls   []string
	embedFn func(input []string) [][]float32
}

type stubReply struct {
	text string
	err  error
}

var errScriptExhausted = errors.New("stub provider script exhausted")

func newStub(replies ...stubReply) *stubProvider {
	return &stubProvider{script: replies}
}

func reply(text string) stubReply { return stubReply{text: text} }

func fail(msg string) stubReply { return stubReply{err: errors.New(msg)} }

func (s *stubProvider) next(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, prompt)
	if len(s.script) == 0 {
		return "", errScriptExhausted
	}
	r := s.script[0]
	s.script = s.script[1:]
	return r.text, r.err
}

func (s *stubProvider) Generate(_ context.Context, prompt, _ string, _ map[string]interface{}) (string, error) {
	return s.next(prompt)
}

func (s *stubProvider) GenerateWithTokens(_ context.Context, prompt, _ string, _ map[string]interface{}) (string, int64, int64, error) {
	out, err := s.next(prompt)
	return out, 10, 10, err
}

func (s *stubProvider) GenerateStream(_ context.Context, prompt, _ string, _ map[string]interface{}, onToken func(string)) (string, error) {
	out, err := s.next(prompt)
	if err != nil {
		return "", err
	}
	if onToken != nil {
		// Two fragments so consumers see real incremental delivery.
		half := len(out) / 2
		onToken(out[:half])
		onToken(out[half:])
	}
	return out, nil
}

func (s *stubProvider) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	if s.embedFn != nil {
		return s.embedFn(input), nil
	}
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubProvider) CalculateCost(_, _ int64, _ string) float64 { return 0 }

// orderedStub replays a separate script per prompt keyword, so concurrent
// branches each get their own deterministic sequence.
type orderedStub struct {
	mu       sync.Mutex
	byPrompt map[string][]stubReply
}

func (s *orderedStub) next(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, script := range s.byPrompt {
		if !strings.Contains(prompt, key) {
			continue
		}
		if len(script) == 0 {
			return "", errScriptExhausted
		}
		r := script[0]
		s.byPrompt[key] = script[1:]
		return r.text, r.err
	}
	return "", errScriptExhausted
}

func (s *orderedStub) Generate(_ context.Context, prompt, _ string, _ map[string]interface{}) (string, error) {
	return s.next(prompt)
}

func (s *orderedStub) GenerateWithTokens(_ context.Context, prompt, _ string, _ map[string]interface{}) (string, int64, int64, error) {
	out, err := s.next(prompt)
	return out, 10, 10, err
}

func (s *orderedStub) GenerateStream(_ context.Context, prompt, _ string, _ map[string]interface{}, onToken func(string)) (string, error) {
	out, err := s.next(prompt)
	if err == nil && onToken != nil {
		onToken(out)
	}
	return out, err
}

func (s *orderedStub) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *orderedStub) CalculateCost(_, _ int64, _ string) float64 { return 0 }
