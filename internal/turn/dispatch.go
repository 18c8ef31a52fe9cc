package turn

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mohammad-safakhou/hously/config"
)

// Dispatcher fans sub-questions out to concurrent agent branches and acts as
// the barrier: it returns only once every declared index has a result,
// synthesizing errored placeholders for branches that never reported.
type Dispatcher struct {
	branch      *Branch
	cfg         config.TurnConfig
	concurrency int
	logger      *log.Logger
}

func NewDispatcher(branch *Branch, cfg config.TurnConfig, concurrency int, logger *log.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 3
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags)
	}
	return &Dispatcher{branch: branch, cfg: cfg, concurrency: concurrency, logger: logger}
}

// Dispatch runs one branch per sub-question and merges their results into the
// state. Every branch gets its own timeout; a branch that panics or times out
// contributes an errored result rather than blocking the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, state State, langInstruction string) State {
	questions := state.SubQuestions
	results := make(chan AgentResult, len(questions))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for _, q := range questions {
		wg.Add(1)
		go func(q SubQuestion) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Printf("branch %d panicked: %v", q.Index, r)
					results <- AgentResult{
						Index:      q.Index,
						Generation: state.Generation,
						Status:     StatusErrored,
						Reason:     fmt.Sprintf("branch panicked: %v", r),
					}
				}
			}()

			bctx, cancel := context.WithTimeout(ctx, d.cfg.BranchTimeout)
			defer cancel()
			results <- d.branch.Run(bctx, state.Generation, q, langInstruction)
		}(q)
	}

	wg.Wait()
	close(results)

	for r := range results {
		state = state.WithResult(r)
	}

	// Barrier guarantee: no declared index is left without a result.
	for _, q := range questions {
		if _, ok := state.Results[q.Index]; !ok {
			state = state.WithResult(AgentResult{
				Index:      q.Index,
				Generation: state.Generation,
				Status:     StatusErrored,
				Reason:     "branch produced no result",
			})
		}
	}
	return state
}
