package token

import (
	"context"
	"fmt"

	"github.com/jrh3k5/walletops/internal/queue"
	"github.com/jrh3k5/walletops/internal/retry"
)

// ScheduledDetailsService runs every lookup of another DetailsService through a
// request scheduler, retrying failed lookups under the executor's policy.
type ScheduledDetailsService struct {
	delegate  DetailsService
	scheduler *queue.Scheduler
	retrier   *retry.Executor
}

var _ DetailsService = (*ScheduledDetailsService)(nil)

func NewScheduledDetailsService(delegate DetailsService, scheduler *queue.Scheduler, retrier *retry.Executor) *ScheduledDetailsService {
	return &ScheduledDetailsService{
		delegate:  delegate,
		scheduler: scheduler,
		retrier:   retrier,
	}
}

func (s *ScheduledDetailsService) GetTokenDetails(ctx context.Context, contractAddress string) (*Details, error) {
	label := fmt.Sprintf("token details of %s", contractAddress)

	return queue.Enqueue(ctx, s.scheduler, label, func(ctx context.Context) (*Details, error) {
		return retry.Do(ctx, s.retrier, label, func(ctx context.Context, _ int) (*Details, error) {
			return s.delegate.GetTokenDetails(ctx, contractAddress)
		})
	})
}
