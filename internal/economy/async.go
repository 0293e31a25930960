package economy

import (
	"context"

	"github.com/shopspring/decimal"
)

// run executes fn on the worker pool and delivers its value on the returned
// channel. The value is sent after fn returns, so the cache already holds
// whatever fn wrote.
func run[T any](s *Service, ctx context.Context, fn func(ctx context.Context) T) <-chan T {
	out := make(chan T, 1)
	task := func(context.Context) {
		out <- fn(ctx)
		close(out)
	}
	if err := s.pool.Submit(ctx, task); err != nil {
		go task(ctx)
	}
	return out
}

func (s *Service) GetBalanceAsync(ctx context.Context, accountID string) <-chan decimal.Decimal {
	return run(s, ctx, func(ctx context.Context) decimal.Decimal {
		return s.GetBalance(ctx, accountID)
	})
}

func (s *Service) SetBalanceAsync(ctx context.Context, accountID string, amount decimal.Decimal) <-chan Outcome {
	return run(s, ctx, func(ctx context.Context) Outcome {
		r, err := s.SetBalance(ctx, accountID, amount)
		return Outcome{Result: r, Err: err}
	})
}

func (s *Service) AddBalanceAsync(ctx context.Context, accountID string, amount decimal.Decimal) <-chan Outcome {
	return run(s, ctx, func(ctx context.Context) Outcome {
		r, err := s.AddBalance(ctx, accountID, amount)
		return Outcome{Result: r, Err: err}
	})
}

func (s *Service) RemoveBalanceAsync(ctx context.Context, accountID string, amount decimal.Decimal) <-chan Outcome {
	return run(s, ctx, func(ctx context.Context) Outcome {
		r, err := s.RemoveBalance(ctx, accountID, amount)
		return Outcome{Result: r, Err: err}
	})
}

func (s *Service) TransferAsync(ctx context.Context, from, to string, amount decimal.Decimal) <-chan Outcome {
	return run(s, ctx, func(ctx context.Context) Outcome {
		r, err := s.Transfer(ctx, from, to, amount)
		return Outcome{Result: r, Err: err}
	})
}
