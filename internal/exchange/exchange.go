package exchange

import (
	"context"
	"strategy-desk/internal/models"
	"strategy-desk/internal/operation"
	"time"
)

// ConnectionTester verifies a stored set of exchange API credentials.
// A real exchange client can replace the simulated one without touching callers.
type ConnectionTester interface {
	TestConnection(ctx context.Context, conn models.APIConnection) error
}

// SimulatedTester accepts every connection after Delay, or rejects every one when Fail is set.
// No network call is made.
type SimulatedTester struct {
	Delay time.Duration
	Fail  bool
}

// NewSimulatedTester creates a tester that always succeeds after delay.
func NewSimulatedTester(delay time.Duration) *SimulatedTester {
	return &SimulatedTester{Delay: delay}
}

func (s *SimulatedTester) TestConnection(ctx context.Context, _ models.APIConnection) error {
	return operation.Simulated{Delay: s.Delay, Fail: s.Fail}.Run(ctx)
}

// Probe wraps a connection test as an operation.
func Probe(tester ConnectionTester, conn models.APIConnection) operation.Operation {
	return operation.Func(func(ctx context.Context) error {
		return tester.TestConnection(ctx, conn)
	})
}
