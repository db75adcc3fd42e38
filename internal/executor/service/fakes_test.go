package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/internal/executor/repository"
)

type fakeSource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
	call := int(f.calls.Add(1))
	return f.fetch(ctx, call, req)
}

type fakeAI struct {
	calls    atomic.Int32
	generate func(ctx context.Context, call int) (string, error)
}

func (f *fakeAI) Provider() string { return "fake" }
func (f *fakeAI) Model() string    { return "fake-1" }

func (f *fakeAI) GenerateInsight(ctx context.Context, prompt string) (string, error) {
	call := int(f.calls.Add(1))
	return f.generate(ctx, call)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []dto.RunEvent
}

func (p *fakePublisher) PublishRunEvent(ctx context.Context, event dto.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) SendMessage(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

// dailyBars returns one bar per day for the n days before end.
func dailyBars(symbol string, end time.Time, n int) []entity.MarketDataPoint {
	points := make([]entity.MarketDataPoint, 0, n)
	for i := n; i >= 1; i-- {
		price := 100 + float64(n-i)
		points = append(points, entity.MarketDataPoint{
			Symbol:    symbol,
			Timestamp: end.Add(-time.Duration(i) * 24 * time.Hour),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000 + float64(i),
		})
	}
	return points
}

// flakyInsights fails the first failures calls to Create.
type flakyInsights struct {
	repository.InsightRepository
	calls    atomic.Int32
	failures atomic.Int32
}

func (f *flakyInsights) Create(ctx context.Context, insight *entity.Insight) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return f.InsightRepository.Create(ctx, insight)
}
