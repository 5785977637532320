package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/alerting"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

type memoryPrices struct {
	mu        sync.Mutex
	samples   []storage.PriceSample
	insertErr error
	nextID    int64
}

func (m *memoryPrices) add(tok token.Token, price string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.samples = append(m.samples, storage.PriceSample{
		ID:        m.nextID,
		Token:     tok,
		Price:     decimal.RequireFromString(price),
		Timestamp: at,
	})
}

func (m *memoryPrices) InsertSamples(_ context.Context, samples []storage.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, s := range samples {
		m.nextID++
		s.ID = m.nextID
		m.samples = append(m.samples, s)
	}
	return nil
}

func (m *memoryPrices) newestFirst(match func(storage.PriceSample) bool) []storage.PriceSample {
	out := make([]storage.PriceSample, 0, len(m.samples))
	for _, s := range m.samples {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (m *memoryPrices) LatestSample(_ context.Context, tok token.Token) (storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := m.newestFirst(func(s storage.PriceSample) bool { return s.Token == tok })
	if len(found) == 0 {
		return storage.PriceSample{}, storage.ErrNotFound
	}
	return found[0], nil
}

func (m *memoryPrices) LatestSampleAtOrBefore(_ context.Context, tok token.Token, cutoff time.Time) (storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := m.newestFirst(func(s storage.PriceSample) bool {
		return s.Token == tok && !s.Timestamp.After(cutoff)
	})
	if len(found) == 0 {
		return storage.PriceSample{}, storage.ErrNotFound
	}
	return found[0], nil
}

func (m *memoryPrices) ListRecentSamples(_ context.Context, limit int) ([]storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return truncate(m.newestFirst(func(storage.PriceSample) bool { return true }), limit), nil
}

func (m *memoryPrices) ListTokenSamples(_ context.Context, tok token.Token, limit int) ([]storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return truncate(m.newestFirst(func(s storage.PriceSample) bool { return s.Token == tok }), limit), nil
}

func (m *memoryPrices) ListSamplesBetween(_ context.Context, from, to time.Time) ([]storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.newestFirst(func(s storage.PriceSample) bool {
		return !s.Timestamp.Before(from) && s.Timestamp.Before(to)
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *memoryPrices) CountSamples(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.samples)), nil
}

func truncate(samples []storage.PriceSample, limit int) []storage.PriceSample {
	if limit > 0 && len(samples) > limit {
		return samples[:limit]
	}
	return samples
}

type memoryAlerts struct {
	mu      sync.Mutex
	alerts  []storage.Alert
	listErr error
	clock   time.Time
}

func (m *memoryAlerts) InsertAlert(_ context.Context, alert storage.Alert) (storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if m.clock.IsZero() {
		m.clock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	m.clock = m.clock.Add(time.Second)
	alert.CreatedAt = m.clock
	alert.Triggered = false
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

func (m *memoryAlerts) ListPendingAlerts(context.Context) ([]storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]storage.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Triggered {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryAlerts) MarkAlertTriggered(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id && !m.alerts[i].Triggered {
			m.alerts[i].Triggered = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryAlerts) get(id uuid.UUID) storage.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return a
		}
	}
	return storage.Alert{}
}

type stubSource struct {
	prices map[token.Token]decimal.Decimal
	err    error
	calls  int
}

func (s *stubSource) FetchPrices(_ context.Context, tokens []token.Token) (map[token.Token]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[token.Token]decimal.Decimal, len(tokens))
	for _, tok := range tokens {
		if p, ok := s.prices[tok]; ok {
			out[tok] = p
		}
	}
	return out, nil
}

type sentSpike struct {
	to    string
	spike alerting.Spike
}

type sentTarget struct {
	to     string
	target alerting.TargetReached
}

type recordingNotifier struct {
	mu        sync.Mutex
	spikes    []sentSpike
	targets   []sentTarget
	tests     []string
	targetErr error
	spikeErr  error
	testErr   error
}

func (n *recordingNotifier) NotifySpike(_ context.Context, recipient string, spike alerting.Spike) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.spikeErr != nil {
		return n.spikeErr
	}
	n.spikes = append(n.spikes, sentSpike{to: recipient, spike: spike})
	return nil
}

func (n *recordingNotifier) NotifyTarget(_ context.Context, recipient string, target alerting.TargetReached) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.targetErr != nil {
		return n.targetErr
	}
	n.targets = append(n.targets, sentTarget{to: recipient, target: target})
	return nil
}

func (n *recordingNotifier) SendTest(_ context.Context, recipient string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.testErr != nil {
		return n.testErr
	}
	n.tests = append(n.tests, recipient)
	return nil
}

type countingEvaluator struct {
	calls []time.Time
	err   error
	panic bool
}

func (e *countingEvaluator) Evaluate(_ context.Context, now time.Time) error {
	e.calls = append(e.calls, now)
	if e.panic {
		panic("evaluator exploded")
	}
	return e.err
}

var errBoom = errors.New("boom")
