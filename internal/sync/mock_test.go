package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/njoerd114/reportsync/internal/model"
)

// --- Report helpers ----------------------------------------------------------

func rep(id int, updatedAt string) model.Report {
	return mustReport(fmt.Sprintf(`{"id":%d,"updated_at":%q,"name":"report %d"}`, id, updatedAt, id))
}

func tomb(id int, updatedAt string) model.Report {
	return mustReport(fmt.Sprintf(`{"id":%d,"updated_at":%q,"deleted_at":%q}`, id, updatedAt, updatedAt))
}

func mustReport(raw string) model.Report {
	var r model.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		panic(err)
	}
	return r
}

// ts returns an RFC 3339 timestamp n minutes after a fixed base time.
func ts(n int) string {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(n) * time.Minute).Format(model.TimestampLayout)
}

func ids(ds []model.Report) []string {
	out := make([]string, len(ds))
	for i, r := range ds {
		out[i] = r.ID
	}
	return out
}

// --- Mock page source --------------------------------------------------------

type pageStep struct {
	page []model.Report
	err  error
}

// mockSource replays scripted pages. Once the script is exhausted it
// returns empty pages.
type mockSource struct {
	mu      sync.Mutex
	steps   []pageStep
	cursors []string
	limits  []int

	// block, when set, is waited on before every fetch.
	block   chan struct{}
	entered chan struct{}
}

func newMockSource(steps ...pageStep) *mockSource {
	return &mockSource{steps: steps}
}

func (m *mockSource) FetchPage(ctx context.Context, updatedSince string, limit int) ([]model.Report, error) {
	if m.block != nil {
		if m.entered != nil {
			m.entered <- struct{}{}
		}
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursors = append(m.cursors, updatedSince)
	m.limits = append(m.limits, limit)
	if len(m.steps) == 0 {
		return []model.Report{}, nil
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	return step.page, step.err
}

func (m *mockSource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cursors)
}

func (m *mockSource) cursor(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[i]
}

// --- Mock store --------------------------------------------------------------

var errDisk = errors.New("disk on fire")

type mockStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	getErr    map[string]error
	setErr    error
	removeErr error
	sets      int
	removes   []string
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string][]byte), getErr: make(map[string]error)}
}

// withDataset stores ds under the active key.
func (m *mockStore) withDataset(ds ...model.Report) *mockStore {
	data, err := model.EncodeDataset(ds)
	if err != nil {
		panic(err)
	}
	m.values[ActiveKey] = data
	return m
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return nil, false, err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removes = append(m.removes, key)
	delete(m.values, key)
	return nil
}

// dataset decodes the value under the active key. Returns nil when absent.
func (m *mockStore) dataset() []model.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[ActiveKey]
	if !ok {
		return nil
	}
	ds, err := model.DecodeDataset(raw)
	if err != nil {
		panic(err)
	}
	return ds
}

func (m *mockStore) raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.values[ActiveKey]...)
}

// --- Recording sink ----------------------------------------------------------

type recordingSink struct {
	mu        sync.Mutex
	published [][]model.Report
	messages  []string
}

func (s *recordingSink) PublishReports(reports []model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, reports)
}

func (s *recordingSink) ReportError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

// last returns the most recently published dataset and whether any was.
func (s *recordingSink) last() ([]model.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return nil, false
	}
	return s.published[len(s.published)-1], true
}

func (s *recordingSink) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}
