package survey

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryCatalog is a dev/test fallback when DB is not configured.
type MemoryCatalog struct {
	mu        sync.RWMutex
	surveys   map[string]Survey
	questions map[string][]Question
}

// NewMemoryCatalog constructs an empty in-memory Catalog implementation.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		surveys:   make(map[string]Survey),
		questions: make(map[string][]Question),
	}
}

// Add registers a survey and its questions, replacing any previous definition.
func (c *MemoryCatalog) Add(s Survey, qs []Question) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surveys[s.ID] = s

	cp := make([]Question, len(qs))
	copy(cp, qs)
	for i := range cp {
		cp[i].SurveyID = s.ID
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Position < cp[j].Position })
	c.questions[s.ID] = cp
}

// SetStatus flips a survey's lifecycle status. Returns ErrNotFound when absent.
func (c *MemoryCatalog) SetStatus(id string, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.surveys[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	c.surveys[id] = s
	return nil
}

// GetSurvey fetches a survey header by ID.
func (c *MemoryCatalog) GetSurvey(ctx context.Context, id string) (Survey, error) {
	if err := ctx.Err(); err != nil {
		return Survey{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Survey{}, ErrInvalidInput
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.surveys[id]
	if !ok {
		return Survey{}, ErrNotFound
	}
	return s, nil
}

// Questions returns the survey's questions ordered by position.
func (c *MemoryCatalog) Questions(ctx context.Context, surveyID string) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return nil, ErrInvalidInput
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.surveys[surveyID]; !ok {
		return nil, ErrNotFound
	}

	qs := c.questions[surveyID]
	out := make([]Question, len(qs))
	copy(out, qs)
	return out, nil
}
