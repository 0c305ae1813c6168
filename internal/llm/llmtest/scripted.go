// Package llmtest provides a scripted Classifier for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrExhausted is returned when no rule matches and the queue is empty
var ErrExhausted = errors.New("llmtest: no scripted response left")

type reply struct {
	text string
	err  error
}

type rule struct {
	contains string
	replies  []reply
}

// Scripted answers prompts from substring rules first, then from a FIFO queue
type Scripted struct {
	mu    sync.Mutex
	rules []*rule
	queue []reply
	calls []string
}

// New returns a Scripted classifier whose queue holds the given replies
func New(replies ...string) *Scripted {
	s := &Scripted{}
	for _, r := range replies {
		s.queue = append(s.queue, reply{text: r})
	}
	return s
}

// On answers prompts containing substr. Several replies are used in order and the last one repeats.
func (s *Scripted) On(substr string, replies ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &rule{contains: substr}
	for _, text := range replies {
		r.replies = append(r.replies, reply{text: text})
	}
	s.rules = append(s.rules, r)
	return s
}

// OnError fails every prompt containing substr
func (s *Scripted) OnError(substr string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{contains: substr, replies: []reply{{err: err}}})
	return s
}

// Then queues a reply
func (s *Scripted) Then(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, reply{text: text})
	return s
}

// ThenError queues a failure
func (s *Scripted) ThenError(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, reply{err: err})
	return s
}

func (s *Scripted) Classify(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, prompt)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, r := range s.rules {
		if !strings.Contains(prompt, r.contains) {
			continue
		}
		next := r.replies[0]
		if len(r.replies) > 1 {
			r.replies = r.replies[1:]
		}
		return next.text, next.err
	}

	if len(s.queue) == 0 {
		return "", ErrExhausted
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.text, next.err
}

// Calls returns every prompt received so far
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

// CallsContaining counts prompts that contain substr
func (s *Scripted) CallsContaining(substr string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}
