package finder

import (
	"context"
	"sync"

	"github.com/sagerenn/gdengine/internal/group"
	"github.com/sagerenn/gdengine/internal/observability"
)

// Session issues queries on behalf of one consumer and hands it only the
// result of the latest query. Results for older contexts are dropped.
type Session struct {
	f       *Finder
	deliver func(Result)

	mu     sync.Mutex
	latest QueryContext
	seq    uint64
}

// NewSession returns a Session calling deliver for current results.
// deliver runs with the session locked and must not call Query.
func (f *Finder) NewSession(deliver func(Result)) *Session {
	return &Session{f: f, deliver: deliver}
}

// Query starts a prefix match and makes it the latest. The returned channel
// is closed once the result was delivered or discarded.
func (s *Session) Query(ctx context.Context, query string, target group.Group) <-chan struct{} {
	qc := s.f.Context(query, target)
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.latest = qc
	s.mu.Unlock()

	ch := s.f.PrefixMatch(ctx, query, target)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res := <-ch
		s.mu.Lock()
		defer s.mu.Unlock()
		// A repeated identical query still supersedes the earlier one.
		if res.Context != s.latest || seq != s.seq {
			observability.StaleResults.Add(1)
			return
		}
		s.deliver(res)
	}()
	return done
}

// Latest returns the context of the most recent query.
func (s *Session) Latest() QueryContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}
