package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"resume-critique/internal/shared/util"
)

// Check tests one dependency. A nil error means ready.
type Check func(ctx context.Context) error

// Service runs the registered dependency checks.
type Service struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

// NewService constructs a health service with no checks. Status reports ok until one is added.
func NewService() *Service {
	return &Service{checks: make(map[string]Check), timeout: 2 * time.Second}
}

// Register adds or replaces the check stored under name.
func (s *Service) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status runs every check with a shared deadline and reports per-dependency results.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rep := Report{OK: true}
	if len(names) == 0 {
		return rep
	}
	rep.Checks = make(map[string]string, len(names))
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			rep.OK = false
			rep.Checks[name] = util.SanitizeError(err)
			continue
		}
		rep.Checks[name] = "ok"
	}
	return rep
}
