package intent

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/attalus-io/vestibule/pkg/types"
)

// registration pairs a pattern string with the handler that claimed it.
type registration struct {
	pattern string
	handler Handler
}

// wildcardPattern is a compiled scoped wildcard ("media.playlist.*",
// "timer.?").
type wildcardPattern struct {
	pattern string
	re      *regexp.Regexp
	handler Handler
}

// Registry maps intent name patterns to handlers.
//
// Lookup precedence, most specific first:
//  1. Exact name match ("timer.set").
//  2. Scoped wildcards, longest pattern first ("media.playlist.*" beats
//     "media.*list.*"). '*' matches any run of characters, '?' matches one
//     name segment (no dots).
//  3. Bare domain registration ("conversation" catches "conversation.x").
//  4. Domain-wide wildcard ("timer.*" as the whole pattern).
//
// Registering the same pattern twice is an error; patterns are the routing
// table and silent replacement hides wiring mistakes.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	exact      map[string]registration
	wildcards  []wildcardPattern // sorted by descending pattern length
	domains    map[string]registration
	domainWide map[string]registration

	// contextual maps a bare command ("stop") to the sorted domains whose
	// handlers advertise it.
	contextual map[string][]string

	handlers map[string]Handler // by handler name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:      make(map[string]registration),
		domains:    make(map[string]registration),
		domainWide: make(map[string]registration),
		contextual: make(map[string][]string),
		handlers:   make(map[string]Handler),
	}
}

// Register adds all of the handler's patterns. If the handler implements
// [ContextualCommander], its commands are indexed against the domains its
// patterns cover. Registration is not atomic on error: patterns added before
// a conflicting one stay registered.
func (r *Registry) Register(h Handler) error {
	for _, p := range h.Patterns() {
		if err := r.RegisterPattern(p, h); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h

	cc, ok := h.(ContextualCommander)
	if !ok {
		return nil
	}
	domains := patternDomains(h.Patterns())
	for _, cmd := range cc.ContextualCommands() {
		merged := append(r.contextual[cmd], domains...)
		slices.Sort(merged)
		r.contextual[cmd] = slices.Compact(merged)
	}
	return nil
}

// RegisterPattern adds a single pattern for the handler.
func (r *Registry) RegisterPattern(pattern string, h Handler) error {
	if pattern == "" {
		return fmt.Errorf("intent: empty pattern for handler %q", h.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch classifyPattern(pattern) {
	case patternExact:
		if prev, ok := r.exact[pattern]; ok {
			return fmt.Errorf("intent: pattern %q already registered by %q", pattern, prev.handler.Name())
		}
		r.exact[pattern] = registration{pattern: pattern, handler: h}

	case patternDomain:
		if prev, ok := r.domains[pattern]; ok {
			return fmt.Errorf("intent: domain %q already registered by %q", pattern, prev.handler.Name())
		}
		r.domains[pattern] = registration{pattern: pattern, handler: h}

	case patternDomainWide:
		domain := strings.TrimSuffix(pattern, ".*")
		if prev, ok := r.domainWide[domain]; ok {
			return fmt.Errorf("intent: pattern %q already registered by %q", pattern, prev.handler.Name())
		}
		r.domainWide[domain] = registration{pattern: pattern, handler: h}

	case patternWildcard:
		for _, w := range r.wildcards {
			if w.pattern == pattern {
				return fmt.Errorf("intent: pattern %q already registered by %q", pattern, w.handler.Name())
			}
		}
		re, err := compileWildcard(pattern)
		if err != nil {
			return fmt.Errorf("intent: pattern %q: %w", pattern, err)
		}
		r.wildcards = append(r.wildcards, wildcardPattern{pattern: pattern, re: re, handler: h})
		// Longest first so the most specific wildcard wins; stable keeps
		// registration order for equal lengths.
		slices.SortStableFunc(r.wildcards, func(a, b wildcardPattern) int {
			return len(b.pattern) - len(a.pattern)
		})
	}
	return nil
}

// Resolve returns the handler for the intent name and the pattern that
// matched it.
func (r *Registry) Resolve(name string) (Handler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.exact[name]; ok {
		return reg.handler, reg.pattern, true
	}
	for _, w := range r.wildcards {
		if w.re.MatchString(name) {
			return w.handler, w.pattern, true
		}
	}
	domain, _ := types.SplitIntentName(name)
	if reg, ok := r.domains[domain]; ok {
		return reg.handler, reg.pattern, true
	}
	if reg, ok := r.domainWide[domain]; ok {
		return reg.handler, reg.pattern, true
	}
	return nil, "", false
}

// ContextualDomains returns the sorted domains whose handlers advertise the
// bare command, or nil if none do.
func (r *Registry) ContextualDomains(command string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.contextual[command])
}

// Handler returns a registered handler by name.
func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Handlers returns all registered handlers sorted by name.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Sorted(maps.Keys(r.handlers))
	out := make([]Handler, 0, len(names))
	for _, n := range names {
		out = append(out, r.handlers[n])
	}
	return out
}

// Patterns returns every registered pattern sorted lexically. Intended for
// the status endpoint and tests.
func (r *Registry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exact)+len(r.wildcards)+len(r.domains)+len(r.domainWide))
	for p := range r.exact {
		out = append(out, p)
	}
	for _, w := range r.wildcards {
		out = append(out, w.pattern)
	}
	for p := range r.domains {
		out = append(out, p)
	}
	for _, reg := range r.domainWide {
		out = append(out, reg.pattern)
	}
	slices.Sort(out)
	return out
}

type patternClass int

const (
	patternExact patternClass = iota
	patternDomain
	patternDomainWide
	patternWildcard
)

// classifyPattern decides which lookup tier a pattern belongs to.
func classifyPattern(pattern string) patternClass {
	wild := strings.ContainsAny(pattern, "*?")
	dots := strings.Count(pattern, ".")
	switch {
	case !wild && dots == 0:
		return patternDomain
	case !wild:
		return patternExact
	case dots == 1 && strings.HasSuffix(pattern, ".*") && !strings.ContainsAny(strings.TrimSuffix(pattern, ".*"), "*?"):
		return patternDomainWide
	default:
		return patternWildcard
	}
}

// compileWildcard translates a pattern into an anchored regexp: '*' matches
// any run of characters, '?' matches exactly one dot-free segment.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(`[^.]+`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// patternDomains extracts the unique sorted domains the patterns cover.
func patternDomains(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		d := p
		if i := strings.IndexByte(p, '.'); i >= 0 {
			d = p[:i]
		}
		if d = strings.Trim(d, "*?"); d == "" {
			continue
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
