// Copyright 2025 James Ross
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Factory builds a fresh strategy instance bound to a buffer size.
type Factory func(bufferSize int) Strategy

var registry = map[string]Factory{
	"drop-tail":    func(b int) Strategy { return NewDropTail(b) },
	"fifo":         func(b int) Strategy { return NewFifo(b) },
	"red":          func(b int) Strategy { return NewRed(b) },
	"adaptive-red": func(b int) Strategy { return NewAdaptiveRed(b) },
	"blue":         func(b int) Strategy { return NewBlue(b) },
	"codel":        func(b int) Strategy { return NewCoDel(b) },
	"pie":          func(b int) Strategy { return NewPie(b) },
	"fq-codel":     func(b int) Strategy { return NewFQCoDel(b) },
}

// aliases maps alternate spellings to a canonical registry key.
var aliases = map[string]string{
	"droptail": "drop-tail",
	"ared":     "adaptive-red",
	"fqcodel":  "fq-codel",
}

// UnknownStrategyError reports an unrecognized strategy name, carrying a
// fuzzy-matched suggestion when one is close enough to be useful.
type UnknownStrategyError struct {
	Name       string
	Suggestion string
}

func (e *UnknownStrategyError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown strategy %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown strategy %q", e.Name)
}

// List returns every registered canonical strategy name, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a named strategy bound to bufferSize. Name matching is
// case-insensitive and recognizes the aliases table above. An unrecognized
// name returns an *UnknownStrategyError carrying the closest registered
// name as a suggestion.
func Create(name string, bufferSize int) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}

	factory, ok := registry[key]
	if !ok {
		return nil, &UnknownStrategyError{Name: name, Suggestion: suggest(key)}
	}
	return factory(bufferSize), nil
}

func suggest(name string) string {
	matches := fuzzy.RankFindNormalizedFold(name, List())
	if len(matches) == 0 {
		return ""
	}
	sort.Sort(matches)
	return matches[0].Target
}

// Builder fluently assembles a Strategy, for callers that construct a
// policy without going through CLI flags.
type Builder struct {
	name       string
	bufferSize int
	err        error
}

// NewBuilder starts a Builder for the named strategy.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// WithBufferSize sets the buffer size the strategy will be constructed
// with.
func (b *Builder) WithBufferSize(n int) *Builder {
	b.bufferSize = n
	return b
}

// Build resolves the configured name and buffer size into a Strategy.
func (b *Builder) Build() (Strategy, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Create(b.name, b.bufferSize)
}
