// Package harvest composes fetching, extraction, buffering, and persistence
// into reusable scraping pipelines.
package harvest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webharvest/internal/extract"
	"github.com/sells-group/webharvest/internal/fetcher"
	"github.com/sells-group/webharvest/internal/keyed"
	"github.com/sells-group/webharvest/internal/store"
)

// State tracks a pipeline through its lifecycle. There is no transition out
// of StateClosed.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateFetching      State = "fetching"
	StateParsed        State = "parsed"
	StateReady         State = "ready"
	StateClosed        State = "closed"
)

// Config identifies one pipeline. Two configs with equal identity keys
// address the same live instance.
type Config struct {
	URL         string
	Headers     map[string]string
	Backend     extract.Backend
	CloudBypass bool
	UserAgent   string
	Timeout     time.Duration

	// Store is optional; without it SaveToSink is unavailable.
	Store *store.Config
}

// identityKey renders the full constructor argument set as a stable string.
// Header order must not affect identity, so keys are sorted.
func (c Config) identityKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "url=%s|backend=%s|bypass=%t|ua=%s|timeout=%s", c.URL, c.Backend, c.CloudBypass, c.UserAgent, c.Timeout)
	keys := make([]string, 0, len(c.Headers))
	for k := range c.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "|h:%s=%s", k, c.Headers[k])
	}
	if c.Store != nil {
		fmt.Fprintf(&b, "|store=%s", c.Store.DSN())
	}
	return b.String()
}

// Pipeline is one live fetch-extract-persist instance. It fetches and parses
// its document eagerly at construction and then serves repeated extraction
// queries; extracted values buffer in an ordered store until SaveToSink.
type Pipeline struct {
	ID     string
	cfg    Config
	result *fetcher.Result
	engine extract.Engine
	buffer *keyed.Store[any]
	sink   *store.Sink
	state  State
}

func newPipeline(ctx context.Context, cfg Config) (*Pipeline, error) {
	p := &Pipeline{
		ID:     uuid.NewString(),
		cfg:    cfg,
		buffer: keyed.New[any](),
		state:  StateUninitialized,
	}

	p.state = StateFetching
	f := fetcher.New(fetcher.Options{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		CloudBypass: cfg.CloudBypass,
	})
	res, err := f.Fetch(ctx, cfg.URL, cfg.Headers)
	if err != nil {
		return nil, err
	}
	p.result = res

	engine, err := extract.New(cfg.Backend, res.Body)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	p.state = StateParsed

	if cfg.Store != nil {
		sink, err := store.New(ctx, *cfg.Store)
		if err != nil {
			return nil, err
		}
		p.sink = sink
	}
	p.state = StateReady

	zap.L().Info("pipeline ready",
		zap.String("pipeline_id", p.ID),
		zap.String("url", cfg.URL),
		zap.String("backend", string(cfg.Backend)),
	)
	return p, nil
}

// State returns the pipeline's lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// Result returns the fetched document.
func (p *Pipeline) Result() *fetcher.Result {
	return p.result
}

// Extract runs the queries against the parsed document and buffers every
// extracted value under synthetic keys, flattened in query order.
func (p *Pipeline) Extract(queries ...string) ([][]string, error) {
	if p.state == StateClosed {
		return nil, eris.New("harvest: pipeline is closed")
	}
	lists, err := p.engine.Extract(queries...)
	if err != nil {
		return nil, err
	}

	var flat []any
	for _, list := range lists {
		for _, v := range list {
			flat = append(flat, v)
		}
	}
	p.buffer.Ingest(flat)
	return lists, nil
}

// Buffer exposes the pipeline's keyed value buffer.
func (p *Pipeline) Buffer() *keyed.Store[any] {
	return p.buffer
}

// Lookup walks nested map values in the buffer: the first key addresses the
// buffer, each further key descends one map level. Any absent key yields
// (nil, false).
func (p *Pipeline) Lookup(keys ...string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current, ok := p.buffer.Get(keys[0])
	if !ok {
		return nil, false
	}
	for _, k := range keys[1:] {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		current, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SaveToSink writes every buffered value to the given table, one committed
// row per value, then closes the sink and the pipeline.
func (p *Pipeline) SaveToSink(ctx context.Context, table string) error {
	if p.state == StateClosed {
		return eris.New("harvest: pipeline is closed")
	}
	if p.sink == nil {
		return eris.New("harvest: pipeline has no persistence sink")
	}
	err := p.sink.WriteAll(ctx, table, p.buffer.Values())
	p.Close()
	return err
}

// Close closes the pipeline's sink, if any, and moves the pipeline to
// StateClosed. Idempotent.
func (p *Pipeline) Close() {
	if p.state == StateClosed {
		return
	}
	if p.sink != nil {
		p.sink.Close()
	}
	p.state = StateClosed
}
