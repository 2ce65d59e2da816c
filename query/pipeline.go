package query

import (
	"context"
	"fmt"

	"github.com/Tangerg/weave/errs"
)

// QueryTransformer rewrites a pending query's text before retrieval, e.g.
// HyDE expansion or a spelling pass.
type QueryTransformer interface {
	Transform(ctx context.Context, q *Query[Pending]) (*Query[Pending], error)
}

// ResponseTransformer rewrites a retrieved query's document list or text
// before an Answerer consumes it, e.g. a reranker or a compression pass.
type ResponseTransformer interface {
	Transform(ctx context.Context, q *Query[Retrieved]) (*Query[Retrieved], error)
}

// Answerer consumes a retrieved query and produces a final answer string.
type Answerer interface {
	Answer(ctx context.Context, q *Query[Retrieved]) (string, error)
}

// ThenTransformQuery applies one QueryTransformer and records a
// QueryTransformed event.
func ThenTransformQuery(ctx context.Context, q *Query[Pending], t QueryTransformer) (*Query[Pending], error) {
	transformed, err := t.Transform(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("transform query: %w", err)
	}
	next := withHistory[Pending, Pending](transformed, transformed.Current, Event{Kind: EventQueryTransformed})
	next.Dense, next.Sparse = transformed.Dense, transformed.Sparse
	return next, nil
}

// ThenRetrieve runs r against strategy and transitions the query into
// Retrieved, recording a Retrieved{documents} event.
func ThenRetrieve(ctx context.Context, q *Query[Pending], strategy SearchStrategy, r Retriever) (*Query[Retrieved], error) {
	if strategy == nil {
		return nil, errs.Configurationf("then_retrieve requires a non-nil search strategy")
	}
	docs, err := r.Retrieve(ctx, strategy, q)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	next := withHistory[Pending, Retrieved](q, q.Current, Event{Kind: EventRetrieved, Documents: docs})
	next.Documents = docs
	return next, nil
}

// ThenTransformResponse applies one ResponseTransformer, staying in
// Retrieved.
func ThenTransformResponse(ctx context.Context, q *Query[Retrieved], t ResponseTransformer) (*Query[Retrieved], error) {
	transformed, err := t.Transform(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("transform response: %w", err)
	}
	next := withHistory[Retrieved, Retrieved](transformed, transformed.Current, Event{Kind: EventResponseTransformed})
	next.Documents = transformed.Documents
	return next, nil
}

// ThenAnswer runs a against q and transitions the query into Answered.
func ThenAnswer(ctx context.Context, q *Query[Retrieved], a Answerer) (*Query[Answered], error) {
	answer, err := a.Answer(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	next := withHistory[Retrieved, Answered](q, q.Current, Event{Kind: EventAnswered})
	next.Documents = q.Documents
	next.Answer = answer
	return next, nil
}

// Pipeline is the fixed four-stage sequence described in the query state
// machine: transform-query*, retrieve, transform-response*, answer. Unlike
// the indexing pipeline it is not itself lazily streamed — a query pipeline
// answers one query at a time — but each stage function above is exported
// separately for callers that want to drive the state machine by hand (for
// example to inspect Retrieved before deciding whether to answer).
type Pipeline struct {
	QueryTransformers    []QueryTransformer
	Strategy             SearchStrategy
	Retriever            Retriever
	ResponseTransformers []ResponseTransformer
	Answerer             Answerer
}

func (p *Pipeline) validate() error {
	if p.Retriever == nil {
		return errs.Configurationf("query pipeline requires a retriever")
	}
	if p.Answerer == nil {
		return errs.Configurationf("query pipeline requires an answerer")
	}
	if p.Strategy == nil {
		return errs.Configurationf("query pipeline requires a search strategy")
	}
	return nil
}

// Run drives text through every configured stage and returns the final
// Answered query.
func (p *Pipeline) Run(ctx context.Context, text string) (*Query[Answered], error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	pending := New(text)
	for i, t := range p.QueryTransformers {
		transformed, err := ThenTransformQuery(ctx, pending, t)
		if err != nil {
			return nil, fmt.Errorf("query pipeline stage 'transform_query[%d]': %w", i, err)
		}
		pending = transformed
	}

	retrieved, err := ThenRetrieve(ctx, pending, p.Strategy, p.Retriever)
	if err != nil {
		return nil, fmt.Errorf("query pipeline stage 'retrieve': %w", err)
	}

	for i, t := range p.ResponseTransformers {
		transformed, err := ThenTransformResponse(ctx, retrieved, t)
		if err != nil {
			return nil, fmt.Errorf("query pipeline stage 'transform_response[%d]': %w", i, err)
		}
		retrieved = transformed
	}

	answered, err := ThenAnswer(ctx, retrieved, p.Answerer)
	if err != nil {
		return nil, fmt.Errorf("query pipeline stage 'answer': %w", err)
	}
	return answered, nil
}
