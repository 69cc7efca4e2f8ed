// Package graph executes GraphQL operations against the entity store. Relation
// fields are resolved through the request-scoped batch loaders.
package graph

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"socialgraph/internal/loaders"
	"socialgraph/internal/observability"

	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
)

//go:embed schema.graphql
var schemaSDL string

// Defaults for Options.
const (
	DefaultMaxDepth       = 10
	DefaultMaxParallelism = 100
)

// Options configure an Executor.
type Options struct {
	Services Services
	Source   loaders.Source
	Events   Subscriber
	// Limiter may be nil to disable mutation rate limiting.
	Limiter        Limiter
	Loader         loaders.Options
	MaxDepth       int
	MaxParallelism int
}

// Request is a GraphQL operation as posted by clients.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Executor runs operations, giving each its own loader set.
type Executor struct {
	schema *graphql.Schema
	source loaders.Source
	opts   loaders.Options
}

// NewExecutor parses the embedded schema and binds it to the resolvers.
func NewExecutor(o Options) (*Executor, error) {
	if o.Limiter == nil {
		o.Limiter = noLimit{}
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = DefaultMaxParallelism
	}

	root := &Resolver{
		svc:     o.Services,
		rel:     &relations{source: o.Source, opts: o.Loader},
		events:  o.Events,
		limiter: o.Limiter,
	}
	schema, err := graphql.ParseSchema(schemaSDL, root,
		graphql.MaxDepth(o.MaxDepth),
		graphql.MaxParallelism(o.MaxParallelism),
	)
	if err != nil {
		return nil, err
	}
	return &Executor{schema: schema, source: o.Source, opts: o.Loader}, nil
}

// Execute runs a query or mutation with a fresh loader set.
func (e *Executor) Execute(ctx context.Context, req Request) *graphql.Response {
	start := time.Now()
	opType := operationType(req.Query, req.OperationName)

	ctx, span := observability.GetTraceLayer().TraceGraphQLOperation(ctx, req.OperationName)
	ctx = loaders.WithLoaders(ctx, loaders.NewLoaders(e.source, e.opts))

	resp := e.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

	var spanErr error
	if len(resp.Errors) > 0 {
		spanErr = resp.Errors[0]
	}
	observability.EndSpan(span, spanErr)
	recordErrors(resp.Errors)
	observability.RecordOperation(opType, req.OperationName, start, len(resp.Errors) > 0)
	return resp
}

// Subscribe starts a subscription. The returned channel yields *graphql.Response
// values and is closed when ctx is done or the source ends.
func (e *Executor) Subscribe(ctx context.Context, req Request) (<-chan interface{}, error) {
	start := time.Now()
	ch, err := e.schema.Subscribe(ctx, req.Query, req.OperationName, req.Variables)
	observability.RecordOperation("subscription", req.OperationName, start, err != nil)
	if err != nil {
		recordErrors([]*gqlerrors.QueryError{asQueryError(err)})
		return nil, err
	}
	return ch, nil
}

// OperationType returns "query", "mutation" or "subscription" for the operation
// req selects.
func OperationType(req Request) string {
	return operationType(req.Query, req.OperationName)
}

// IsSubscription reports whether req selects a subscription operation.
func IsSubscription(req Request) bool {
	return OperationType(req) == "subscription"
}

func recordErrors(errs []*gqlerrors.QueryError) {
	for _, qe := range errs {
		code := "GRAPHQL_ERROR"
		if c, ok := qe.Extensions["code"].(string); ok {
			code = c
		}
		observability.GraphQLErrors.WithLabelValues(code).Inc()
	}
}

func asQueryError(err error) *gqlerrors.QueryError {
	var qe *gqlerrors.QueryError
	if errors.As(err, &qe) {
		return qe
	}
	return gqlerrors.Errorf("%s", err.Error())
}

type operationDef struct {
	kind, name string
}

// operationType finds the kind of the operation that will run. Shorthand
// documents ("{ ... }") are queries.
func operationType(query, operationName string) string {
	ops := scanOperations(query)
	if len(ops) == 0 {
		return "query"
	}
	if operationName == "" {
		return ops[0].kind
	}
	for _, op := range ops {
		if op.name == operationName {
			return op.kind
		}
	}
	return "query"
}

// scanOperations lists the operation definitions of a document. Only words at
// brace and paren depth 0 are definition keywords; strings and comments are skipped.
func scanOperations(doc string) []operationDef {
	var (
		ops     []operationDef
		braces  int
		parens  int
		pending bool // a definition keyword was read and its selection set has not opened
		naming  *operationDef
	)
	for i := 0; i < len(doc); {
		ch := doc[i]
		switch {
		case ch == '#':
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
			continue
		case ch == '"':
			i = skipString(doc, i)
			continue
		case ch == '{':
			if braces == 0 && parens == 0 {
				if !pending {
					ops = append(ops, operationDef{kind: "query"})
				}
				pending = false
				naming = nil
			}
			braces++
		case ch == '}':
			if braces > 0 {
				braces--
			}
		case ch == '(':
			parens++
			naming = nil
		case ch == ')':
			if parens > 0 {
				parens--
			}
		case isNameStart(ch):
			j := i + 1
			for j < len(doc) && isNameChar(doc[j]) {
				j++
			}
			word := doc[i:j]
			if braces == 0 && parens == 0 {
				switch {
				case naming != nil:
					naming.name = word
					naming = nil
				case !pending && (word == "query" || word == "mutation" || word == "subscription"):
					ops = append(ops, operationDef{kind: word})
					naming = &ops[len(ops)-1]
					pending = true
				case !pending && word == "fragment":
					pending = true
				}
			}
			i = j
			continue
		case ch == '@' || ch == ':' || ch == '$':
			naming = nil
		}
		i++
	}
	return ops
}

// skipString returns the index just past the string literal starting at i.
func skipString(doc string, i int) int {
	if strings.HasPrefix(doc[i:], `"""`) {
		if end := strings.Index(doc[i+3:], `"""`); end >= 0 {
			return i + 3 + end + 3
		}
		return len(doc)
	}
	for j := i + 1; j < len(doc); j++ {
		switch doc[j] {
		case '\\':
			j++
		case '"', '\n':
			return j + 1
		}
	}
	return len(doc)
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameChar(ch byte) bool {
	return isNameStart(ch) || (ch >= '0' && ch <= '9')
}
