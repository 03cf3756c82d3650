package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/domain"
	domquery "github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	logpkg "github.com/kailas-cloud/catalogq/internal/logger"
	"github.com/kailas-cloud/catalogq/internal/metrics"
)

// state is a step of the routing state machine.
type state uint8

const (
	stateRouteSelect state = iota
	stateDelegateAttempt
	stateDelegateSuccess
	stateDelegateFailed
	stateRelationalFallback
	stateRelationalDirect
	stateRelationalSuccess
	stateRelationalFailed
)

var stateNames = [...]string{
	stateRouteSelect:        "ROUTE_SELECT",
	stateDelegateAttempt:    "DELEGATE_ATTEMPT",
	stateDelegateSuccess:    "DELEGATE_SUCCESS",
	stateDelegateFailed:     "DELEGATE_FAILED",
	stateRelationalFallback: "RELATIONAL_FALLBACK",
	stateRelationalDirect:   "RELATIONAL_DIRECT",
	stateRelationalSuccess:  "RELATIONAL_SUCCESS",
	stateRelationalFailed:   "RELATIONAL_FAILED",
}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// call is one routed operation. Each path fills the caller's result only
// when it succeeds as a whole.
type call struct {
	op     string
	kind   domain.Kind
	route  domquery.Route
	fields []string

	viaDelegate   func(context.Context) error
	viaRelational func(context.Context) error
}

// outcome reports how a call was served.
type outcome struct {
	servedBy result.ServedBy
	fallback bool
	trace    []state
}

// run drives c through the routing states. The delegate and the relational
// fallback are strictly sequential and the fallback happens at most once.
func (s *Service) run(ctx context.Context, c call) (outcome, error) {
	var (
		out                        outcome
		delegateErr, relationalErr error
	)
	st := stateRouteSelect
	for {
		out.trace = append(out.trace, st)
		switch st {
		case stateRouteSelect:
			st = s.selectRoute(c)

		case stateDelegateAttempt:
			if delegateErr = c.viaDelegate(ctx); delegateErr != nil {
				st = stateDelegateFailed
			} else {
				st = stateDelegateSuccess
			}

		case stateDelegateSuccess:
			out.servedBy = result.ServedByDelegate
			return out, nil

		case stateDelegateFailed:
			if ctx.Err() != nil {
				return out, canceled(ctx, delegateErr)
			}
			logpkg.FromContextOr(ctx, s.logger).Warn("Delegate failed, falling back to relational backend",
				zap.String("op", c.op),
				zap.String("kind", string(c.kind)),
				zap.Error(delegateErr),
			)
			metrics.FallbacksTotal.WithLabelValues(string(c.kind)).Inc()
			out.fallback = true
			st = stateRelationalFallback

		case stateRelationalFallback, stateRelationalDirect:
			if relationalErr = c.viaRelational(ctx); relationalErr != nil {
				st = stateRelationalFailed
			} else {
				st = stateRelationalSuccess
			}

		case stateRelationalSuccess:
			out.servedBy = result.ServedByRelational
			return out, nil

		case stateRelationalFailed:
			switch {
			case ctx.Err() != nil:
				return out, canceled(ctx, relationalErr)
			case domain.IsSpecification(relationalErr):
				return out, relationalErr
			case out.fallback:
				return out, fmt.Errorf("%w: delegate: %v; relational: %v", //nolint:errorlint // only the sentinel is matchable
					domain.ErrServiceUnavailable, delegateErr, relationalErr)
			default:
				return out, relationalErr
			}

		default:
			return out, fmt.Errorf("router: unexpected state %s", st)
		}
	}
}

// selectRoute applies the per-call override, then the global mode, then
// the field parity check.
func (s *Service) selectRoute(c call) state {
	if s.delegate == nil || c.viaDelegate == nil {
		return stateRelationalDirect
	}
	switch c.route {
	case domquery.RouteRelational:
		return stateRelationalDirect
	case domquery.RouteAuto:
		if s.mode != ModeDelegateFirst {
			return stateRelationalDirect
		}
	}
	if f, ok := s.supports(c.fields); !ok {
		s.logger.Debug("Delegate does not support field, routing to relational backend",
			zap.String("op", c.op),
			zap.String("kind", string(c.kind)),
			zap.String("field", f),
		)
		return stateRelationalDirect
	}
	return stateDelegateAttempt
}

// supports reports whether the delegate can evaluate every field. It
// returns the first unsupported field otherwise.
func (s *Service) supports(fields []string) (string, bool) {
	if s.supported == nil {
		return "", true
	}
	for _, f := range fields {
		if !s.supported[f] {
			return f, false
		}
	}
	return "", true
}

func canceled(ctx context.Context, err error) error {
	if err == nil {
		return ctx.Err() //nolint:wrapcheck // context error is returned as-is
	}
	return fmt.Errorf("%w: %v", ctx.Err(), err) //nolint:errorlint // cancellation is the matchable cause
}
