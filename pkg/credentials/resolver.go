package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Resolution is the outcome of one Resolve call
type Resolution struct {
	Credential Credential
	// Source names the source that supplied the credential
	Source string
	Kind   Kind
	State  State
	// Trace lists every state visited, starting with Unresolved
	Trace []State
}

func (r *Resolution) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Resolver tries an ordered list of sources and stops at the first that holds
// a key. The order is the precedence.
type Resolver struct {
	sources []Source
	key     string
	hint    string
	logger  *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used to report failing sources
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithHint sets the instruction attached to the error when no key is found
func WithHint(hint string) Option {
	return func(r *Resolver) { r.hint = hint }
}

// WithKeyName sets the key name used in error messages
func WithKeyName(key string) Option {
	return func(r *Resolver) { r.key = key }
}

// NewResolver creates a resolver over sources, in precedence order
func NewResolver(sources []Source, opts ...Option) *Resolver {
	r := &Resolver{
		sources: append([]Source(nil), sources...),
		key:     DefaultKeyName,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AcceptsPrompt reports whether the resolver falls back to user input
func (r *Resolver) AcceptsPrompt() bool {
	for _, s := range r.sources {
		if s.Kind() == KindPrompt {
			return true
		}
	}
	return false
}

// WithPrompt returns a copy whose prompt sources carry value. The receiver is
// not modified, so one resolver can serve many sessions.
func (r *Resolver) WithPrompt(value string) *Resolver {
	clone := *r
	clone.sources = make([]Source, len(r.sources))
	for i, s := range r.sources {
		if s.Kind() == KindPrompt {
			s = &PromptSource{Value: value}
		}
		clone.sources[i] = s
	}
	return &clone
}

// Resolve walks the sources in order. It returns a Resolved resolution, or a
// *CredentialError with ReasonPending when only user input is left, or
// ReasonAbsent when nothing is left. Sources that fail are logged and skipped;
// their errors are kept in the returned error.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	res := Resolution{State: Unresolved, Trace: []State{Unresolved}}
	var errs []error

	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		value, err := src.Lookup(ctx)
		if err != nil {
			if src.Kind() == KindPrompt {
				res.enter(UserPromptPending)
				return res, &CredentialError{
					Reason: ReasonPending,
					Key:    r.key,
					Hint:   "enter it in the form to continue",
					Err:    errors.Join(errs...),
				}
			}
			if !errors.Is(err, ErrNotFound) {
				r.logger.Warn("credential source failed", "source", src.Name(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			}
			continue
		}

		res.enter(src.Kind().foundState())
		res.enter(Resolved)
		res.Credential = Credential(value)
		res.Source = src.Name()
		res.Kind = src.Kind()
		r.logger.Debug("credential resolved", "source", res.Source)
		return res, nil
	}

	res.enter(Unavailable)
	return res, &CredentialError{
		Reason: ReasonAbsent,
		Key:    r.key,
		Hint:   r.hint,
		Err:    errors.Join(errs...),
	}
}
