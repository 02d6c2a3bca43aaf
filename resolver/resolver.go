// Package resolver turns a search query or URL into a direct audio stream.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNotFound   = errors.New("no playable audio source")
)

// Result is a resolved, playable stream.
type Result struct {
	URL      string // direct stream locator
	Page     string
	Title    string
	Duration time.Duration
	Uploader string
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (*Result, error)
}

// Matcher is implemented by resolvers that only handle some inputs.
type Matcher interface {
	Match(query string) bool
}

// Chain tries its resolvers in order and returns the first success.
// Lookups are paced by a shared limiter so a busy server does not get the
// bot throttled by the upstream site.
type Chain struct {
	resolvers []Resolver
	limiter   *rate.Limiter
	log       zerolog.Logger
}

func NewChain(limit rate.Limit, logger zerolog.Logger, resolvers ...Resolver) *Chain {
	burst := 1
	if limit != rate.Inf && limit > 1 {
		burst = int(limit)
	}
	return &Chain{
		resolvers: resolvers,
		limiter:   rate.NewLimiter(limit, burst),
		log:       logger,
	}
}

// Default is the chain the bot runs with: direct YouTube links through the
// YouTube client, everything else (and YouTube failures) through yt-dlp.
func Default(ytdlpPath string, limit rate.Limit, logger zerolog.Logger) *Chain {
	return NewChain(limit, logger, NewYouTube(nil), &YTDLP{Path: ytdlpPath})
}

func (c *Chain) Resolve(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var errs []error
	for _, r := range c.resolvers {
		if m, ok := r.(Matcher); ok && !m.Match(query) {
			continue
		}
		res, err := r.Resolve(ctx, query)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug().Err(err).Str("query", query).Str("resolver", fmt.Sprintf("%T", r)).Msg("resolver failed, trying next")
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
}
