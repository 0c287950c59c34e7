// Package catalog turns a category name or an explicit channel list into the
// concrete, deduplicated list of channels to watch, using the Helix catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chatgrep/chat"
	"github.com/onnwee/chatgrep/telemetry"
	"github.com/onnwee/chatgrep/twitchapi"
)

const tracerName = "catalog"

// API is the subset of the Helix client the resolver needs.
type API interface {
	SearchCategories(ctx context.Context, query string) ([]twitchapi.Category, error)
	GetLiveStreams(ctx context.Context, gameID, after string, first int) ([]twitchapi.Stream, string, error)
	GetUsers(ctx context.Context, logins []string) ([]twitchapi.User, error)
}

// Target selects what to watch: a category name or an explicit channel list.
// Exactly one must be set.
type Target struct {
	Category string
	Channels []string
}

// Resolver resolves categories and channel lists against the catalog.
type Resolver struct {
	api API
}

// NewResolver returns a Resolver backed by api.
func NewResolver(api API) *Resolver {
	return &Resolver{api: api}
}

// ResolveCategoryID returns the id of the first search result whose name
// equals name case-insensitively. found is false (with a nil error) when no
// result matches exactly.
func (r *Resolver) ResolveCategoryID(ctx context.Context, name string) (id string, found bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ResolveCategoryID", attribute.String("category", name))
	defer span.End()
	defer observe("category_id", time.Now())

	cats, err := r.api.SearchCategories(ctx, name)
	if err != nil {
		err = wrap("category id", err)
		telemetry.RecordError(span, err)
		return "", false, err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			telemetry.SetSpanSuccess(span)
			return c.ID, true, nil
		}
	}
	telemetry.SetSpanSuccess(span)
	return "", false, nil
}

// ListLiveChannels pages through every live stream of a category and returns
// the broadcaster logins in page order. Paging stops at the first page
// without a cursor; Helix guarantees the last page carries none.
func (r *Resolver) ListLiveChannels(ctx context.Context, categoryID string) ([]chat.ChannelName, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ListLiveChannels", attribute.String("category_id", categoryID))
	defer span.End()
	defer observe("live_channels", time.Now())

	var (
		out   []chat.ChannelName
		after string
		pages int
	)
	for {
		streams, cursor, err := r.api.GetLiveStreams(ctx, categoryID, after, twitchapi.MaxPageSize)
		if err != nil {
			err = wrap("live channels", err)
			telemetry.RecordError(span, err)
			return nil, err
		}
		pages++
		for _, s := range streams {
			out = append(out, chat.NormalizeChannel(s.UserLogin))
		}
		if cursor == "" {
			break
		}
		after = cursor
	}
	span.SetAttributes(attribute.Int("pages", pages), attribute.Int("channels", len(out)))
	telemetry.SetSpanSuccess(span)
	slog.Debug("live channels listed", slog.String("category_id", categoryID), slog.Int("pages", pages), slog.Int("channels", len(out)))
	return out, nil
}

// ResolveExplicitChannels normalizes and dedupes names, then partitions them
// into logins that exist and logins that do not. Both results keep input
// order and together cover the normalized input exactly once.
func (r *Resolver) ResolveExplicitChannels(ctx context.Context, names []string) (found, notFound []chat.ChannelName, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ResolveExplicitChannels", attribute.Int("names", len(names)))
	defer span.End()
	defer observe("explicit_channels", time.Now())

	var normalized []chat.ChannelName
	seen := make(map[chat.ChannelName]struct{}, len(names))
	for _, n := range names {
		c := chat.NormalizeChannel(n)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		normalized = append(normalized, c)
	}

	exists := make(map[chat.ChannelName]struct{}, len(normalized))
	for start := 0; start < len(normalized); start += twitchapi.MaxPageSize {
		end := min(start+twitchapi.MaxPageSize, len(normalized))
		logins := make([]string, 0, end-start)
		for _, c := range normalized[start:end] {
			logins = append(logins, string(c))
		}
		users, err := r.api.GetUsers(ctx, logins)
		if err != nil {
			err = wrap("explicit channels", err)
			telemetry.RecordError(span, err)
			return nil, nil, err
		}
		for _, u := range users {
			exists[chat.NormalizeChannel(u.Login)] = struct{}{}
		}
	}

	for _, c := range normalized {
		if _, ok := exists[c]; ok {
			found = append(found, c)
		} else {
			notFound = append(notFound, c)
		}
	}
	span.SetAttributes(attribute.Int("found", len(found)), attribute.Int("not_found", len(notFound)))
	telemetry.SetSpanSuccess(span)
	return found, notFound, nil
}

// Resolve returns the deduplicated channel list for target.
func (r *Resolver) Resolve(ctx context.Context, target Target) ([]chat.ChannelName, error) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "catalog"))
	switch {
	case target.Category != "" && len(target.Channels) > 0:
		return nil, &ResolutionError{Kind: KindBadRequest, Op: "target", Err: errors.New("category and channels are mutually exclusive")}
	case target.Category != "":
		id, found, err := r.ResolveCategoryID(ctx, target.Category)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &ResolutionError{Kind: KindNotFound, Op: "category id", Err: fmt.Errorf("no category named %q", target.Category)}
		}
		log.Info("category resolved", slog.String("category", target.Category), slog.String("id", id))
		live, err := r.ListLiveChannels(ctx, id)
		if err != nil {
			return nil, err
		}
		channels := dedupe(live)
		log.Info("live channels found", slog.Int("count", len(channels)), slog.Int("duplicates", len(live)-len(channels)))
		return channels, nil
	case len(target.Channels) > 0:
		found, notFound, err := r.ResolveExplicitChannels(ctx, target.Channels)
		if err != nil {
			return nil, err
		}
		if len(notFound) > 0 {
			log.Warn("channels not found", slog.Any("channels", notFound))
		}
		log.Info("channels resolved", slog.Int("count", len(found)))
		return found, nil
	default:
		return nil, &ResolutionError{Kind: KindBadRequest, Op: "target", Err: errors.New("either a category or a channel list is required")}
	}
}

// dedupe drops repeated channels, keeping first occurrences. Streams can
// shift between pages while paging, so the same login may appear twice.
func dedupe(in []chat.ChannelName) []chat.ChannelName {
	seen := make(map[chat.ChannelName]struct{}, len(in))
	out := make([]chat.ChannelName, 0, len(in))
	for _, c := range in {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func observe(op string, start time.Time) {
	telemetry.ObserveResolve(op, time.Since(start))
}
