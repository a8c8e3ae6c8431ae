package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ayaproj/aya/internal/ports"
	"github.com/ayaproj/aya/pkg/aya"
)

// Resolver resolves selectors to node presence.
type Resolver struct {
	Presence ports.Broker
	Config   Config
}

// ResolvePlayer resolves a player selector using config defaults. The role
// narrows players to the music or verse instantiation when set.
func (r Resolver) ResolvePlayer(ctx context.Context, selector string, role string) (aya.Presence, error) {
	return r.resolve(ctx, selector, aya.KindPlayer, role, r.Config.Defaults.Player)
}

// ResolveScripture resolves the scripture source using config defaults.
func (r Resolver) ResolveScripture(ctx context.Context, selector string) (aya.Presence, error) {
	return r.resolve(ctx, selector, aya.KindSource, "scripture", r.Config.Defaults.Scripture)
}

// ResolveMedia resolves the media transcript source using config defaults.
func (r Resolver) ResolveMedia(ctx context.Context, selector string) (aya.Presence, error) {
	return r.resolve(ctx, selector, aya.KindSource, "media", r.Config.Defaults.Media)
}

// ResolveLibrary resolves a media library selector using config defaults.
func (r Resolver) ResolveLibrary(ctx context.Context, selector string) (aya.Presence, error) {
	return r.resolve(ctx, selector, aya.KindLibrary, "", r.Config.Defaults.Library)
}

// ResolveNewsletter resolves the newsletter source using config defaults.
func (r Resolver) ResolveNewsletter(ctx context.Context, selector string) (aya.Presence, error) {
	return r.resolve(ctx, selector, aya.KindSource, "newsletter", r.Config.Defaults.Newsletter)
}

func (r Resolver) resolve(ctx context.Context, selector, kind, role, def string) (aya.Presence, error) {
	if selector == "" {
		selector = def
	}

	presence, err := r.Presence.ListPresence(ctx)
	if err != nil {
		return aya.Presence{}, WrapError(ExitRuntime, "list presence", err)
	}

	filtered := filterPresence(presence, kind, role)
	if selector == "" {
		if len(filtered) == 1 {
			return filtered[0], nil
		}
		return aya.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}
	return resolveSelector(selector, filtered, r.Config.Aliases)
}

func filterPresence(presence []aya.Presence, kind, role string) []aya.Presence {
	out := make([]aya.Presence, 0, len(presence))
	for _, p := range presence {
		if kind != "" && p.Kind != kind {
			continue
		}
		if role != "" && p.Role != role {
			continue
		}
		out = append(out, p)
	}
	return out
}

func resolveSelector(selector string, presence []aya.Presence, aliases map[string]string) (aya.Presence, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return aya.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}

	if strings.HasPrefix(selector, "aya:") {
		return resolveExact(selector, presence)
	}

	if alias, ok := aliases[selector]; ok {
		if strings.HasPrefix(alias, "aya:") {
			return resolveExact(alias, presence)
		}
		selector = alias
	}

	matches := make([]aya.Presence, 0)
	for _, p := range presence {
		if strings.EqualFold(p.Name, selector) || strings.EqualFold(p.NodeID, selector) || strings.EqualFold(p.Role, selector) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return aya.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no match for %q", selector)}
	}
	return aya.Presence{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, suggestionList(matches))}
}

func resolveExact(nodeID string, presence []aya.Presence) (aya.Presence, error) {
	for _, p := range presence {
		if p.NodeID == nodeID {
			return p, nil
		}
	}
	return aya.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("node not found: %s", nodeID)}
}

func suggestionList(matches []aya.Presence) string {
	names := make([]string, 0, len(matches))
	for _, p := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.NodeID))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
