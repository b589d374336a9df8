// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a relay connection.
// Entries are compared as lowercase scheme://host[:port]; "*" admits every
// request, with or without an Origin header.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

func newOriginPolicy(origins []string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}, len(origins)), log: logger}

	for _, entry := range origins {
		switch entry = strings.TrimSpace(entry); entry {
		case "":
		case "*":
			p.allowAll = true
		default:
			if key, ok := originKey(entry); ok {
				p.allowed[key] = struct{}{}
			} else {
				logger.Warn("config.origin.invalid", "origin", entry)
			}
		}
	}
	return p
}

// originKey reduces an origin or URL to the form stored in the allowlist.
func originKey(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

func (p *originPolicy) allows(r *http.Request) bool {
	if p.allowAll {
		return true
	}
	key, ok := originKey(r.Header.Get("Origin"))
	if !ok {
		return false
	}
	_, ok = p.allowed[key]
	return ok
}

// checkOrigin is the upgrader hook.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.allows(r) {
		return true
	}
	p.log.Warn("relay.origin.blocked", "origin", r.Header.Get("Origin"), "addr", r.RemoteAddr)
	return false
}
