package provider

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[string]Provider
	fallback  Provider
	logger    logrus.FieldLogger
}

func NewRegistry(fallback Provider, providers ...Provider) *Registry {
	items := make(map[string]Provider, len(providers)+1)
	items[fallback.Name()] = fallback
	for _, p := range providers {
		items[p.Name()] = p
	}
	return &Registry{
		providers: items,
		fallback:  fallback,
		logger:    logrus.WithField("module", "provider-registry"),
	}
}

// Active resolves the configured provider for the checkout path. An
// unknown name falls back to the registry fallback instead of failing
// the request; the fallback silently changes payment-processing
// behavior, so it is always logged.
func (r *Registry) Active(name string) Provider {
	p, ok := r.providers[normalizeName(name)]
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"configured": name,
			"fallback":   r.fallback.Name(),
		}).Warn("Unknown payment provider configured, falling back")
		return r.fallback
	}
	return p
}

// ByName is the strict lookup used for routing provider callbacks.
// Falling back here would hand a callback to the wrong verifier, so an
// unknown name is an error.
func (r *Registry) ByName(name string) (Provider, error) {
	p, ok := r.providers[normalizeName(name)]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return p, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
