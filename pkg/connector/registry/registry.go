package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mongosplit/pkg/errors"
	"github.com/ajitpratap0/mongosplit/pkg/logger"
	"github.com/ajitpratap0/mongosplit/pkg/store"
)

// Registry maps connection string schemes to store dialers
type Registry struct {
	dialers map[string]store.Dialer
	mu      sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new store registry
func NewRegistry() *Registry {
	return &Registry{
		dialers: make(map[string]store.Dialer),
	}
}

// log resolves the global logger on every call so stores registered from
// init functions still log through the logger configured later.
func (r *Registry) log() *zap.Logger {
	return logger.Get().With(zap.String("component", "store_registry"))
}

// RegisterStore registers a dialer for URIs starting with scheme://
func (r *Registry) RegisterStore(scheme string, dialer store.Dialer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme = strings.ToLower(scheme)
	if _, exists := r.dialers[scheme]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("store scheme %s already registered", scheme))
	}

	r.dialers[scheme] = dialer
	r.log().Debug("store registered", zap.String("scheme", scheme))
	return nil
}

// Dial opens a store for target using the dialer registered for its scheme
func (r *Registry) Dial(ctx context.Context, target store.Target) (store.Store, error) {
	scheme, _, ok := strings.Cut(target.URI, "://")
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string has no scheme")
	}

	r.mu.RLock()
	dialer, exists := r.dialers[strings.ToLower(scheme)]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("no store registered for scheme %s", scheme))
	}

	r.log().Debug("dialing store",
		zap.String("scheme", scheme),
		zap.String("database", target.Database))
	return dialer(ctx, target)
}

// ListStores returns the registered schemes in sorted order
func (r *Registry) ListStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.dialers))
	for scheme := range r.dialers {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// HasStore checks if a scheme is registered
func (r *Registry) HasStore(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.dialers[strings.ToLower(scheme)]
	return exists
}

// Global registry functions

// RegisterStore registers a dialer in the global registry
func RegisterStore(scheme string, dialer store.Dialer) error {
	return globalRegistry.RegisterStore(scheme, dialer)
}

// Dial dials through the global registry. It has the store.Dialer signature.
func Dial(ctx context.Context, target store.Target) (store.Store, error) {
	return globalRegistry.Dial(ctx, target)
}

// ListStores returns registered schemes from the global registry
func ListStores() []string {
	return globalRegistry.ListStores()
}

// HasStore checks if a scheme is registered in the global registry
func HasStore(scheme string) bool {
	return globalRegistry.HasStore(scheme)
}
