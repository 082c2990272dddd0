package payment

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gatewayconnect/server/internal/module/payment/provider"
)

// providerAliases maps lower-cased aliases to canonical provider names.
var providerAliases = map[string]string{
	"brusnika":     provider.BrusnikaName,
	"brusnika_sbp": provider.BrusnikaName,
	"brusnika-sbp": provider.BrusnikaName,
	"sbp-brusnika": provider.BrusnikaName,

	"forta":          provider.FortaName,
	"forta_sbp":      provider.FortaName,
	"forta_sbp_ecom": provider.FortaName,
	"sbp_ecom":       provider.FortaName,

	"stripe":      provider.StripeName,
	"stripe_card": provider.StripeName,
	"card":        provider.StripeName,
}

// methodRoutes maps exact payment method codes to providers. They are
// checked before the substring rules.
var methodRoutes = map[string]string{
	"SBP_ECOM": provider.FortaName,
	"CARD":     provider.StripeName,
}

// ProviderRegistry resolves adapters by name, alias or payment method.
type ProviderRegistry struct {
	mu              sync.RWMutex
	providers       map[string]provider.Adapter
	defaultProvider string
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(defaultProvider string) *ProviderRegistry {
	return &ProviderRegistry{
		providers:       make(map[string]provider.Adapter),
		defaultProvider: defaultProvider,
	}
}

// Register registers an adapter under its canonical name.
func (r *ProviderRegistry) Register(p provider.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns an adapter by canonical name or alias.
func (r *ProviderRegistry) Get(name string) (provider.Adapter, error) {
	key := strings.TrimSpace(name)
	if canonical, ok := providerAliases[strings.ToLower(key)]; ok {
		key = canonical
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Resolve picks the adapter for a request: explicit name first, then
// payment method, then the configured default. An unknown name falls through.
func (r *ProviderRegistry) Resolve(name, method string) (provider.Adapter, error) {
	if strings.TrimSpace(name) != "" {
		if p, err := r.Get(name); err == nil {
			return p, nil
		}
	}
	if canonical := routeByMethod(method); canonical != "" {
		if p, err := r.Get(canonical); err == nil {
			return p, nil
		}
	}
	if r.defaultProvider != "" {
		if p, err := r.Get(r.defaultProvider); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: name %q, method %q", ErrProviderNotFound, name, method)
}

func routeByMethod(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return ""
	}
	if canonical, ok := methodRoutes[m]; ok {
		return canonical
	}
	switch {
	case strings.Contains(m, "ECOM"):
		return provider.FortaName
	case strings.Contains(m, "SBP"):
		return provider.BrusnikaName
	}
	return ""
}

// List returns all registered provider names, sorted.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
