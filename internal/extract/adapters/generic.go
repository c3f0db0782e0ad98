package adapters

// GenericAdapter is the fallback adapter for unknown domains
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(string) bool {
	return true
}

// ContentSelectors returns the usual semantic containers
func (a *GenericAdapter) ContentSelectors(string) []string {
	return []string{"main", "article", "[role=main]", "#content", ".content"}
}

// NoiseSelectors returns nothing beyond the common noise
func (a *GenericAdapter) NoiseSelectors(string) []string {
	return nil
}
