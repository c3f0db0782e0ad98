package adapters

// site holds the container layout of one court or law library site
type site struct {
	content []string
	noise   []string
}

// LegalAdapter knows where court decision sites keep the decision body
type LegalAdapter struct {
	BaseAdapter
	sites map[string]site
}

// NewLegalAdapter creates a new legal document adapter
func NewLegalAdapter() *LegalAdapter {
	return &LegalAdapter{
		sites: map[string]site{
			// Supreme Court E-Library: the decision sits in the left column
			"elibrary.judiciary.gov.ph": {
				content: []string{"div.single_content", "#left", "article", "main"},
				noise:   []string{"#right", ".breadcrumb", ".pagination", "#search", ".social"},
			},
			"sc.judiciary.gov.ph": {
				content: []string{"div.entry-content", "article", "main"},
				noise:   []string{".sharedaddy", ".post-navigation", "#secondary"},
			},
			"lawphil.net": {
				content: []string{"blockquote", "body"},
				noise:   []string{"table.top", ".footer"},
			},
			"chanrobles.com": {
				content: []string{"div.entry-content", "#content", "article"},
				noise:   []string{".adsbygoogle", "#sidebar"},
			},
		},
	}
}

// Name returns the adapter name
func (a *LegalAdapter) Name() string {
	return "legal"
}

// CanHandle checks if this is a known court decision site
func (a *LegalAdapter) CanHandle(rawURL string) bool {
	_, ok := a.siteFor(rawURL)
	return ok
}

// ContentSelectors returns the decision containers of rawURL's site
func (a *LegalAdapter) ContentSelectors(rawURL string) []string {
	s, _ := a.siteFor(rawURL)
	return s.content
}

// NoiseSelectors returns the site chrome to drop for rawURL's site
func (a *LegalAdapter) NoiseSelectors(rawURL string) []string {
	s, _ := a.siteFor(rawURL)
	return s.noise
}

func (a *LegalAdapter) siteFor(rawURL string) (site, bool) {
	for domain, s := range a.sites {
		if a.MatchHost(rawURL, domain) {
			return s, true
		}
	}
	return site{}, false
}
