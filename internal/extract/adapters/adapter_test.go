package adapters

import "testing"

func TestRegistry_FindAdapter(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		url  string
		want string
	}{
		{"https://elibrary.judiciary.gov.ph/thebookshelf/showdocs/1/12345", "legal"},
		{"https://ELIBRARY.judiciary.gov.ph/x", "legal"},
		{"https://lawphil.net/judjuris/juri2020/mar2020/gr_12345_2020.html", "legal"},
		{"https://www.chanrobles.com/cralaw/2020marchdecisions.php", "legal"},
		{"https://example.com/judiciary.gov.ph", "generic"},
		{"https://notlawphil.net/", "generic"},
		{"not a url", "generic"},
	}

	for _, tt := range tests {
		if got := registry.FindAdapter(tt.url).Name(); got != tt.want {
			t.Errorf("FindAdapter(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestLegalAdapter_Selectors(t *testing.T) {
	a := NewLegalAdapter()
	url := "https://elibrary.judiciary.gov.ph/thebookshelf/showdocs/1/12345"

	content := a.ContentSelectors(url)
	if len(content) == 0 || content[0] != "div.single_content" {
		t.Errorf("Unexpected content selectors: %v", content)
	}
	if len(a.NoiseSelectors(url)) == 0 {
		t.Error("Expected site noise selectors")
	}
	if a.ContentSelectors("https://example.com/") != nil {
		t.Error("Unknown sites have no selectors")
	}
}

func TestMatchHost(t *testing.T) {
	var b BaseAdapter
	if !b.MatchHost("https://sub.lawphil.net/a", "lawphil.net") {
		t.Error("subdomain should match")
	}
	if b.MatchHost("https://lawphil.net.evil.com/", "lawphil.net") {
		t.Error("suffix trickery should not match")
	}
}
