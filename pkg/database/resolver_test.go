package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNullResolver(t *testing.T) {
	r := NewNullResolver()

	if _, _, ok := r.Resolve("FR"); ok {
		t.Error("NullResolver.Resolve() resolved something, want nothing")
	}

	if got := r.Count(); got != 0 {
		t.Errorf("NullResolver.Count() = %d, want 0", got)
	}

	// These should not panic
	r.Start()
	r.Stop()
}

func TestFileResolver(t *testing.T) {
	// Create a temporary CSV file
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "country_centroids.csv")

	csvContent := `country_code,lat,lon
FR,46.2,2.2
DE,51.2,10.4
US,39.8,-98.6
BR,-14.2,-51.9
`
	if err := os.WriteFile(csvPath, []byte(csvContent), 0644); err != nil {
		t.Fatalf("Failed to write test CSV: %v", err)
	}

	r, err := NewFileResolver(csvPath)
	if err != nil {
		t.Fatalf("NewFileResolver() error = %v", err)
	}

	tests := []struct {
		name    string
		country string
		lat     float64
		lon     float64
		ok      bool
	}{
		{"France", "FR", 46.2, 2.2, true},
		{"Germany", "DE", 51.2, 10.4, true},
		{"Southern hemisphere", "BR", -14.2, -51.9, true},
		{"Unknown country", "ZZ", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := r.Resolve(tt.country)
			if ok != tt.ok || lat != tt.lat || lon != tt.lon {
				t.Errorf("FileResolver.Resolve(%q) = (%v, %v, %v), want (%v, %v, %v)",
					tt.country, lat, lon, ok, tt.lat, tt.lon, tt.ok)
			}
		})
	}

	// The header row is skipped, not loaded as a country.
	if got := r.Count(); got != 4 {
		t.Errorf("FileResolver.Count() = %d, want 4", got)
	}
}

func TestFileResolver_InvalidFile(t *testing.T) {
	_, err := NewFileResolver("/nonexistent/path/file.csv")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestFileResolver_LowercaseCountry(t *testing.T) {
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "country_centroids.csv")

	// Lowercase country codes should be uppercased on load and lookup
	csvContent := `fr,46.2,2.2
de,51.2,10.4
`
	if err := os.WriteFile(csvPath, []byte(csvContent), 0644); err != nil {
		t.Fatalf("Failed to write test CSV: %v", err)
	}

	r, err := NewFileResolver(csvPath)
	if err != nil {
		t.Fatalf("NewFileResolver() error = %v", err)
	}

	if _, _, ok := r.Resolve("FR"); !ok {
		t.Error("FileResolver.Resolve(FR) not found, want lowercase row uppercased")
	}
	if _, _, ok := r.Resolve("de"); !ok {
		t.Error("FileResolver.Resolve(de) not found, want case-insensitive lookup")
	}
}

func TestFileResolver_MalformedRows(t *testing.T) {
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "country_centroids.csv")

	csvContent := `FR,46.2,2.2
DE,not-a-number,10.4
XX
US,39.8,-98.6
`
	if err := os.WriteFile(csvPath, []byte(csvContent), 0644); err != nil {
		t.Fatalf("Failed to write test CSV: %v", err)
	}

	r, err := NewFileResolver(csvPath)
	if err != nil {
		t.Fatalf("NewFileResolver() error = %v", err)
	}

	if got := r.Count(); got != 2 {
		t.Errorf("FileResolver.Count() = %d, want 2 (malformed rows skipped)", got)
	}
}

func TestGeoResolverInterface(t *testing.T) {
	// Verify all resolvers implement the interface
	var _ GeoResolver = (*NullResolver)(nil)
	var _ GeoResolver = (*FileResolver)(nil)
	var _ GeoResolver = (*DatabaseResolver)(nil)
}
