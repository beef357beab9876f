// Package database provides the optional PostgreSQL archive of accepted
// events and country-to-coordinate resolution with multiple backends.
package database

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	refreshInterval = 15 * time.Minute // Refresh centroid mapping every 15 minutes
)

// GeoResolver provides country-to-centroid lookups, used to place
// events that report a source country but no coordinates.
type GeoResolver interface {
	// Resolve returns the centroid for an ISO alpha-2 country code.
	Resolve(country string) (lat, lon float64, ok bool)
	// Count returns the number of countries in the mapping.
	Count() int
	// Start begins any background refresh operations.
	Start()
	// Stop stops any background operations.
	Stop()
}

type centroid struct {
	lat, lon float64
}

// NullResolver resolves nothing. Use this when no centroid data is
// available; country-only events are then dropped as unplaceable.
type NullResolver struct{}

// NewNullResolver creates a new null resolver.
func NewNullResolver() *NullResolver {
	return &NullResolver{}
}

func (r *NullResolver) Resolve(string) (float64, float64, bool) { return 0, 0, false }
func (r *NullResolver) Count() int                              { return 0 }
func (r *NullResolver) Start()                                  {}
func (r *NullResolver) Stop()                                   {}

// FileResolver loads country centroids from a CSV file.
// Expected format: country_code,lat,lon (e.g., "FR,46.2,2.2")
type FileResolver struct {
	filePath string
	mapping  map[string]centroid
	mu       sync.RWMutex
}

// NewFileResolver creates a resolver that loads centroids from a CSV file.
func NewFileResolver(filePath string) (*FileResolver, error) {
	r := &FileResolver{
		filePath: filePath,
		mapping:  make(map[string]centroid),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileResolver) load() error {
	file, err := os.Open(r.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 3 {
			continue
		}
		cc := strings.ToUpper(strings.TrimSpace(record[0]))
		if len(cc) != 2 {
			continue // header or junk row
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			continue
		}
		r.mapping[cc] = centroid{lat: lat, lon: lon}
	}

	log.Printf("FileResolver: Loaded %d country centroids from %s", len(r.mapping), r.filePath)
	return nil
}

func (r *FileResolver) Resolve(country string) (float64, float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.mapping[strings.ToUpper(country)]
	return c.lat, c.lon, ok
}

func (r *FileResolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mapping)
}

func (r *FileResolver) Start() {}
func (r *FileResolver) Stop()  {}

// DatabaseResolver loads country centroids from a database table.
// Uses a simple schema: SELECT country_code, lat, lon FROM country_centroids
type DatabaseResolver struct {
	db         *sql.DB
	tableName  string
	mapping    map[string]centroid
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup
	lastUpdate time.Time
}

// NewDatabaseResolver creates a resolver that loads centroids from a
// database. tableName defaults to "country_centroids" if empty.
func NewDatabaseResolver(db *sql.DB, tableName string) *DatabaseResolver {
	if tableName == "" {
		tableName = "country_centroids"
	}
	return &DatabaseResolver{
		db:        db,
		tableName: tableName,
		mapping:   make(map[string]centroid),
		done:      make(chan struct{}),
	}
}

// Start begins periodic refresh of the centroid mapping.
func (r *DatabaseResolver) Start() {
	// Load immediately
	r.refresh()

	// Start periodic refresh
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.refresh()
			case <-r.done:
				return
			}
		}
	}()
}

// Stop stops the resolver.
func (r *DatabaseResolver) Stop() {
	close(r.done)
	r.wg.Wait()
}

// Resolve returns the centroid for a country code.
func (r *DatabaseResolver) Resolve(country string) (float64, float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.mapping[strings.ToUpper(country)]
	return c.lat, c.lon, ok
}

// Count returns the number of countries in the mapping.
func (r *DatabaseResolver) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mapping)
}

// refresh loads the centroid mapping from the database.
func (r *DatabaseResolver) refresh() {
	start := time.Now()

	query := "SELECT country_code, lat, lon FROM " + r.tableName + " WHERE country_code IS NOT NULL AND country_code != ''"
	rows, err := r.db.Query(query)
	if err != nil {
		log.Printf("DatabaseResolver: Failed to query %s: %v", r.tableName, err)
		return
	}
	defer rows.Close()

	newMapping := make(map[string]centroid)
	for rows.Next() {
		var cc string
		var lat, lon float64
		if err := rows.Scan(&cc, &lat, &lon); err != nil {
			continue
		}
		newMapping[strings.ToUpper(cc)] = centroid{lat: lat, lon: lon}
	}

	if err := rows.Err(); err != nil {
		log.Printf("DatabaseResolver: Row iteration error: %v", err)
		return
	}

	r.mu.Lock()
	r.mapping = newMapping
	r.lastUpdate = time.Now()
	r.mu.Unlock()

	log.Printf("DatabaseResolver: Loaded %d country centroids in %v", len(newMapping), time.Since(start))
}
