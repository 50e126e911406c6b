// Package cmn holds process-wide configuration, shared by every other
// package (pool sizing, cleanup interval, node network settings).
package cmn

import (
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the subset of xapiand.json the core (spec.md) depends on: pool
// sizing parameters and cleanup interval (spec.md §6).
type Config struct {
	Pool struct {
		MaxDatabases       int           `json:"max_databases"`
		MaxDatabaseReaders int           `json:"max_database_readers"`
		CleanupInterval    time.Duration `json:"cleanup_interval"`
	} `json:"pool"`
	Node struct {
		Name           string `json:"name"`
		HTTPPort       int    `json:"http_port"`
		RemotePort     int    `json:"remote_port"`
		ReplicationPort int   `json:"replication_port"`
	} `json:"node"`
	LogDir string `json:"log_dir"`
}

// DefaultConfig mirrors spec.md §6 defaults: at most 200 databases, no
// fleet-wide reader cap unless configured, cleanup every 60 seconds.
func DefaultConfig() *Config {
	c := &Config{}
	c.Pool.MaxDatabases = 200
	c.Pool.MaxDatabaseReaders = 0 // 0 == unbounded across the fleet
	c.Pool.CleanupInterval = 60 * time.Second
	c.Node.Name = "node"
	return c
}

// Load reads and parses a JSON config file, falling back to DefaultConfig
// values for any field left unset in the file.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// gco is the global config owner, mirroring the teacher's cmn.GCO.Get()
// singleton referenced across transport, res, and other packages.
type gco struct {
	mu  sync.RWMutex
	cfg *Config
}

var GCO = &gco{cfg: DefaultConfig()}

func (g *gco) Get() *Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

func (g *gco) Put(c *Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = c
}
