// Package profile persists the local participant between CLI invocations: its
// stable client id, the session it is bound to, the offers it already applied
// and its resource stocks.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the profile lives when none is configured.
var DefaultPath = filepath.Join(".citylink", "profile.yaml")

// DefaultResources seeds a fresh profile.
var DefaultResources = map[string]memory.Stock{
	"food":  {Amount: 300, Cap: 1000},
	"stone": {Amount: 200, Cap: 1000},
	"wood":  {Amount: 500, Cap: 1000},
}

// Profile is the on-disk participant record.
type Profile struct {
	ClientID  string                  `yaml:"client_id" json:"client_id"`
	Code      string                  `yaml:"code,omitempty" json:"code,omitempty"`
	JoinCode  string                  `yaml:"join_code,omitempty" json:"join_code,omitempty"`
	Applied   []string                `yaml:"applied,omitempty" json:"applied,omitempty"`
	Resources map[string]memory.Stock `yaml:"resources" json:"resources"`
}

// New returns a fresh profile with a random client id and default resources.
func New() *Profile {
	res := make(map[string]memory.Stock, len(DefaultResources))
	for k, v := range DefaultResources {
		res[k] = v
	}
	return &Profile{ClientID: uuid.NewString(), Resources: res}
}

// Load reads a profile (YAML, or JSON by extension). A missing file yields a
// fresh profile, which is not written until Save.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if isJSON(path) {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.ClientID == "" {
		p.ClientID = uuid.NewString()
	}
	if p.Resources == nil {
		p.Resources = map[string]memory.Stock{}
	}
	return &p, nil
}

// Save writes the profile atomically.
func (p *Profile) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure profile directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}

// Ledger returns a resource ledger seeded from the profile's stocks.
func (p *Profile) Ledger() *memory.Ledger {
	return memory.NewLedger(p.Resources)
}

// Options restores the client identity and binding held by the profile.
func (p *Profile) Options() []session.Option {
	return []session.Option{
		session.WithClientID(p.ClientID),
		session.WithBinding(p.Code, p.JoinCode),
		session.WithAppliedOffers(p.Applied),
	}
}

// Capture copies the client's binding, applied offers and the ledger's stocks
// back into the profile.
func (p *Profile) Capture(c *session.Client, l *memory.Ledger) {
	snap := c.Snapshot()
	p.ClientID = snap.ClientID
	p.Code = snap.Code
	p.JoinCode = snap.JoinCode
	p.Applied = c.AppliedOffers()
	p.Resources = l.Stocks()
}

// Keys returns the resource keys, sorted.
func (p *Profile) Keys() []string {
	keys := make([]string, 0, len(p.Resources))
	for k := range p.Resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
