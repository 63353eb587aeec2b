package repository

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
)

var _ repository.PropertyStore = (*YAMLPropertyStore)(nil)

// propertyFile is the on-disk layout of the listing seed.
type propertyFile struct {
	Properties []models.Property   `yaml:"properties"`
	Portfolios map[string][]string `yaml:"portfolios"`
}

// YAMLPropertyStore serves listings loaded once from a YAML seed file.
// Portfolios from the file are merged with the ones passed in, the latter
// winning per user.
type YAMLPropertyStore struct {
	mu         sync.RWMutex
	properties []models.Property
	byID       map[string]int
	portfolios map[string][]string
}

// LoadPropertyStore reads the seed at path.
func LoadPropertyStore(path string, portfolios map[string][]string) (*YAMLPropertyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	return ParsePropertyStore(data, portfolios)
}

// ParsePropertyStore builds a store from raw YAML.
func ParsePropertyStore(data []byte, portfolios map[string][]string) (*YAMLPropertyStore, error) {
	var file propertyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse properties: %w", err)
	}
	merged := make(map[string][]string, len(file.Portfolios)+len(portfolios))
	for user, ids := range file.Portfolios {
		merged[user] = ids
	}
	for user, ids := range portfolios {
		merged[user] = ids
	}
	return NewPropertyStore(file.Properties, merged)
}

// NewPropertyStore validates properties and indexes them by id. Duplicate ids
// are rejected.
func NewPropertyStore(properties []models.Property, portfolios map[string][]string) (*YAMLPropertyStore, error) {
	v := validator.New()
	byID := make(map[string]int, len(properties))
	out := make([]models.Property, 0, len(properties))
	for i, p := range properties {
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("property #%d (%s): %w", i, p.ID, err)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate property id %q", p.ID)
		}
		p.ComplianceFlags = nil
		p.HasLeadRisk = false
		byID[p.ID] = len(out)
		out = append(out, p)
	}
	if portfolios == nil {
		portfolios = map[string][]string{}
	}
	return &YAMLPropertyStore{properties: out, byID: byID, portfolios: portfolios}, nil
}

func (s *YAMLPropertyStore) List(_ context.Context) ([]models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Property, len(s.properties))
	copy(out, s.properties)
	return out, nil
}

func (s *YAMLPropertyStore) Get(_ context.Context, id string) (models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return models.Property{}, fmt.Errorf("%w: %s", repository.ErrPropertyNotFound, id)
	}
	return s.properties[i], nil
}

// Portfolio skips ids that are not in the catalogue.
func (s *YAMLPropertyStore) Portfolio(_ context.Context, userID string) ([]models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.portfolios[userID]
	out := make([]models.Property, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.properties[i])
		}
	}
	return out, nil
}
