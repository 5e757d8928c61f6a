// Package catalog holds the task, penalty and store-item definitions.
//
// Definitions are device-local and admin-editable, with seeded defaults per
// category. The submission engine only ever reads them: Resolve at the
// moment of action, honoring the enabled flag.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"starledger/internal/localstore"
	"starledger/internal/util"
)

type Category string

const (
	CategoryCore    Category = "core"
	CategoryDaily   Category = "daily"
	CategoryBounty  Category = "bounty"
	CategoryPenalty Category = "penalty"
	CategoryStore   Category = "store"
)

// TaskCategories are the categories a submission can claim against.
var TaskCategories = []Category{CategoryCore, CategoryDaily, CategoryBounty}

var allCategories = []Category{CategoryCore, CategoryDaily, CategoryBounty, CategoryPenalty, CategoryStore}

// ParseCategory normalizes a category string and reports whether it is known.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// IsTaskCategory reports whether c is a claimable task category.
func IsTaskCategory(c Category) bool {
	for _, task := range TaskCategories {
		if c == task {
			return true
		}
	}
	return false
}

// Definition is one catalog entry. Points is the reward for task categories
// and the cost for penalty/store entries, always positive.
type Definition struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Points    int64    `json:"points"`
	Icon      string   `json:"icon"`
	Enabled   bool     `json:"enabled"`
	Category  Category `json:"category,omitempty"`
	CreatedAt int64    `json:"createdAt,omitempty"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Name   *string `json:"name"`
	Points *int64  `json:"points"`
	Icon   *string `json:"icon"`
}

var (
	ErrNotFound = errors.New("catalog: definition not found")
	ErrInvalid  = errors.New("catalog: invalid definition")
)

type Service struct {
	local *localstore.Store
	now   func() time.Time
}

func NewService(local *localstore.Store) *Service {
	return &Service{local: local, now: time.Now}
}

func storageKey(c Category) string {
	return "catalog_" + string(c) + "_v1"
}

func (s *Service) load(c Category) ([]Definition, error) {
	var defs []Definition
	err := s.local.GetJSON(storageKey(c), &defs)
	if errors.Is(err, localstore.ErrNotFound) {
		return defaults(c), nil
	}
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *Service) save(c Category, defs []Definition) error {
	return s.local.SetJSON(storageKey(c), defs)
}

// List returns every definition in the category, including disabled ones.
func (s *Service) List(c Category) ([]Definition, error) {
	defs, err := s.load(c)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		defs[i].Category = c
	}
	return defs, nil
}

// ListEnabled returns only the enabled definitions in the category.
func (s *Service) ListEnabled(c Category) ([]Definition, error) {
	defs, err := s.List(c)
	if err != nil {
		return nil, err
	}
	enabled := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if def.Enabled {
			enabled = append(enabled, def)
		}
	}
	return enabled, nil
}

// Resolve looks up an enabled definition. Disabled entries resolve as not
// found: a task switched off by the admin cannot be claimed, charged or
// bought even if a stale client still shows it.
func (s *Service) Resolve(c Category, id string) (Definition, error) {
	defs, err := s.List(c)
	if err != nil {
		return Definition{}, err
	}
	for _, def := range defs {
		if def.ID == id {
			if !def.Enabled {
				return Definition{}, ErrNotFound
			}
			return def, nil
		}
	}
	return Definition{}, ErrNotFound
}

func validate(name string, points int64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalid)
	}
	return nil
}

// Add creates a new definition in the category.
func (s *Service) Add(c Category, name string, points int64, icon string) (Definition, error) {
	if err := validate(name, points); err != nil {
		return Definition{}, err
	}
	if icon == "" {
		icon = defaultIcon(c)
	}
	defs, err := s.load(c)
	if err != nil {
		return Definition{}, err
	}
	def := Definition{
		ID:        util.NewID(string(c)),
		Name:      strings.TrimSpace(name),
		Points:    points,
		Icon:      icon,
		Enabled:   true,
		Category:  c,
		CreatedAt: s.now().UnixMilli(),
	}
	defs = append(defs, def)
	if err := s.save(c, defs); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Update applies a patch to an existing definition.
func (s *Service) Update(c Category, id string, patch Patch) (Definition, error) {
	defs, err := s.load(c)
	if err != nil {
		return Definition{}, err
	}
	for i := range defs {
		if defs[i].ID != id {
			continue
		}
		next := defs[i]
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Points != nil {
			next.Points = *patch.Points
		}
		if patch.Icon != nil {
			next.Icon = *patch.Icon
		}
		if err := validate(next.Name, next.Points); err != nil {
			return Definition{}, err
		}
		defs[i] = next
		if err := s.save(c, defs); err != nil {
			return Definition{}, err
		}
		next.Category = c
		return next, nil
	}
	return Definition{}, ErrNotFound
}

// Delete removes a definition from the category.
func (s *Service) Delete(c Category, id string) error {
	defs, err := s.load(c)
	if err != nil {
		return err
	}
	for i := range defs {
		if defs[i].ID == id {
			defs = append(defs[:i], defs[i+1:]...)
			return s.save(c, defs)
		}
	}
	return ErrNotFound
}

// Toggle flips the enabled flag and returns the updated definition.
func (s *Service) Toggle(c Category, id string) (Definition, error) {
	defs, err := s.load(c)
	if err != nil {
		return Definition{}, err
	}
	for i := range defs {
		if defs[i].ID == id {
			defs[i].Enabled = !defs[i].Enabled
			if err := s.save(c, defs); err != nil {
				return Definition{}, err
			}
			def := defs[i]
			def.Category = c
			return def, nil
		}
	}
	return Definition{}, ErrNotFound
}

// ResetDefaults discards custom definitions for the category, falling back
// to the seeded set on the next read.
func (s *Service) ResetDefaults(c Category) error {
	return s.local.Delete(storageKey(c))
}

// ResetAll resets every category to its seeded defaults.
func (s *Service) ResetAll() error {
	for _, c := range allCategories {
		if err := s.ResetDefaults(c); err != nil {
			return err
		}
	}
	return nil
}
