package booking

import (
	"fmt"
	"slices"
)

// Registry maps facility names to facilities that share one id sequence.
type Registry struct {
	ids        *IDSequence
	facilities map[string]*Facility
}

func NewRegistry(ids *IDSequence) *Registry {
	return &Registry{
		ids:        ids,
		facilities: make(map[string]*Facility),
	}
}

// Add returns the facility called name, creating it if needed.
func (r *Registry) Add(name string) *Facility {
	if f, ok := r.facilities[name]; ok {
		return f
	}
	f := NewFacility(name, r.ids)
	r.facilities[name] = f
	return f
}

// Get looks a facility up by its exact name.
func (r *Registry) Get(name string) (*Facility, error) {
	f, ok := r.facilities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFacilityNotFound, name)
	}
	return f, nil
}

// Names returns the facility names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.facilities))
	for name := range r.facilities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Len() int { return len(r.facilities) }
