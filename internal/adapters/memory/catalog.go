package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

type Catalog struct {
	mu        sync.RWMutex
	salons    map[uuid.UUID]domain.Salon
	offerings map[uuid.UUID]domain.ServiceOffering
}

func NewCatalog() *Catalog {
	return &Catalog{
		salons:    map[uuid.UUID]domain.Salon{},
		offerings: map[uuid.UUID]domain.ServiceOffering{},
	}
}

func (c *Catalog) AddSalon(s domain.Salon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.salons[s.ID] = s
}

func (c *Catalog) AddOffering(o domain.ServiceOffering) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offerings[o.ID] = o
}

func (c *Catalog) GetSalon(_ context.Context, id uuid.UUID) (*domain.Salon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.salons[id]
	if !ok {
		return nil, domain.ErrSalonNotFound
	}
	return &s, nil
}

func (c *Catalog) GetServiceOffering(_ context.Context, id uuid.UUID) (*domain.ServiceOffering, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.offerings[id]
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return &o, nil
}

func (c *Catalog) SalonsByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.Salon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Salon
	for _, s := range c.salons {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}
