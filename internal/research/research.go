// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package research holds the read-only catalogs shown on the researcher
// dashboard. The catalogs start empty.
package research

import (
	"context"
	"sync"
)

// Publication is a published paper.
type Publication struct {
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Journal  string `json:"journal"`
	Year     string `json:"year"`
	Abstract string `json:"abstract,omitempty"`
	DOI      string `json:"doi,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Experiment is a planned, running or finished experiment.
type Experiment struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate,omitempty"`
	Status      string `json:"status"`
	Equipment   string `json:"equipment,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Equipment is an instrument available to researchers.
type Equipment struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	publications []Publication
	experiments  []Experiment
	equipment    []Equipment
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Publications returns a snapshot of the publications.
func (c *Catalog) Publications(_ context.Context) []Publication {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Publication{}, c.publications...)
}

// Experiments returns a snapshot of the experiments.
func (c *Catalog) Experiments(_ context.Context) []Experiment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Experiment{}, c.experiments...)
}

// Equipment returns a snapshot of the equipment list.
func (c *Catalog) Equipment(_ context.Context) []Equipment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Equipment{}, c.equipment...)
}

// AddPublication appends p.
func (c *Catalog) AddPublication(p Publication) {
	c.mu.Lock()
	c.publications = append(c.publications, p)
	c.mu.Unlock()
}

// AddExperiment appends e.
func (c *Catalog) AddExperiment(e Experiment) {
	c.mu.Lock()
	c.experiments = append(c.experiments, e)
	c.mu.Unlock()
}

// AddEquipment appends e.
func (c *Catalog) AddEquipment(e Equipment) {
	c.mu.Lock()
	c.equipment = append(c.equipment, e)
	c.mu.Unlock()
}
