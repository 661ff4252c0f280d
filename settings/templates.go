/*
templates.go - Follow-up template store

PURPOSE:
  Holds the per-level follow-up email templates with optional per-entity
  overrides. Lookups go through an explicit cache with an Invalidate(key)
  method owned by the settings provider, so template changes (e.g. an
  admin edit via the dashboard) take effect without a restart.

LOOKUP ORDER:
  (entityID, level) override first, then the (default, level) template.
  A level with no template at all is a configuration error: the engine
  fails the escalation cleanly rather than sending a generic fallback.
*/
package settings

import (
	"sync"

	"github.com/warp/billing-engine/billing"
)

// MaxLevel mirrors billing.MaxFollowUpLevel for template validation.
const MaxLevel = billing.MaxFollowUpLevel

// Template is one level's email content. Placeholders {{name}},
// {{invoiceNumber}}, {{amount}}, {{dueDate}} and {{daysOverdue}} are
// substituted at render time.
type Template struct {
	Subject  string
	Greeting string
	Body     string
	Closing  string
}

type templateConfig struct {
	EntityID string `yaml:"entityId"` // empty = default for all entities
	Level    int    `yaml:"level"`
	Subject  string `yaml:"subject"`
	Greeting string `yaml:"greeting"`
	Body     string `yaml:"body"`
	Closing  string `yaml:"closing"`
}

type templateKey struct {
	EntityID string
	Level    int
}

// TemplateStore is the cache-fronted template lookup.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
	cache     map[templateKey]Template
}

// NewTemplateStore builds a store seeded with level-keyed defaults.
func NewTemplateStore(defaults map[int]Template) *TemplateStore {
	ts := &TemplateStore{
		templates: make(map[templateKey]Template),
		cache:     make(map[templateKey]Template),
	}
	for level, t := range defaults {
		ts.templates[templateKey{Level: level}] = t
	}
	return ts
}

// Put installs or replaces a template and invalidates affected cache rows.
func (ts *TemplateStore) Put(entityID string, level int, t Template) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.templates[templateKey{EntityID: entityID, Level: level}] = t
	for k := range ts.cache {
		if k.Level == level {
			delete(ts.cache, k)
		}
	}
}

// Get returns the template for an entity and level, or ErrTemplateNotFound
// when neither an override nor a default exists.
func (ts *TemplateStore) Get(entityID string, level int) (Template, error) {
	key := templateKey{EntityID: entityID, Level: level}

	ts.mu.RLock()
	if t, ok := ts.cache[key]; ok {
		ts.mu.RUnlock()
		return t, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.templates[key]
	if !ok {
		t, ok = ts.templates[templateKey{Level: level}]
	}
	if !ok {
		return Template{}, billing.ErrTemplateNotFound
	}
	ts.cache[key] = t
	return t, nil
}

// Invalidate drops cached lookups for one entity (empty string drops the
// default rows).
func (ts *TemplateStore) Invalidate(entityID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for k := range ts.cache {
		if k.EntityID == entityID {
			delete(ts.cache, k)
		}
	}
}

// defaultTemplates are the shipped three escalation levels, in rising tone.
func defaultTemplates() map[int]Template {
	return map[int]Template{
		1: {
			Subject:  "Friendly reminder: invoice {{invoiceNumber}}",
			Greeting: "Hi {{name}},",
			Body: "This is a friendly reminder that invoice {{invoiceNumber}} " +
				"for {{amount}} was due on {{dueDate}}. If payment is already on " +
				"its way, please disregard this note.",
			Closing: "Thank you!",
		},
		2: {
			Subject:  "Second notice: invoice {{invoiceNumber}} is {{daysOverdue}} days overdue",
			Greeting: "Hello {{name}},",
			Body: "Our records show invoice {{invoiceNumber}} for {{amount}} " +
				"remains unpaid {{daysOverdue}} days past its {{dueDate}} due date. " +
				"Please arrange settlement at your earliest convenience.",
			Closing: "Regards,",
		},
		3: {
			Subject:  "Final notice: invoice {{invoiceNumber}}",
			Greeting: "Dear {{name}},",
			Body: "Despite previous reminders, invoice {{invoiceNumber}} for " +
				"{{amount}} is now {{daysOverdue}} days overdue. Please settle " +
				"immediately to avoid suspension of services.",
			Closing: "Sincerely,",
		},
	}
}
