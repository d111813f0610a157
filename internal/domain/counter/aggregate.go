package counter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/event"
)

const (
	AggregateType  = "Counter"
	MaxLabelLength = 100
)

var (
	ErrInvalidIncrement = errors.New("increment must be positive")
	ErrInvalidLabel     = errors.New("label is required")
	ErrEmptyNote        = errors.New("note is required")
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphens      = regexp.MustCompile(`-+`)
)

// Counter is the sample aggregate served by the API.
type Counter struct {
	aggregate.Base
	IncrementValue int      `json:"incrementValue"`
	Label          string   `json:"label,omitempty"`
	Slug           string   `json:"slug,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// New returns an empty counter with the given id.
func New(id string) *Counter {
	return &Counter{Base: aggregate.Base{ID: id}}
}

func (c *Counter) Increment(by int) error {
	if by <= 0 {
		return ErrInvalidIncrement
	}
	return aggregate.Raise(c, CounterIncremented{By: by})
}

func (c *Counter) Rename(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrInvalidLabel
	}
	return aggregate.Raise(c, CounterRenamed{Label: label, Slug: generateSlug(label)})
}

func (c *Counter) Annotate(note string) error {
	if note == "" {
		return ErrEmptyNote
	}
	return aggregate.Raise(c, CounterAnnotated{Note: note})
}

// ApplyEvent mutates state for a counter event.
func (c *Counter) ApplyEvent(data event.Named) bool {
	switch e := data.(type) {
	case CounterIncremented:
		c.IncrementValue += e.By
	case CounterRenamed:
		c.Label = e.Label
		c.Slug = e.Slug
	case CounterAnnotated:
		c.Notes = append(c.Notes, e.Note)
	default:
		return false
	}
	return true
}

// Validate checks the state before it is persisted.
func Validate(_ context.Context, c *Counter) []error {
	var errs []error
	if len(c.Label) > MaxLabelLength {
		errs = append(errs, fmt.Errorf("label exceeds %d characters", MaxLabelLength))
	}
	if c.IncrementValue < 0 {
		errs = append(errs, errors.New("value must not be negative"))
	}
	return errs
}

// generateSlug creates a URL-friendly slug from a label
func generateSlug(label string) string {
	slug := strings.ToLower(label)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
