// Package catalog loads the upsell page variants from YAML.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/topup/upsell/internal/models"
)

//go:embed catalogs.yaml
var defaultCatalogs []byte

// ErrUnknownVariant is returned when no variant has the requested slug
var ErrUnknownVariant = errors.New("unknown upsell variant")

// Item is one offer as written in the catalog file
type Item struct {
	ID    string `yaml:"id" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
	Price string `yaml:"price" validate:"required,numeric"`
	Image string `yaml:"img"`
}

// Copy holds the user-facing text of a variant
type Copy struct {
	Heading         string `yaml:"heading" validate:"required"`
	Subtext         string `yaml:"subtext"`
	AcceptLabel     string `yaml:"acceptLabel" validate:"required"`
	DeclineLabel    string `yaml:"declineLabel" validate:"required"`
	Urgency         string `yaml:"urgency"`
	CountdownLabel  string `yaml:"countdownLabel"`
	NothingSelected string `yaml:"nothingSelected" validate:"required"`
	Rejected        string `yaml:"rejected" validate:"required"`
	Unavailable     string `yaml:"unavailable" validate:"required"`
	Timeout         string `yaml:"timeout" validate:"required"`
	Redirecting     string `yaml:"redirecting"`
}

// Variant is one upsell page: its offers, selection mode, countdown and copy
type Variant struct {
	Slug              string               `yaml:"slug" validate:"required,hostname_rfc1123,lowercase"`
	Mode              models.SelectionMode `yaml:"mode" validate:"required,oneof=locked toggle"`
	LockedID          string               `yaml:"lockedId" validate:"required_if=Mode locked"`
	CountdownSeconds  int                  `yaml:"countdownSeconds" validate:"gte=0"`
	UrgencySeconds    int                  `yaml:"urgencySeconds" validate:"gte=0,ltefield=CountdownSeconds"`
	DescriptionPrefix string               `yaml:"descriptionPrefix" validate:"required"`
	HighlightField    string               `yaml:"highlightField" validate:"omitempty,alphanum"`
	Copy              Copy                 `yaml:"copy"`
	Items             []Item               `yaml:"items" validate:"required,min=1,dive"`

	catalog *models.Catalog
}

// Catalog returns the validated offer catalog of the variant
func (v *Variant) Catalog() *models.Catalog {
	return v.catalog
}

// HasCountdown reports whether the page shows a countdown
func (v *Variant) HasCountdown() bool {
	return v.CountdownSeconds > 0
}

// NewSelection returns the initial selection for a page mount
func (v *Variant) NewSelection() *models.Selection {
	if v.Mode == models.SelectionModeLocked {
		// LockedID was checked against the catalog when the variant was loaded
		sel, _ := models.NewLockedSelection(v.catalog, v.LockedID)
		return sel
	}
	return models.NewToggleSelection(v.catalog)
}

// Extras returns the variant-specific fields written next to the payment
// session record: the original price of the headline offer, the total and,
// when configured, the headline offer name under the highlight field.
func (v *Variant) Extras(total decimal.Decimal) map[string]any {
	first := v.catalog.First()
	extras := map[string]any{
		"originalPrice": json.Number(first.Price.String()),
		"totalPrice":    json.Number(total.String()),
	}
	if v.HighlightField != "" {
		extras[v.HighlightField] = first.Name
	}
	return extras
}

// Set is the collection of variants served by the application
type Set struct {
	Variants []*Variant `yaml:"variants" validate:"required,min=1,dive"`

	bySlug map[string]*Variant
}

// Get returns the variant with the given slug
func (s *Set) Get(slug string) (*Variant, error) {
	v, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, slug)
	}
	return v, nil
}

// Slugs returns variant slugs in file order
func (s *Set) Slugs() []string {
	slugs := make([]string, 0, len(s.Variants))
	for _, v := range s.Variants {
		slugs = append(slugs, v.Slug)
	}
	return slugs
}

// Default returns the embedded variant set
func Default() (*Set, error) {
	return Parse(defaultCatalogs)
}

// Load reads a variant set from path, or the embedded defaults when path is empty
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return set, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a variant set
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing catalogs: %w", err)
	}
	if err := validate.Struct(&set); err != nil {
		return nil, fmt.Errorf("invalid catalogs: %w", describe(err))
	}

	set.bySlug = make(map[string]*Variant, len(set.Variants))
	for _, v := range set.Variants {
		if _, dup := set.bySlug[v.Slug]; dup {
			return nil, fmt.Errorf("variant %q: duplicate slug", v.Slug)
		}
		if err := v.build(); err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.Slug, err)
		}
		set.bySlug[v.Slug] = v
	}
	return &set, nil
}

func (v *Variant) build() error {
	items := make([]models.OfferItem, 0, len(v.Items))
	for _, it := range v.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return fmt.Errorf("item %q: price: %w", it.ID, err)
		}
		items = append(items, models.OfferItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    price,
			ImageRef: it.Image,
		})
	}

	catalog, err := models.NewCatalog(items)
	if err != nil {
		return err
	}
	if v.Mode == models.SelectionModeLocked && !catalog.Has(v.LockedID) {
		return fmt.Errorf("%w: locked id %q", models.ErrUnknownOfferID, v.LockedID)
	}
	v.catalog = catalog
	return nil
}

// describe flattens validator errors into one readable line
func describe(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
