package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/sync"
)

// Incoming is the normalized form of one full supplier fetch, ready for
// reconciliation. Variants reference their owning product by external ID
// because products may not be persisted yet.
type Incoming struct {
	Categories []catalog.Category
	Products   []catalog.Product
	Variants   []IncomingVariant
	Skipped    int
	SkipErrors []error
}

// IncomingVariant pairs a normalized variant with its owning product's
// external ID
type IncomingVariant struct {
	Variant           catalog.Variant
	ProductExternalID string
}

// Normalizer maps raw supplier payloads into canonical entities. It is a
// pure transformation: no I/O, no store access. A single malformed record
// is skipped and counted; a structurally broken page aborts the run.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// rawCategory mirrors the supplier's category listing shape
type rawCategory struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parent_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	SortOrder   int    `json:"sort_order"`
	IsFeatured  bool   `json:"is_featured"`
}

// rawTechnique mirrors the supplier's print-technique descriptor
type rawTechnique struct {
	Key string `json:"key"`
}

// rawVariant mirrors the supplier's variant shape on the product detail
type rawVariant struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Size     string `json:"size"`
	Color    string `json:"color"`
	Image    string `json:"image"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// rawProduct mirrors the supplier's product shape, enriched with the
// variants from the detail endpoint
type rawProduct struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Type           string         `json:"type"`
	Image          string         `json:"image"`
	MainCategoryID int64          `json:"main_category_id"`
	Techniques     []rawTechnique `json:"techniques"`
	Variants       []rawVariant   `json:"variants"`
}

// NormalizePages folds a category page and the product pages of one fetch
// into a single Incoming set. Page order is preserved so that duplicate
// external IDs resolve to last-write-wins downstream.
func (n *Normalizer) NormalizePages(categoryPage *sync.RawPage, productPages []*sync.RawPage) (*Incoming, error) {
	in := &Incoming{}

	if categoryPage != nil {
		if err := n.normalizeCategoryPage(categoryPage, in); err != nil {
			return nil, err
		}
	}
	for _, page := range productPages {
		if err := n.normalizeProductPage(page, in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (n *Normalizer) normalizeCategoryPage(page *sync.RawPage, in *Incoming) error {
	if err := validatePage(page, sync.RecordKindCategory); err != nil {
		return err
	}

	for _, rec := range page.Records {
		var raw rawCategory
		if err := json.Unmarshal(rec.Data, &raw); err != nil {
			n.skip(in, fmt.Errorf("%w: category: %v", sync.ErrMalformedRecord, err))
			continue
		}
		if raw.ID == 0 || raw.Title == "" {
			n.skip(in, fmt.Errorf("%w: category missing id or title", sync.ErrMalformedRecord))
			continue
		}

		c := catalog.Category{
			ExternalID:  strconv.FormatInt(raw.ID, 10),
			Name:        raw.Title,
			Description: raw.Description,
			Thumbnail:   raw.ImageURL,
			SortOrder:   raw.SortOrder,
			Featured:    raw.IsFeatured,
			Status:      catalog.EntityStatusActive,
		}
		if raw.ParentID != 0 {
			c.ParentExternalID = strconv.FormatInt(raw.ParentID, 10)
		}
		in.Categories = append(in.Categories, c)
	}
	return nil
}

func (n *Normalizer) normalizeProductPage(page *sync.RawPage, in *Incoming) error {
	if err := validatePage(page, sync.RecordKindProduct); err != nil {
		return err
	}

	for _, rec := range page.Records {
		var raw rawProduct
		if err := json.Unmarshal(rec.Data, &raw); err != nil {
			n.skip(in, fmt.Errorf("%w: product: %v", sync.ErrMalformedRecord, err))
			continue
		}
		if raw.ID == 0 || raw.Name == "" {
			n.skip(in, fmt.Errorf("%w: product missing id or name", sync.ErrMalformedRecord))
			continue
		}
		if isKnitwear(&raw) {
			// The storefront never sells knitwear; the supplier still
			// reports it.
			in.Skipped++
			n.logger.Debug("Skipping knitwear product", zap.String("name", raw.Name))
			continue
		}

		extID := strconv.FormatInt(raw.ID, 10)
		p := catalog.Product{
			ExternalID:  extID,
			Name:        raw.Name,
			Description: raw.Description,
			Thumbnail:   raw.Image,
			Status:      catalog.EntityStatusActive,
		}
		if raw.MainCategoryID != 0 {
			p.CategoryExternalID = strconv.FormatInt(raw.MainCategoryID, 10)
		}
		in.Products = append(in.Products, p)

		for _, rv := range raw.Variants {
			v, err := n.normalizeVariant(extID, &rv)
			if err != nil {
				n.skip(in, err)
				continue
			}
			in.Variants = append(in.Variants, *v)
		}
	}
	return nil
}

func (n *Normalizer) normalizeVariant(productExternalID string, raw *rawVariant) (*IncomingVariant, error) {
	if raw.ID == 0 {
		return nil, fmt.Errorf("%w: variant missing id", sync.ErrMalformedRecord)
	}

	price := int64(0)
	if raw.Price != "" {
		p, err := catalog.MinorUnitsFromDecimalString(raw.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: variant %d price %q", sync.ErrMalformedRecord, raw.ID, raw.Price)
		}
		price = p
	}

	currency := strings.ToUpper(raw.Currency)
	if currency == "" {
		currency = "USD"
	}

	attrs := catalog.AttributeMap{}
	if raw.Size != "" {
		attrs["size"] = raw.Size
	}
	if raw.Color != "" {
		attrs["color"] = raw.Color
	}

	return &IncomingVariant{
		ProductExternalID: productExternalID,
		Variant: catalog.Variant{
			ExternalID:          strconv.FormatInt(raw.ID, 10),
			SKU:                 raw.SKU,
			Attributes:          attrs,
			ImageURL:            raw.Image,
			BasePriceMinorUnits: price,
			BaseCurrency:        currency,
			Status:              catalog.EntityStatusActive,
		},
	}, nil
}

func (n *Normalizer) skip(in *Incoming, err error) {
	in.Skipped++
	in.SkipErrors = append(in.SkipErrors, err)
	n.logger.Warn("Skipping malformed record", zap.Error(err))
}

// validatePage rejects structurally broken page envelopes
func validatePage(page *sync.RawPage, want sync.RecordKind) error {
	if page == nil {
		return fmt.Errorf("%w: nil page", sync.ErrMalformedPage)
	}
	if page.Kind != want {
		return fmt.Errorf("%w: expected %s page, got %s", sync.ErrMalformedPage, want, page.Kind)
	}
	if page.Records == nil {
		return fmt.Errorf("%w: %s page %d has no record list", sync.ErrMalformedPage, page.Kind, page.Number)
	}
	return nil
}

// isKnitwear applies the supplier-side exclusion rule: knitted products
// are reported by the catalog but never sold here.
func isKnitwear(p *rawProduct) bool {
	for _, t := range p.Techniques {
		switch strings.ToLower(t.Key) {
		case "knitting", "knitwear":
			return true
		}
	}
	lower := strings.ToLower(p.Type) + " " + strings.ToLower(p.Name)
	return strings.Contains(lower, "knitwear") || strings.Contains(lower, "knitting")
}

// CanonicalLocale validates and canonicalizes a supplier locale tag
// ("en_US"). Both BCP-47 ("en-US") and underscore forms are accepted; the
// supplier's underscore form is returned.
func CanonicalLocale(locale string) (string, error) {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	base, baseConf := tag.Base()
	region, regionConf := tag.Region()
	// Region confidence below Exact means the tag carried no region and
	// the matcher guessed one.
	if baseConf == language.No || regionConf != language.Exact {
		return "", fmt.Errorf("invalid locale %q: language and region required", locale)
	}
	return base.String() + "_" + region.String(), nil
}
