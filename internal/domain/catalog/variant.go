package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// AttributeMap holds variant dimensions (e.g. size, color) as a JSON
// column. Keys are dimension names, values the supplier-reported value.
type AttributeMap map[string]string

// Value implements driver.Valuer for JSON storage
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON storage
func (m *AttributeMap) Scan(value interface{}) error {
	if value == nil {
		*m = AttributeMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("catalog: cannot scan %T into AttributeMap", value)
	}
}

// Equal reports whether two attribute maps hold the same dimensions
func (m AttributeMap) Equal(other AttributeMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if other[k] != v {
			return false
		}
	}
	return true
}

// Variant represents a sellable configuration of a product. Its base
// price is held in integer minor units of the supplier's currency;
// converted retail prices live in PriceEntry rows derived from it.
type Variant struct {
	shared.BaseEntity
	ProductID           uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_variant_product_ext,priority:1"`
	ExternalID          string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_variant_product_ext,priority:2"`
	SKU                 string       `gorm:"type:varchar(100);index"`
	Attributes          AttributeMap `gorm:"type:jsonb"`
	ImageURL            string       `gorm:"type:text"`
	BasePriceMinorUnits int64        `gorm:"not null;default:0"`
	BaseCurrency        string       `gorm:"type:varchar(3);not null;default:'USD'"`
	Status              EntityStatus `gorm:"type:varchar(20);not null;default:'active'"`
	RemovedAt           *time.Time
}

// TableName returns the table name for GORM
func (Variant) TableName() string {
	return "variants"
}

// NewVariant creates a new variant owned by a product
func NewVariant(productID uuid.UUID, externalID string, basePriceMinorUnits int64, baseCurrency string) (*Variant, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Variant requires a product")
	}
	if err := validateExternalID(externalID); err != nil {
		return nil, err
	}
	if basePriceMinorUnits < 0 {
		return nil, shared.NewDomainError("INVALID_PRICE", "Base price cannot be negative")
	}
	if err := validateCurrency(baseCurrency); err != nil {
		return nil, err
	}

	return &Variant{
		BaseEntity:          shared.NewBaseEntity(),
		ProductID:           productID,
		ExternalID:          externalID,
		Attributes:          AttributeMap{},
		BasePriceMinorUnits: basePriceMinorUnits,
		BaseCurrency:        baseCurrency,
		Status:              EntityStatusActive,
	}, nil
}

// IsActive returns true if the variant has not been soft-deleted
func (v *Variant) IsActive() bool {
	return v.Status == EntityStatusActive
}

// MarkRemoved soft-deletes the variant. Price history referencing the
// variant is preserved.
func (v *Variant) MarkRemoved() {
	if v.Status == EntityStatusRemoved {
		return
	}
	now := time.Now()
	v.Status = EntityStatusRemoved
	v.RemovedAt = &now
	v.Touch()
}

// Restore reactivates a previously removed variant
func (v *Variant) Restore() {
	if v.Status == EntityStatusActive {
		return
	}
	v.Status = EntityStatusActive
	v.RemovedAt = nil
	v.Touch()
}

// MergeFrom applies fields reported by an incoming fetch onto the
// persisted variant. Returns true if any field changed.
func (v *Variant) MergeFrom(in *Variant) bool {
	changed := false

	if in.SKU != "" && in.SKU != v.SKU {
		v.SKU = in.SKU
		changed = true
	}
	if in.ImageURL != "" && in.ImageURL != v.ImageURL {
		v.ImageURL = in.ImageURL
		changed = true
	}
	if len(in.Attributes) > 0 && !v.Attributes.Equal(in.Attributes) {
		v.Attributes = in.Attributes
		changed = true
	}
	if in.BasePriceMinorUnits > 0 && in.BasePriceMinorUnits != v.BasePriceMinorUnits {
		v.BasePriceMinorUnits = in.BasePriceMinorUnits
		changed = true
	}
	if in.BaseCurrency != "" && in.BaseCurrency != v.BaseCurrency {
		v.BaseCurrency = in.BaseCurrency
		changed = true
	}
	if v.Status == EntityStatusRemoved {
		v.Restore()
		changed = true
	}

	if changed {
		v.Touch()
	}
	return changed
}

// validateCurrency validates an ISO 4217 currency code
func validateCurrency(code string) error {
	if len(code) != 3 {
		return shared.NewDomainError("INVALID_CURRENCY", "Currency must be a 3-letter ISO code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return shared.NewDomainError("INVALID_CURRENCY", "Currency must be uppercase letters")
		}
	}
	return nil
}
