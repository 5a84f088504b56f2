package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/application/pipeline"
	"github.com/storefront/backend/internal/domain/catalog"
)

// GormStoreGateway is the transactional writer behind the sync pipeline.
// Apply commits a whole operation set in one transaction: a failed commit
// leaves the store exactly as the previous run left it.
type GormStoreGateway struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStoreGateway creates a new GormStoreGateway
func NewGormStoreGateway(db *gorm.DB, logger *zap.Logger) *GormStoreGateway {
	return &GormStoreGateway{db: db, logger: logger}
}

// Apply writes the operation set atomically. Upserts run before removals,
// categories before the products and variants that reference them; the
// reconciler has already put the category slice in parent-first order.
func (g *GormStoreGateway) Apply(ctx context.Context, set *pipeline.OperationSet) (*pipeline.CommitStats, error) {
	stats := &pipeline.CommitStats{}
	if set.Empty() {
		return stats, nil
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, category := range set.CategoryUpserts {
			if err := tx.Save(category).Error; err != nil {
				return fmt.Errorf("failed to upsert category %s: %w", category.ExternalID, err)
			}
			stats.Upserted++
		}
		for _, product := range set.ProductUpserts {
			if err := tx.Save(product).Error; err != nil {
				return fmt.Errorf("failed to upsert product %s: %w", product.ExternalID, err)
			}
			stats.Upserted++
		}
		for _, variant := range set.VariantUpserts {
			if err := tx.Save(variant).Error; err != nil {
				return fmt.Errorf("failed to upsert variant %s: %w", variant.ExternalID, err)
			}
			stats.Upserted++
		}

		for _, variant := range set.VariantRemovals {
			if err := tx.Save(variant).Error; err != nil {
				return fmt.Errorf("failed to remove variant %s: %w", variant.ExternalID, err)
			}
			stats.SoftDeleted++
		}
		for _, product := range set.ProductRemovals {
			if err := tx.Save(product).Error; err != nil {
				return fmt.Errorf("failed to remove product %s: %w", product.ExternalID, err)
			}
			stats.SoftDeleted++
		}
		for _, category := range set.CategoryRemovals {
			if err := tx.Save(category).Error; err != nil {
				return fmt.Errorf("failed to remove category %s: %w", category.ExternalID, err)
			}
			stats.SoftDeleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Committed operation set",
		zap.String("provider_id", set.ProviderID.String()),
		zap.Int("upserted", stats.Upserted),
		zap.Int("soft_deleted", stats.SoftDeleted))
	return stats, nil
}

// RefreshPrices recomputes price entries from the latest stored rates.
// A nil variantIDs slice refreshes every active variant. Returns the
// number of price rows written; entries already matching the latest rate
// are left alone.
func (g *GormStoreGateway) RefreshPrices(ctx context.Context, variantIDs []uuid.UUID, baseCurrency string, quoteCurrencies []string) (int, error) {
	written := 0
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rates, err := latestRatesByPair(ctx, tx, baseCurrency)
		if err != nil {
			return fmt.Errorf("failed to load rates for %s: %w", baseCurrency, err)
		}
		for _, quote := range quoteCurrencies {
			if quote == baseCurrency {
				continue
			}
			if _, ok := rates[quote]; !ok {
				g.logger.Warn("No stored rate for target currency",
					zap.String("base", baseCurrency),
					zap.String("quote", quote))
			}
		}

		var variants []catalog.Variant
		query := tx.Where("status = ?", catalog.EntityStatusActive)
		if variantIDs != nil {
			query = query.Where("id IN ?", variantIDs)
		}
		if err := query.Find(&variants).Error; err != nil {
			return fmt.Errorf("failed to load variants: %w", err)
		}
		if len(variants) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(variants))
		for i := range variants {
			ids[i] = variants[i].ID
		}
		var entries []catalog.PriceEntry
		if err := tx.Where("variant_id IN ?", ids).Find(&entries).Error; err != nil {
			return fmt.Errorf("failed to load price entries: %w", err)
		}
		existing := make(map[string]*catalog.PriceEntry, len(entries))
		for i := range entries {
			entry := &entries[i]
			existing[priceKey(entry.VariantID, entry.Currency)] = entry
		}

		for i := range variants {
			variant := &variants[i]
			if variant.BaseCurrency != baseCurrency {
				g.logger.Warn("Variant priced in unexpected base currency",
					zap.String("variant_id", variant.ID.String()),
					zap.String("currency", variant.BaseCurrency))
				continue
			}
			for _, quote := range quoteCurrencies {
				if quote == baseCurrency {
					continue
				}
				rate, ok := rates[quote]
				if !ok {
					continue
				}

				if entry, ok := existing[priceKey(variant.ID, quote)]; ok {
					if !entry.Refresh(variant.BasePriceMinorUnits, rate) {
						continue
					}
					if err := tx.Save(entry).Error; err != nil {
						return fmt.Errorf("failed to update price entry for variant %s: %w", variant.ExternalID, err)
					}
					written++
					continue
				}

				converted := catalog.ConvertMinorUnits(variant.BasePriceMinorUnits, rate.Rate)
				entry, err := catalog.NewPriceEntry(variant.ID, quote, converted, rate.FetchedAt)
				if err != nil {
					return err
				}
				if err := tx.Create(entry).Error; err != nil {
					return fmt.Errorf("failed to create price entry for variant %s: %w", variant.ExternalID, err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func priceKey(variantID uuid.UUID, currency string) string {
	return variantID.String() + "/" + currency
}

// Ensure GormStoreGateway implements StoreGateway
var _ pipeline.StoreGateway = (*GormStoreGateway)(nil)
