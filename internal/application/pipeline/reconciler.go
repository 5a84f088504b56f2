package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/sync"
)

// Mode selects how the reconciler treats entities missing from the fetch
// and category cycles. Full runs soft-delete what the supplier stopped
// reporting and refuse cyclic trees; incremental runs touch only what was
// reported and skip cyclic subtrees.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// OperationSet is the reconciler's output: the exact mutations the store
// gateway must apply, already in dependency order. An empty set means the
// baseline and the fetch agree.
type OperationSet struct {
	ProviderID uuid.UUID

	CategoryUpserts []*catalog.Category
	ProductUpserts  []*catalog.Product
	VariantUpserts  []*catalog.Variant

	CategoryRemovals []*catalog.Category
	ProductRemovals  []*catalog.Product
	VariantRemovals  []*catalog.Variant

	Warnings []string
}

// Empty returns true when the set carries no mutations
func (s *OperationSet) Empty() bool {
	return len(s.CategoryUpserts) == 0 && len(s.ProductUpserts) == 0 &&
		len(s.VariantUpserts) == 0 && len(s.CategoryRemovals) == 0 &&
		len(s.ProductRemovals) == 0 && len(s.VariantRemovals) == 0
}

// UpsertCount returns the number of upsert mutations in the set
func (s *OperationSet) UpsertCount() int {
	return len(s.CategoryUpserts) + len(s.ProductUpserts) + len(s.VariantUpserts)
}

// RemovalCount returns the number of soft-delete mutations in the set
func (s *OperationSet) RemovalCount() int {
	return len(s.CategoryRemovals) + len(s.ProductRemovals) + len(s.VariantRemovals)
}

// UpsertedVariantIDs lists the variants touched by the set, used to scope
// the price refresh after apply.
func (s *OperationSet) UpsertedVariantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.VariantUpserts))
	for _, v := range s.VariantUpserts {
		ids = append(ids, v.ID)
	}
	return ids
}

// Reconciler diffs a normalized fetch against the persisted baseline and
// emits the minimal operation set that makes the store match the fetch.
// It is a pure function of its two inputs: the baseline is never mutated,
// and reconciling an already-applied fetch yields an empty set.
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile computes the operation set for one provider.
func (r *Reconciler) Reconcile(baseline *catalog.Snapshot, in *Incoming, mode Mode) (*OperationSet, error) {
	set := &OperationSet{ProviderID: baseline.ProviderID}

	cats := newEntitySet[catalog.Category]()
	prods := newEntitySet[catalog.Product]()
	vars := newEntitySet[catalog.Variant]()

	r.mergeCategories(baseline, in, set, cats)
	if err := r.linkCategoryTree(baseline, set, cats, mode); err != nil {
		return nil, err
	}
	r.mergeProducts(baseline, in, set, cats, prods)
	r.mergeVariants(baseline, in, set, prods, vars)

	if mode == ModeFull {
		r.collectRemovals(baseline, set, cats, prods, vars)
	}

	set.CategoryUpserts = orderCategoriesByParent(cats.dirtyEntities())
	set.ProductUpserts = prods.dirtyEntities()
	set.VariantUpserts = vars.dirtyEntities()
	return set, nil
}

// entitySet tracks the post-apply state of one entity type during a
// reconcile pass, keyed by external ID (variants use the composite key).
type entitySet[T any] struct {
	byKey map[string]*T
	dirty map[string]bool
	order []string
}

func newEntitySet[T any]() *entitySet[T] {
	return &entitySet[T]{byKey: map[string]*T{}, dirty: map[string]bool{}}
}

func (s *entitySet[T]) put(key string, e *T, dirty bool) {
	if _, seen := s.byKey[key]; !seen {
		s.order = append(s.order, key)
	}
	s.byKey[key] = e
	if dirty {
		s.dirty[key] = true
	}
}

func (s *entitySet[T]) markDirty(key string) { s.dirty[key] = true }

func (s *entitySet[T]) drop(key string) {
	delete(s.byKey, key)
	delete(s.dirty, key)
}

func (s *entitySet[T]) dirtyEntities() []*T {
	out := make([]*T, 0, len(s.dirty))
	for _, key := range s.order {
		if s.dirty[key] {
			if e, ok := s.byKey[key]; ok {
				out = append(out, e)
			}
		}
	}
	return out
}

func (r *Reconciler) mergeCategories(baseline *catalog.Snapshot, in *Incoming, set *OperationSet, cats *entitySet[catalog.Category]) {
	existing := baseline.CategoryByExternalID()

	for i := range in.Categories {
		c := &in.Categories[i]
		if _, dup := cats.byKey[c.ExternalID]; dup {
			set.warnf("duplicate category %s in fetch, keeping last occurrence", c.ExternalID)
		}

		if ex, ok := existing[c.ExternalID]; ok {
			clone := *ex
			changed := clone.MergeFrom(c)
			cats.put(c.ExternalID, &clone, changed)
			continue
		}

		fresh, err := catalog.NewCategory(baseline.ProviderID, c.ExternalID, c.Name)
		if err != nil {
			set.warnf("dropping invalid category %s: %v", c.ExternalID, err)
			continue
		}
		fresh.Description = c.Description
		fresh.Thumbnail = c.Thumbnail
		fresh.SortOrder = c.SortOrder
		fresh.Featured = c.Featured
		fresh.ParentExternalID = c.ParentExternalID
		cats.put(c.ExternalID, fresh, true)
	}
}

// linkCategoryTree resolves ParentExternalID references to persisted IDs
// across the union of incoming and baseline categories. Forward references
// and parents that only exist in the baseline both resolve; unknown parents
// demote the category to a root with a warning.
func (r *Reconciler) linkCategoryTree(baseline *catalog.Snapshot, set *OperationSet, cats *entitySet[catalog.Category], mode Mode) error {
	existing := baseline.CategoryByExternalID()

	parentOf := func(extID string) string {
		if c, ok := cats.byKey[extID]; ok {
			return c.ParentExternalID
		}
		if c, ok := existing[extID]; ok {
			return c.ParentExternalID
		}
		return ""
	}

	// Cycle check over the incoming set before any links are written.
	cyclic := map[string]bool{}
	for _, start := range cats.order {
		if _, ok := cats.byKey[start]; !ok {
			continue
		}
		onPath := map[string]bool{}
		for cur := start; cur != ""; cur = parentOf(cur) {
			if cyclic[cur] {
				cyclic[start] = true
				break
			}
			if onPath[cur] {
				if mode == ModeFull {
					return fmt.Errorf("%w: category %s", sync.ErrCycleDetected, cur)
				}
				for id := range onPath {
					cyclic[id] = true
				}
				break
			}
			onPath[cur] = true
		}
	}
	for extID := range cyclic {
		if _, ok := cats.byKey[extID]; ok {
			set.warnf("skipping category %s: parent chain contains a cycle", extID)
			cats.drop(extID)
		}
	}

	resolve := func(extID string) (*catalog.Category, bool) {
		if c, ok := cats.byKey[extID]; ok {
			return c, true
		}
		if c, ok := existing[extID]; ok && c.IsActive() {
			return c, true
		}
		return nil, false
	}

	for _, extID := range cats.order {
		c, ok := cats.byKey[extID]
		if !ok {
			continue
		}
		if c.ParentExternalID == "" {
			if c.ParentID != nil {
				c.ParentID = nil
				cats.markDirty(extID)
			}
			continue
		}
		parent, found := resolve(c.ParentExternalID)
		if !found {
			set.warnf("category %s references unknown parent %s, keeping it as a root", extID, c.ParentExternalID)
			if c.ParentID != nil {
				c.ParentID = nil
				cats.markDirty(extID)
			}
			continue
		}
		if c.ParentID == nil || *c.ParentID != parent.ID {
			c.LinkParent(parent.ID)
			cats.markDirty(extID)
		}
	}
	return nil
}

func (r *Reconciler) mergeProducts(baseline *catalog.Snapshot, in *Incoming, set *OperationSet, cats *entitySet[catalog.Category], prods *entitySet[catalog.Product]) {
	existing := baseline.ProductByExternalID()
	existingCats := baseline.CategoryByExternalID()

	resolveCategory := func(extID string) (*catalog.Category, bool) {
		if c, ok := cats.byKey[extID]; ok {
			return c, true
		}
		if c, ok := existingCats[extID]; ok && c.IsActive() {
			return c, true
		}
		return nil, false
	}

	for i := range in.Products {
		p := &in.Products[i]
		if _, dup := prods.byKey[p.ExternalID]; dup {
			set.warnf("duplicate product %s in fetch, keeping last occurrence", p.ExternalID)
		}

		var target *catalog.Product
		if ex, ok := existing[p.ExternalID]; ok {
			clone := *ex
			changed := clone.MergeFrom(p)
			target = &clone
			prods.put(p.ExternalID, target, changed)
		} else {
			fresh, err := catalog.NewProduct(baseline.ProviderID, p.ExternalID, p.Name)
			if err != nil {
				set.warnf("dropping invalid product %s: %v", p.ExternalID, err)
				continue
			}
			fresh.Description = p.Description
			fresh.Thumbnail = p.Thumbnail
			fresh.CategoryExternalID = p.CategoryExternalID
			target = fresh
			prods.put(p.ExternalID, target, true)
		}

		if target.CategoryExternalID == "" {
			if target.CategoryID != nil {
				target.CategoryID = nil
				prods.markDirty(p.ExternalID)
			}
			continue
		}
		cat, found := resolveCategory(target.CategoryExternalID)
		if !found {
			set.warnf("product %s references unknown category %s", p.ExternalID, target.CategoryExternalID)
			if target.CategoryID != nil {
				target.CategoryID = nil
				prods.markDirty(p.ExternalID)
			}
			continue
		}
		if target.CategoryID == nil || *target.CategoryID != cat.ID {
			target.AssignCategory(cat.ID)
			prods.markDirty(p.ExternalID)
		}
	}
}

func (r *Reconciler) mergeVariants(baseline *catalog.Snapshot, in *Incoming, set *OperationSet, prods *entitySet[catalog.Product], vars *entitySet[catalog.Variant]) {
	productExtByID := make(map[uuid.UUID]string, len(baseline.Products))
	for i := range baseline.Products {
		productExtByID[baseline.Products[i].ID] = baseline.Products[i].ExternalID
	}
	existing := baseline.VariantByExternalID(productExtByID)
	existingProds := baseline.ProductByExternalID()

	for i := range in.Variants {
		iv := &in.Variants[i]
		key := catalog.VariantKey(iv.ProductExternalID, iv.Variant.ExternalID)
		if _, dup := vars.byKey[key]; dup {
			set.warnf("duplicate variant %s in fetch, keeping last occurrence", key)
		}

		owner, ok := prods.byKey[iv.ProductExternalID]
		if !ok {
			if ex, found := existingProds[iv.ProductExternalID]; found && ex.IsActive() {
				owner = ex
			} else {
				set.warnf("dropping variant %s: product %s not in fetch or store", iv.Variant.ExternalID, iv.ProductExternalID)
				continue
			}
		}

		if ex, found := existing[key]; found {
			clone := *ex
			changed := clone.MergeFrom(&iv.Variant)
			vars.put(key, &clone, changed)
			continue
		}

		fresh, err := catalog.NewVariant(owner.ID, iv.Variant.ExternalID, iv.Variant.BasePriceMinorUnits, iv.Variant.BaseCurrency)
		if err != nil {
			set.warnf("dropping invalid variant %s: %v", key, err)
			continue
		}
		fresh.SKU = iv.Variant.SKU
		fresh.ImageURL = iv.Variant.ImageURL
		if len(iv.Variant.Attributes) > 0 {
			fresh.Attributes = iv.Variant.Attributes
		}
		vars.put(key, fresh, true)
	}
}

// collectRemovals soft-deletes every active baseline entity the fetch no
// longer reports. Variants of a vanished product vanish with it.
func (r *Reconciler) collectRemovals(baseline *catalog.Snapshot, set *OperationSet, cats *entitySet[catalog.Category], prods *entitySet[catalog.Product], vars *entitySet[catalog.Variant]) {
	removedProductIDs := map[uuid.UUID]bool{}

	for i := range baseline.Products {
		p := baseline.Products[i]
		if !p.IsActive() {
			continue
		}
		if _, reported := prods.byKey[p.ExternalID]; reported {
			continue
		}
		p.MarkRemoved()
		removedProductIDs[p.ID] = true
		set.ProductRemovals = append(set.ProductRemovals, &p)
	}

	productExtByID := make(map[uuid.UUID]string, len(baseline.Products))
	for i := range baseline.Products {
		productExtByID[baseline.Products[i].ID] = baseline.Products[i].ExternalID
	}
	for i := range baseline.Variants {
		v := baseline.Variants[i]
		if !v.IsActive() {
			continue
		}
		key := catalog.VariantKey(productExtByID[v.ProductID], v.ExternalID)
		if _, reported := vars.byKey[key]; reported && !removedProductIDs[v.ProductID] {
			continue
		}
		v.MarkRemoved()
		set.VariantRemovals = append(set.VariantRemovals, &v)
	}

	for i := range baseline.Categories {
		c := baseline.Categories[i]
		if !c.IsActive() {
			continue
		}
		if _, reported := cats.byKey[c.ExternalID]; reported {
			continue
		}
		c.MarkRemoved()
		set.CategoryRemovals = append(set.CategoryRemovals, &c)
	}
}

// orderCategoriesByParent sorts category upserts so every parent precedes
// its children. Rows insert under the parent foreign key in one pass.
func orderCategoriesByParent(cats []*catalog.Category) []*catalog.Category {
	byID := make(map[uuid.UUID]*catalog.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	out := make([]*catalog.Category, 0, len(cats))
	placed := map[uuid.UUID]bool{}

	var place func(c *catalog.Category)
	place = func(c *catalog.Category) {
		if placed[c.ID] {
			return
		}
		placed[c.ID] = true
		if c.ParentID != nil {
			if parent, ok := byID[*c.ParentID]; ok {
				place(parent)
			}
		}
		out = append(out, c)
	}
	for _, c := range cats {
		place(c)
	}
	return out
}

func (s *OperationSet) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}
