package pipeline

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/sync"
)

// CommitStats summarizes what one store transaction changed
type CommitStats struct {
	Upserted    int
	SoftDeleted int
}

// StoreGateway is the port to the transactional store writer. Apply
// commits an operation set atomically or not at all; RefreshPrices
// recomputes converted price rows from the latest stored rates. A nil
// variantIDs slice refreshes every active variant.
type StoreGateway interface {
	Apply(ctx context.Context, set *OperationSet) (*CommitStats, error)
	RefreshPrices(ctx context.Context, variantIDs []uuid.UUID, baseCurrency string, quoteCurrencies []string) (int, error)
}

// Config carries the orchestrator's tunables
type Config struct {
	// Locales synced when a trigger names none
	Locales []string
	// RunTimeout bounds one locale's run end to end
	RunTimeout time.Duration
	// BaseCurrency is the supplier's price currency
	BaseCurrency string
	// TargetCurrencies lists the currencies converted prices are kept in
	TargetCurrencies []string
	// RateMaxAge is how long a stored rate batch stays fresh. Rate
	// updates within the window are no-ops unless forced.
	RateMaxAge time.Duration
}

// Orchestrator drives full synchronization runs: fetch, normalize,
// reconcile, apply, in that order, under a per-provider-and-locale lock.
// It owns run bookkeeping; all domain logic lives in the stages.
type Orchestrator struct {
	source     sync.CatalogSource
	rateSource sync.RateSource
	providers  catalog.ProviderRepository
	snapshots  catalog.SnapshotReader
	rates      catalog.ExchangeRateRepository
	gateway    StoreGateway
	locker     sync.RunLocker
	normalizer *Normalizer
	reconciler *Reconciler
	cfg        Config
	logger     *zap.Logger

	mu          gosync.Mutex
	activeRuns  map[string]*sync.Run
	lastReports map[string]*sync.Report
}

// NewOrchestrator wires the pipeline together
func NewOrchestrator(
	source sync.CatalogSource,
	rateSource sync.RateSource,
	providers catalog.ProviderRepository,
	snapshots catalog.SnapshotReader,
	rates catalog.ExchangeRateRepository,
	gateway StoreGateway,
	locker sync.RunLocker,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "USD"
	}
	if cfg.RateMaxAge <= 0 {
		cfg.RateMaxAge = time.Hour
	}
	return &Orchestrator{
		source:      source,
		rateSource:  rateSource,
		providers:   providers,
		snapshots:   snapshots,
		rates:       rates,
		gateway:     gateway,
		locker:      locker,
		normalizer:  NewNormalizer(logger),
		reconciler:  NewReconciler(logger),
		cfg:         cfg,
		logger:      logger,
		activeRuns:  map[string]*sync.Run{},
		lastReports: map[string]*sync.Report{},
	}
}

// SyncCatalog runs the pipeline for one locale, or for every configured
// locale when the argument is empty. Each locale is one independent run;
// a failed locale does not stop the others. The returned error is the
// first run-level failure, with all reports still returned.
func (o *Orchestrator) SyncCatalog(ctx context.Context, locale string, mode Mode) ([]*sync.Report, error) {
	if mode == "" {
		mode = ModeFull
	}

	locales := o.cfg.Locales
	if locale != "" {
		canonical, err := CanonicalLocale(locale)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		locales = []string{canonical}
	}
	if len(locales) == 0 {
		return nil, fmt.Errorf("%w: no locales configured", shared.ErrInvalidInput)
	}

	var reports []*sync.Report
	var firstErr error
	for _, loc := range locales {
		report, err := o.syncLocale(ctx, loc, mode)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return reports, firstErr
}

func (o *Orchestrator) syncLocale(ctx context.Context, locale string, mode Mode) (*sync.Report, error) {
	key := sync.LockKey{Provider: o.source.ProviderName(), Locale: locale}
	acquired, err := o.locker.TryAcquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock for %s: %w", key, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", sync.ErrSyncAlreadyRunning, key)
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			o.logger.Error("Failed to release run lock", zap.String("key", key.String()), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	run := sync.NewRun(o.source.ProviderName(), locale)
	o.trackRun(key, run)
	defer o.finishRun(key, run)

	o.logger.Info("Starting catalog sync",
		zap.String("run_id", run.ID.String()),
		zap.String("locale", locale),
		zap.String("mode", string(mode)))

	if err := o.execute(ctx, run, locale, mode); err != nil {
		err = o.classify(ctx, err)
		run.Fail(err)
		o.logger.Error("Catalog sync failed",
			zap.String("run_id", run.ID.String()),
			zap.String("locale", locale),
			zap.Error(err))
		return run.Report(), err
	}

	report := run.Report()
	o.logger.Info("Catalog sync finished",
		zap.String("run_id", run.ID.String()),
		zap.String("locale", locale),
		zap.Int("upserted", report.Counts.Upserted),
		zap.Int("soft_deleted", report.Counts.SoftDeleted),
		zap.Int("skipped", report.Counts.Skipped))
	return report, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *sync.Run, locale string, mode Mode) error {
	provider, err := o.ensureProvider(ctx)
	if err != nil {
		return err
	}

	if err := run.Advance(sync.RunStateFetching); err != nil {
		return err
	}
	categoryPage, productPages, err := o.fetch(ctx, locale)
	if err != nil {
		return err
	}

	if err := run.Advance(sync.RunStateNormalizing); err != nil {
		return err
	}
	incoming, err := o.normalizer.NormalizePages(categoryPage, productPages)
	if err != nil {
		return err
	}
	run.RecordSkips(incoming.Skipped, incoming.SkipErrors)

	if err := run.Advance(sync.RunStateReconciling); err != nil {
		return err
	}
	baseline, err := o.snapshots.ReadSnapshot(ctx, provider.ID)
	if err != nil {
		return fmt.Errorf("reading baseline snapshot: %w", err)
	}
	set, err := o.reconciler.Reconcile(baseline, incoming, mode)
	if err != nil {
		return err
	}
	for _, w := range set.Warnings {
		o.logger.Warn("Reconcile warning", zap.String("run_id", run.ID.String()), zap.String("warning", w))
		run.AddWarning(w)
	}

	if err := run.Advance(sync.RunStateApplying); err != nil {
		return err
	}
	if !set.Empty() {
		stats, err := o.gateway.Apply(ctx, set)
		if err != nil {
			return fmt.Errorf("%w: %v", sync.ErrStoreApplyFailed, err)
		}
		run.RecordApply(stats.Upserted, stats.SoftDeleted)
	}
	if ids := set.UpsertedVariantIDs(); len(ids) > 0 {
		refreshed, err := o.gateway.RefreshPrices(ctx, ids, o.cfg.BaseCurrency, o.cfg.TargetCurrencies)
		if err != nil {
			return fmt.Errorf("%w: refreshing prices: %v", sync.ErrStoreApplyFailed, err)
		}
		run.RecordPricesRefreshed(refreshed)
	}

	return run.Complete()
}

// fetch pulls the category page and drains the product page stream. The
// whole fetch completes before anything downstream runs, so a fetch
// failure leaves the store untouched.
func (o *Orchestrator) fetch(ctx context.Context, locale string) (*sync.RawPage, []*sync.RawPage, error) {
	categoryPage, err := o.source.FetchCategories(ctx, locale)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching categories: %w", err)
	}

	var productPages []*sync.RawPage
	for result := range o.source.FetchProducts(ctx, locale) {
		if result.Err != nil {
			return nil, nil, fmt.Errorf("fetching products: %w", result.Err)
		}
		productPages = append(productPages, result.Page)
	}
	return categoryPage, productPages, nil
}

// ensureProvider loads the provider row for the configured source,
// creating it on first sync.
func (o *Orchestrator) ensureProvider(ctx context.Context) (*catalog.Provider, error) {
	name := o.source.ProviderName()
	provider, err := o.providers.FindByName(ctx, name)
	if err == nil {
		return provider, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("looking up provider %s: %w", name, err)
	}

	provider, err = catalog.NewProvider(name, name)
	if err != nil {
		return nil, err
	}
	if err := o.providers.Save(ctx, provider); err != nil {
		return nil, fmt.Errorf("creating provider %s: %w", name, err)
	}
	o.logger.Info("Registered provider", zap.String("provider", name))
	return provider, nil
}

// classify maps a stage error to the run-level cause, folding context
// expiry into the timeout error.
func (o *Orchestrator) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sync.ErrTimeout, err)
	}
	return err
}

// rateLockKey serializes exchange-rate runs; they are provider-agnostic
var rateLockKey = sync.LockKey{Provider: "exchange-rates", Locale: "all"}

// UpdateExchangeRates fetches current rates, stores the batch and
// recomputes converted prices for every active variant. When the stored
// batch is younger than RateMaxAge the fetch is skipped unless forced.
func (o *Orchestrator) UpdateExchangeRates(ctx context.Context, force bool) (*sync.Report, error) {
	acquired, err := o.locker.TryAcquire(ctx, rateLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquiring rate lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", sync.ErrSyncAlreadyRunning, rateLockKey)
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), rateLockKey); err != nil {
			o.logger.Error("Failed to release rate lock", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	run := sync.NewRun("exchange-rates", "all")
	o.trackRun(rateLockKey, run)
	defer o.finishRun(rateLockKey, run)

	if !force {
		fetchedAt, err := o.rates.LatestFetchedAt(ctx, o.cfg.BaseCurrency)
		if err == nil && !fetchedAt.IsZero() && time.Since(fetchedAt) < o.cfg.RateMaxAge {
			o.logger.Info("Stored rates still fresh, skipping fetch",
				zap.Time("fetched_at", fetchedAt))
			if err := run.AdvanceThrough(sync.RunStateDone); err != nil {
				return nil, err
			}
			return run.Report(), nil
		}
	}

	if err := o.updateRates(ctx, run); err != nil {
		err = o.classify(ctx, err)
		run.Fail(err)
		o.logger.Error("Exchange rate update failed", zap.Error(err))
		return run.Report(), err
	}

	report := run.Report()
	o.logger.Info("Exchange rates updated",
		zap.Int("prices_refreshed", report.Counts.PricesRefreshed))
	return report, nil
}

func (o *Orchestrator) updateRates(ctx context.Context, run *sync.Run) error {
	if err := run.Advance(sync.RunStateFetching); err != nil {
		return err
	}
	quotes, fetchedAt, err := o.rateSource.FetchRates(ctx, o.cfg.BaseCurrency)
	if err != nil {
		return fmt.Errorf("fetching rates: %w", err)
	}

	batch := make([]catalog.ExchangeRate, 0, len(quotes))
	for _, q := range quotes {
		rate, err := catalog.NewExchangeRate(o.cfg.BaseCurrency, q.QuoteCurrency, q.Rate, fetchedAt)
		if err != nil {
			run.RecordSkip(fmt.Errorf("%w: rate %s: %v", sync.ErrMalformedRecord, q.QuoteCurrency, err))
			continue
		}
		batch = append(batch, *rate)
	}
	if len(batch) == 0 {
		return fmt.Errorf("%w: rate source returned no usable quotes", sync.ErrMalformedPage)
	}

	// Rate runs have no normalize or reconcile work; the stages are
	// passed through so the machine reaches Applying in order.
	if err := run.AdvanceThrough(sync.RunStateApplying); err != nil {
		return err
	}
	if err := o.rates.SaveAll(ctx, batch); err != nil {
		return fmt.Errorf("%w: storing rates: %v", sync.ErrStoreApplyFailed, err)
	}

	refreshed, err := o.gateway.RefreshPrices(ctx, nil, o.cfg.BaseCurrency, o.cfg.TargetCurrencies)
	if err != nil {
		return fmt.Errorf("%w: refreshing prices: %v", sync.ErrStoreApplyFailed, err)
	}
	run.RecordApply(len(batch), 0)
	run.RecordPricesRefreshed(refreshed)
	return run.Complete()
}

// RunStatus describes the pipeline's current and last-known runs for the
// status endpoint.
type RunStatus struct {
	Active []*sync.Report `json:"active"`
	Last   []*sync.Report `json:"last"`
}

// Status reports in-flight runs and the most recent finished report per
// provider and locale.
func (o *Orchestrator) Status() *RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := &RunStatus{}
	for _, run := range o.activeRuns {
		status.Active = append(status.Active, run.Report())
	}
	for _, report := range o.lastReports {
		status.Last = append(status.Last, report)
	}
	return status
}

func (o *Orchestrator) trackRun(key sync.LockKey, run *sync.Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeRuns[key.String()] = run
}

func (o *Orchestrator) finishRun(key sync.LockKey, run *sync.Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, key.String())
	o.lastReports[key.String()] = run.Report()
}
