package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"debrief/internal/catalog"
	"debrief/internal/logging"
	"debrief/internal/prefs"
)

// statusConcurrency bounds simultaneous catalog checks, which may hit
// network filesystems.
const statusConcurrency = 4

// StoreStatus is a registered store with its current health.
type StoreStatus struct {
	prefs.StoreRegistration
	Accessible  bool   `json:"accessible"`
	AccessError string `json:"accessError,omitempty"`
	PlotCount   int    `json:"plotCount"`
}

// StoreLister supplies registered stores. *prefs.Store implements it.
type StoreLister interface {
	ListStores() ([]StoreRegistration, error)
}

// StoreRegistration is re-exported for callers that only import services.
type StoreRegistration = prefs.StoreRegistration

// PlotLister counts plots. *STAC implements it.
type PlotLister interface {
	ListPlots(ctx context.Context, storePath string) ([]PlotInfo, error)
}

// StoreStatuses reports every registered store in registration order.
// Catalogs are checked concurrently; plot counts are filled from plots
// when it is non-nil and the store is accessible. A failed count is logged
// and leaves PlotCount at zero.
func StoreStatuses(ctx context.Context, stores StoreLister, plots PlotLister) ([]StoreStatus, error) {
	regs, err := stores.ListStores()
	if err != nil {
		return nil, err
	}

	out := make([]StoreStatus, len(regs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)

	for i, reg := range regs {
		i, reg := i, reg
		out[i].StoreRegistration = reg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := catalog.Validate(reg.Path); err != nil {
				out[i].AccessError = err.Error()
				return nil
			}
			out[i].Accessible = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if plots == nil {
		return out, nil
	}
	for i := range out {
		if !out[i].Accessible {
			continue
		}
		list, err := plots.ListPlots(ctx, out[i].Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Get(logging.CategoryService).Warn("Failed to count plots in %s: %v", out[i].Path, err)
			continue
		}
		out[i].PlotCount = len(list)
	}
	return out, nil
}
