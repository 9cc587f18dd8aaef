package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"debrief/internal/logging"
	"debrief/internal/pending"
	"debrief/internal/recent"
)

// SourceDataRole is the asset role given to the original source file.
const SourceDataRole = "source-data"

// LoadMode selects whether a load creates a plot or appends to one.
type LoadMode string

const (
	ModeCreate   LoadMode = "create"
	ModeExisting LoadMode = "existing"
)

// ErrNoPlotSelected is returned for an existing-plot load without a plot.
var ErrNoPlotSelected = errors.New("no plot selected")

// LoadRequest describes one file load.
type LoadRequest struct {
	SourcePath string
	StorePath  string
	StoreName  string
	Mode       LoadMode

	// ModeCreate
	PlotName        string // defaults to the source file name
	PlotDescription string

	// ModeExisting
	PlotID string

	// Progress, when set, receives a percentage and a step description.
	Progress func(percent int, message string)
}

// LoadResult summarises a completed load.
type LoadResult struct {
	PlotID         string `json:"plotId"`
	PlotName       string `json:"plotName"`
	StoreName      string `json:"storeName"`
	FeaturesLoaded int    `json:"featuresLoaded"`
	AssetPath      string `json:"assetPath"`
	ProvenanceID   string `json:"provenanceId"`
}

// StepError records which phase of a load failed.
type StepError struct {
	Phase pending.Phase
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("load failed during %s: %v", e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StoreToucher records store use. *prefs.Store implements it.
type StoreToucher interface {
	TouchStore(ctx context.Context, path string) error
}

// Loader runs the parse, create, write, copy workflow. The pending journal
// brackets every load so an interrupted one is reported on the next start.
// History and Stores are optional.
type Loader struct {
	IO      *IO
	STAC    *STAC
	Journal *pending.Journal
	History *recent.History
	Stores  StoreToucher
}

// Load runs req to completion.
func (l *Loader) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	progress := req.Progress
	if progress == nil {
		progress = func(int, string) {}
	}
	if req.Mode == "" {
		req.Mode = ModeCreate
	}
	if req.Mode == ModeExisting && req.PlotID == "" {
		return nil, ErrNoPlotSelected
	}

	timer := logging.StartTimer(logging.CategoryLoader, "load "+req.SourcePath)
	defer timer.Stop()

	var result *LoadResult
	op := pending.Operation{StorePath: req.StorePath, Phase: pending.PhaseParse}
	err := l.Journal.Track(ctx, op, func(ctx context.Context, op pending.Operation) error {
		var err error
		result, err = l.run(ctx, op, req, progress)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.record(ctx, req, result)
	progress(100, "Done")
	logging.Loader("Loaded %d feature(s) from %s into plot %s", result.FeaturesLoaded, req.SourcePath, result.PlotID)
	return result, nil
}

func (l *Loader) run(ctx context.Context, op pending.Operation, req LoadRequest, progress func(int, string)) (*LoadResult, error) {
	progress(10, "Parsing file")
	parsed, err := l.IO.ParseFile(ctx, req.SourcePath)
	if err != nil {
		return nil, &StepError{Phase: pending.PhaseParse, Err: err}
	}
	progress(20, "Parsing file")

	if err := l.Journal.Advance(ctx, op.ID, pending.PhaseCreate, ""); err != nil {
		return nil, err
	}

	plotID, plotName := req.PlotID, req.PlotID
	if req.Mode == ModeCreate {
		progress(30, "Creating plot")
		name := req.PlotName
		if name == "" {
			name = filepath.Base(req.SourcePath)
		}
		created, err := l.STAC.CreatePlot(ctx, req.StorePath, name, req.PlotDescription)
		if err != nil {
			return nil, &StepError{Phase: pending.PhaseCreate, Err: err}
		}
		plotID, plotName = created.PlotID, created.Name
	} else if plots, err := l.STAC.ListPlots(ctx, req.StorePath); err == nil {
		for _, p := range plots {
			if p.ID == plotID {
				plotName = p.Name
				break
			}
		}
	}
	progress(40, "Creating plot")

	if err := l.Journal.Advance(ctx, op.ID, pending.PhaseWrite, plotID); err != nil {
		return nil, err
	}

	progress(50, "Adding features")
	added, err := l.STAC.AddFeatures(ctx, req.StorePath, plotID, parsed.Features, Provenance{
		SourcePath:    req.SourcePath,
		SourceHash:    parsed.Metadata.SourceHash,
		Parser:        parsed.Metadata.Parser,
		ParserVersion: parsed.Metadata.Version,
		Timestamp:     parsed.Metadata.Timestamp,
	})
	if err != nil {
		return nil, &StepError{Phase: pending.PhaseWrite, Err: err}
	}
	progress(70, "Adding features")

	if err := l.Journal.Advance(ctx, op.ID, pending.PhaseCopy, ""); err != nil {
		return nil, err
	}

	progress(80, "Copying source file")
	asset, err := l.STAC.CopyAsset(ctx, req.StorePath, plotID, req.SourcePath, SourceDataRole)
	if err != nil {
		return nil, &StepError{Phase: pending.PhaseCopy, Err: err}
	}
	progress(95, "Finalizing")

	return &LoadResult{
		PlotID:         plotID,
		PlotName:       plotName,
		StoreName:      req.StoreName,
		FeaturesLoaded: added.FeaturesAdded,
		AssetPath:      asset.AssetPath,
		ProvenanceID:   added.ProvenanceID,
	}, nil
}

// record notes the plot in the history and bumps the store's lastAccessed.
// Failures here do not fail the load.
func (l *Loader) record(ctx context.Context, req LoadRequest, result *LoadResult) {
	if l.History != nil {
		_, err := l.History.Add(ctx, recent.Plot{
			PlotID:  result.PlotID,
			Title:   result.PlotName,
			StoreID: req.StorePath,
			URI:     "file://" + filepath.ToSlash(filepath.Join(req.StorePath, result.PlotID)),
		})
		if err != nil {
			logging.Get(logging.CategoryLoader).Warn("Failed to record recent plot %s: %v", result.PlotID, err)
		}
	}
	if l.Stores != nil {
		if err := l.Stores.TouchStore(ctx, req.StorePath); err != nil {
			logging.Get(logging.CategoryLoader).Warn("Failed to update store %s: %v", req.StorePath, err)
		}
	}
}
