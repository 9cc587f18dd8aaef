package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"debrief/internal/config"
	"debrief/internal/jsonrpc"
	"debrief/internal/logging"
)

// StorePathLister supplies the registered store paths. *prefs.Store
// implements it.
type StorePathLister interface {
	StorePaths() ([]string, error)
}

// PlotInfo summarises a plot in a store.
type PlotInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Created      string `json:"created"`
	Modified     string `json:"modified"`
	FeatureCount int    `json:"feature_count"`
}

type plotList struct {
	Plots []PlotInfo `json:"plots"`
}

// CreatedPlot is the result of CreatePlot.
type CreatedPlot struct {
	PlotID  string `json:"plot_id"`
	Name    string `json:"name"`
	Created string `json:"created"`
}

// Provenance records where added features came from.
type Provenance struct {
	SourcePath    string `json:"source_path"`
	SourceHash    string `json:"source_hash"`
	Parser        string `json:"parser"`
	ParserVersion string `json:"parser_version"`
	Timestamp     string `json:"timestamp"`
}

// AddedFeatures is the result of AddFeatures.
type AddedFeatures struct {
	PlotID        string `json:"plot_id"`
	FeaturesAdded int    `json:"features_added"`
	ProvenanceID  string `json:"provenance_id"`
}

// CopiedAsset is the result of CopyAsset.
type CopiedAsset struct {
	AssetPath string `json:"asset_path"`
	AssetHref string `json:"asset_href"`
}

// STAC talks to one long-running debrief-stac process. It is safe for
// concurrent use.
type STAC struct {
	cfg     config.ServiceConfig
	manager *jsonrpc.ServiceManager
	oneShot *jsonrpc.Client
	stores  StorePathLister
}

// NewSTAC returns a client for the configured service. The process is not
// started until the first request.
func NewSTAC(cfg config.ServiceConfig, stores StorePathLister, opts ...jsonrpc.ServiceOption) *STAC {
	var mopts []jsonrpc.ServiceOption
	if cfg.ReadyMethod == "" {
		mopts = append(mopts, jsonrpc.WithoutReadyCheck(100*time.Millisecond))
	} else {
		mopts = append(mopts, jsonrpc.WithReadyMethod(cfg.ReadyMethod))
	}
	env := cfg.Environ()
	mopts = append(mopts, jsonrpc.WithReadyTimeout(cfg.GetReadyTimeout()), jsonrpc.WithServiceEnv(env))
	mopts = append(mopts, opts...)

	return &STAC{
		cfg:     cfg,
		manager: jsonrpc.NewServiceManager(cfg.Executable(), cfg.Args, mopts...),
		oneShot: jsonrpc.NewClient(jsonrpc.WithEnv(env)),
		stores:  stores,
	}
}

// Manager exposes the underlying process manager.
func (s *STAC) Manager() *jsonrpc.ServiceManager {
	return s.manager
}

// Configure tells the service which stores exist.
func (s *STAC) Configure(ctx context.Context, storePaths []string) error {
	if storePaths == nil {
		storePaths = []string{}
	}
	_, err := s.manager.Request(ctx, "configure", map[string]any{"stores": storePaths}, s.cfg.GetTimeout())
	if err != nil {
		return fmt.Errorf("failed to configure %s: %w", s.cfg.Name, err)
	}
	logging.Service("Configured %s with %d store(s)", s.cfg.Name, len(storePaths))
	return nil
}

// Reconfigure sends the current registered store paths.
func (s *STAC) Reconfigure(ctx context.Context) error {
	if s.stores == nil {
		return nil
	}
	paths, err := s.stores.StorePaths()
	if err != nil {
		return err
	}
	return s.Configure(ctx, paths)
}

// Initialize configures the service at startup. With no stores it does
// nothing; a failure is logged, not returned, since the rest of debrief
// works without a warmed-up service.
func (s *STAC) Initialize(ctx context.Context) {
	if s.stores == nil {
		return
	}
	paths, err := s.stores.StorePaths()
	if err != nil {
		logging.Get(logging.CategoryService).Warn("Failed to read store paths: %v", err)
		return
	}
	if len(paths) == 0 {
		return
	}
	if err := s.Configure(ctx, paths); err != nil {
		logging.Get(logging.CategoryService).Error("Failed to initialize %s: %v", s.cfg.Name, err)
	}
}

// ListPlots returns the plots in the store at storePath.
func (s *STAC) ListPlots(ctx context.Context, storePath string) ([]PlotInfo, error) {
	out, err := jsonrpc.ServiceCall[plotList](ctx, s.manager, "list_plots", map[string]any{"store_path": storePath}, s.cfg.GetTimeout())
	if err != nil {
		return nil, err
	}
	if out.Plots == nil {
		out.Plots = []PlotInfo{}
	}
	return out.Plots, nil
}

// CreatePlot creates an empty plot. An empty description is omitted.
func (s *STAC) CreatePlot(ctx context.Context, storePath, name, description string) (*CreatedPlot, error) {
	params := map[string]any{"store_path": storePath, "name": name}
	if description != "" {
		params["description"] = description
	}
	out, err := jsonrpc.ServiceCall[CreatedPlot](ctx, s.manager, "create_plot", params, s.cfg.GetTimeout())
	if err != nil {
		return nil, err
	}
	logging.Service("Created plot %s (%s) in %s", out.PlotID, out.Name, storePath)
	return &out, nil
}

// AddFeatures appends GeoJSON features to a plot with their provenance.
func (s *STAC) AddFeatures(ctx context.Context, storePath, plotID string, features []json.RawMessage, prov Provenance) (*AddedFeatures, error) {
	if features == nil {
		features = []json.RawMessage{}
	}
	out, err := jsonrpc.ServiceCall[AddedFeatures](ctx, s.manager, "add_features", map[string]any{
		"store_path": storePath,
		"plot_id":    plotID,
		"features":   features,
		"provenance": prov,
	}, s.cfg.GetTimeout())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CopyAsset copies sourcePath into the plot's assets under role.
func (s *STAC) CopyAsset(ctx context.Context, storePath, plotID, sourcePath, role string) (*CopiedAsset, error) {
	out, err := jsonrpc.ServiceCall[CopiedAsset](ctx, s.manager, "copy_asset", map[string]any{
		"store_path":  storePath,
		"plot_id":     plotID,
		"source_path": sourcePath,
		"asset_role":  role,
	}, s.cfg.GetTimeout())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InitCatalog creates a new catalog at path with a one-shot process. The
// running service is not told about it; see InitStore.
func (s *STAC) InitCatalog(ctx context.Context, path, name string) error {
	_, err := s.oneShot.SpawnAndRequest(ctx, s.cfg.Executable(), s.cfg.Args, "init_catalog",
		map[string]any{"path": path, "name": name}, s.cfg.GetTimeout())
	if err != nil {
		return fmt.Errorf("failed to initialise catalog at %s: %w", path, err)
	}
	logging.Service("Initialised catalog %s at %s", name, path)
	return nil
}

// InitStore creates a new catalog, calls register (when non-nil) so the
// store is recorded, then reconfigures the running service so it sees the
// registered stores. A register failure skips the reconfigure.
func (s *STAC) InitStore(ctx context.Context, path, name string, register func(ctx context.Context) error) error {
	if err := s.InitCatalog(ctx, path, name); err != nil {
		return err
	}
	if register != nil {
		if err := register(ctx); err != nil {
			return err
		}
	}
	return s.Reconfigure(ctx)
}

// Close stops the service process.
func (s *STAC) Close() {
	s.manager.Stop()
}
