package project

import (
	"context"
	"log/slog"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// DefaultLayerName is the display name of the current mosaic layer.
const DefaultLayerName = "Merged Raster"

// PresenterOptions configures a Presenter.
type PresenterOptions struct {
	// LayerName is the name given to every mosaic layer.
	// Default: DefaultLayerName
	LayerName string

	// Load builds a layer from a raster path. Default: LoadRasterLayer.
	Load func(path, name string) (*Layer, error)

	Logger *slog.Logger
}

// Presenter keeps one current-mosaic layer in the project. The active
// reference is only read and written inside functions run by the dispatcher.
type Presenter struct {
	project    *Project
	dispatcher Dispatcher
	layerName  string
	load       func(path, name string) (*Layer, error)
	logger     *slog.Logger

	active *LayerRef
}

// NewPresenter creates a presenter for p whose mutations run on d.
func NewPresenter(p *Project, d Dispatcher, opts PresenterOptions) *Presenter {
	if opts.LayerName == "" {
		opts.LayerName = DefaultLayerName
	}
	if opts.Load == nil {
		opts.Load = LoadRasterLayer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Presenter{
		project:    p,
		dispatcher: d,
		layerName:  opts.LayerName,
		load:       opts.Load,
		logger:     opts.Logger,
	}
}

// Swap replaces the current mosaic layer with one showing path. The raster
// is loaded on the calling goroutine; the project is changed on the UI
// goroutine. The previous layer is removed first and a failure to remove it
// is only logged. If the new raster is not a valid layer, no mosaic layer
// remains and a LayerError is returned.
func (pr *Presenter) Swap(ctx context.Context, path string) error {
	layer, loadErr := pr.load(path, pr.layerName)

	var result error
	err := pr.dispatcher.Do(ctx, func() {
		if pr.active != nil {
			if err := pr.project.RemoveLayer(ctx, pr.active.ID); err != nil {
				pr.logger.Warn("failed to remove previous mosaic layer",
					slog.String("layer_id", pr.active.ID),
					slog.String("path", pr.active.Source),
					slog.String("error", err.Error()))
			}
			pr.active = nil
		}

		if loadErr != nil {
			result = loadErr
			return
		}

		added, err := pr.project.AddLayer(ctx, *layer)
		if err != nil {
			result = err
			return
		}
		ref := added.Ref()
		pr.active = &ref
	})
	if err != nil {
		return mwerrors.LayerError("failed to update map project", path, err)
	}
	if result != nil {
		pr.logger.Error("mosaic layer not shown",
			slog.String("path", path),
			slog.String("error", result.Error()))
		return result
	}

	pr.logger.Info("mosaic layer updated", slog.String("path", path))
	return nil
}

// Adopt makes an existing project layer the active mosaic, so a resumed
// session replaces the layer a previous run left behind.
func (pr *Presenter) Adopt(ctx context.Context, id string) error {
	var result error
	err := pr.dispatcher.Do(ctx, func() {
		l, ok := pr.project.Layer(id)
		if !ok {
			result = mwerrors.New(mwerrors.ErrCodeLayerNotFound, "layer not in project", nil).WithDetail("layer_id", id)
			return
		}
		ref := l.Ref()
		pr.active = &ref
	})
	if err != nil {
		return err
	}
	return result
}

// AdoptLatest makes the most recently added mosaic layer active, whatever
// raster it shows, and removes any older mosaic layers. It reports whether a
// layer was adopted. Removal failures are logged.
func (pr *Presenter) AdoptLatest(ctx context.Context) (LayerRef, bool, error) {
	var ref LayerRef
	var ok bool
	err := pr.dispatcher.Do(ctx, func() {
		var mosaics []Layer
		for _, l := range pr.project.Layers() {
			if l.Name == pr.layerName {
				mosaics = append(mosaics, l)
			}
		}
		if len(mosaics) == 0 {
			return
		}
		latest := mosaics[0]
		for _, l := range mosaics[1:] {
			if !l.AddedAt.Before(latest.AddedAt) {
				latest = l
			}
		}
		for _, l := range mosaics {
			if l.ID == latest.ID {
				continue
			}
			if err := pr.project.RemoveLayer(ctx, l.ID); err != nil {
				pr.logger.Warn("failed to remove stale mosaic layer",
					slog.String("layer_id", l.ID),
					slog.String("path", l.Source),
					slog.String("error", err.Error()))
			}
		}
		ref, ok = latest.Ref(), true
		pr.active = &ref
	})
	return ref, ok, err
}

// Active returns the current mosaic layer reference, if any.
func (pr *Presenter) Active(ctx context.Context) (LayerRef, bool, error) {
	var ref LayerRef
	var ok bool
	err := pr.dispatcher.Do(ctx, func() {
		if pr.active != nil {
			ref, ok = *pr.active, true
		}
	})
	return ref, ok, err
}
