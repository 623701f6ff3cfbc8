// Package project models the map project that displays the current mosaic
// and the presenter that keeps exactly one mosaic layer in it.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

// LayerKind classifies layers in the project.
type LayerKind string

const (
	// KindRaster is a raster layer backed by a file on disk.
	KindRaster LayerKind = "raster"
)

// Layer is a layer in the map project.
type Layer struct {
	ID      string
	Name    string
	Source  string
	Kind    LayerKind
	Width   int
	Height  int
	Bands   int
	Bounds  raster.Bounds
	AddedAt time.Time
}

// LayerRef identifies a layer without owning it.
type LayerRef struct {
	ID     string
	Source string
}

// Ref returns a reference to l.
func (l Layer) Ref() LayerRef {
	return LayerRef{ID: l.ID, Source: l.Source}
}

// LoadRasterLayer opens path and builds a raster layer from it. An
// unreadable raster yields a LayerError.
func LoadRasterLayer(path, name string) (*Layer, error) {
	info, err := raster.Stat(path)
	if err != nil {
		return nil, mwerrors.LayerError("raster layer is not valid", path, err)
	}
	if info.Width == 0 || info.Height == 0 || info.Bands == 0 {
		return nil, mwerrors.LayerError("raster layer is empty", path, nil)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	return &Layer{
		Name:   name,
		Source: path,
		Kind:   KindRaster,
		Width:  info.Width,
		Height: info.Height,
		Bands:  info.Bands,
		Bounds: info.Bounds,
	}, nil
}

// Options configures a Project.
type Options struct {
	// Store persists layers. Nil keeps the project in memory.
	Store store.LayerStore

	// SessionID tags layers added by this process.
	SessionID string

	Logger *slog.Logger
}

// Project is the map project: an ordered list of layers. Mutations are
// expected to happen on the UI goroutine; the lock only protects readers
// on other goroutines.
type Project struct {
	mu        sync.RWMutex
	layers    []Layer
	store     store.LayerStore
	sessionID string
	logger    *slog.Logger
	onChange  []func([]Layer)
}

// New creates an empty project.
func New(opts Options) *Project {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Project{
		store:     opts.Store,
		sessionID: opts.SessionID,
		logger:    logger,
	}
}

// Load replaces the in-memory layers with the ones in the store.
func (p *Project) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	records, err := p.store.ListLayers(ctx)
	if err != nil {
		return fmt.Errorf("load project layers: %w", err)
	}
	layers := make([]Layer, 0, len(records))
	for _, r := range records {
		layers = append(layers, Layer{
			ID:      r.ID,
			Name:    r.Name,
			Source:  r.Source,
			Kind:    LayerKind(r.Kind),
			Width:   r.Width,
			Height:  r.Height,
			Bands:   r.Bands,
			AddedAt: r.AddedAt,
		})
	}
	p.mu.Lock()
	p.layers = layers
	p.mu.Unlock()
	p.changed()
	return nil
}

// OnChange registers fn to be called with a snapshot after every mutation.
func (p *Project) OnChange(fn func([]Layer)) {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
}

// AddLayer appends l and returns it with its ID assigned.
func (p *Project) AddLayer(ctx context.Context, l Layer) (Layer, error) {
	if l.Source == "" {
		return Layer{}, mwerrors.LayerError("layer has no source", "", nil)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Kind == "" {
		l.Kind = KindRaster
	}
	if l.AddedAt.IsZero() {
		l.AddedAt = time.Now()
	}

	p.mu.Lock()
	for _, existing := range p.layers {
		if existing.ID == l.ID {
			p.mu.Unlock()
			return Layer{}, mwerrors.LayerError("layer already in project", l.Source, nil).WithDetail("layer_id", l.ID)
		}
	}
	p.layers = append(p.layers, l)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.SaveLayer(ctx, toRecord(l, p.sessionID)); err != nil {
			p.logger.Warn("failed to persist layer",
				slog.String("layer_id", l.ID),
				slog.String("path", l.Source),
				slog.String("error", err.Error()))
		}
	}
	p.changed()
	return l, nil
}

// RemoveLayer removes the layer with the given id.
func (p *Project) RemoveLayer(ctx context.Context, id string) error {
	p.mu.Lock()
	idx := -1
	for i, l := range p.layers {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return mwerrors.New(mwerrors.ErrCodeLayerNotFound, "layer not in project", nil).WithDetail("layer_id", id)
	}
	p.layers = append(p.layers[:idx], p.layers[idx+1:]...)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.DeleteLayer(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("failed to delete persisted layer",
				slog.String("layer_id", id),
				slog.String("error", err.Error()))
		}
	}
	p.changed()
	return nil
}

// Layers returns a snapshot of all layers in draw order.
func (p *Project) Layers() []Layer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Layer(nil), p.layers...)
}

// LayersByType returns the layers of the given kind.
func (p *Project) LayersByType(kind LayerKind) []Layer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Layer
	for _, l := range p.layers {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// Layer looks up a layer by id.
func (p *Project) Layer(id string) (Layer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, l := range p.layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

func (p *Project) changed() {
	p.mu.RLock()
	snapshot := slices.Clone(p.layers)
	listeners := slices.Clone(p.onChange)
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

func toRecord(l Layer, sessionID string) store.LayerRecord {
	return store.LayerRecord{
		ID:        l.ID,
		Name:      l.Name,
		Source:    l.Source,
		Kind:      string(l.Kind),
		Width:     l.Width,
		Height:    l.Height,
		Bands:     l.Bands,
		SessionID: sessionID,
		AddedAt:   l.AddedAt,
	}
}
