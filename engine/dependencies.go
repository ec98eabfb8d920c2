package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/scene"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"go.uber.org/zap"
)

// dependency is a placeholder waiting for the model at its root path.
type dependency struct {
	placeholder game_object.GameObject
	path        string
	opts        *asset.ImportOptions

	loaded game_object.GameObject
	err    error
}

func (m *assetManager) LoadObjectDependencies(ctx context.Context, root game_object.GameObject) ([]game_object.GameObject, error) {
	return m.resolveDependencies(ctx, root, "")
}

// resolveDependencies loads the dependencies of root, which was loaded from rootPath. Placeholders
// referring to root's own file are never loaded into it.
func (m *assetManager) resolveDependencies(ctx context.Context, root game_object.GameObject, rootPath string) ([]game_object.GameObject, error) {
	if m.disposed.Load() {
		return nil, ErrDisposed
	}
	if root == nil {
		return nil, nil
	}
	visiting := map[string]bool{}
	if rootPath != "" {
		visiting[rootPath] = true
	}
	if p, _ := root.UserData()["rootPath"].(string); p != "" {
		visiting[p] = true
	}
	return m.loadDependencies(ctx, root, visiting)
}

func (m *assetManager) loadDependencies(ctx context.Context, root game_object.GameObject, visiting map[string]bool) ([]game_object.GameObject, error) {
	deps := collectDependencies(root)
	if len(deps) == 0 {
		return nil, nil
	}

	var wg sync.WaitGroup
	for idx, d := range deps {
		if visiting[d.path] {
			m.logger.Error("dependency cycle, skipping", zap.String("path", d.path))
			continue
		}
		// a cached root may already be in the scene or spliced under another placeholder
		d.opts.ForceImport = true

		wg.Add(1)
		m.dependencyPool.SubmitTask(worker.Task{
			ID:      idx,
			Payload: d.path,
			Do: func() (any, error) {
				defer wg.Done()
				d.loaded, d.err = m.importDependency(ctx, d)
				return d.loaded, d.err
			},
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spliced []game_object.GameObject
	for _, d := range deps {
		if d.err != nil || d.loaded == nil {
			if d.err != nil {
				m.logger.Error("unable to load object dependency", zap.String("path", d.path), zap.Error(d.err))
			}
			continue
		}
		if !splice(d.placeholder, d.loaded) {
			continue
		}
		spliced = append(spliced, d.loaded)

		visiting[d.path] = true
		nested, err := m.loadDependencies(ctx, d.loaded, visiting)
		delete(visiting, d.path)
		if err != nil {
			return spliced, err
		}
		spliced = append(spliced, nested...)
	}
	return spliced, nil
}

func (m *assetManager) importDependency(ctx context.Context, d *dependency) (game_object.GameObject, error) {
	results, err := m.importer.ImportPath(ctx, d.path, d.opts)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if model, ok := r.(*asset.Model); ok && model.Root != nil {
			return model.Root, nil
		}
	}
	m.logger.Error("object dependency produced no model", zap.String("path", d.path), zap.Int("results", len(results)))
	return nil, nil
}

// collectDependencies returns the placeholders under root in depth-first order. The subtree of a
// placeholder is not searched.
func collectDependencies(root game_object.GameObject) []*dependency {
	var deps []*dependency
	root.Traverse(func(o game_object.GameObject) bool {
		if o == root {
			return true
		}
		ud := o.UserData()
		refresh, _ := ud[RootPathRefreshKey].(bool)
		path, _ := ud["rootPath"].(string)
		if !refresh || path == "" {
			return true
		}
		deps = append(deps, &dependency{
			placeholder: o,
			path:        path,
			opts:        dependencyOptions(ud["rootPathOptions"]),
		})
		return false
	})
	return deps
}

// dependencyOptions reads the import options a placeholder was saved with. Options loaded back from a
// file arrive as a plain JSON object.
func dependencyOptions(v any) *asset.ImportOptions {
	switch o := v.(type) {
	case *asset.ImportOptions:
		return o.Clone()
	case map[string]any:
		data, err := json.Marshal(o)
		if err != nil {
			break
		}
		opts := &asset.ImportOptions{}
		if json.Unmarshal(data, opts) == nil {
			return opts
		}
	}
	return &asset.ImportOptions{}
}

// splice puts loaded where placeholder is, taking over its transform, name and user data.
func splice(placeholder, loaded game_object.GameObject) bool {
	parent := placeholder.Parent()
	if parent == nil {
		return false
	}
	idx := parent.IndexOf(placeholder)
	if idx < 0 {
		return false
	}

	loaded.SetMatrix(placeholder.Matrix())
	if name := placeholder.Name(); name != "" {
		loaded.SetName(name)
	}
	ud := loaded.UserData()
	delete(ud, scene.SceneModelRootKey)
	for k, v := range placeholder.UserData() {
		ud[k] = v
	}
	delete(ud, RootPathRefreshKey)
	if loaded.Type() == game_object.TypeScene {
		loaded.SetType(game_object.TypeGroup)
	}

	placeholder.RemoveFromParent()
	parent.Insert(idx, loaded)
	return true
}
