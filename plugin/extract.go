package plugin

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"styles/host"
	"styles/loaders"
	"styles/minify"
	"styles/sourcemap"
	"styles/utils/paths"
)

// extractedStore keeps extracted stylesheets of a build keyed by module id.
type extractedStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]loaders.Extracted
}

func newExtractedStore() *extractedStore {
	return &extractedStore{entries: make(map[string]loaders.Extracted)}
}

func (s *extractedStore) set(e loaders.Extracted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = e
}

func (s *extractedStore) get(id string) (loaders.Extracted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *extractedStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// collect returns entries for ids in order of their first appearance.
func (s *extractedStore) collect(ids []string) []loaders.Extracted {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		out  []loaders.Extracted
		seen = make(map[string]bool)
	)
	for _, id := range ids {
		id = paths.Normalize(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

type group struct {
	name string
	ids  []string
}

// groups decides which stylesheets go into which output file.
func (p *Plugin) groups(out host.OutputOptions, chunks []*host.Chunk) ([]group, error) {
	if len(p.opts.Extract) > 0 {
		var ids []string
		for _, c := range chunks {
			if c.IsEntry {
				ids = append(ids, c.Modules...)
			}
		}
		for _, c := range chunks {
			if !c.IsEntry {
				ids = append(ids, c.Modules...)
			}
		}
		return []group{{name: p.opts.Extract, ids: ids}}, nil
	}

	var (
		res   []group
		names = make(map[string]bool)
	)
	for _, c := range chunks {
		if !c.IsEntry {
			continue
		}
		base := c.Name
		if len(out.File) > 0 {
			base = paths.StripExt(filepath.Base(out.File))
		}
		name, err := checkOutputName(path.Join(p.opts.Dir, base+".css"))
		if err != nil {
			return nil, err
		}
		if names[name] {
			for i := range res {
				if res[i].name == name {
					res[i].ids = append(res[i].ids, c.Modules...)
				}
			}
			continue
		}
		names[name] = true
		res = append(res, group{name: name, ids: slices.Clone(c.Modules)})
	}
	return res, nil
}

// GenerateBundle concatenates extracted stylesheets and emits them together
// with their source maps. It does nothing when nothing was extracted or
// output location is unknown.
func (p *Plugin) GenerateBundle(ctx context.Context, hc host.Context, out host.OutputOptions, chunks []*host.Chunk) error {
	dir := out.OutputDir()
	if p.extracted.size() == 0 || len(dir) == 0 {
		return nil
	}
	dir = paths.Resolve(dir)

	groups, err := p.groups(out, chunks)
	if err != nil {
		return err
	}

	var errs error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		entries := p.extracted.collect(g.ids)
		if len(entries) == 0 {
			continue
		}
		if err := p.emit(hc, dir, g.name, entries); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", g.name, err))
		}
	}
	return errs
}

func (p *Plugin) emit(hc host.Context, dir, name string, entries []loaders.Extracted) error {
	parts := make([]sourcemap.Chunk, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, sourcemap.Chunk{Code: e.CSS, Map: sourcemap.Parse(e.Map)})
	}
	code, m := sourcemap.Concat(path.Base(name), parts)
	if p.opts.SourceMap == nil {
		m = nil
	}

	if p.opts.OnExtract != nil {
		ex := Extract{Name: name, CSS: code}
		if m != nil {
			ex.Map = m.String()
		}
		if !p.opts.OnExtract(ex) {
			p.log.Debug("Extraction vetoed", zap.String("name", name))
			return nil
		}
	}

	if p.opts.Minimize {
		res, err := minify.CSS(minify.Input{Code: code, File: path.Base(name), Map: m, SourceMap: m != nil}, p.opts.Minify)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			hc.Warn(host.Warning{Plugin: "minify", Text: w, File: name})
		}
		code, m = res.Code, res.Map
	}

	if m != nil {
		code += p.mapComment(hc, dir, name, m)
	}
	hc.EmitFile(host.File{FileName: name, Source: []byte(code)})

	p.log.Debug("Extracted",
		zap.String("name", name),
		zap.Int("files", len(entries)),
		zap.Int("size", len(code)))
	return nil
}

// mapComment finalizes map of extracted stylesheet and returns reference to
// it, file maps are emitted next to the stylesheet.
func (p *Plugin) mapComment(hc host.Context, dir, name string, m *sourcemap.Map) string {
	sm := p.opts.SourceMap
	full := path.Join(dir, name)

	mm := sourcemap.FromMap(m).Modify(func(m *sourcemap.Map) {
		m.File = path.Base(name)
		if !sm.Content {
			m.SourcesContent = nil
		}
	})
	if sm.Transform != nil {
		mm.Modify(func(m *sourcemap.Map) { sm.Transform(m, full) })
	}
	mm.Relative(path.Dir(full))

	if sm.Inline {
		return mm.ToCommentData()
	}
	hc.EmitFile(host.File{FileName: name + ".map", Source: []byte(mm.String())})
	return mm.ToCommentFile(path.Base(name) + ".map")
}

// Extracted returns stylesheets collected so far in order of transformation.
func (p *Plugin) Extracted() []loaders.Extracted {
	p.extracted.mu.Lock()
	ids := slices.Clone(p.extracted.order)
	p.extracted.mu.Unlock()
	return p.extracted.collect(ids)
}
