// Package build implements command line stylesheet builds: every source is
// turned into a module (or plain stylesheet) and written into output
// directory together with emitted assets.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"styles/config"
	"styles/css"
	"styles/host"
	"styles/loaders"
	lp "styles/loaders/postcss"
	"styles/plugin"
	rt "styles/runtime"
	"styles/sourcemap"
	"styles/state"
	"styles/utils/paths"
)

// DefaultEntry is entry chunk name used when none is requested.
const DefaultEntry = "main"

// Target describes single build.
type Target struct {
	Sources []string
	// Out is output directory.
	Out string
	// Entry names generated entry module and extracted stylesheet.
	Entry     string
	Overwrite bool
	// Charset forces source decoding when not nil.
	Charset encoding.Encoding
}

// Run is build subcommand action.
func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	if cmd.NArg() == 0 {
		return errors.New("no input source has been specified")
	}

	out, err := filepath.Abs(cmd.String("out"))
	if err != nil {
		return err
	}

	// flags override configuration for this build only
	bc := env.Cfg.Build
	if err := applyFlags(cmd, &bc); err != nil {
		return err
	}

	env.Overwrite = cmd.Bool("overwrite")
	if cs := cmd.String("charset"); len(cs) > 0 {
		if env.Charset, err = ParseCharset(cs); err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cs), zap.Error(err))
			env.Charset = nil
		}
	}

	opts, err := bc.PluginOptions(env.Log)
	if err != nil {
		return fmt.Errorf("unable to prepare plugin options: %w", err)
	}

	if env.Rpt != nil {
		for i, src := range cmd.Args().Slice() {
			if err := env.Rpt.StoreCopy(fmt.Sprintf("sources/%d-%s", i, config.CleanFileName(filepath.Base(src))), src); err != nil {
				log.Debug("Unable to store source in report", zap.String("source", src), zap.Error(err))
			}
		}
	}

	log.Info("Processing starting", zap.Strings("sources", cmd.Args().Slice()), zap.String("destination", out), zap.Stringer("mode", bc.Mode))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return Process(ctx, opts, Target{
		Sources:   cmd.Args().Slice(),
		Out:       out,
		Entry:     cmd.String("entry"),
		Overwrite: env.Overwrite,
		Charset:   env.Charset,
	}, env.Rpt, log)
}

func applyFlags(cmd *cli.Command, bc *config.BuildConfig) error {
	if cmd.IsSet("mode") {
		mode, err := config.ParseMode(cmd.String("mode"))
		if err != nil {
			return err
		}
		bc.Mode = mode
	}
	if cmd.IsSet("extract") {
		bc.Mode, bc.Extract = config.ModeExtract, cmd.String("extract")
	}
	if cmd.IsSet("sourcemap") {
		mode, err := config.ParseSourceMapMode(cmd.String("sourcemap"))
		if err != nil {
			return err
		}
		bc.SourceMap.Mode = mode
	}
	if cmd.IsSet("minimize") {
		bc.Minimize = cmd.Bool("minimize")
	}
	if cmd.IsSet("modules") {
		bc.Modules.Enable = cmd.Bool("modules")
	}
	return nil
}

// Process runs plugin over all stylesheets of target and writes results.
// Stylesheets failing to process are reported and skipped, error is returned
// after everything else is written.
func Process(ctx context.Context, opts plugin.Options, t Target, rpt *config.Report, log *zap.Logger) error {
	if len(t.Entry) == 0 {
		t.Entry = DefaultEntry
	}

	pl, err := plugin.New(opts)
	if err != nil {
		return err
	}
	defer pl.Close()

	sources, skipped, err := collectSources(ctx, t.Sources, pl.Supported)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		log.Warn("Not a supported stylesheet, skipping", zap.String("file", paths.Humanize(s)))
	}
	if len(sources) == 0 {
		return errors.New("no stylesheets found")
	}

	h := host.NewLocal(host.OutputOptions{Dir: t.Out, SourceMap: opts.SourceMap != nil}, log)
	results, failed := transformAll(ctx, pl, h, sources, t.Charset, workers(opts.Workers), rpt, log)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := emitResults(ctx, pl, h, opts, t, sources, results); err != nil {
		return err
	}
	for _, name := range h.Files() {
		if data, ok := h.Source(name); ok {
			rpt.StoreData(path.Join("output", name), data)
		}
	}
	if err := checkDestination(t.Out, h.Files(), t.Overwrite); err != nil {
		return err
	}
	if err := h.Write(); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}

	log.Info("Stylesheets processed",
		zap.Int("count", len(sources)-failed),
		zap.Int("files", len(h.Files())),
		zap.Int("warnings", len(h.Warnings())))
	if failed > 0 {
		return fmt.Errorf("unable to process %d of %d stylesheets", failed, len(sources))
	}
	return nil
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	return loaders.DefaultWorkers()
}

// transformAll processes sources concurrently, results are in sources order
// with nil for failed ones.
func transformAll(ctx context.Context, pl *plugin.Plugin, h host.Context, sources []source, cs encoding.Encoding, limit int, rpt *config.Report, log *zap.Logger) ([]*host.TransformResult, int) {
	var (
		mu      sync.Mutex
		failed  int
		results = make([]*host.TransformResult, len(sources))
	)
	fail := func(s source, err error) {
		log.Error("Unable to process stylesheet", zap.String("file", paths.Humanize(s.path)), zap.Error(err))
		mu.Lock()
		failed++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, s := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(s.path)
			if err != nil {
				fail(s, err)
				return nil
			}
			code, err := decodeSource(data, cs)
			if err != nil {
				fail(s, err)
				return nil
			}
			if rpt != nil {
				storeTree(rpt, s, code, log)
			}
			res, err := pl.Transform(gctx, h, code, filepath.ToSlash(s.path))
			if err != nil {
				fail(s, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	// only cancellation is returned from workers
	_ = g.Wait()
	return results, failed
}

// storeTree puts parsed tree of plain CSS source into debug report.
func storeTree(rpt *config.Report, s source, code string, log *zap.Logger) {
	switch path.Ext(s.rel) {
	case ".css", ".pcss", ".postcss":
	default:
		return
	}
	root, errs := css.NewParser(log).Parse(&css.Input{ID: filepath.ToSlash(s.path), CSS: code})
	for _, e := range errs {
		log.Debug("Syntax error in source", zap.String("file", s.rel), zap.String("error", e.Message))
	}
	rpt.StoreData(path.Join("ast", s.rel+".txt"), []byte(css.Dump(root)))
}

// emitResults queues generated modules (or stylesheets in emit mode) and
// entry module, then lets plugin produce extracted stylesheets.
func emitResults(ctx context.Context, pl *plugin.Plugin, h *host.Local, opts plugin.Options, t Target, sources []source, results []*host.TransformResult) error {
	var (
		modules    []string
		ids        []string
		useRuntime bool
	)
	for i, s := range sources {
		res := results[i]
		if res == nil {
			continue
		}
		ids = append(ids, filepath.ToSlash(s.path))

		if opts.Mode == lp.ModeEmit {
			emitStylesheet(h, t.Out, s, res, opts.SourceMap)
			continue
		}

		name := s.rel + ".js"
		code := res.Code
		if id, ok := pl.ResolveID(rt.ID); ok && strings.Contains(code, strconv.Quote(id)) {
			useRuntime = true
			code = strings.ReplaceAll(code, strconv.Quote(id), strconv.Quote(importPath(name, rt.FileName)))
		}
		h.EmitFile(host.File{FileName: name, Source: []byte(code)})
		modules = append(modules, name)
	}

	if useRuntime {
		src, _ := pl.Load(rt.ID)
		h.EmitFile(host.File{FileName: rt.FileName, Source: []byte(src)})
	}

	if opts.Mode == lp.ModeEmit {
		return nil
	}

	entry := &host.Chunk{Name: t.Entry, FileName: t.Entry + ".js", IsEntry: true, Modules: ids}
	var b strings.Builder
	for _, m := range modules {
		fmt.Fprintf(&b, "import %s;\n", strconv.Quote(importPath(entry.FileName, m)))
	}
	h.EmitFile(host.File{FileName: entry.FileName, Source: []byte(b.String())})

	return pl.GenerateBundle(ctx, h, h.Output(), []*host.Chunk{entry})
}

// emitStylesheet writes plain stylesheet with its source map.
func emitStylesheet(h *host.Local, out string, s source, res *host.TransformResult, sm *loaders.SourceMapOptions) {
	name := strings.TrimSuffix(s.rel, path.Ext(s.rel)) + ".css"
	code := res.Code
	if len(res.Map) > 0 && sm != nil {
		base := path.Base(name)
		mm := sourcemap.NewModifier(res.Map).
			Modify(func(m *sourcemap.Map) { m.File = base }).
			Relative(paths.Normalize(filepath.Dir(filepath.Join(out, filepath.FromSlash(name)))))
		if sm.Inline {
			code += mm.ToCommentData()
		} else {
			h.EmitFile(host.File{FileName: name + ".map", Source: []byte(mm.String())})
			code += mm.ToCommentFile(base + ".map")
		}
	}
	h.EmitFile(host.File{FileName: name, Source: []byte(code)})
}

// importPath returns relative module specifier of "to" as seen from "from",
// both relative to output directory.
func importPath(from, to string) string {
	rel := paths.Relative(path.Dir(from), to)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func checkDestination(out string, files []string, overwrite bool) (err error) {
	if overwrite {
		return nil
	}
	for _, name := range files {
		dst := filepath.Join(out, filepath.FromSlash(name))
		if _, er := os.Stat(dst); er == nil {
			err = multierr.Append(err, fmt.Errorf("destination file already exists (%s)", paths.Humanize(dst)))
		}
	}
	if err != nil {
		err = fmt.Errorf("use --overwrite to replace existing files: %w", err)
	}
	return err
}
