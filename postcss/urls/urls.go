// Package urls resolves url() and image-set() references of declarations,
// inlining referenced files or copying them into the output with hashed
// names.
package urls

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/resolve"
	"styles/sourcemap"
	"styles/utils/naming"
	"styles/utils/paths"
)

// Name of the plugin as reported in messages.
const Name = "styles-url"

const (
	// DefaultHash is the asset name template used when hashing is enabled.
	DefaultHash = "[name]-[hash][extname]"
	// PlainName is the asset name template used when hashing is disabled.
	PlainName = "[name][extname]"
)

var declRe = regexp.MustCompile(`(?i)(?:url|image-set)\(`)

// ResolveFunc locates referenced file and returns its absolute path and
// content.
type ResolveFunc func(ctx context.Context, url, basedir string) (string, []byte, error)

// PublicPathFunc builds final reference from the original url and generated
// asset name.
type PublicPathFunc func(original, name string) string

// Options of the plugin.
type Options struct {
	// Inline replaces references with base64 data uris.
	Inline bool
	// CompactSVG inlines svg documents as compacted percent encoded markup.
	CompactSVG bool
	// PublicPath is prefix of rewritten references, "./" by default.
	PublicPath     string
	PublicPathFunc PublicPathFunc
	// AssetDir is prefix of emitted asset paths, "." by default.
	AssetDir string
	// Hash is the asset name template, DefaultHash when empty.
	Hash string
	// NoHash switches template to PlainName.
	NoHash  bool
	Alias   []paths.Alias
	Resolve ResolveFunc
	// Names registry shared by all files of a build, private when nil.
	Names *Names
	Cache *resolve.Cache
	Log   *zap.Logger
}

// Names keeps track of generated asset names and files they belong to.
type Names struct {
	mu   sync.Mutex
	used map[string]string
}

// NewNames creates empty registry.
func NewNames() *Names {
	return &Names{used: make(map[string]string)}
}

// Claim returns unique name for file. When name was already given to a
// different file numeric suffix is added before extension.
func (n *Names) Claim(name, file string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	name = naming.Unique(name, func(candidate string) bool {
		owner, ok := n.used[candidate]
		return ok && owner != file
	})
	n.used[name] = file
	return name
}

type plugin struct {
	opts Options
	log  *zap.Logger
}

// New creates url rewriting plugin.
func New(opts Options) postcss.Plugin {
	if len(opts.PublicPath) == 0 {
		opts.PublicPath = "./"
	}
	if len(opts.AssetDir) == 0 {
		opts.AssetDir = "."
	}
	if len(opts.Hash) == 0 {
		opts.Hash = DefaultHash
	}
	if opts.NoHash {
		opts.Hash = PlainName
	}
	if opts.Names == nil {
		opts.Names = NewNames()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &plugin{opts: opts, log: log.Named("url")}
	if p.opts.Resolve == nil {
		p.opts.Resolve = p.resolveDefault
	}
	return p
}

func (p *plugin) Name() string { return Name }

func (p *plugin) resolveDefault(ctx context.Context, url, basedir string) (string, []byte, error) {
	file, err := resolve.Resolve(ctx, []string{url, "./" + url}, resolve.Options{
		Caller:   "URL resolver",
		BaseDirs: []string{basedir},
		Cache:    p.opts.Cache,
		Log:      p.log,
	})
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", nil, err
	}
	return file, data, nil
}

func (p *plugin) Process(ctx context.Context, root *css.Node, res *postcss.Result) error {
	from := res.Opts.From
	dir := paths.Resolve(".")
	if len(from) > 0 {
		dir = path.Dir(paths.Resolve(from))
	}
	consumers := make(map[*css.Input]*sourcemap.Consumer)

	return root.WalkDecls("", func(decl *css.Node) error {
		if !declRe.MatchString(decl.Value) {
			return nil
		}
		tokens := css.Tokenize(decl.Value)
		refs := css.FindURLs(tokens)

		changed := false
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := strings.TrimSpace(ref.URL)
			u := paths.ApplyAlias(raw, p.opts.Alias)
			if len(u) == 0 || strings.HasPrefix(u, "#") || paths.IsDataURI(u) || paths.IsRemoteURL(u) {
				continue
			}
			target, query := paths.SplitQuery(u)

			var (
				file string
				data []byte
				err  error
			)
			for _, basedir := range p.basedirs(decl, from, dir, res, consumers) {
				if file, data, err = p.opts.Resolve(ctx, target, basedir); err == nil {
					break
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.Warn(Name, fmt.Sprintf("Unresolved URL `%s` in `%s`", raw, decl), decl)
				continue
			}
			file = paths.Resolve(file)
			res.AddDependency(Name, file)

			if !validContent(file, data) {
				res.Warn(Name, fmt.Sprintf("Content of `%s` does not match its extension", paths.Humanize(file)), decl)
			}

			var replacement string
			if p.opts.Inline {
				replacement = dataURI(file, data, p.opts.CompactSVG)
			} else {
				replacement = p.relocate(res, raw, file, data) + query
			}
			tokens[ref.Index].Data = css.FormatURL(ref, replacement)
			changed = true
		}
		if changed {
			decl.Value = css.Join(tokens)
		}
		return nil
	})
}

// basedirs lists directories to resolve references of decl from: directory
// of the imported file decl came from, directory of the original source
// according to the input map and directory of the processed file.
func (p *plugin) basedirs(decl *css.Node, from, dir string, res *postcss.Result, consumers map[*css.Input]*sourcemap.Consumer) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	if decl.Source != nil && decl.Source.Input != nil {
		in := decl.Source.Input
		if in.ID != from && res.HasDependency(in.ID) {
			add(path.Dir(in.ID))
		}
		if in.Map != nil {
			c, ok := consumers[in]
			if !ok {
				c = sourcemap.NewConsumer(in.Map)
				consumers[in] = c
			}
			if c != nil {
				pos, found := c.OriginalPositionFor(decl.Source.Start.Line, decl.Source.Start.Column-1)
				if found && pos.Source != sourcemap.NoSource {
					src := pos.Source
					if !paths.IsAbsolute(src) {
						src = path.Join(path.Dir(paths.Resolve(in.ID)), src)
					}
					add(path.Dir(src))
				}
			}
		}
	}
	add(dir)
	return out
}

func (p *plugin) relocate(res *postcss.Result, original, file string, data []byte) string {
	hash := naming.Hash([]byte(path.Base(file)), data)
	name := path.Clean(naming.Interpolate(p.opts.Hash, naming.Values{File: file, Hash: hash}))
	name = p.opts.Names.Claim(name, file)

	res.Messages = append(res.Messages, postcss.Message{
		Type:   postcss.MessageAsset,
		Plugin: Name,
		File:   file,
		Name:   path.Join(p.opts.AssetDir, name),
		Source: data,
	})

	if p.opts.PublicPathFunc != nil {
		return p.opts.PublicPathFunc(original, name)
	}
	base := path.Base(name)
	if strings.HasSuffix(p.opts.PublicPath, "/") {
		return p.opts.PublicPath + base
	}
	return p.opts.PublicPath + "/" + base
}

var mimeTypes = map[string]string{
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".svg":   "image/svg+xml",
	".css":   "text/css",
	".cur":   "image/x-icon",
}

// MIMEType infers content type of the file from its extension, falling back
// to content sniffing and finally to "application/octet-stream".
func MIMEType(file string, data []byte) string {
	ext := strings.ToLower(path.Ext(file))
	if m, ok := mimeTypes[ext]; ok {
		return m
	}
	if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t != filetype.Unknown && len(t.MIME.Value) > 0 {
		return t.MIME.Value
	}
	if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}
	return "application/octet-stream"
}

// dataURI encodes file content as base64. With compact set svg documents are
// stripped of markup noise and percent encoded instead.
func dataURI(file string, data []byte, compact bool) string {
	if compact && strings.EqualFold(path.Ext(file), ".svg") {
		if compact, err := compactSVG(data); err == nil {
			return svgDataURI(compact)
		}
	}
	return "data:" + MIMEType(file, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// validContent performs sanity check for binary font formats.
func validContent(file string, data []byte) bool {
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(file), ".")); ext {
	case "woff", "woff2", "ttf", "otf":
		return filetype.Is(data, ext)
	}
	return true
}
