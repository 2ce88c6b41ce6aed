package postcss

import (
	"context"
	"strings"

	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"styles/css"
)

func init() {
	Register("noop", func(*yaml.Node, *zap.Logger) (Plugin, error) {
		return Noop(), nil
	})
	Register("discard-comments", func(node *yaml.Node, _ *zap.Logger) (Plugin, error) {
		var opts DiscardCommentsOptions
		if node != nil {
			if err := node.Decode(&opts); err != nil {
				return nil, err
			}
		}
		return DiscardComments(opts), nil
	})
}

// Noop does nothing, it keeps processing pipeline from being empty.
func Noop() Plugin {
	return NewPlugin("styles-noop", func(context.Context, *css.Node, *Result) error {
		return nil
	})
}

// DiscardCommentsOptions controls DiscardComments plugin.
type DiscardCommentsOptions struct {
	// RemoveAll drops "/*! ... */" comments too.
	RemoveAll bool `yaml:"removeAll"`
}

// DiscardComments removes comments from the tree. Important comments
// ("/*! ... */") are kept unless RemoveAll is set.
func DiscardComments(opts DiscardCommentsOptions) Plugin {
	return NewPlugin("discard-comments", func(_ context.Context, root *css.Node, _ *Result) error {
		return root.Walk(func(n *css.Node) error {
			if n.Kind == css.KindComment && (opts.RemoveAll || !strings.HasPrefix(n.Value, "!")) {
				n.Remove()
			}
			return nil
		})
	})
}
