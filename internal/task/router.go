package task

import (
	"fmt"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

// Router maps a source type to its cleaning task. The source type set is a
// closed enum; adding a variant means extending the enum and this switch.
type Router struct {
	deps Deps
}

// NewRouter constructs a Router.
func NewRouter(deps Deps) *Router {
	return &Router{deps: deps}
}

// TaskFor returns the task for a source type. An unrecognized tag is a
// configuration error, not a transient condition: it fails fast.
func (r *Router) TaskFor(st clean.SourceType) (Task, error) {
	switch st {
	case clean.SourceKeywordSearch:
		return &SearchTask{deps: r.deps}, nil
	case clean.SourceComments:
		return &CommentsTask{deps: r.deps}, nil
	case clean.SourceNoteDetail:
		return &DetailTask{deps: r.deps}, nil
	case clean.SourceCreatorProfile:
		return &ProfileTask{deps: r.deps}, nil
	default:
		return nil, fmt.Errorf("%w: %q", clean.ErrUnsupportedSource, st)
	}
}
