package normalize

import "github.com/sinofeed/weibo-cleaner/internal/clean"

// commentFrame is one pending node of the iterative reply-tree walk.
type commentFrame struct {
	node       map[string]any
	parentID   string
	parentPath string
	rootID     string
	rootMID    string
}

// Comments flattens a nested reply tree into a flat slice, depth-first and
// pre-order (a node before its replies). Each node carries its dot-joined
// ancestry path, the topmost ancestor as root, and the immediate parent as
// reply id (empty at the root). An entry without an author id is skipped,
// but its replies are still visited and emitted on their own merits.
//
// The walk uses an explicit stack so pathological trees cannot exhaust the
// goroutine stack.
func Comments(items []any, postPlatformID string) []clean.Comment {
	var out []clean.Comment
	stack := framesOf(items, commentFrame{})

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := f.node
		id := str(node, "idstr", "id")
		if id == "" {
			// Without an id there is nothing to anchor replies to.
			continue
		}

		path := id
		if f.parentPath != "" {
			path = f.parentPath + "." + id
		}
		rootID, rootMID := f.rootID, f.rootMID
		if rootID == "" {
			rootID = id
			rootMID = str(node, "mid")
		}

		var authorID string
		if u := child(node, "user"); u != nil {
			authorID = str(u, "idstr", "id")
		}
		if authorID != "" {
			out = append(out, clean.Comment{
				PlatformCommentID: id,
				PostPlatformID:    postPlatformID,
				AuthorPlatformID:  authorID,
				RootPlatformID:    rootID,
				RootMID:           rootMID,
				ReplyCommentID:    f.parentID,
				Path:              path,
				FloorNumber:       i64(node, "floor_number"),
				Text:              str(node, "text_raw", "text"),
				LikeCount:         i64(node, "like_counts", "like_count"),
				PublishedAt:       parseTime(node, "created_at"),
				Raw:               node,
			})
		}

		stack = append(stack, framesOf(replies(node), commentFrame{
			parentID:   id,
			parentPath: path,
			rootID:     rootID,
			rootMID:    rootMID,
		})...)
	}
	return out
}

// CommentAuthors collects every valid author in the tree, including authors
// of nested replies whose ancestors were dropped.
func CommentAuthors(items []any) []clean.User {
	var out []clean.User
	stack := append([]any(nil), items...)
	for len(stack) > 0 {
		node := asMap(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		if node == nil {
			continue
		}
		if u := User(child(node, "user")); u != nil {
			out = append(out, *u)
		}
		stack = append(stack, replies(node)...)
	}
	return out
}

// CommentEntries extracts the comment nodes from a payload envelope. The
// root comment (either naming convention) comes first, then the primary
// list ("data" as a bare array or paged under data.data), then the hot
// list. Unrecognized envelopes yield an empty slice.
func CommentEntries(payload map[string]any) []any {
	if payload == nil {
		return nil
	}
	var entries []any
	if root := child(payload, "rootComment"); root != nil {
		entries = append(entries, any(root))
	} else if root := child(payload, "root_comment"); root != nil {
		entries = append(entries, any(root))
	}
	if arr := list(payload, "data"); arr != nil {
		entries = append(entries, arr...)
	} else if data := child(payload, "data"); data != nil {
		entries = append(entries, list(data, "data")...)
		entries = append(entries, list(data, "hot_data")...)
	}
	entries = append(entries, list(payload, "hot_data")...)
	return entries
}

// replies extracts the child list of a comment node: either a plain array
// or a paged container with a nested data list.
func replies(node map[string]any) []any {
	if arr := list(node, "comments"); arr != nil {
		return arr
	}
	if sub := child(node, "comments"); sub != nil {
		return list(sub, "data")
	}
	return nil
}

// framesOf pushes siblings in reverse so the stack pops them in order.
func framesOf(items []any, base commentFrame) []commentFrame {
	frames := make([]commentFrame, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		node := asMap(items[i])
		if node == nil {
			continue
		}
		f := base
		f.node = node
		frames = append(frames, f)
	}
	return frames
}
