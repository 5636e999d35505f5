package watcher

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of a filesystem mutation.
type Op uint8

// Mutation kinds. Rename carries both paths; the others carry one.
const (
	Create Op = iota + 1
	Delete
	Modify
	Attrib
	MoveFrom
	MoveTo
	Rename
)

var opNames = map[Op]string{
	Create:   "create",
	Delete:   "delete",
	Modify:   "modify",
	Attrib:   "attrib",
	MoveFrom: "move-from",
	MoveTo:   "move-to",
	Rename:   "rename",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", o)
}

// Event is a single mutation notification.
type Event struct {
	Op   Op
	Path string

	// OldPath is the source path of a Rename.
	OldPath string

	// Synthetic marks creates generated for the existing contents of a
	// newly watched directory.
	Synthetic bool
}

func (e Event) String() string {
	if e.Op == Rename {
		return fmt.Sprintf("%s %s -> %s", e.Op, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Path)
}

// translate maps an fsnotify event to a mutation kind. fsnotify reports
// the source half of a move as Rename; the destination arrives as Create.
func translate(ev fsnotify.Event) (Op, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return Create, true
	case ev.Has(fsnotify.Remove):
		return Delete, true
	case ev.Has(fsnotify.Rename):
		return MoveFrom, true
	case ev.Has(fsnotify.Write):
		return Modify, true
	case ev.Has(fsnotify.Chmod):
		return Attrib, true
	default:
		return 0, false
	}
}
