package consolidate

import (
	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
)

// maybePrune implements the Deep-phase rule: drop any container with
// count 0 and re-pack its parent's child list to eliminate the hole.
// Ids are never renumbered. The active session/document is never pruned
// even if momentarily empty, so the insertion cursor always stays valid.
func (e *Engine) maybePrune(tree *container.Tree, c *container.Container, report *Report) {
	if c.Level == hat.GlobalLevel || c.Count != 0 {
		return
	}
	if c.ID == tree.ActiveSessionID || c.ID == tree.ActiveDocumentID {
		return
	}

	parent := tree.MustGet(c.ParentID)
	out := parent.Children[:0:0]
	for _, id := range parent.Children {
		if id != c.ID {
			out = append(out, id)
		}
	}
	parent.Children = out
	tree.Delete(c.ID)
	report.Dropped++
}
