package manager

import (
	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/reconcile"
)

// updateStage merges runner, writer and reader settings from newer into cur.
// Every part is checked before any is merged, so a rejected update leaves the
// stage as it was. When the writer settings change its inputs are stale: the
// writer is invalidated and rewrites them on the next Advance. A writer that
// cannot be invalidated refuses writer changes.
func updateStage(cur, newer *stageState, o *options) (bool, error) {
	parts := []struct {
		name       string
		cur, newer any
	}{
		{"runner", cur.Runner, newer.Runner},
		{"writer", cur.Writer, newer.Writer},
		{"reader", cur.Reader, newer.Reader},
	}

	for _, p := range parts {
		d, err := checkSettings(p.cur, p.newer)
		if err != nil {
			o.logger.Error("%s %s option update rejected: %v", o.name, p.name, err)
			return false, err
		}
		if p.name != "writer" || d.Same() {
			continue
		}
		if _, ok := cur.Writer.(autogen.Invalidator); !ok {
			return false, autogen.NewError(autogen.ErrInvalidConfig, "writer settings changed but the writer cannot be invalidated", nil, map[string]any{
				"manager": o.name,
				"keys":    d.Keys(),
			})
		}
	}

	changed := false
	for _, p := range parts {
		partChanged, err := mergeSettings(p.cur, p.newer, o)
		if err != nil {
			return changed, err
		}
		if partChanged && p.name == "writer" {
			cur.Writer.(autogen.Invalidator).Invalidate()
			o.logger.Info("%s writer settings changed, inputs will be regenerated", o.name)
		}
		changed = changed || partChanged
	}
	return changed, nil
}

func configuredPair(cur, newer any) (autogen.Configured, autogen.Configured, bool) {
	oldCfg, ok := cur.(autogen.Configured)
	if !ok {
		return nil, nil, false
	}
	newCfg, ok := newer.(autogen.Configured)
	if !ok {
		return nil, nil, false
	}
	return oldCfg, newCfg, true
}

func checkSettings(cur, newer any) (reconcile.Diff, error) {
	oldCfg, newCfg, ok := configuredPair(cur, newer)
	if !ok {
		return reconcile.Diff{}, nil
	}
	return reconcile.Check(oldCfg.Settings(), newCfg.Settings())
}

func mergeSettings(cur, newer any, o *options) (bool, error) {
	oldCfg, newCfg, ok := configuredPair(cur, newer)
	if !ok {
		return false, nil
	}
	return reconcile.Merge(oldCfg.Settings(), newCfg.Settings(), reconcile.WithLogger(o.logger))
}

func consistentStage(cur, newer *stageState) (bool, error) {
	return consistentSettings(cur.Writer, newer.Writer)
}

func consistentSettings(cur, newer any) (bool, error) {
	oldCfg, newCfg, ok := configuredPair(cur, newer)
	if !ok {
		return true, nil
	}
	same, _, err := reconcile.Compare(oldCfg.Settings(), newCfg.Settings())
	return same, err
}
