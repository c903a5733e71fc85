/*
resolver.go - Legacy record to project resolution

PURPOSE:
  Maps a legacy record's project reference onto a known project id.
  Identifier-first: a candidate id that exists in the known set wins
  outright. Name-fallback: otherwise an exact display-name match is
  used; when several projects share a name, the lowest id wins so
  resolution is deterministic run over run.

DESIGN:
  The resolver is a pure lookup over a snapshot of (id, name) pairs
  taken once at the start of a consolidation run. It never queries the
  store mid-run, so resolution stays consistent even while the run
  itself creates projects - anything the snapshot doesn't know is
  UNRESOLVED, by construction.

SEE ALSO:
  - engine.go: takes the snapshot and drives resolution per kind
*/
package consolidate

import (
	"strconv"
	"strings"

	"github.com/quartertone/studio-engine/studio"
)

// Resolver resolves legacy project references against a fixed snapshot
// of known projects.
type Resolver struct {
	ids    map[int64]struct{}
	byName map[string]int64 // exact name -> lowest project id
}

// NewResolver builds a resolver over the given project snapshot.
func NewResolver(refs []studio.ProjectRef) *Resolver {
	r := &Resolver{
		ids:    make(map[int64]struct{}, len(refs)),
		byName: make(map[string]int64, len(refs)),
	}
	for _, ref := range refs {
		r.ids[ref.ID] = struct{}{}
		if existing, ok := r.byName[ref.Name]; !ok || ref.ID < existing {
			r.byName[ref.Name] = ref.ID
		}
	}
	return r
}

// Resolve maps rec's project reference to a known project id.
//
// The candidate id is read from the usual aliases; a "project" field
// holding a number is also treated as an id, holding text as a name.
// Returns *studio.UnresolvedError when neither the id nor the name
// matches the snapshot.
func (r *Resolver) Resolve(rec Record) (int64, error) {
	candidate := rec.Int("projectId", "project_id")
	name := rec.Str("projectName", "project_name")

	if v, ok := rec["project"]; ok {
		switch pv := v.(type) {
		case float64:
			if candidate == 0 {
				candidate = int64(pv)
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(pv), 10, 64); err == nil {
				if candidate == 0 {
					candidate = n
				}
			} else if name == "" {
				name = pv
			}
		}
	}

	if candidate != 0 {
		if _, ok := r.ids[candidate]; ok {
			return candidate, nil
		}
	}

	if name != "" {
		if id, ok := r.byName[name]; ok {
			return id, nil
		}
	}

	return 0, &studio.UnresolvedError{Name: name, LegacyID: candidate}
}

// ResolveKey resolves a batch key (cue sheets arrive keyed by project).
// A numeric key is treated as an id first; any key also gets a
// name-fallback attempt.
func (r *Resolver) ResolveKey(key string) (int64, error) {
	key = strings.TrimSpace(key)

	var candidate int64
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		candidate = n
		if _, ok := r.ids[n]; ok {
			return n, nil
		}
	}

	if id, ok := r.byName[key]; ok {
		return id, nil
	}

	return 0, &studio.UnresolvedError{Name: key, LegacyID: candidate}
}

// Known reports whether a project id exists in the snapshot.
func (r *Resolver) Known(id int64) bool {
	_, ok := r.ids[id]
	return ok
}

// KnownName reports whether a project with this exact name exists.
func (r *Resolver) KnownName(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// add extends the snapshot with a newly created project. Used only by
// the project phase, which runs before dependent-record resolution.
func (r *Resolver) add(ref studio.ProjectRef) {
	r.ids[ref.ID] = struct{}{}
	if existing, ok := r.byName[ref.Name]; !ok || ref.ID < existing {
		r.byName[ref.Name] = ref.ID
	}
}
