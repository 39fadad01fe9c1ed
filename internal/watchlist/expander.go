package watchlist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jamesruggles/footprint/internal/database"
)

// candidateLimit bounds how many entities one expansion pass evaluates.
const candidateLimit = 1000

// Expander grows watchlists by matching known entities against each list's
// rules.
type Expander struct {
	db *database.DB
}

func NewExpander(db *database.DB) *Expander {
	return &Expander{db: db}
}

// Expand evaluates every candidate entity against the watchlist's rules and
// adds the matches as members. Existing members are skipped, so running the
// same expansion twice adds nothing the second time. Inactive watchlists
// expand to zero additions. Returns the number of members actually added.
func (x *Expander) Expand(ctx context.Context, watchlistID string) (int64, error) {
	wl, err := x.db.GetWatchlist(ctx, watchlistID)
	if err != nil {
		return 0, err
	}
	if wl == nil {
		return 0, fmt.Errorf("watchlist %s not found", watchlistID)
	}
	if !wl.IsActive || len(wl.Rules) == 0 {
		return 0, nil
	}

	entities, err := x.db.ListEntityNodes(ctx, candidateLimit)
	if err != nil {
		return 0, err
	}
	existing, err := x.db.ListMemberIDs(ctx, wl.ID)
	if err != nil {
		return 0, err
	}

	var matched []string
	for i := range entities {
		if existing[entities[i].ID] {
			continue
		}
		if matchesAny(&entities[i], wl.Rules) {
			matched = append(matched, entities[i].ID)
		}
	}

	added, err := x.db.AddMembers(ctx, wl.ID, matched)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		slog.Info("watchlist expanded", "watchlist_id", wl.ID, "name", wl.Name, "added", added)
	}
	return added, nil
}

// ExpandAll runs Expand over every active watchlist. A failure on one list
// is logged and skipped; the rest still expand.
func (x *Expander) ExpandAll(ctx context.Context) (int64, error) {
	lists, err := x.db.ListWatchlists(ctx, true)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, wl := range lists {
		added, err := x.Expand(ctx, wl.ID)
		if err != nil {
			slog.Error("watchlist expansion failed", "watchlist_id", wl.ID, "error", err)
			continue
		}
		total += added
	}
	return total, nil
}
