package synchronizer

import (
	"sort"
	"strings"

	"github.com/edgegate/routesyncd/internal/models"
)

// RouteTable maps addresses to their last announced routes. Entries are
// replaced wholesale on every update (last write wins, no merge) and are
// never dropped unless eviction is explicitly enabled.
type RouteTable struct {
	entries map[models.Address]models.RouteEntry
}

func NewRouteTable() *RouteTable {
	return &RouteTable{
		entries: make(map[models.Address]models.RouteEntry),
	}
}

// Apply filters the update's routes down to HTTP-family targets with a host
// present and replaces the entry for the address.
func (t *RouteTable) Apply(update models.RouteUpdate) {
	targets := make([]string, 0, len(update.Routes))
	for _, route := range update.Routes {
		if route.Host == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(route.Kind), "http") {
			continue
		}
		targets = append(targets, route.TargetURL())
	}
	t.entries[update.Address] = models.RouteEntry{
		Targets: targets,
		Policy:  update.Policy,
	}
}

// Evict removes an address from the table. Reports whether it was present.
func (t *RouteTable) Evict(addr models.Address) bool {
	_, exists := t.entries[addr]
	delete(t.entries, addr)
	return exists
}

func (t *RouteTable) Len() int {
	return len(t.entries)
}

// Snapshot returns the table contents ordered by address for rendering.
func (t *RouteTable) Snapshot() []models.ServiceRoute {
	routes := make([]models.ServiceRoute, 0, len(t.entries))
	for addr, entry := range t.entries {
		targets := make([]string, len(entry.Targets))
		copy(targets, entry.Targets)
		routes = append(routes, models.ServiceRoute{
			Address: addr,
			Targets: targets,
			Policy:  entry.Policy,
		})
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Address < routes[j].Address
	})
	return routes
}
