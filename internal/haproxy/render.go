package haproxy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/edgegate/routesyncd/internal/models"
)

// serverMaxConn caps per-server concurrency in generated backends.
const serverMaxConn = 256

// preamble is the static proxy-wide block; route predicates are appended
// inside the frontend section.
const preamble = `global
    daemon
    maxconn 4096

defaults
    mode http
    timeout connect 5s
    timeout client 50s
    timeout server 50s

frontend main
    bind *:8080`

// Render produces the proxy configuration body for the given table
// snapshot. It is a pure function of its input: addresses and targets are
// sorted internally, so two calls with the same contents are byte-identical
// regardless of arrival order.
func Render(routes []models.ServiceRoute) string {
	sorted := make([]models.ServiceRoute, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	var (
		comments   []string
		predicates []string
		backends   []string
	)
	for _, route := range sorted {
		targets := make([]string, len(route.Targets))
		copy(targets, route.Targets)
		sort.Strings(targets)

		comments = append(comments, fmt.Sprintf(
			"# %s: servers [%s] policy %s",
			route.Address, strings.Join(targets, ", "), route.Policy,
		))

		name := route.Address.BackendName()
		predicates = append(predicates,
			fmt.Sprintf("    acl is_%s path_beg %s", name, route.Address.Path()),
			fmt.Sprintf("    use_backend %s if is_%s", name, name),
		)

		// An address with no surviving targets still gets its backend so the
		// proxy's route table stays structurally consistent across reloads.
		backend := []string{fmt.Sprintf("backend %s", name)}
		for _, target := range targets {
			backend = append(backend, serverLine(target))
		}
		backends = append(backends, strings.Join(backend, "\n"))
	}

	sections := make([]string, 0, 3+len(backends))
	sections = append(sections, strings.Join(comments, "\n"))
	sections = append(sections, preamble+"\n"+strings.Join(predicates, "\n"))
	sections = append(sections, backends...)
	return strings.Join(sections, "\n\n") + "\n"
}

func serverLine(target string) string {
	hostPort := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		hostPort = u.Host
	}
	name := strings.NewReplacer(":", "_", ".", "_").Replace(hostPort)
	return fmt.Sprintf("    server %s %s maxconn %d", name, hostPort, serverMaxConn)
}
