package directory

import (
	"fmt"
	"net/url"
	"path"

	"github.com/edgegate/routesyncd/internal/models"
)

/*
route-registry/routes/<address(escaped)>             -> route document (JSON)
route-registry/services/<address(escaped)>/<instance> -> lease-bound announcement
*/

const (
	registryFolder = "/route-registry"
	routesFolder   = registryFolder + "/routes"
	servicesFolder = registryFolder + "/services"
)

// Addresses contain slashes, so key segments carry them path-escaped to keep
// the key -> address mapping reversible.

// /route-registry/routes/<address>
func routeKey(addr models.Address) string {
	return path.Join(routesFolder, url.PathEscape(string(addr)))
}

func addressFromRouteKey(key string) (models.Address, error) {
	if len(key) <= len(routesFolder)+1 {
		return "", fmt.Errorf("key %q outside the routes folder", key)
	}
	escaped := key[len(routesFolder)+1:]
	addr, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("failed to unescape route key %q: %w", key, err)
	}
	return models.Address(addr), nil
}

// /route-registry/services/<address>/<instance>
func serviceKey(addr models.Address, instanceID string) string {
	return path.Join(servicesFolder, url.PathEscape(string(addr)), instanceID)
}
