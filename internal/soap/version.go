package soap

import (
	"fmt"
	"regexp"

	"golang.org/x/mod/semver"
)

// Minimum service versions the decoders understand. Endpoint URLs carry the
// version as /ws/<major>_<minor>/.
const (
	minProductsVersion    = "v1.1"
	minOrderStatusVersion = "v3.4"
	minPlaceOrderVersion  = "v1.1"
)

var endpointVersionPattern = regexp.MustCompile(`/ws/(\d+)_(\d+)/`)

// EndpointVersion extracts the service version from an endpoint URL as a
// semver string ("v1.1").
func EndpointVersion(url string) (string, error) {
	m := endpointVersionPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("endpoint %q has no /ws/<major>_<minor>/ version segment", url)
	}
	v := "v" + m[1] + "." + m[2]
	if !semver.IsValid(v) {
		return "", fmt.Errorf("endpoint %q has invalid version %s", url, v)
	}
	return v, nil
}

// checkVersion accepts url when it has the same major version as min and is
// not older. A different major changes the wire format.
func checkVersion(name, url, min string) error {
	v, err := EndpointVersion(url)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if semver.Major(v) != semver.Major(min) {
		return fmt.Errorf("%s: endpoint version %s is incompatible with %s", name, v, min)
	}
	if semver.Compare(v, min) < 0 {
		return fmt.Errorf("%s: endpoint version %s is older than %s", name, v, min)
	}
	return nil
}

func checkEndpoints(products, orderStatus, placeOrder string) error {
	if err := checkVersion("products endpoint", products, minProductsVersion); err != nil {
		return err
	}
	if err := checkVersion("order status endpoint", orderStatus, minOrderStatusVersion); err != nil {
		return err
	}
	return checkVersion("place order endpoint", placeOrder, minPlaceOrderVersion)
}
