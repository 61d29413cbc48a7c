package catalogRepo

import (
	"context"
	"errors"
)

var ErrServiceNotFound = errors.New("service not found")

// ServiceCatalog resolves ownership of bookable services.
type ServiceCatalog interface {
	VendorOf(ctx context.Context, serviceID string) (string, error)
	ServiceIDsByVendor(ctx context.Context, vendorID string) ([]string, error)
}
