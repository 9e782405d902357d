package provider

import "context"

// Env selects the provider environment. Test and live are fully disjoint:
// a customer created in one can never be addressed through the other.
type Env string

const (
	EnvTest Env = "test"
	EnvLive Env = "live"
)

// EnvFor maps a record's test-mode flag to the provider environment.
func EnvFor(testMode bool) Env {
	if testMode {
		return EnvTest
	}
	return EnvLive
}

// ClientInterface defines the methods required from the hosted-payments
// provider API client. Defined here so handlers and the linking flow can be
// tested against a mock.
type ClientInterface interface {
	CreateCustomer(ctx context.Context, env Env, name, email string) (*Customer, error)
	ListCustomersByEmail(ctx context.Context, env Env, email string) ([]Customer, error)
	RetrieveCustomer(ctx context.Context, env Env, id string) (*Customer, error)
	ListPaymentMethods(ctx context.Context, env Env, customerID string) ([]PaymentMethod, error)
	CreateLinkingSession(ctx context.Context, env Env, params LinkingSessionParams) (*LinkingSession, error)
	RetrieveLinkingSession(ctx context.Context, env Env, id string) (*LinkingSession, error)
	CreateAndAttachPaymentMethod(ctx context.Context, env Env, accountID, customerID string) (*PaymentMethod, error)
}
