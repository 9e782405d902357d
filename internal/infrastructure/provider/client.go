package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 30 * time.Second

	// Hosted bank-linking sessions require the beta API version.
	apiVersion = "2024-06-20; financial_connections_hosted_beta=v1"

	customersPath       = "/v1/customers"
	paymentMethodsPath  = "/v1/payment_methods"
	linkingSessionsPath = "/v1/financial_connections/sessions"
)

// Client handles communication with the hosted-payments provider API.
// Requests are form-encoded with Bearer auth; the env parameter on each
// call selects between the test and live secret keys.
type Client struct {
	httpClient *http.Client
	baseURL    string
	testKey    string
	liveKey    string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a provider API client. Either key may be empty; calls
// against an environment without a configured key fail with an Error before
// any request is made.
func NewClient(testKey, liveKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: defaultBaseURL,
		testKey: testKey,
		liveKey: liveKey,
	}
}

// SetBaseURL overrides the API base URL, for tests and proxies.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Customer is a customer record as returned by the provider.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// PaymentMethod is a stored bank-account payment method.
type PaymentMethod struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	USBankAccount *USBankAccount `json:"us_bank_account,omitempty"`
}

// USBankAccount carries bank-account display details.
type USBankAccount struct {
	BankName string `json:"bank_name"`
	Last4    string `json:"last4"`
}

// Account is a linked financial account inside a linking session.
type Account struct {
	ID          string `json:"id"`
	Institution string `json:"institution_name"`
	Category    string `json:"category"`
	Last4       string `json:"last4"`
}

// LinkingSession is a bank-account linking session. AuthorizationURL points
// at the provider-hosted authorization flow; Accounts are populated on
// retrieval once the user has finished linking.
type LinkingSession struct {
	ID               string    `json:"id"`
	AuthorizationURL string    `json:"url"`
	Accounts         []Account `json:"-"`
}

// LinkingSessionParams are the inputs to CreateLinkingSession.
type LinkingSessionParams struct {
	CustomerID    string
	InstitutionID string
	ReturnURL     string
}

type accountList struct {
	Data []Account `json:"data"`
}

type linkingSessionResponse struct {
	ID               string      `json:"id"`
	AuthorizationURL string      `json:"url"`
	Accounts         accountList `json:"accounts"`
}

// Error is a failure from the provider API. The message is extracted from
// the error body without assuming its shape.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider error: %s", e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) key(env Env) (string, error) {
	switch env {
	case EnvTest:
		if c.testKey == "" {
			return "", &Error{Message: "no API key configured for test mode"}
		}
		return c.testKey, nil
	case EnvLive:
		if c.liveKey == "" {
			return "", &Error{Message: "no API key configured for live mode"}
		}
		return c.liveKey, nil
	default:
		return "", &Error{Message: fmt.Sprintf("unknown environment %q", env)}
	}
}

// do executes a form-encoded request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, env Env, method, path string, form url.Values, out any) error {
	apiKey, err := c.key(env)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
	} else if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	req.Header.Set("Stripe-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// parseError extracts a message from an error body without assuming its
// shape; an unparseable body falls back to a raw snippet.
func parseError(status int, body []byte) *Error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return &Error{StatusCode: status, Code: env.Error.Code, Message: env.Error.Message}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{StatusCode: status, Message: msg}
}

// CreateCustomer creates a customer record with the provider.
func (c *Client) CreateCustomer(ctx context.Context, env Env, name, email string) (*Customer, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("email", email)

	var cust Customer
	if err := c.do(ctx, env, http.MethodPost, customersPath, form, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

// ListCustomersByEmail returns all provider customers with the given email.
func (c *Client) ListCustomersByEmail(ctx context.Context, env Env, email string) ([]Customer, error) {
	form := url.Values{}
	form.Set("email", email)

	var list struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, env, http.MethodGet, customersPath, form, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// RetrieveCustomer fetches a single customer by id.
func (c *Client) RetrieveCustomer(ctx context.Context, env Env, id string) (*Customer, error) {
	var cust Customer
	if err := c.do(ctx, env, http.MethodGet, customersPath+"/"+url.PathEscape(id), nil, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

// ListPaymentMethods lists a customer's bank-account payment methods.
func (c *Client) ListPaymentMethods(ctx context.Context, env Env, customerID string) ([]PaymentMethod, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("type", "us_bank_account")

	var list struct {
		Data []PaymentMethod `json:"data"`
	}
	if err := c.do(ctx, env, http.MethodGet, paymentMethodsPath, form, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// CreateLinkingSession creates a hosted bank-linking session for a customer,
// filtered to one institution, returning the id and hosted authorization URL.
func (c *Client) CreateLinkingSession(ctx context.Context, env Env, params LinkingSessionParams) (*LinkingSession, error) {
	form := url.Values{}
	form.Set("account_holder[type]", "customer")
	form.Set("account_holder[customer]", params.CustomerID)
	form.Add("permissions[]", "payment_method")
	form.Add("permissions[]", "balances")
	form.Add("permissions[]", "ownership")
	form.Add("permissions[]", "transactions")
	form.Set("ui_mode", "hosted")
	form.Add("filters[countries][]", "US")
	form.Set("filters[institution]", params.InstitutionID)
	form.Set("hosted[return_url]", params.ReturnURL)

	var resp linkingSessionResponse
	if err := c.do(ctx, env, http.MethodPost, linkingSessionsPath, form, &resp); err != nil {
		return nil, err
	}
	return &LinkingSession{ID: resp.ID, AuthorizationURL: resp.AuthorizationURL, Accounts: resp.Accounts.Data}, nil
}

// RetrieveLinkingSession fetches a linking session, including the accounts
// linked through it.
func (c *Client) RetrieveLinkingSession(ctx context.Context, env Env, id string) (*LinkingSession, error) {
	var resp linkingSessionResponse
	if err := c.do(ctx, env, http.MethodGet, linkingSessionsPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &LinkingSession{ID: resp.ID, AuthorizationURL: resp.AuthorizationURL, Accounts: resp.Accounts.Data}, nil
}

// CreateAndAttachPaymentMethod creates a payment method from a linked
// account and attaches it to the customer. Two provider calls; if the
// attach step fails the created method stays unattached and the error is
// surfaced to the caller.
func (c *Client) CreateAndAttachPaymentMethod(ctx context.Context, env Env, accountID, customerID string) (*PaymentMethod, error) {
	form := url.Values{}
	form.Set("type", "us_bank_account")
	form.Set("us_bank_account[financial_connections_account]", accountID)

	var pm PaymentMethod
	if err := c.do(ctx, env, http.MethodPost, paymentMethodsPath, form, &pm); err != nil {
		return nil, err
	}

	attach := url.Values{}
	attach.Set("customer", customerID)
	if err := c.do(ctx, env, http.MethodPost, paymentMethodsPath+"/"+url.PathEscape(pm.ID)+"/attach", attach, &pm); err != nil {
		return nil, err
	}

	return &pm, nil
}
