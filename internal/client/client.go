package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/internal/logging"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// Static errors for err113 compliance.
var (
	ErrUnexpectedBinding   = errors.New("unexpected binding type")
	ErrObjectTypeRequired  = errors.New("object type is required")
	ErrRecordIDRequired    = errors.New("record ID is required")
	ErrCursorRequired      = errors.New("cursor is required")
	ErrFieldNotFound       = errors.New("field not found")
	ErrControllerNotFound  = errors.New("controlling field not found")
	ErrRecordRequired      = errors.New("record is required")
	ErrQueryStringRequired = errors.New("query string is required")
)

// Client implements crm.Client over the REST API. Every call goes through
// the tenant's bundle, so it is bounded by the tenant's concurrency limit
// and runs on a recycled binding.
type Client struct {
	pool   *connpool.Pool
	logger crm.Logger
}

var _ crm.Client = (*Client)(nil)

// New creates a client over pool.
func New(pool *connpool.Pool, logger crm.Logger) *Client {
	if logger == nil {
		logger = logging.Nop{}
	}

	return &Client{pool: pool, logger: logger}
}

// Pool exposes the underlying pool.
func (c *Client) Pool() *connpool.Pool {
	return c.pool
}

// Configure implements crm.TenantClients.Configure.
func (c *Client) Configure(ctx context.Context, tenant crm.Tenant, username, password string, maxConcurrent int) error {
	return c.pool.ConfigureTenant(ctx, tenant, username, password, maxConcurrent)
}

// Reauthenticate implements crm.TenantClients.Reauthenticate.
func (c *Client) Reauthenticate(ctx context.Context, tenant crm.Tenant) error {
	bundle, err := c.pool.TenantBundle(tenant)
	if err != nil {
		return err
	}

	return bundle.Reauthenticate(ctx)
}

// Stats returns the bundle counters for tenant.
func (c *Client) Stats(tenant crm.Tenant) (connpool.BundleStats, error) {
	bundle, err := c.pool.TenantBundle(tenant)
	if err != nil {
		return connpool.BundleStats{}, err
	}

	return bundle.Stats(), nil
}

// Query implements crm.QueryClient.Query.
func (c *Client) Query(ctx context.Context, tenant crm.Tenant, query string) (*crm.QueryResult, error) {
	return c.query(ctx, tenant, "/query", query)
}

// QueryAll implements crm.QueryClient.QueryAll. Deleted and archived
// records are included.
func (c *Client) QueryAll(ctx context.Context, tenant crm.Tenant, query string) (*crm.QueryResult, error) {
	return c.query(ctx, tenant, "/queryAll", query)
}

// QueryMore implements crm.QueryClient.QueryMore. cursor is either the
// nextRecordsUrl of a previous page or a bare query locator.
func (c *Client) QueryMore(ctx context.Context, tenant crm.Tenant, cursor string) (*crm.QueryResult, error) {
	if cursor == "" {
		return nil, ErrCursorRequired
	}

	path := cursor
	if !strings.HasPrefix(path, "/") {
		path = "/query/" + url.PathEscape(cursor)
	}

	var result *crm.QueryResult

	err := c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		resp, err := httpClient.Get(ctx, path, nil)
		if err != nil {
			return fmt.Errorf("fetching next page: %w", err)
		}

		result, err = crm.DecodeQueryResultJSON(resp.Body)
		if err != nil {
			return fmt.Errorf("parsing query response: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// QueryEach implements crm.QueryClient.QueryEach. Pages are fetched one
// call at a time; fn runs outside the tenant's concurrency limit. A non-nil
// error from fn stops the walk and is returned.
func (c *Client) QueryEach(ctx context.Context, tenant crm.Tenant, query string, fn func(*crm.Record) error) error {
	page, err := c.Query(ctx, tenant, query)
	if err != nil {
		return err
	}

	for {
		for _, record := range page.Records() {
			if err := fn(record); err != nil {
				return err
			}
		}

		cursor, more := page.Cursor()
		if !more {
			return nil
		}

		page, err = c.QueryMore(ctx, tenant, cursor)
		if err != nil {
			return err
		}
	}
}

// Retrieve implements crm.RecordClient.Retrieve. An empty fields list
// returns every field the user can see.
func (c *Client) Retrieve(ctx context.Context, tenant crm.Tenant, objectType string, id crm.ID, fields []string) (*crm.Record, error) {
	path, err := recordPath(objectType, id)
	if err != nil {
		return nil, err
	}

	var query url.Values
	if len(fields) > 0 {
		query = url.Values{"fields": []string{strings.Join(fields, ",")}}
	}

	var record *crm.Record

	err = c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		resp, err := httpClient.Get(ctx, path, query)
		if err != nil {
			return fmt.Errorf("getting %s %s: %w", objectType, id, err)
		}

		record, err = crm.DecodeRecordJSON(resp.Body)
		if err != nil {
			return fmt.Errorf("parsing %s response: %w", objectType, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Create implements crm.RecordClient.Create. The record's type selects the
// object; its identifier, if any, is ignored.
func (c *Client) Create(ctx context.Context, tenant crm.Tenant, record *crm.Record) (*crm.SaveResult, error) {
	if record == nil {
		return nil, ErrRecordRequired
	}

	path, err := objectPath(record.Type())
	if err != nil {
		return nil, err
	}

	var result crm.SaveResult

	err = c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		resp, err := httpClient.Post(ctx, path, record.Fields())
		if err != nil {
			return fmt.Errorf("creating %s: %w", record.Type(), err)
		}

		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return fmt.Errorf("%w: parsing create response: %w", crm.ErrMalformedResponse, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.ID.IsZero() {
		record.SetID(result.ID)
	}

	return &result, nil
}

// Update implements crm.RecordClient.Update. Every set field is sent; a
// null field clears the value remotely.
func (c *Client) Update(ctx context.Context, tenant crm.Tenant, record *crm.Record) error {
	if record == nil {
		return ErrRecordRequired
	}

	id, ok := record.ID()
	if !ok {
		return ErrRecordIDRequired
	}

	path, err := recordPath(record.Type(), id)
	if err != nil {
		return err
	}

	return c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		if _, err := httpClient.Patch(ctx, path, record.Fields()); err != nil {
			return fmt.Errorf("updating %s %s: %w", record.Type(), id, err)
		}

		return nil
	})
}

// Delete implements crm.RecordClient.Delete.
func (c *Client) Delete(ctx context.Context, tenant crm.Tenant, objectType string, id crm.ID) error {
	path, err := recordPath(objectType, id)
	if err != nil {
		return err
	}

	return c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		if _, err := httpClient.Delete(ctx, path); err != nil {
			return fmt.Errorf("deleting %s %s: %w", objectType, id, err)
		}

		return nil
	})
}

// Describe implements crm.DescribeClient.Describe.
func (c *Client) Describe(ctx context.Context, tenant crm.Tenant, objectType string) (*crm.ObjectDescribe, error) {
	path, err := objectPath(objectType)
	if err != nil {
		return nil, err
	}

	var describe crm.ObjectDescribe

	err = c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		resp, err := httpClient.Get(ctx, path+"/describe", nil)
		if err != nil {
			return fmt.Errorf("describing %s: %w", objectType, err)
		}

		if err := json.Unmarshal(resp.Body, &describe); err != nil {
			return fmt.Errorf("%w: parsing describe response: %w", crm.ErrMalformedResponse, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &describe, nil
}

// DependentPicklist implements crm.DescribeClient.DependentPicklist.
func (c *Client) DependentPicklist(ctx context.Context, tenant crm.Tenant, objectType, field string) (*crm.DependentValues, error) {
	describe, err := c.Describe(ctx, tenant, objectType)
	if err != nil {
		return nil, err
	}

	dependent, ok := describe.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, objectType, field)
	}

	if !dependent.DependentPicklist || dependent.ControllerName == "" {
		return nil, fmt.Errorf("%w: %s.%s", crm.ErrNotDependentPicklist, objectType, field)
	}

	controller, ok := describe.Field(dependent.ControllerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrControllerNotFound, objectType, dependent.ControllerName)
	}

	return crm.ResolveDependentValues(dependent, controller)
}

func (c *Client) query(ctx context.Context, tenant crm.Tenant, path, query string) (*crm.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryStringRequired
	}

	var result *crm.QueryResult

	err := c.rest(ctx, tenant, func(ctx context.Context, httpClient *http.Client) error {
		resp, err := httpClient.Get(ctx, path, url.Values{"q": []string{query}})
		if err != nil {
			return fmt.Errorf("running query: %w", err)
		}

		result, err = crm.DecodeQueryResultJSON(resp.Body)
		if err != nil {
			return fmt.Errorf("parsing query response: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// rest runs fn on a REST binding of the tenant's bundle.
func (c *Client) rest(ctx context.Context, tenant crm.Tenant, fn func(ctx context.Context, httpClient *http.Client) error) error {
	bundle, err := c.pool.TenantBundle(tenant)
	if err != nil {
		return err
	}

	err = bundle.WithBinding(ctx, crm.KindREST, func(ctx context.Context, binding connpool.Binding) error {
		rest, err := asREST(binding)
		if err != nil {
			return err
		}

		return fn(ctx, rest.HTTP())
	})
	if err != nil && crm.IsSessionExpired(err) {
		c.logger.Warn("Session expired", map[string]interface{}{"tenant": tenant.String()})
	}

	return err
}

func objectPath(objectType string) (string, error) {
	if objectType == "" {
		return "", ErrObjectTypeRequired
	}

	return "/sobjects/" + url.PathEscape(objectType), nil
}

func recordPath(objectType string, id crm.ID) (string, error) {
	path, err := objectPath(objectType)
	if err != nil {
		return "", err
	}

	if id.IsZero() {
		return "", ErrRecordIDRequired
	}

	return path + "/" + url.PathEscape(id.Full()), nil
}
