package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/vetclinic/storefront/internal/cache"
	"github.com/vetclinic/storefront/internal/cart"
	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/httputil"
	"github.com/vetclinic/storefront/internal/metrics"
	"github.com/vetclinic/storefront/pkg/logger"
)

// =============================================================================
// Cart
// =============================================================================

// CartService talks to /cart.
type CartService struct {
	client *httputil.Client
}

// NewCartService returns a cart service using client.
func NewCartService(client *httputil.Client) *CartService {
	return &CartService{client: client.WithService("cart")}
}

type cartMutation struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Fetch returns the server's current cart. An empty or null body is an
// empty cart; anything else must be a well-formed array.
func (s *CartService) Fetch(ctx context.Context) ([]cart.LineItem, error) {
	body, err := s.client.Call(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return cart.ParseLineItems(trimmed)
}

// Add asks the server to add quantity units of productID.
func (s *CartService) Add(ctx context.Context, productID string, quantity int) error {
	_, err := s.client.Call(ctx, http.MethodPost, "/cart", cartMutation{ProductID: productID, Quantity: quantity})
	return err
}

// Update sets the server-side quantity of productID. Zero removes it.
func (s *CartService) Update(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	_, err := s.client.Call(ctx, http.MethodPut, "/cart", cartMutation{ProductID: productID, Quantity: quantity})
	return err
}

// =============================================================================
// Catalog
// =============================================================================

const (
	catalogListKey    = "catalog:products"
	catalogProductKey = "catalog:product:"
)

// CatalogService talks to /product, reading through a cache.
type CatalogService struct {
	client *httputil.Client
	cache  cache.Cache
	ttl    time.Duration
	log    *logger.Logger
}

// NewCatalogService returns a catalog service. A nil cache disables caching.
func NewCatalogService(client *httputil.Client, c cache.Cache, ttl time.Duration, log *logger.Logger) *CatalogService {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &CatalogService{client: client.WithService("catalog"), cache: c, ttl: ttl, log: log}
}

// List returns every product.
func (s *CatalogService) List(ctx context.Context) ([]Product, error) {
	body, err := s.cached(ctx, catalogListKey, "/product")
	if err != nil {
		return nil, err
	}
	products, err := ParseProducts(body)
	if err != nil {
		_ = s.cache.Delete(ctx, catalogListKey)
		return nil, err
	}
	return products, nil
}

// Get returns a single product.
func (s *CatalogService) Get(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, serrors.InvalidInput("product_id", "product id is required")
	}
	key := catalogProductKey + productID
	body, err := s.cached(ctx, key, "/product/"+url.PathEscape(productID))
	if err != nil {
		return Product{}, err
	}
	p, err := ParseProduct(body)
	if err != nil {
		_ = s.cache.Delete(ctx, key)
		return Product{}, err
	}
	return p, nil
}

// Invalidate drops cached catalog entries, e.g. after stock changed.
func (s *CatalogService) Invalidate(ctx context.Context, productIDs ...string) {
	_ = s.cache.Delete(ctx, catalogListKey)
	for _, id := range productIDs {
		_ = s.cache.Delete(ctx, catalogProductKey+id)
	}
}

func (s *CatalogService) cached(ctx context.Context, key, path string) ([]byte, error) {
	body, err := s.cache.Get(ctx, key)
	if err == nil {
		metrics.RecordCacheLookup(true)
		return body, nil
	}
	metrics.RecordCacheLookup(false)
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WithContext(ctx).WithError(err).Warn("catalog cache read failed")
	}

	body, err = s.client.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("catalog cache write failed")
	}
	return body, nil
}

// PriceBand narrows a product listing by price.
type PriceBand string

const (
	BandAll       PriceBand = "all"
	BandCheap     PriceBand = "cheap"
	BandExpensive PriceBand = "expensive"
)

// BandThreshold separates cheap from expensive products.
var BandThreshold = decimal.NewFromInt(50)

// Filter returns the products whose name contains query (case-insensitive)
// and whose price falls in band: cheap is below 50, expensive 50 and above.
func Filter(products []Product, query string, band PriceBand) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		switch band {
		case BandCheap:
			if !p.Price.LessThan(BandThreshold) {
				continue
			}
		case BandExpensive:
			if p.Price.LessThan(BandThreshold) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// =============================================================================
// Orders
// =============================================================================

// OrderService talks to /order.
type OrderService struct {
	client *httputil.Client
}

// NewOrderService returns an order service using client.
func NewOrderService(client *httputil.Client) *OrderService {
	return &OrderService{client: client.WithService("orders")}
}

// Create places an order from the server-side cart.
func (s *OrderService) Create(ctx context.Context) (Order, error) {
	body, err := s.client.Call(ctx, http.MethodPost, "/order", nil)
	if err != nil {
		return Order{}, err
	}
	return ParseOrder(body)
}

// ListMine returns the shopper's orders. The server answers 404 when there
// are none, which is reported as an empty list.
func (s *OrderService) ListMine(ctx context.Context) ([]Order, error) {
	body, err := s.client.Call(ctx, http.MethodGet, "/order/user", nil)
	if err != nil {
		if apiErr := serrors.GetAPIError(err); apiErr != nil && apiErr.Status == http.StatusNotFound {
			return []Order{}, nil
		}
		return nil, err
	}
	return ParseOrders(body)
}

// =============================================================================
// Users
// =============================================================================

// UserService talks to /user.
type UserService struct {
	client *httputil.Client
}

// NewUserService returns a user service using client.
func NewUserService(client *httputil.Client) *UserService {
	return &UserService{client: client.WithService("users")}
}

// UserUpdate carries the profile fields to change. Empty fields are omitted.
type UserUpdate struct {
	Name     string `json:"name,omitempty"`
	LastName string `json:"last_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Current returns the authenticated user, or nil when the server does not know it.
func (s *UserService) Current(ctx context.Context) (*User, error) {
	body, err := s.client.Call(ctx, http.MethodGet, "/user/", nil)
	if err != nil {
		if apiErr := serrors.GetAPIError(err); apiErr != nil && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	root := gjson.ParseBytes(body)
	if u := root.Get("user"); u.IsObject() {
		root = u
	}
	user, err := ParseUser(root)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update changes the authenticated user's profile.
func (s *UserService) Update(ctx context.Context, update UserUpdate) error {
	_, err := s.client.Call(ctx, http.MethodPut, "/user/update", update)
	return err
}

// =============================================================================
// Auth
// =============================================================================

// DefaultLoginFailure is reported when the server rejects a login without a message.
const DefaultLoginFailure = "invalid credentials"

// AuthService talks to /user/login.
type AuthService struct {
	client *httputil.Client
}

// NewAuthService returns an auth service using client.
func NewAuthService(client *httputil.Client) *AuthService {
	return &AuthService{client: client.WithService("auth")}
}

// Login exchanges credentials for a bearer token. A 2xx answer with ok=false
// is a failure too.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := s.client.Post(ctx, "/user/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	defer resp.Body.Close()

	body, _, err := httputil.ReadAllWithLimit(resp.Body, 1<<20)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: read response body: %w", err)
	}

	root := gjson.ParseBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !root.Get("ok").Bool() {
		msg := httputil.ErrorMessage(body)
		if msg == "" {
			msg = DefaultLoginFailure
		}
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusUnauthorized
		}
		return LoginResult{}, serrors.NewAPIError("auth", status, msg)
	}

	token := strings.TrimSpace(root.Get("token").String())
	if token == "" {
		return LoginResult{}, &ParseError{Resource: "auth", Index: -1, Field: "token", Reason: "missing"}
	}
	user, err := ParseUser(root.Get("user"))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user}, nil
}

// =============================================================================
// Bundle
// =============================================================================

// Services groups the storefront service wrappers.
type Services struct {
	Cart    *CartService
	Catalog *CatalogService
	Orders  *OrderService
	Users   *UserService
	Auth    *AuthService
}

// Endpoints overrides the base URL per service. Empty entries use the default.
type Endpoints struct {
	Cart    string
	Catalog string
	Orders  string
	Users   string
}

// NewServices builds every wrapper from one client configuration.
func NewServices(cfg httputil.Config, endpoints Endpoints, c cache.Cache, cacheTTL time.Duration) (*Services, error) {
	build := func(override string) (*httputil.Client, error) {
		local := cfg
		if override != "" {
			local.BaseURL = override
		}
		return httputil.New(local)
	}

	base, err := build("")
	if err != nil {
		return nil, err
	}
	pick := func(override string) (*httputil.Client, error) {
		if override == "" {
			return base, nil
		}
		return build(override)
	}

	cartClient, err := pick(endpoints.Cart)
	if err != nil {
		return nil, fmt.Errorf("cart endpoint: %w", err)
	}
	catalogClient, err := pick(endpoints.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog endpoint: %w", err)
	}
	orderClient, err := pick(endpoints.Orders)
	if err != nil {
		return nil, fmt.Errorf("orders endpoint: %w", err)
	}
	userClient, err := pick(endpoints.Users)
	if err != nil {
		return nil, fmt.Errorf("users endpoint: %w", err)
	}

	log := cfg.Logger
	if log != nil {
		log = log.Named("catalog")
	}

	return &Services{
		Cart:    NewCartService(cartClient),
		Catalog: NewCatalogService(catalogClient, c, cacheTTL, log),
		Orders:  NewOrderService(orderClient),
		Users:   NewUserService(userClient),
		Auth:    NewAuthService(userClient),
	}, nil
}
