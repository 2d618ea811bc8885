// Package testutil provides an in-process storefront backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// SigningKey signs the tokens issued by FakeAPI.
var SigningKey = []byte("storefront-test-key")

// FakeProduct is a catalog row of the fake backend.
type FakeProduct struct {
	ProductID   string
	Name        string
	Description string
	Category    string
	Price       string
	Stock       int
	ImageURL    string
}

// FakeUser is an account of the fake backend.
type FakeUser struct {
	UserID   int64
	CartID   int64
	Email    string
	Password string
	Name     string
}

type fakeLine struct {
	productID string
	quantity  int
}

type fakeOrder struct {
	id    string
	date  string
	total decimal.Decimal
}

type failure struct {
	status  int
	message string
}

// FakeAPI emulates the storefront REST service: catalog, cart, orders,
// users and login. Cart, order and user routes require a bearer token
// issued by Login or IssueToken. It is safe for concurrent use.
type FakeAPI struct {
	mu       sync.Mutex
	products map[string]FakeProduct
	order    []string
	users    map[string]FakeUser // by email
	hashes   map[string][]byte   // bcrypt password hash by email
	tokens   map[string]int64    // token -> user id
	carts    map[int64][]fakeLine
	orders   map[int64][]fakeOrder
	failures map[string][]failure
	calls    map[string]int
	nextID   int

	cartFetchHook func(call int)

	router *mux.Router
}

// NewFakeAPI returns an empty backend.
func NewFakeAPI() *FakeAPI {
	f := &FakeAPI{
		products: make(map[string]FakeProduct),
		users:    make(map[string]FakeUser),
		hashes:   make(map[string][]byte),
		tokens:   make(map[string]int64),
		carts:    make(map[int64][]fakeLine),
		orders:   make(map[int64][]fakeOrder),
		failures: make(map[string][]failure),
		calls:    make(map[string]int),
		nextID:   1,
	}
	f.router = f.routes()
	return f
}

// Start serves the fake on a local listener. Close the returned server when done.
func (f *FakeAPI) Start() *httptest.Server {
	return httptest.NewServer(f.router)
}

// Router exposes the routes for embedding.
func (f *FakeAPI) Router() *mux.Router {
	return f.router
}

// AddProduct inserts or replaces a product.
func (f *FakeAPI) AddProduct(p FakeProduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[p.ProductID]; !ok {
		f.order = append(f.order, p.ProductID)
	}
	f.products[p.ProductID] = p
}

// AddUser registers an account. Only the password hash is kept.
func (f *FakeAPI) AddUser(u FakeUser) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	key := strings.ToLower(u.Email)
	u.Password = ""

	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[key] = u
	f.hashes[key] = hash
}

// IssueToken signs a token for userID expiring at exp and makes it valid.
func (f *FakeAPI) IssueToken(userID int64, exp time.Time) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     fmt.Sprintf("%d", userID),
		"user_id": userID,
		"exp":     exp.Unix(),
		"iat":     time.Now().Unix(),
	}).SignedString(SigningKey)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.tokens[token] = userID
	f.mu.Unlock()
	return token
}

// SetCartLine sets the server-side quantity of productID for userID.
func (f *FakeAPI) SetCartLine(userID int64, productID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLineLocked(userID, productID, quantity)
}

// CartQuantity returns the server-side quantity of productID for userID.
func (f *FakeAPI) CartQuantity(userID int64, productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.carts[userID] {
		if l.productID == productID {
			return l.quantity
		}
	}
	return 0
}

// OrderCount returns the number of orders placed by userID.
func (f *FakeAPI) OrderCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders[userID])
}

// OnCartFetch registers fn to run before GET /cart answers, outside the
// lock. call counts GET /cart requests starting at 1.
func (f *FakeAPI) OnCartFetch(fn func(call int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartFetchHook = fn
}

// FailNext makes the next call to method+path answer status with message.
func (f *FakeAPI) FailNext(method, path string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.failures[key] = append(f.failures[key], failure{status: status, message: message})
}

// Calls returns how many times method+path was requested.
func (f *FakeAPI) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

func (f *FakeAPI) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(f.countAndFail)

	r.HandleFunc("/user/login", f.login).Methods(http.MethodPost)
	r.HandleFunc("/product", f.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/product/{id}", f.getProduct).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(f.requireToken)
	authed.HandleFunc("/user/", f.currentUser).Methods(http.MethodGet)
	authed.HandleFunc("/user/update", f.updateUser).Methods(http.MethodPut)
	authed.HandleFunc("/cart", f.getCart).Methods(http.MethodGet)
	authed.HandleFunc("/cart", f.addToCart).Methods(http.MethodPost)
	authed.HandleFunc("/cart", f.updateCart).Methods(http.MethodPut)
	authed.HandleFunc("/order", f.createOrder).Methods(http.MethodPost)
	authed.HandleFunc("/order/user", f.listOrders).Methods(http.MethodGet)
	return r
}

// =============================================================================
// Middleware
// =============================================================================

type userKey struct{}

func (f *FakeAPI) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		f.mu.Lock()
		f.calls[key]++
		var fail *failure
		if queue := f.failures[key]; len(queue) > 0 {
			fail = &queue[0]
			f.failures[key] = queue[1:]
		}
		f.mu.Unlock()

		if fail != nil {
			writeJSON(w, fail.status, map[string]interface{}{"message": fail.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Token requerido"})
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		f.mu.Lock()
		userID, ok := f.tokens[token]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Token inválido"})
			return
		}
		r.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
		next.ServeHTTP(w, r)
	})
}

func userOf(r *http.Request) int64 {
	var id int64
	_, _ = fmt.Sscanf(r.Header.Get("X-User-ID"), "%d", &id)
	return id
}

// =============================================================================
// Handlers
// =============================================================================

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "message": "JSON inválido"})
		return
	}

	key := strings.ToLower(req.Email)
	f.mu.Lock()
	u, ok := f.users[key]
	hash := f.hashes[key]
	f.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"ok": false, "message": "Credenciales inválidas"})
		return
	}

	token := f.IssueToken(u.UserID, time.Now().Add(24*time.Hour))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"token": token,
		"user":  map[string]interface{}{"user_id": u.UserID, "cart_id": u.CartID},
	})
}

func (f *FakeAPI) currentUser(w http.ResponseWriter, r *http.Request) {
	id := userOf(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.UserID == id {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"user_id": u.UserID, "cart_id": u.CartID, "name": u.Name, "email": u.Email,
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Usuario no encontrado"})
}

func (f *FakeAPI) updateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "JSON inválido"})
		return
	}
	id := userOf(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, u := range f.users {
		if u.UserID == id {
			if req.Name != "" {
				u.Name = req.Name
			}
			f.users[key] = u
			writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Usuario no encontrado"})
}

func (f *FakeAPI) listProducts(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	out := make([]map[string]interface{}, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, productJSON(f.products[id]))
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f.mu.Lock()
	p, ok := f.products[id]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Producto no encontrado"})
		return
	}
	writeJSON(w, http.StatusOK, productJSON(p))
}

func (f *FakeAPI) getCart(w http.ResponseWriter, r *http.Request) {
	user := userOf(r)

	// The answer reflects the cart as it was when the request arrived, even
	// when the hook delays it.
	f.mu.Lock()
	call := f.calls["GET /cart"]
	hook := f.cartFetchHook
	lines := f.carts[user]
	out := make([]map[string]interface{}, 0, len(lines))
	for _, l := range lines {
		p := f.products[l.productID]
		out = append(out, map[string]interface{}{
			"product_id":    p.ProductID,
			"name":          p.Name,
			"price":         p.Price,
			"quantity":      l.quantity,
			"image_url":     p.ImageURL,
			"category_name": p.Category,
		})
	}
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	writeJSON(w, http.StatusOK, out)
}

type cartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (f *FakeAPI) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Solicitud inválida"})
		return
	}
	user := userOf(r)

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Producto no encontrado"})
		return
	}
	current := 0
	for _, l := range f.carts[user] {
		if l.productID == req.ProductID {
			current = l.quantity
		}
	}
	if current+req.Quantity > p.Stock {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Stock insuficiente"})
		return
	}
	f.setLineLocked(user, req.ProductID, current+req.Quantity)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true})
}

func (f *FakeAPI) updateCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Solicitud inválida"})
		return
	}
	user := userOf(r)

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[req.ProductID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Producto no encontrado"})
		return
	}
	if req.Quantity > p.Stock {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "Stock insuficiente"})
		return
	}
	f.setLineLocked(user, req.ProductID, req.Quantity)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (f *FakeAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	user := userOf(r)

	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.carts[user]
	if len(lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "El carrito está vacío"})
		return
	}
	total := decimal.Zero
	for _, l := range lines {
		price, _ := decimal.NewFromString(f.products[l.productID].Price)
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	o := fakeOrder{
		id:    fmt.Sprintf("PED-%03d", f.nextID),
		date:  time.Now().UTC().Format("2006-01-02"),
		total: total,
	}
	f.nextID++
	f.orders[user] = append(f.orders[user], o)
	delete(f.carts, user)

	writeJSON(w, http.StatusCreated, orderJSON(o))
}

func (f *FakeAPI) listOrders(w http.ResponseWriter, r *http.Request) {
	user := userOf(r)

	f.mu.Lock()
	orders := append([]fakeOrder(nil), f.orders[user]...)
	f.mu.Unlock()

	if len(orders) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Sin órdenes"})
		return
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].id > orders[j].id })
	out := make([]map[string]interface{}, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) setLineLocked(user int64, productID string, quantity int) {
	lines := f.carts[user]
	for i, l := range lines {
		if l.productID != productID {
			continue
		}
		if quantity <= 0 {
			f.carts[user] = append(lines[:i:i], lines[i+1:]...)
		} else {
			lines[i].quantity = quantity
		}
		return
	}
	if quantity > 0 {
		f.carts[user] = append(lines, fakeLine{productID: productID, quantity: quantity})
	}
}

func productJSON(p FakeProduct) map[string]interface{} {
	return map[string]interface{}{
		"product_id":    p.ProductID,
		"name":          p.Name,
		"description":   p.Description,
		"category_name": p.Category,
		"price":         p.Price,
		"stock":         p.Stock,
		"image_url":     p.ImageURL,
	}
}

func orderJSON(o fakeOrder) map[string]interface{} {
	return map[string]interface{}{
		"order_id":   o.id,
		"order_date": o.date,
		"status":     "Pagado",
		"total":      o.total.StringFixed(2),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SeedCatalog adds the clinic's demo products.
func (f *FakeAPI) SeedCatalog() {
	for _, p := range DemoProducts() {
		f.AddProduct(p)
	}
}

// DemoProducts is a small catalog used by tests and the CLI demo mode.
func DemoProducts() []FakeProduct {
	return []FakeProduct{
		{ProductID: "1", Name: "Croquetas Gato Adulto 1kg", Category: "Alimento", Price: "85.50", Stock: 20},
		{ProductID: "2", Name: "Arena Sanitaria 5kg", Category: "Higiene", Price: "30.00", Stock: 15},
		{ProductID: "3", Name: "Lata Gato Salmón", Category: "Alimento", Price: "25.70", Stock: 40},
		{ProductID: "4", Name: "Collar Antipulgas", Category: "Salud", Price: "40.00", Stock: 3},
		{ProductID: "5", Name: "Cama Mediana", Category: "Accesorios", Price: "60.00", Stock: 0},
		{ProductID: "6", Name: "Juguete Ratón", Category: "Accesorios", Price: "15.50", Stock: 50},
	}
}
