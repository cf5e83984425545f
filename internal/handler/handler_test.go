package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/tiffin/internal/domain/account"
	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/catalog"
	"github.com/xenking/tiffin/internal/domain/order"
	"github.com/xenking/tiffin/internal/domain/pricing"
	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/session"
	"github.com/xenking/tiffin/internal/storage/memory"
	"github.com/xenking/tiffin/pkg/httpmiddleware"
)

// --- Mock implementations ---

type mockCatalog struct {
	vendors []catalog.Vendor
	items   []catalog.Item
	listErr error
}

func (m *mockCatalog) ListVendors(context.Context) ([]catalog.Vendor, error) {
	return m.vendors, m.listErr
}

func (m *mockCatalog) GetVendor(_ context.Context, id int64) (*catalog.Vendor, error) {
	for _, v := range m.vendors {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, errors.Wrapf(catalog.ErrNotFound, "vendor %d", id)
}

func (m *mockCatalog) ListMenu(_ context.Context, vendorID int64) ([]catalog.Item, error) {
	var out []catalog.Item
	for _, it := range m.items {
		if it.VendorID == vendorID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockCatalog) LookupItem(_ context.Context, id int64) (*catalog.Item, error) {
	for _, it := range m.items {
		if it.ID == id {
			return &it, nil
		}
	}
	return nil, &catalog.ItemNotFoundError{ItemID: id}
}

func (m *mockCatalog) MenuNames(context.Context) (map[int64][]string, error) {
	out := make(map[int64][]string)
	for _, it := range m.items {
		out[it.VendorID] = append(out[it.VendorID], it.Name)
	}
	return out, nil
}

type mockRules map[string]*promotion.Rule

func (m mockRules) FindByCode(_ context.Context, code string) (*promotion.Rule, error) {
	if r, ok := m[code]; ok {
		return r, nil
	}
	return nil, promotion.ErrUnknownCode
}

type mockHistory struct {
	mu       sync.Mutex
	redeemed map[string]bool
}

func (m *mockHistory) HasRedeemed(_ context.Context, accountID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redeemed[accountID+"/"+code], nil
}

type mockOrderRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]order.Order
	history *mockHistory
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order, claim *promotion.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim != nil {
		m.history.mu.Lock()
		defer m.history.mu.Unlock()
		key := claim.AccountID + "/" + claim.Code
		if m.history.redeemed[key] {
			return promotion.ErrAlreadyRedeemed
		}
		m.history.redeemed[key] = true
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *mockOrderRepo) ListByAccount(_ context.Context, accountID string, _ int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.AccountID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status, o.UpdatedAt = to, at
	m.orders[id] = o
	return nil
}

type mockAuth map[string]string

func (m mockAuth) Authenticate(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	acct, ok := m[key]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	info := &auth.APIKeyInfo{ID: "k-" + acct, AccountID: acct}
	if acct != "viewer" {
		info.Scopes = []string{auth.ScopeOrdersWrite}
	}
	return info, nil
}

// flakyStore fails saves while fail is set.
type flakyStore struct {
	basket.Store
	fail bool
}

func (f *flakyStore) Save(ctx context.Context, id string, s basket.Snapshot) error {
	if f.fail {
		return errors.New("redis: connection refused")
	}
	return f.Store.Save(ctx, id, s)
}

// --- Helpers ---

const (
	burgerID = 101
	pizzaID  = 201
)

type testEnv struct {
	t       *testing.T
	handler http.Handler
	orders  *mockOrderRepo
	store   *flakyStore
	items   *mockCatalog
	session string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	items := &mockCatalog{
		vendors: []catalog.Vendor{
			{ID: 5, Name: "Burger Barn", Cuisines: []string{"Burgers", "American"}, Rating: decimal.RequireFromString("4.2"), DeliveryMinutes: 30, PriceForTwo: 400_00, Image: "vendors/5.jpg"},
			{ID: 7, Name: "Pizza Piazza", Cuisines: []string{"Italian"}, Rating: decimal.RequireFromString("4.6"), DeliveryMinutes: 20, PriceForTwo: 250_00, Vegetarian: true},
		},
		items: []catalog.Item{
			{ID: burgerID, VendorID: 5, Name: "Whopper", UnitPrice: 19900, Options: []string{"Extra Cheese", "Large"}, Image: "items/101.jpg"},
			{ID: 102, VendorID: 5, Name: "Veggie Burger", UnitPrice: 14900, Vegetarian: true},
			{ID: pizzaID, VendorID: 7, Name: "Margherita", UnitPrice: 24900, Vegetarian: true},
		},
	}
	rules := mockRules{
		"WELCOME50": {Code: "WELCOME50", Kind: promotion.KindPercentageCapped, Percentage: decimal.NewFromInt(50), Cap: 100},
		"NEWUSER50": {Code: "NEWUSER50", Kind: promotion.KindFlatPercentage, Percentage: decimal.NewFromInt(50), SingleUsePerAccount: true},
	}
	history := &mockHistory{redeemed: map[string]bool{}}
	evaluator := promotion.NewEvaluator(rules, history)

	store := &flakyStore{Store: memory.NewBasketStore()}
	sessions := session.NewManager(store, pricing.NewCalculator(pricing.Config{}), evaluator)
	orders := &mockOrderRepo{orders: map[uuid.UUID]order.Order{}, history: history}
	accounts := newMockAccounts()

	h, err := NewHandler(
		HandlerConfig{ImageBaseURL: "https://cdn.example/"},
		items,
		sessions,
		order.NewService(orders),
		account.NewService(accounts, accounts, accounts, items),
		mockAuth{"key-alice": "alice", "key-bob": "bob", "key-viewer": "viewer"},
		noop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{
		t:       t,
		handler: httpmiddleware.Wrap(mux, httpmiddleware.SessionID()),
		orders:  orders,
		store:   store,
		items:   items,
		session: uuid.NewString(),
	}
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set(httpmiddleware.HeaderSessionID, e.session)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func breakdown(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	b, ok := body["breakdown"].(map[string]any)
	require.True(t, ok, "breakdown missing")
	return b
}

// --- Tests ---

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list all vendors", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/vendors", "")
		require.Equal(t, http.StatusOK, w.Code)
		vendors := decodeList(t, w)
		require.Len(t, vendors, 2)
		assert.Equal(t, "https://cdn.example/vendors/5.jpg", vendors[0]["image"])
		assert.Equal(t, 4.2, vendors[0]["rating"])
	})

	t.Run("search matches menu items", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/vendors?search=marg", "")
		require.Equal(t, http.StatusOK, w.Code)
		vendors := decodeList(t, w)
		require.Len(t, vendors, 1)
		assert.EqualValues(t, 7, vendors[0]["id"])
	})

	t.Run("sort by delivery time", func(t *testing.T) {
		vendors := decodeList(t, env.do(http.MethodGet, "/api/vendors?sort=time", ""))
		require.Len(t, vendors, 2)
		assert.EqualValues(t, 7, vendors[0]["id"])
	})

	t.Run("get vendor", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/vendors/5", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Burger Barn", decode(t, w)["name"])
	})

	t.Run("unknown vendor", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/vendors/99", "").Code)
	})

	t.Run("malformed vendor id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/vendors/abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid id", decode(t, w)["message"])
	})

	t.Run("unknown browse values", func(t *testing.T) {
		for _, path := range []string{
			"/api/vendors?quick=cheap",
			"/api/vendors?price=free",
			"/api/vendors?sort=distance",
			"/api/vendors/5/menu?sort=rating",
			"/api/vendors/5/menu?veg=maybe",
		} {
			w := env.do(http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})

	t.Run("vegetarian menu sorted by price", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/vendors/5/menu?veg=true", "")
		require.Equal(t, http.StatusOK, w.Code)
		items := decodeList(t, w)
		require.Len(t, items, 1)
		assert.Equal(t, "Veggie Burger", items[0]["name"])

		items = decodeList(t, env.do(http.MethodGet, "/api/vendors/5/menu?sort=price_desc", ""))
		require.Len(t, items, 2)
		assert.EqualValues(t, burgerID, items[0]["id"])
	})
}

func TestBasketEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/basket", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, env.session, body["sessionId"])
	assert.Empty(t, body["lines"])
	assert.EqualValues(t, 0, breakdown(t, body)["total"])

	w = env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := breakdown(t, decode(t, w))
	assert.EqualValues(t, 19900, b["subtotal"])
	assert.EqualValues(t, 40, b["deliveryFee"])
	assert.EqualValues(t, 995, b["tax"])
	assert.EqualValues(t, 20935, b["total"])

	w = env.do(http.MethodPost, "/api/basket/items", `{"itemId":101,"options":null}`)
	lines := decode(t, w)["lines"].([]any)
	require.Len(t, lines, 1, "identical lines merge")
	assert.EqualValues(t, 2, lines[0].(map[string]any)["quantity"])

	w = env.do(http.MethodPost, "/api/basket/items", `{"itemId":101,"options":["Large","Extra Cheese"],"note":"well done"}`)
	lines = decode(t, w)["lines"].([]any)
	require.Len(t, lines, 2)

	w = env.do(http.MethodPut, "/api/basket/items/note", `{"itemId":101,"options":["Extra Cheese","Large"],"note":"medium"}`)
	require.Equal(t, http.StatusOK, w.Code)
	lines = decode(t, w)["lines"].([]any)
	assert.Equal(t, "medium", lines[1].(map[string]any)["note"])

	w = env.do(http.MethodPatch, "/api/basket/items", `{"itemId":101,"delta":-2}`)
	require.Equal(t, http.StatusOK, w.Code)
	lines = decode(t, w)["lines"].([]any)
	require.Len(t, lines, 1, "quantity below one removes the line")

	w = env.do(http.MethodDelete, "/api/basket/items", `{"itemId":101,"options":["Large","Extra Cheese"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["lines"])
}

func TestBasketEndpoints_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "missing body", method: http.MethodPost, status: http.StatusBadRequest},
		{name: "malformed json", method: http.MethodPost, body: `{"itemId":`, status: http.StatusBadRequest},
		{name: "missing item id", method: http.MethodPost, body: `{"note":"x"}`, status: http.StatusBadRequest},
		{name: "unknown item", method: http.MethodPost, body: `{"itemId":999}`, status: http.StatusNotFound},
		{name: "option not offered", method: http.MethodPost, body: `{"itemId":101,"options":["Gold Leaf"]}`, status: http.StatusUnprocessableEntity},
		{name: "zero delta", method: http.MethodPatch, body: `{"itemId":101,"delta":0}`, status: http.StatusBadRequest},
		{name: "delta above the line limit", method: http.MethodPatch, body: `{"itemId":101,"delta":100}`, status: http.StatusBadRequest},
		{name: "delta below the line limit", method: http.MethodPatch, body: `{"itemId":101,"delta":-100}`, status: http.StatusBadRequest},
		{name: "max int delta", method: http.MethodPatch, body: `{"itemId":101,"delta":9223372036854775807}`, status: http.StatusBadRequest},
		{name: "delta beyond int64", method: http.MethodPatch, body: `{"itemId":101,"delta":92233720368547758070}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, "/api/basket/items", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.EqualValues(t, tt.status, decode(t, w)["code"])
		})
	}

	w := env.do(http.MethodPost, "/api/basket/conflict", `{"accept":true}`)
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to resolve")
}

func TestBasketEndpoints_QuantityLimit(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)
	w := env.do(http.MethodPatch, "/api/basket/items", `{"itemId":101,"delta":99}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.EqualValues(t, basket.MaxQuantity, lines[0].(map[string]any)["quantity"])
	assert.EqualValues(t, 19900*basket.MaxQuantity, breakdown(t, body)["subtotal"])

	w = env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/basket", "")
	assert.EqualValues(t, basket.MaxQuantity, decode(t, w)["lines"].([]any)[0].(map[string]any)["quantity"])
}

func TestBasketEndpoints_VendorConflict(t *testing.T) {
	for _, accept := range []bool{true, false} {
		env := newTestEnv(t)
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)

		w := env.do(http.MethodPost, "/api/basket/items", `{"itemId":201}`)
		require.Equal(t, http.StatusConflict, w.Code)
		conflict := decode(t, w)["conflict"].(map[string]any)
		assert.EqualValues(t, 5, conflict["currentVendorId"])
		assert.EqualValues(t, 7, conflict["incomingVendorId"])

		body := decode(t, env.do(http.MethodGet, "/api/basket", ""))
		assert.Contains(t, body, "conflict")
		require.Len(t, body["lines"], 1)

		payload := `{"accept":false}`
		if accept {
			payload = `{"accept":true}`
		}
		w = env.do(http.MethodPost, "/api/basket/conflict", payload)
		require.Equal(t, http.StatusOK, w.Code)
		body = decode(t, w)
		assert.NotContains(t, body, "conflict")
		lines := body["lines"].([]any)
		require.Len(t, lines, 1)

		want := burgerID
		if accept {
			want = pizzaID
		}
		assert.EqualValues(t, want, lines[0].(map[string]any)["itemId"])
	}
}

func TestPromotionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)

	w := env.do(http.MethodPost, "/api/basket/promotion", `{"code":" welcome50 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	promo := body["promotion"].(map[string]any)
	assert.Equal(t, "applied", promo["state"])
	assert.EqualValues(t, 100, promo["amount"])
	assert.Equal(t, "coupon applied, you saved 100", promo["message"])
	basketBody := body["basket"].(map[string]any)
	assert.EqualValues(t, 20835, breakdown(t, basketBody)["total"])

	w = env.do(http.MethodPost, "/api/basket/promotion", `{"code":"BOGUS"}`)
	require.Equal(t, http.StatusOK, w.Code)
	promo = decode(t, w)["promotion"].(map[string]any)
	assert.Equal(t, "rejected", promo["state"])
	assert.Equal(t, promotion.MsgInvalidCode, promo["message"])

	body = decode(t, env.do(http.MethodGet, "/api/basket", ""))
	assert.EqualValues(t, 0, breakdown(t, body)["discount"], "a rejected code replaces the previous one")

	w = env.do(http.MethodDelete, "/api/basket/promotion", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "promotion")

	w = env.do(http.MethodPost, "/api/basket/promotion", `{"code":"WELCOME50"}`, HeaderAPIKey, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/checkout", `{"address":"12 MG Road"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty basket")

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/promotion", `{"code":"NEWUSER50"}`, HeaderAPIKey, "key-alice").Code)

	w = env.do(http.MethodPost, "/api/checkout", `{"address":"12 MG Road"}`, HeaderAPIKey, "key-viewer")
	assert.Equal(t, http.StatusForbidden, w.Code, "key without orders:write")
	w = env.do(http.MethodPost, "/api/checkout", `{"address":"  "}`, HeaderAPIKey, "key-alice")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = env.do(http.MethodPost, "/api/checkout", `{"address":"12 MG Road","paymentMethod":"barter"}`, HeaderAPIKey, "key-alice")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(http.MethodPost, "/api/checkout", `{"address":"12 MG Road","paymentMethod":"upi"}`, HeaderAPIKey, "key-alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode(t, w)
	assert.Equal(t, "placed", placed["status"])
	assert.Equal(t, "upi", placed["paymentMethod"])
	assert.Equal(t, "NEWUSER50", placed["promotionCode"])
	b := breakdown(t, placed)
	assert.EqualValues(t, 9950, b["discount"])
	assert.EqualValues(t, 19900+40+995-9950, b["total"])

	body := decode(t, env.do(http.MethodGet, "/api/basket", ""))
	assert.Empty(t, body["lines"], "checkout empties the basket")

	// Single use: the code is spent for alice.
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)
	w = env.do(http.MethodPost, "/api/basket/promotion", `{"code":"NEWUSER50"}`, HeaderAPIKey, "key-alice")
	promo := decode(t, w)["promotion"].(map[string]any)
	assert.Equal(t, promotion.MsgAlreadyUsed, promo["message"])
}

func TestOrderEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":201}`).Code)
	w := env.do(http.MethodPost, "/api/checkout", `{"address":"1 Park St"}`, HeaderAPIKey, "key-alice")
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)
	path := "/api/orders/" + id

	t.Run("history requires an account", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/orders", "").Code)

		w := env.do(http.MethodGet, "/api/orders", "", HeaderAPIKey, "key-alice")
		require.Equal(t, http.StatusOK, w.Code)
		orders := decodeList(t, w)
		require.Len(t, orders, 1)
		assert.Equal(t, id, orders[0]["id"])
	})

	t.Run("other accounts cannot see the order", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, "", HeaderAPIKey, "key-bob").Code)
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, "").Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/orders/nope", "").Code)
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/orders/"+uuid.NewString(), "").Code)
	})

	t.Run("advance then cancel", func(t *testing.T) {
		w := env.do(http.MethodPost, path+"/advance", "", HeaderAPIKey, "key-alice")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "preparing", body["status"])
		assert.EqualValues(t, 1, body["step"])

		w = env.do(http.MethodPost, path+"/cancel", "", HeaderAPIKey, "key-alice")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "cancelled", decode(t, w)["status"])

		assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path+"/advance", "", HeaderAPIKey, "key-alice").Code)
		assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, path+"/cancel", "", HeaderAPIKey, "key-alice").Code)
	})
}

func TestStorageWarning(t *testing.T) {
	env := newTestEnv(t)
	env.store.fail = true

	w := env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderBasketWarning))
	assert.Len(t, decode(t, w)["lines"], 1, "the change is applied in memory")

	env.store.fail = false
	w = env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`)
	assert.Empty(t, w.Header().Get(HeaderBasketWarning))
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":101}`).Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/session", "").Code)

	body := decode(t, env.do(http.MethodGet, "/api/basket", ""))
	assert.Empty(t, body["lines"], "the stored basket is gone")
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)
	mux := http.NewServeMux()
	h, err := NewHandler(HandlerConfig{}, &mockCatalog{}, nil, nil, nil, mockAuth{}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	h.Register(mux)
	env.handler = mux

	w := env.do(http.MethodGet, "/api/basket", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errSessionRequired.Error(), decode(t, w)["message"])
}

func TestImageURL(t *testing.T) {
	h := &Handler{imageBaseURL: "https://cdn.example"}
	assert.Equal(t, "https://cdn.example/a.jpg", h.imageURL("/a.jpg"))
	assert.Equal(t, "http://other/a.jpg", h.imageURL("http://other/a.jpg"))
	assert.Equal(t, "", h.imageURL(""))
	assert.Equal(t, "a.jpg", (&Handler{}).imageURL("a.jpg"))
}
