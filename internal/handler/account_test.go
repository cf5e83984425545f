package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tiffin/internal/domain/account"
)

// mockAccounts implements the profile, favorite and review repositories.
type mockAccounts struct {
	mu        sync.Mutex
	profiles  map[string]account.Profile
	addresses []account.Address
	favorites map[string][]int64
	reviews   []account.Review
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{
		profiles:  map[string]account.Profile{},
		favorites: map[string][]int64{},
	}
}

func (m *mockAccounts) GetProfile(_ context.Context, accountID string) (*account.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return nil, account.ErrProfileNotFound
	}
	return &p, nil
}

func (m *mockAccounts) SaveProfile(_ context.Context, p account.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Addresses = nil
	m.profiles[p.AccountID] = p
	return nil
}

func (m *mockAccounts) ListAddresses(_ context.Context, accountID string) ([]account.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []account.Address
	for _, a := range m.addresses {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAccounts) AddAddress(_ context.Context, a account.Address, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, x := range m.addresses {
		if x.AccountID == a.AccountID {
			n++
		}
	}
	if n >= limit {
		return account.ErrAddressLimit
	}
	m.addresses = append(m.addresses, a)
	return nil
}

func (m *mockAccounts) RemoveAddress(_ context.Context, accountID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.addresses {
		if a.ID == id && a.AccountID == accountID {
			m.addresses = append(m.addresses[:i], m.addresses[i+1:]...)
			return nil
		}
	}
	return account.ErrAddressNotFound
}

func (m *mockAccounts) ListFavorites(_ context.Context, accountID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.favorites[accountID]
	out := make([]int64, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, ids[i])
	}
	return out, nil
}

func (m *mockAccounts) AddFavorite(_ context.Context, accountID string, vendorID int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.favorites[accountID] {
		if id == vendorID {
			return nil
		}
	}
	m.favorites[accountID] = append(m.favorites[accountID], vendorID)
	return nil
}

func (m *mockAccounts) RemoveFavorite(_ context.Context, accountID string, vendorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.favorites[accountID]
	for i, id := range ids {
		if id == vendorID {
			m.favorites[accountID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockAccounts) SaveReview(_ context.Context, r *account.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.reviews {
		if old.VendorID == r.VendorID && old.AccountID == r.AccountID {
			r.ID, r.CreatedAt = old.ID, old.CreatedAt
			m.reviews[i] = *r
			return nil
		}
	}
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *mockAccounts) ListReviews(_ context.Context, vendorID int64, limit int) ([]account.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []account.Review
	for i := len(m.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		if m.reviews[i].VendorID == vendorID {
			out = append(out, m.reviews[i])
		}
	}
	return out, nil
}

func (m *mockAccounts) Summary(_ context.Context, vendorID int64) (account.ReviewSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		sum   account.ReviewSummary
		total int64
	)
	for _, r := range m.reviews {
		if r.VendorID == vendorID {
			sum.Count++
			total += int64(r.Rating)
		}
	}
	if sum.Count > 0 {
		sum.Average = decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(sum.Count))).Round(1)
	}
	return sum, nil
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := []string{HeaderAPIKey, "key-alice"}

	t.Run("empty profile", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/profile", "", alice...)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "alice", body["accountId"])
		assert.Equal(t, "", body["displayName"])
		assert.Empty(t, body["addresses"])
	})

	t.Run("partial update", func(t *testing.T) {
		w := env.do(http.MethodPatch, "/api/profile", `{"displayName":" Asha ","preferences":{"cuisines":["Italian","italian","Chinese"]}}`, alice...)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = env.do(http.MethodPatch, "/api/profile", `{"preferences":{"vegetarian":true}}`, alice...)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, env.do(http.MethodGet, "/api/profile", "", alice...))
		assert.Equal(t, "Asha", body["displayName"])
		prefs := body["preferences"].(map[string]any)
		assert.Equal(t, true, prefs["vegetarian"])
		assert.Equal(t, []any{"Italian", "Chinese"}, prefs["cuisines"])
	})

	t.Run("addresses", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/profile/addresses", `{"label":"Home","address":"12 MG Road"}`, alice...)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		id := decode(t, w)["id"].(string)

		body := decode(t, env.do(http.MethodGet, "/api/profile", "", alice...))
		addrs := body["addresses"].([]any)
		require.Len(t, addrs, 1)
		assert.Equal(t, "12 MG Road", addrs[0].(map[string]any)["address"])

		w = env.do(http.MethodDelete, "/api/profile/addresses/"+id, "", HeaderAPIKey, "key-bob")
		assert.Equal(t, http.StatusNotFound, w.Code, "other account")
		w = env.do(http.MethodDelete, "/api/profile/addresses/"+id, "", alice...)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = env.do(http.MethodDelete, "/api/profile/addresses/"+id, "", alice...)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("address limit", func(t *testing.T) {
		for i := 0; i < account.MaxAddresses; i++ {
			w := env.do(http.MethodPost, "/api/profile/addresses", `{"label":"Work","address":"1 Park St"}`, HeaderAPIKey, "key-bob")
			require.Equal(t, http.StatusCreated, w.Code)
		}
		w := env.do(http.MethodPost, "/api/profile/addresses", `{"label":"Work","address":"1 Park St"}`, HeaderAPIKey, "key-bob")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestProfileEndpoints_Errors(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", account.MaxDisplayName+1)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		key    string
		want   int
	}{
		{name: "guest profile", method: http.MethodGet, path: "/api/profile", want: http.StatusUnauthorized},
		{name: "bad key", method: http.MethodGet, path: "/api/profile", key: "nope", want: http.StatusUnauthorized},
		{name: "guest update", method: http.MethodPatch, path: "/api/profile", body: `{"displayName":"x"}`, want: http.StatusUnauthorized},
		{name: "long name", method: http.MethodPatch, path: "/api/profile", body: `{"displayName":"` + long + `"}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "cuisines not an array", method: http.MethodPatch, path: "/api/profile", body: `{"preferences":{"cuisines":"Italian"}}`, key: "key-alice", want: http.StatusBadRequest},
		{name: "empty body", method: http.MethodPatch, path: "/api/profile", key: "key-alice", want: http.StatusBadRequest},
		{name: "missing label", method: http.MethodPost, path: "/api/profile/addresses", body: `{"address":"12 MG Road"}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "missing address", method: http.MethodPost, path: "/api/profile/addresses", body: `{"label":"Home"}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "malformed address id", method: http.MethodDelete, path: "/api/profile/addresses/123", key: "key-alice", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.key != "" {
				header = []string{HeaderAPIKey, tt.key}
			}
			w := env.do(tt.method, tt.path, tt.body, header...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestFavoriteEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := []string{HeaderAPIKey, "key-alice"}

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/favorites", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPut, "/api/favorites/5", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/api/favorites/99", "", alice...).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/favorites/abc", "", alice...).Code)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/api/favorites/5", "", alice...).Code)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/api/favorites/7", "", alice...).Code)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/api/favorites/5", "", alice...).Code)

	w := env.do(http.MethodGet, "/api/favorites", "", alice...)
	require.Equal(t, http.StatusOK, w.Code)
	vendors := decodeList(t, w)
	require.Len(t, vendors, 2)
	assert.EqualValues(t, 7, vendors[0]["id"])
	assert.Equal(t, "https://cdn.example/vendors/5.jpg", vendors[1]["image"])

	assert.Empty(t, decodeList(t, env.do(http.MethodGet, "/api/favorites", "", HeaderAPIKey, "key-bob")))

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/favorites/7", "", alice...).Code)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/favorites/7", "", alice...).Code)
	vendors = decodeList(t, env.do(http.MethodGet, "/api/favorites", "", alice...))
	require.Len(t, vendors, 1)
	assert.EqualValues(t, 5, vendors[0]["id"])
}

func TestReviewEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := []string{HeaderAPIKey, "key-alice"}

	body := decode(t, env.do(http.MethodGet, "/api/vendors/5/reviews", ""))
	assert.EqualValues(t, 0, body["count"])
	assert.Empty(t, body["reviews"])

	require.Equal(t, http.StatusOK, env.do(http.MethodPatch, "/api/profile", `{"displayName":"Asha"}`, alice...).Code)

	w := env.do(http.MethodPost, "/api/vendors/5/reviews", `{"rating":5,"comment":"Great burgers"}`, alice...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	posted := decode(t, w)
	assert.Equal(t, "Asha", posted["author"])

	w = env.do(http.MethodPost, "/api/vendors/5/reviews", `{"rating":2,"comment":"Soggy fries"}`, HeaderAPIKey, "key-bob")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "bob", decode(t, w)["author"])

	w = env.do(http.MethodGet, "/api/vendors/5/reviews", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, 3.5, body["average"])
	reviews := body["reviews"].([]any)
	require.Len(t, reviews, 2)
	assert.Equal(t, "Soggy fries", reviews[0].(map[string]any)["comment"])

	t.Run("posting again replaces the review", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/vendors/5/reviews", `{"rating":3,"comment":"Better now"}`, alice...)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, posted["id"], decode(t, w)["id"])
		body := decode(t, env.do(http.MethodGet, "/api/vendors/5/reviews", ""))
		assert.EqualValues(t, 2, body["count"])
		assert.Equal(t, 2.5, body["average"])
	})

	for _, tt := range []struct {
		name string
		path string
		body string
		key  string
		want int
	}{
		{name: "guest", path: "/api/vendors/5/reviews", body: `{"rating":4,"comment":"ok"}`, want: http.StatusUnauthorized},
		{name: "rating zero", path: "/api/vendors/5/reviews", body: `{"rating":0,"comment":"ok"}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "rating six", path: "/api/vendors/5/reviews", body: `{"rating":6,"comment":"ok"}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "fractional rating", path: "/api/vendors/5/reviews", body: `{"rating":4.5,"comment":"ok"}`, key: "key-alice", want: http.StatusBadRequest},
		{name: "blank comment", path: "/api/vendors/5/reviews", body: `{"rating":4,"comment":"  "}`, key: "key-alice", want: http.StatusUnprocessableEntity},
		{name: "unknown vendor", path: "/api/vendors/99/reviews", body: `{"rating":4,"comment":"ok"}`, key: "key-alice", want: http.StatusNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.key != "" {
				header = []string{HeaderAPIKey, tt.key}
			}
			w := env.do(http.MethodPost, tt.path, tt.body, header...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/vendors/99/reviews", "").Code)
}

func TestCheckoutEndpoint_SavedAddress(t *testing.T) {
	env := newTestEnv(t)
	alice := []string{HeaderAPIKey, "key-alice"}

	w := env.do(http.MethodPost, "/api/profile/addresses", `{"label":"Office","address":"4 Residency Road"}`, alice...)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/basket/items", `{"itemId":201}`).Code)

	for _, tt := range []struct {
		name string
		body string
		key  []string
		want int
	}{
		{name: "malformed id", body: `{"addressId":"home"}`, key: alice, want: http.StatusBadRequest},
		{name: "guest", body: `{"addressId":"` + id + `"}`, want: http.StatusUnauthorized},
		{name: "other account", body: `{"addressId":"` + id + `"}`, key: []string{HeaderAPIKey, "key-bob"}, want: http.StatusNotFound},
		{name: "unknown id", body: `{"addressId":"` + uuid.NewString() + `"}`, key: alice, want: http.StatusNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/checkout", tt.body, tt.key...)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w = env.do(http.MethodPost, "/api/checkout", `{"addressId":"`+id+`","address":"ignored"}`, alice...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "4 Residency Road", decode(t, w)["address"])
}
