//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type addressResponse struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Address string `json:"address"`
}

type profileResponse struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Preferences struct {
		Vegetarian bool     `json:"vegetarian"`
		Cuisines   []string `json:"cuisines"`
	} `json:"preferences"`
	Addresses []addressResponse `json:"addresses"`
}

type reviewResponse struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewListResponse struct {
	Count   int              `json:"count"`
	Average float64          `json:"average"`
	Reviews []reviewResponse `json:"reviews"`
}

func TestProfile_UpdateAndAddresses(t *testing.T) {
	c := newClient(t).withKey(testAPIKey)

	resp := c.do(http.MethodPatch, "/api/profile", map[string]any{
		"displayName": "Demo Diner",
		"preferences": map[string]any{"vegetarian": true, "cuisines": []string{"Italian", "italian", "Burgers"}},
	})
	expectStatus(t, resp, http.StatusOK)
	p := decodeJSON[profileResponse](t, resp)
	resp.Body.Close()
	if p.DisplayName != "Demo Diner" || !p.Preferences.Vegetarian {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Preferences.Cuisines) != 2 {
		t.Errorf("cuisines: got %v, want 2 entries", p.Preferences.Cuisines)
	}

	resp = c.do(http.MethodPost, "/api/profile/addresses", map[string]string{"label": "Home", "address": "12 MG Road"})
	expectStatus(t, resp, http.StatusCreated)
	a := decodeJSON[addressResponse](t, resp)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/profile", nil)
	expectStatus(t, resp, http.StatusOK)
	p = decodeJSON[profileResponse](t, resp)
	resp.Body.Close()
	found := false
	for _, x := range p.Addresses {
		found = found || x.ID == a.ID
	}
	if !found {
		t.Fatalf("address %s missing from profile: %+v", a.ID, p.Addresses)
	}

	resp = c.do(http.MethodDelete, "/api/profile/addresses/"+a.ID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	resp = c.do(http.MethodDelete, "/api/profile/addresses/"+a.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestProfile_RequiresAPIKey(t *testing.T) {
	c := newClient(t)
	for _, path := range []string{"/api/profile", "/api/favorites"} {
		resp := c.do(http.MethodGet, path, nil)
		expectStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	}
}

func TestFavorites_AddListRemove(t *testing.T) {
	c := newClient(t).withKey(testAPIKey)

	resp := c.do(http.MethodPut, "/api/favorites/2", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	resp = c.do(http.MethodPut, "/api/favorites/999999", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/favorites", nil)
	expectStatus(t, resp, http.StatusOK)
	vendors := decodeJSON[[]vendorResponse](t, resp)
	resp.Body.Close()
	if len(vendors) == 0 || vendors[0].ID != 2 {
		t.Fatalf("expected vendor 2 first, got %+v", vendors)
	}

	resp = c.do(http.MethodDelete, "/api/favorites/2", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/favorites", nil)
	expectStatus(t, resp, http.StatusOK)
	vendors = decodeJSON[[]vendorResponse](t, resp)
	resp.Body.Close()
	for _, v := range vendors {
		if v.ID == 2 {
			t.Fatalf("vendor 2 still a favorite")
		}
	}
}

func TestReviews_PostReplacesAndSummarizes(t *testing.T) {
	c := newClient(t).withKey(testAPIKey)

	resp := c.do(http.MethodPost, "/api/vendors/3/reviews", map[string]any{"rating": 4, "comment": "Crisp dosa"})
	expectStatus(t, resp, http.StatusCreated)
	first := decodeJSON[reviewResponse](t, resp)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/vendors/3/reviews", map[string]any{"rating": 2, "comment": "Arrived cold"})
	expectStatus(t, resp, http.StatusCreated)
	second := decodeJSON[reviewResponse](t, resp)
	resp.Body.Close()
	if second.ID != first.ID {
		t.Errorf("second review should replace the first: %s != %s", second.ID, first.ID)
	}

	resp = doGet(t, "/api/vendors/3/reviews")
	expectStatus(t, resp, http.StatusOK)
	list := decodeJSON[reviewListResponse](t, resp)
	resp.Body.Close()
	if list.Count != 1 || list.Average != 2 {
		t.Fatalf("summary: got count=%d average=%v, want 1 and 2", list.Count, list.Average)
	}
	if len(list.Reviews) != 1 || list.Reviews[0].Comment != "Arrived cold" {
		t.Fatalf("unexpected reviews: %+v", list.Reviews)
	}

	resp = c.do(http.MethodPost, "/api/vendors/3/reviews", map[string]any{"rating": 9, "comment": "!"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
}

func TestCheckout_SavedAddress(t *testing.T) {
	c := newClient(t).withKey(testAPIKey)

	resp := c.do(http.MethodPost, "/api/profile/addresses", map[string]string{"label": "Office", "address": "4 Residency Road"})
	expectStatus(t, resp, http.StatusCreated)
	a := decodeJSON[addressResponse](t, resp)
	resp.Body.Close()
	t.Cleanup(func() {
		resp := c.do(http.MethodDelete, "/api/profile/addresses/"+a.ID, nil)
		resp.Body.Close()
	})

	resp = c.do(http.MethodPost, "/api/basket/items", map[string]any{"itemId": margheritaID})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/checkout", map[string]string{"addressId": a.ID})
	expectStatus(t, resp, http.StatusCreated)
	defer resp.Body.Close()

	o := decodeJSON[orderResponse](t, resp)
	if o.Address != "4 Residency Road" {
		t.Errorf("address: got %q, want saved address", o.Address)
	}
}
