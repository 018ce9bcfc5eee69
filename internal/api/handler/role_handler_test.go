package handler

import (
	"net/http"
	"testing"
)

func TestRoleHandler_List(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/roles", "")
	if err := NewRoleHandler().List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp []roleResponse
	decodeBody(t, rec, &resp)

	want := []string{"admin", "manager", "user", "guest"}
	if len(resp) != len(want) {
		t.Fatalf("expected %d roles, got %d", len(want), len(resp))
	}
	for i, name := range want {
		if resp[i].Name != name {
			t.Fatalf("role %d: expected %s, got %s", i, name, resp[i].Name)
		}
	}
	if len(resp[0].Permissions) != 6 || len(resp[3].Permissions) != 0 {
		t.Fatalf("unexpected permissions: %+v", resp)
	}
}
