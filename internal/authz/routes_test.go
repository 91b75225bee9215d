package authz

import (
	"strings"
	"testing"
)

const testRoutesTOML = `
[[route]]
path = "/"
group = "public"

[[route]]
path = "/signin"
group = "auth"
auth_page = true

[[route]]
path = "/dashboard"
requires_auth = true
group = "app"

[[route]]
path = "/admin"
requires_admin = true
group = "admin"

[[route]]
path = "/admin/users"
requires_admin = true
group = "admin"

[[nav.group]]
label = "メイン"

  [[nav.group.item]]
  label = "ホーム"
  path = "/"

  [[nav.group.item]]
  label = "ダッシュボード"
  path = "/dashboard"
  requires_auth = true

[[nav.group]]
label = "管理"

  [[nav.group.item]]
  label = "ユーザー管理"
  path = "/admin/users"
  requires_admin = true
`

func mustParseTable(t *testing.T, data string) *Table {
	t.Helper()
	table, err := ParseTable([]byte(data))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}
	return table
}

func TestParseTable_EmbeddedDefault(t *testing.T) {
	table, err := LoadTable("")
	if err != nil {
		t.Fatalf("LoadTable with embedded default failed: %v", err)
	}
	if len(table.Nav()) == 0 {
		t.Error("embedded default should declare nav groups")
	}

	req := table.Match("/dashboard")
	if !req.RequiresAuth {
		t.Error("/dashboard should require auth in embedded default")
	}
}

func TestParseTable_InvalidPath_ReturnsError(t *testing.T) {
	_, err := ParseTable([]byte(`
[[route]]
path = "dashboard"
`))
	if err == nil {
		t.Fatal("expected error for path without leading slash")
	}
	if !strings.Contains(err.Error(), "must start with '/'") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseTable_RequiresAdminImpliesRequiresAuth(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	req := table.Match("/admin")
	if !req.RequiresAdmin {
		t.Error("expected RequiresAdmin")
	}
	if !req.RequiresAuth {
		t.Error("RequiresAdmin must imply RequiresAuth after normalization")
	}
}

func TestMatch_ExactAndSegmentPrefix(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	cases := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/dashboard", "/dashboard"},
		{"/dashboard/", "/dashboard"},
		{"/dashboard/weekly", "/dashboard"},
		{"/admin", "/admin"},
		{"/admin/users", "/admin/users"},
		{"/admin/users/42", "/admin/users"},
		{"/admin/stats", "/admin"},
	}

	for _, c := range cases {
		got := table.Match(c.path)
		if got.Path != c.want {
			t.Errorf("Match(%q).Path = %q, want %q", c.path, got.Path, c.want)
		}
	}
}

func TestMatch_PrefixRequiresSegmentBoundary(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	// /dashboardx は /dashboard のセグメント境界を満たさない
	req := table.Match("/dashboardx")
	if req.Path == "/dashboard" {
		t.Error("/dashboardx must not match /dashboard")
	}
	if !req.RequiresAuth {
		t.Error("unmatched path must default to requiring auth")
	}
}

func TestMatch_UnknownPath_FailsClosed(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	req := table.Match("/unknown/path")
	if !req.RequiresAuth {
		t.Error("undeclared paths must require auth")
	}
	if req.RequiresAdmin {
		t.Error("undeclared paths must not require admin")
	}
	if req.AuthPage {
		t.Error("undeclared paths must not be auth pages")
	}
}

func TestMatch_RootRouteIsNotCatchAll(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	// "/" が公開でも未宣言経路には波及しない
	if req := table.Match("/"); req.RequiresAuth {
		t.Error("/ should be public")
	}
	if req := table.Match("/secret"); !req.RequiresAuth {
		t.Error("/secret must not inherit the public root route")
	}
}

func TestMatch_EmptyPath_NormalizesToRoot(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	req := table.Match("")
	if req.Path != "/" {
		t.Errorf("empty path should normalize to /, got %q", req.Path)
	}
}

func TestNav_PreservesDeclarationOrder(t *testing.T) {
	table := mustParseTable(t, testRoutesTOML)

	nav := table.Nav()
	if len(nav) != 2 {
		t.Fatalf("expected 2 nav groups, got %d", len(nav))
	}
	if nav[0].Label != "メイン" || nav[1].Label != "管理" {
		t.Errorf("nav group order not preserved: %q, %q", nav[0].Label, nav[1].Label)
	}
	if nav[0].Items[0].Path != "/" || nav[0].Items[1].Path != "/dashboard" {
		t.Error("nav item order not preserved within group")
	}
}

func TestParseTable_InvalidTOML_ReturnsError(t *testing.T) {
	if _, err := ParseTable([]byte("[[route]\npath=")); err == nil {
		t.Fatal("expected parse error for malformed TOML")
	}
}
