package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Requirement は経路1件分の静的なアクセス制御設定を表す。
// 起動時に1回読み込まれ、以後イミュータブルとして扱う。
type Requirement struct {
	Path          string `toml:"path"`
	RequiresAuth  bool   `toml:"requires_auth"`
	RequiresAdmin bool   `toml:"requires_admin"`
	Group         string `toml:"group"`
	// AuthPage はサインイン・サインアップ等の認証専用ページを示す。
	// 認証済みユーザーはこれらのページからダッシュボードへ誘導される。
	AuthPage bool `toml:"auth_page"`
}

// Table は宣言順を保持した経路要件の集合。
// マッチしない経路には認証必須のデフォルトを適用する
// （フェイルクローズ: 明示的に公開された経路以外は拒否）。
type Table struct {
	routes []Requirement
	nav    []NavGroup
}

// routesFile はTOML設定ファイル全体の構造。
type routesFile struct {
	Routes []Requirement `toml:"route"`
	Nav    struct {
		Groups []NavGroup `toml:"group"`
	} `toml:"nav"`
}

//go:embed routes.toml
var defaultRoutesTOML []byte

// LoadTable は経路・ナビゲーション設定をTOMLから読み込む。
// pathが空の場合は埋め込みデフォルト設定を使用する。
// 設定はプロセス起動時に1回だけ読み込まれ、実行時の再読み込みは行わない。
func LoadTable(path string) (*Table, error) {
	data := defaultRoutesTOML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read routes file: %w", err)
		}
		data = b
	}
	return ParseTable(data)
}

// ParseTable はTOMLバイト列から経路テーブルを構築する。
func ParseTable(data []byte) (*Table, error) {
	var file routesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes config: %w", err)
	}

	for i := range file.Routes {
		r := &file.Routes[i]
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route path must start with '/': %s", r.Path)
		}
		// 管理者必須は認証必須を含意する
		if r.RequiresAdmin {
			r.RequiresAuth = true
		}
	}

	for _, g := range file.Nav.Groups {
		for _, item := range g.Items {
			if !strings.HasPrefix(item.Path, "/") {
				return nil, fmt.Errorf("nav item path must start with '/': %s", item.Path)
			}
		}
	}

	return &Table{
		routes: file.Routes,
		nav:    file.Nav.Groups,
	}, nil
}

// Match は指定パスに対する経路要件を返す。
// 宣言された経路の中から最長のプレフィックス一致（セグメント境界）を選ぶ。
// どの経路にもマッチしない場合は認証必須・管理者不要のデフォルトを返す
// （フェイルクローズ）。
func (t *Table) Match(path string) Requirement {
	path = normalizePath(path)

	var best *Requirement
	for i := range t.routes {
		r := &t.routes[i]
		if !matchesPrefix(path, r.Path) {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}

	if best != nil {
		return *best
	}

	// 未宣言の経路: 明示的に公開されるまで拒否する
	return Requirement{
		Path:         path,
		RequiresAuth: true,
	}
}

// Nav は宣言順のナビゲーショングループを返す。
func (t *Table) Nav() []NavGroup {
	return t.nav
}

// matchesPrefix はパスが経路プレフィックスにセグメント境界で一致するかを判定する。
// "/" は完全一致のみ（全経路のキャッチオールにするとフェイルクローズが崩れる）。
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// normalizePath は末尾スラッシュを除去してパスを正規化する。
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
