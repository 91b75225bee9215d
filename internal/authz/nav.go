package authz

// NavItem はナビゲーション項目1件分の表示設定を表す。
type NavItem struct {
	Label         string `toml:"label" json:"label"`
	Path          string `toml:"path" json:"path"`
	RequiresAuth  bool   `toml:"requires_auth" json:"-"`
	RequiresAdmin bool   `toml:"requires_admin" json:"-"`
}

// NavGroup は順序を持つナビゲーション項目のグループ。
// 宣言順がそのまま画面上の表示順になる。
type NavGroup struct {
	Label string    `toml:"label" json:"label"`
	Items []NavItem `toml:"item" json:"items"`
}

// VisibleItems はロールと認証状態に応じて表示可能なナビゲーション項目を返す。
// ゲートのルール3〜4と同じ述語を使用するが、リダイレクトではなく包含を生成する。
// グループ・項目の宣言順は厳密に保持される。表示項目が1つもないグループは除外する。
// 純粋関数であり、I/Oは行わない。
func VisibleItems(groups []NavGroup, role Role, authenticated bool) []NavGroup {
	var visible []NavGroup
	for _, g := range groups {
		var items []NavItem
		for _, item := range g.Items {
			if itemVisible(item, role, authenticated) {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			visible = append(visible, NavGroup{Label: g.Label, Items: items})
		}
	}
	return visible
}

// itemVisible はナビゲーション項目1件の表示可否を判定する。
// ゲートの判定と同じ条件で、AuthPageを持たない項目に対する
// Decide(authenticated, role, req) == DecisionAllow と等価。
func itemVisible(item NavItem, role Role, authenticated bool) bool {
	req := Requirement{
		Path:          item.Path,
		RequiresAuth:  item.RequiresAuth,
		RequiresAdmin: item.RequiresAdmin,
	}
	return Decide(authenticated, role, req) == DecisionAllow
}
