package domain

// Feature names form the closed universe of permissioned capabilities.
const (
	FeaturePondManage = "pond_manage"
	FeatureFishStock  = "fish_stock"
	FeatureFeedManage = "feed_manage"
	FeatureTaskManage = "task_manage"
	FeatureReportView = "report_view"
	FeatureBankManage = "bank_manage"
	FeatureUserManage = "user_manage"
	FeatureChat       = "chat"
)

// Features enumerates the full template universe. Overrides may only name
// features listed here.
var Features = []string{
	FeaturePondManage,
	FeatureFishStock,
	FeatureFeedManage,
	FeatureTaskManage,
	FeatureReportView,
	FeatureBankManage,
	FeatureUserManage,
	FeatureChat,
}

// Permission flag names.
const (
	FlagEnabled  = "enabled"
	FlagEntitled = "entitled"
	FlagEdit     = "edit"
	FlagView     = "view"
)

// FeatureFlags is the four-flag capability cell for one feature.
type FeatureFlags struct {
	Enabled  bool `json:"enabled"`
	Entitled bool `json:"entitled"`
	Edit     bool `json:"edit"`
	View     bool `json:"view"`
}

// Flag returns the named flag; unknown names are false.
func (f FeatureFlags) Flag(name string) bool {
	switch name {
	case FlagEnabled:
		return f.Enabled
	case FlagEntitled:
		return f.Entitled
	case FlagEdit:
		return f.Edit
	case FlagView:
		return f.View
	}
	return false
}

// PermissionMatrix is the dense effective capability set for a (user, account)
// pair, covering every template feature.
type PermissionMatrix map[string]FeatureFlags

// Template returns the all-false base matrix over the full feature universe.
func Template() PermissionMatrix {
	m := make(PermissionMatrix, len(Features))
	for _, f := range Features {
		m[f] = FeatureFlags{}
	}
	return m
}

// KnownFeature reports whether name belongs to the template universe.
func KnownFeature(name string) bool {
	for _, f := range Features {
		if f == name {
			return true
		}
	}
	return false
}

var fullAccess = FeatureFlags{Enabled: true, Entitled: true, Edit: true, View: true}
var viewOnly = FeatureFlags{Enabled: true, Entitled: true, View: true}

// roleOverlays holds the sparse role-default layer: only features a role
// deviates on are listed, and only true flags matter. Silence inherits the
// template value.
var roleOverlays = map[Role]map[string]FeatureFlags{
	RoleOwner: {
		FeaturePondManage: fullAccess,
		FeatureFishStock:  fullAccess,
		FeatureFeedManage: fullAccess,
		FeatureTaskManage: fullAccess,
		FeatureReportView: fullAccess,
		FeatureBankManage: fullAccess,
		FeatureUserManage: fullAccess,
		FeatureChat:       fullAccess,
	},
	RoleManager: {
		FeaturePondManage: fullAccess,
		FeatureFishStock:  fullAccess,
		FeatureFeedManage: fullAccess,
		FeatureTaskManage: fullAccess,
		FeatureReportView: fullAccess,
		FeatureUserManage: fullAccess,
		FeatureChat:       fullAccess,
	},
	RoleSupervisor: {
		FeaturePondManage: fullAccess,
		FeatureFishStock:  fullAccess,
		FeatureFeedManage: fullAccess,
		FeatureTaskManage: fullAccess,
		FeatureReportView: viewOnly,
		FeatureChat:       fullAccess,
	},
	RoleAnalyst: {
		FeaturePondManage: viewOnly,
		FeatureFishStock:  viewOnly,
		FeatureFeedManage: viewOnly,
		FeatureTaskManage: viewOnly,
		FeatureReportView: fullAccess,
		FeatureChat:       fullAccess,
	},
	RoleAccountant: {
		FeatureBankManage: fullAccess,
		FeatureReportView: viewOnly,
		FeatureChat:       fullAccess,
	},
	RoleFeeder: {
		FeatureFeedManage: fullAccess,
		FeaturePondManage: viewOnly,
		FeatureTaskManage: viewOnly,
		FeatureChat:       viewOnly,
	},
	RoleWorker: {
		FeaturePondManage: viewOnly,
		FeatureFeedManage: {Enabled: true, Entitled: true, Edit: true, View: true},
		FeatureTaskManage: viewOnly,
		FeatureChat:       viewOnly,
	},
}

// RoleOverlay returns the sparse default layer for a role. Unknown roles get
// an empty overlay, leaving the all-false template in force.
func RoleOverlay(role Role) map[string]FeatureFlags {
	return roleOverlays[role]
}

// Sparse returns only the true flags, the shape the override store persists.
func (f FeatureFlags) Sparse() map[string]bool {
	out := make(map[string]bool, 4)
	if f.Enabled {
		out[FlagEnabled] = true
	}
	if f.Entitled {
		out[FlagEntitled] = true
	}
	if f.Edit {
		out[FlagEdit] = true
	}
	if f.View {
		out[FlagView] = true
	}
	return out
}

// Merge overlays the true flags of other onto f. Flags absent from other are
// inherited, never cleared; this is the precedence rule the sparse-storage
// design depends on.
func (f FeatureFlags) Merge(other map[string]bool) FeatureFlags {
	if other[FlagEnabled] {
		f.Enabled = true
	}
	if other[FlagEntitled] {
		f.Entitled = true
	}
	if other[FlagEdit] {
		f.Edit = true
	}
	if other[FlagView] {
		f.View = true
	}
	return f
}

// ValidFlag reports whether name is one of the four known flag names.
func ValidFlag(name string) bool {
	switch name {
	case FlagEnabled, FlagEntitled, FlagEdit, FlagView:
		return true
	}
	return false
}

// PermissionOverride is the persisted sparse per-user layer. Only true flags
// are stored; a missing feature or flag means "inherit from the role layer".
type PermissionOverride struct {
	UserID        string                     `json:"user_id"`
	AccountID     string                     `json:"account_id"`
	Flags         map[string]map[string]bool `json:"flags"`
	AssignedPonds []string                   `json:"assigned_ponds"`
	UpdatedBy     string                     `json:"updated_by"`
	UpdatedAt     int64                      `json:"updated_at"`
}
