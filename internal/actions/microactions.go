// Package actions attaches role-gated microactions to search results: the
// small follow-up operations the UI can offer next to a hit.
package actions

import "github.com/yachtops/pms-backend/internal/auth"

// Microaction is one follow-up operation available on a result.
type Microaction struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	MinRole auth.Role `json:"-"`
}

// Catalog maps result tables to their candidate microactions.
type Catalog struct {
	byTable map[string][]Microaction
}

func NewCatalog() *Catalog {
	return &Catalog{
		byTable: map[string][]Microaction{
			"pms_equipment": {
				{Name: "view_details", Label: "View equipment", MinRole: auth.RoleCrew},
				{Name: "view_history", Label: "Maintenance history", MinRole: auth.RoleCrew},
				{Name: "log_fault", Label: "Report fault", MinRole: auth.RoleCrew},
				{Name: "create_work_order", Label: "Create work order", MinRole: auth.RoleEngineer},
				{Name: "update_running_hours", Label: "Update running hours", MinRole: auth.RoleEngineer},
			},
			"pms_parts": {
				{Name: "view_details", Label: "View part", MinRole: auth.RoleCrew},
				{Name: "check_stock", Label: "Check stock", MinRole: auth.RoleCrew},
				{Name: "order_part", Label: "Order part", MinRole: auth.RoleEngineer},
				{Name: "adjust_stock", Label: "Adjust stock", MinRole: auth.RoleChiefEngineer},
			},
			"pms_faults": {
				{Name: "view_details", Label: "View fault", MinRole: auth.RoleCrew},
				{Name: "create_work_order", Label: "Create work order", MinRole: auth.RoleEngineer},
				{Name: "resolve_fault", Label: "Mark resolved", MinRole: auth.RoleEngineer},
			},
			"pms_work_orders": {
				{Name: "view_details", Label: "View work order", MinRole: auth.RoleCrew},
				{Name: "add_note", Label: "Add note", MinRole: auth.RoleCrew},
				{Name: "assign", Label: "Assign", MinRole: auth.RoleChiefEngineer},
				{Name: "close", Label: "Close", MinRole: auth.RoleEngineer},
			},
			"search_index": {
				{Name: "view_document", Label: "Open document", MinRole: auth.RoleCrew},
			},
		},
	}
}

// ForResult returns the microactions the caller's role is allowed on a
// result from the given table.
func (c *Catalog) ForResult(table string, role auth.Role) []Microaction {
	candidates := c.byTable[table]
	allowed := make([]Microaction, 0, len(candidates))
	for _, a := range candidates {
		if role.AtLeast(a.MinRole) {
			allowed = append(allowed, a)
		}
	}
	return allowed
}
