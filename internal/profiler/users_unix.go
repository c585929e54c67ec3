//go:build !windows

package profiler

import (
	"context"
	"fmt"
	"os"

	"github.com/HerbHall/hsnap/pkg/models"
)

// Users reads local accounts from /etc/passwd and their groups from
// /etc/group. A missing group file leaves every user without groups.
func (p *Profiler) Users(context.Context) ([]models.User, error) {
	pw, err := os.ReadFile(p.path("/etc/passwd"))
	if err != nil {
		return []models.User{}, fmt.Errorf("passwd: %w", err)
	}
	var groups groupTable
	gr, gerr := os.ReadFile(p.path("/etc/group"))
	if gerr == nil {
		groups = parseGroup(gr)
	} else {
		groups = parseGroup(nil)
	}
	users := buildUsers(parsePasswd(pw), groups)
	if gerr != nil {
		return users, fmt.Errorf("group: %w", gerr)
	}
	return users, nil
}
