package profiler

import (
	"context"
	"fmt"
	"os/user"

	"github.com/HerbHall/hsnap/pkg/models"
)

// Users reports the account hsnap runs as. Enumerating every local account
// needs the NetUserEnum API, which x/sys does not wrap.
func (p *Profiler) Users(context.Context) ([]models.User, error) {
	u, err := user.Current()
	if err != nil {
		return []models.User{}, fmt.Errorf("current user: %w", err)
	}
	out := models.User{Name: u.Username, ID: u.Uid, Groups: []string{}}
	ids, err := u.GroupIds()
	if err != nil {
		return []models.User{out}, fmt.Errorf("groups of %s: %w", u.Username, err)
	}
	for _, id := range ids {
		if g, err := user.LookupGroupId(id); err == nil {
			out.Groups = append(out.Groups, g.Name)
		}
	}
	return []models.User{out}, nil
}
