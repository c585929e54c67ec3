package profiler

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/HerbHall/hsnap/pkg/models"
)

type passwdEntry struct {
	name, uid, gid string
}

// parsePasswd parses passwd(5) lines. Comments, NIS "+" entries and short
// lines are skipped.
func parsePasswd(data []byte) []passwdEntry {
	var out []passwdEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '+' || line[0] == '-' {
			continue
		}
		f := strings.Split(line, ":")
		if len(f) < 4 || f[0] == "" {
			continue
		}
		out = append(out, passwdEntry{name: f[0], uid: f[2], gid: f[3]})
	}
	return out
}

type groupTable struct {
	byGID   map[string]string
	members map[string][]string
}

// parseGroup parses group(5) lines into a gid → name table and each user's
// supplementary groups, in file order.
func parseGroup(data []byte) groupTable {
	t := groupTable{byGID: map[string]string{}, members: map[string][]string{}}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '+' || line[0] == '-' {
			continue
		}
		f := strings.Split(line, ":")
		if len(f) < 4 || f[0] == "" {
			continue
		}
		if _, dup := t.byGID[f[2]]; !dup {
			t.byGID[f[2]] = f[0]
		}
		for _, m := range strings.Split(f[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				t.members[m] = append(t.members[m], f[0])
			}
		}
	}
	return t
}

// buildUsers lists every account with its primary group first, followed by
// supplementary groups without duplicates.
func buildUsers(entries []passwdEntry, groups groupTable) []models.User {
	users := make([]models.User, 0, len(entries))
	for _, e := range entries {
		u := models.User{Name: e.name, ID: e.uid, Groups: []string{}}
		seen := map[string]bool{}
		if g, ok := groups.byGID[e.gid]; ok {
			u.Groups = append(u.Groups, g)
			seen[g] = true
		}
		for _, g := range groups.members[e.name] {
			if !seen[g] {
				u.Groups = append(u.Groups, g)
				seen[g] = true
			}
		}
		users = append(users, u)
	}
	return users
}
