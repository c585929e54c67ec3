package engine

import "github.com/HerbHall/hsnap/pkg/purl"

// merge concatenates outcomes in registry order and de-duplicates.
func merge(outcomes []outcome) *Inventory {
	inv := &Inventory{Plugins: make([]PluginReport, 0, len(outcomes))}
	var all []purl.PackageURL
	for _, o := range outcomes {
		inv.Plugins = append(inv.Plugins, o.report)
		all = append(all, o.pkgs...)
	}
	inv.Packages, inv.Duplicates = Dedupe(all)
	return inv
}

// Dedupe drops packages whose Key was already seen. The first occurrence
// and its qualifiers are kept; relative order is preserved.
func Dedupe(pkgs []purl.PackageURL) ([]purl.PackageURL, int) {
	seen := make(map[purl.Key]struct{}, len(pkgs))
	out := make([]purl.PackageURL, 0, len(pkgs))
	for _, p := range pkgs {
		k := p.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out, len(pkgs) - len(out)
}

// Strings returns the canonical serialization of every package.
func (inv *Inventory) Strings() []string {
	out := make([]string, len(inv.Packages))
	for i, p := range inv.Packages {
		out[i] = p.String()
	}
	return out
}
