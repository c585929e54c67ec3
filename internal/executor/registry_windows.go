//go:build windows

package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/HerbHall/hsnap/pkg/probe"
	"golang.org/x/sys/windows/registry"
)

const readAccess = registry.QUERY_VALUE | registry.ENUMERATE_SUB_KEYS

func hiveKey(h probe.Hive) (registry.Key, error) {
	switch h {
	case probe.HiveLocalMachine:
		return registry.LOCAL_MACHINE, nil
	case probe.HiveCurrentUser:
		return registry.CURRENT_USER, nil
	case probe.HiveUsers:
		return registry.USERS, nil
	case probe.HiveClassesRoot:
		return registry.CLASSES_ROOT, nil
	default:
		return 0, fmt.Errorf("executor: unknown registry hive %q", h)
	}
}

func readRegistry(ctx context.Context, s probe.RegistryRead, maxOutput int64) ([]probe.RegistryEntry, error) {
	root, err := hiveKey(s.Hive)
	if err != nil {
		return nil, err
	}
	key, err := registry.OpenKey(root, s.Key, readAccess)
	if err != nil {
		return nil, fmt.Errorf("open %s\\%s: %w", s.Hive, s.Key, err)
	}
	defer key.Close()

	if !s.Subkeys {
		values, err := readValues(key, s.ValueNames)
		if err != nil {
			return nil, err
		}
		return []probe.RegistryEntry{{Key: s.Key, Values: values}}, nil
	}

	names, err := key.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s\\%s: %w", s.Hive, s.Key, err)
	}
	sort.Strings(names)

	var size int64
	entries := make([]probe.RegistryEntry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.Key + `\` + name
		sub, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
		if err != nil {
			// Subkeys can vanish between enumeration and open.
			if errors.Is(err, registry.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open %s\\%s: %w", s.Hive, path, err)
		}
		values, err := readValues(sub, s.ValueNames)
		sub.Close()
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			size += int64(len(k) + len(v))
		}
		if size > maxOutput {
			return nil, fmt.Errorf("%w: %s\\%s", ErrOutputTooLarge, s.Hive, s.Key)
		}
		entries = append(entries, probe.RegistryEntry{Key: path, Values: values})
	}
	return entries, nil
}

// readValues reads the named values, skipping absent ones. String, expand
// string, multi-string and integer values are rendered as text.
func readValues(k registry.Key, names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		s, _, err := k.GetStringValue(name)
		if err == nil {
			values[name] = s
			continue
		}
		if errors.Is(err, registry.ErrNotExist) {
			continue
		}
		if errors.Is(err, registry.ErrUnexpectedType) {
			if n, _, ierr := k.GetIntegerValue(name); ierr == nil {
				values[name] = strconv.FormatUint(n, 10)
				continue
			}
			if ss, _, serr := k.GetStringsValue(name); serr == nil {
				values[name] = strings.Join(ss, "\n")
				continue
			}
			continue
		}
		return nil, fmt.Errorf("read value %q: %w", name, err)
	}
	return values, nil
}
