package capability

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// versionSeparator отделяет базовое имя capability от версии: "name@1.2.0".
const versionSeparator = "@"

// Versioned возвращает квалифицированное имя capability с версией.
// Для пустой версии возвращается базовое имя.
func Versioned(base, version string) string {
	if version == "" {
		return base
	}
	return base + versionSeparator + version
}

// SplitVersion разбирает имя capability на базовое имя и версию.
func SplitVersion(name string) (base, version string) {
	idx := strings.LastIndex(name, versionSeparator)
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// LookupCompatible ищет среди привязанных версий capability base
// наибольшую, удовлетворяющую semver-ограничению (например, "^1.2").
//
// Возвращает полное имя capability и её провайдера.
func (r *Registry) LookupCompatible(base, constraint string) (string, string, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return "", "", fmt.Errorf("%w: constraint %q: %v", ErrInvalidVersion, constraint, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best     *semver.Version
		bestName string
	)
	for name := range r.bindings {
		b, v := SplitVersion(name)
		if b != base || v == "" {
			continue
		}
		ver, err := semver.NewVersion(v)
		if err != nil {
			// имя с нестандартным суффиксом — не кандидат
			continue
		}
		if !c.Check(ver) {
			continue
		}
		if best == nil || ver.GreaterThan(best) {
			best = ver
			bestName = name
		}
	}

	if best == nil {
		return "", "", fmt.Errorf("%w: %s %s", ErrNotFound, base, constraint)
	}
	return bestName, r.bindings[bestName], nil
}
