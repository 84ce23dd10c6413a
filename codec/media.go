package codec

import (
	"mime"
	"sort"
	"strings"

	"github.com/munnerz/goautoneg"
)

const (
	specificAny = iota
	specificSubtype
	specificConcrete
)

// BaseType returns the lower-cased type/subtype of a media type with
// parameters removed.
func BaseType(mediaType string) string {
	if t, _, err := mime.ParseMediaType(mediaType); err == nil {
		if t == "*" {
			return "*/*"
		}
		return t
	}
	t := strings.ToLower(strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0]))
	if t == "*" {
		return "*/*"
	}
	return t
}

func split(mediaType string) (string, string) {
	typ, sub, ok := strings.Cut(BaseType(mediaType), "/")
	if !ok {
		return typ, ""
	}
	return typ, sub
}

// Specificity ranks a media type: 2 for type/subtype, 1 for type/* and
// suffix wildcards, 0 for */*.
func Specificity(mediaType string) int {
	typ, sub := split(mediaType)
	switch {
	case typ == "*":
		return specificAny
	case sub == "*" || strings.HasPrefix(sub, "*+"):
		return specificSubtype
	default:
		return specificConcrete
	}
}

// MediaIncludes reports whether pattern includes mediaType, for instance
// text/* includes text/plain. A concrete pattern does not include a wildcard.
func MediaIncludes(pattern, mediaType string) bool {
	pt, ps := split(pattern)
	mt, ms := split(mediaType)
	if pt == "*" {
		return true
	}
	if pt != mt {
		return false
	}
	if ps == "*" || ps == ms {
		return true
	}
	if strings.HasPrefix(ps, "*+") {
		return strings.HasSuffix(ms, ps[1:])
	}
	return false
}

// ParseAccept flattens Accept style lists (each entry may hold several comma
// separated media ranges with q-values) into media ranges ordered by
// preference: higher q first, then most specific first, then listing order.
// Ranges with q=0 are dropped.
func ParseAccept(accepted []string) []string {
	type ranked struct {
		mediaType string
		q         float64
		spec      int
		pos       int
	}
	var all []ranked
	for _, entry := range accepted {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		for _, a := range goautoneg.ParseAccept(entry) {
			if a.Q <= 0 {
				continue
			}
			mt := strings.ToLower(a.Type + "/" + a.SubType)
			all = append(all, ranked{mediaType: mt, q: a.Q, spec: Specificity(mt), pos: len(all)})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].q != all[j].q {
			return all[i].q > all[j].q
		}
		if all[i].spec != all[j].spec {
			return all[i].spec > all[j].spec
		}
		return all[i].pos < all[j].pos
	})
	out := make([]string, 0, len(all))
	seen := map[string]bool{}
	for _, r := range all {
		if seen[r.mediaType] {
			continue
		}
		seen[r.mediaType] = true
		out = append(out, r.mediaType)
	}
	return out
}
