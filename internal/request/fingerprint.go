package request

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
)

// Normalize returns a canonical copy of p: trimmed and lower-cased fields,
// locale separators unified to '-', feature flags de-duplicated and sorted.
func Normalize(p Params) Params {
	out := Params{
		Capability:   backend.Capability(canon(string(p.Capability))),
		ContentClass: canon(p.ContentClass),
		Topic:        strings.Join(strings.Fields(canon(p.Topic)), " "),
		AgeBracket:   strings.ReplaceAll(canon(p.AgeBracket), " ", ""),
		Locale:       strings.ReplaceAll(canon(p.Locale), "_", "-"),
	}

	if len(p.Features) > 0 {
		seen := make(map[string]struct{}, len(p.Features))
		features := make([]string, 0, len(p.Features))
		for _, f := range p.Features {
			f = canon(f)
			if f == "" {
				continue
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			features = append(features, f)
		}
		sort.Strings(features)
		out.Features = features
	}

	return out
}

// Fingerprint hashes the normalized form of p. It is pure: callers may pass
// raw params, normalization happens first. Every field is length-prefixed,
// so no field value can imitate a boundary.
func Fingerprint(p Params) string {
	n := Normalize(p)

	var b []byte
	b = appendField(b, string(n.Capability))
	b = appendField(b, n.ContentClass)
	b = appendField(b, n.Topic)
	b = appendField(b, n.AgeBracket)
	b = appendField(b, n.Locale)
	b = strconv.AppendInt(b, int64(len(n.Features)), 10)
	for _, f := range n.Features {
		b = appendField(b, f)
	}

	return leftPad(strconv.FormatUint(xxhash.Sum64(b), 16), 16)
}

func appendField(b []byte, s string) []byte {
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ':')
	return append(b, s...)
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
