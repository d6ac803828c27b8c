package feature

import (
	"hash/fnv"
	"strings"
)

// hashBucket encodes an open-ended string as a coarse numeric proxy:
// FNV-1a hash mod 1000, scaled into [0,1). This is a lossy bucketing used
// only as a categorical-to-numeric encoding — two different strings may
// collide, and no cryptographic stability is claimed. Empty strings encode
// as 0 so a missing field reads as the default.
func hashBucket(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(s))
	return float64(h.Sum32()%1000) / 1000.0
}

// Bounded vocabularies get stable explicit indexes instead of hashing, so a
// known category never collides with another. Unknown values fall back to
// the hash bucket.

var platformTable = map[string]int{
	"win32":        1,
	"win64":        2,
	"windows":      3,
	"macintel":     4,
	"macos":        5,
	"linux x86_64": 6,
	"linux":        7,
	"android":      8,
	"iphone":       9,
	"ipad":         10,
	"chromeos":     11,
}

var languageTable = map[string]int{
	"en-us": 1,
	"en-gb": 2,
	"en":    3,
	"es":    4,
	"fr":    5,
	"de":    6,
	"pt-br": 7,
	"zh-cn": 8,
	"ja":    9,
	"hi":    10,
	"ar":    11,
	"ru":    12,
}

var vendorTable = map[string]int{
	"google inc.":           1,
	"intel inc.":            2,
	"intel":                 3,
	"nvidia corporation":    4,
	"nvidia":                5,
	"amd":                   6,
	"ati technologies inc.": 7,
	"apple inc.":            8,
	"apple":                 9,
	"qualcomm":              10,
	"arm":                   11,
	"microsoft":             12,
	"vmware, inc.":          13,
	"mesa/x.org":            14,
}

func tableIndex(table map[string]int, s string) float64 {
	if s == "" {
		return 0
	}
	if idx, ok := table[strings.ToLower(s)]; ok {
		return float64(idx) / float64(len(table)+1)
	}
	return hashBucket(s)
}

func platformIndex(s string) float64 { return tableIndex(platformTable, s) }
func languageIndex(s string) float64 { return tableIndex(languageTable, s) }
func vendorIndex(s string) float64   { return tableIndex(vendorTable, s) }
