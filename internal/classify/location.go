package classify

import (
	"regexp"
	"sort"
	"strings"
)

// Location is the province-level match plus any finer locality captured from
// auxiliary patterns. No geocoding happens here: matching is pure string work
// against the canonical province list.
type Location struct {
	Province string `json:"province,omitempty"`
	Commune  string `json:"commune,omitempty"`
}

// provinces is the canonical list of 63 Vietnamese province and city names.
var provinces = []string{
	"An Giang", "Bà Rịa - Vũng Tàu", "Bắc Giang", "Bắc Kạn", "Bạc Liêu",
	"Bắc Ninh", "Bến Tre", "Bình Định", "Bình Dương", "Bình Phước",
	"Bình Thuận", "Cà Mau", "Cần Thơ", "Cao Bằng", "Đà Nẵng",
	"Đắk Lắk", "Đắk Nông", "Điện Biên", "Đồng Nai", "Đồng Tháp",
	"Gia Lai", "Hà Giang", "Hà Nam", "Hà Nội", "Hà Tĩnh",
	"Hải Dương", "Hải Phòng", "Hậu Giang", "Hòa Bình", "Hưng Yên",
	"Khánh Hòa", "Kiên Giang", "Kon Tum", "Lai Châu", "Lâm Đồng",
	"Lạng Sơn", "Lào Cai", "Long An", "Nam Định", "Nghệ An",
	"Ninh Bình", "Ninh Thuận", "Phú Thọ", "Phú Yên", "Quảng Bình",
	"Quảng Nam", "Quảng Ngãi", "Quảng Ninh", "Quảng Trị", "Sóc Trăng",
	"Sơn La", "Tây Ninh", "Thái Bình", "Thái Nguyên", "Thanh Hóa",
	"Thừa Thiên Huế", "Tiền Giang", "TP. Hồ Chí Minh", "Trà Vinh",
	"Tuyên Quang", "Vĩnh Long", "Vĩnh Phúc", "Yên Bái",
}

// provinceAliases maps common shorthand spellings onto canonical names.
var provinceAliases = map[string]string{
	"tp.hcm":         "TP. Hồ Chí Minh",
	"tp hcm":         "TP. Hồ Chí Minh",
	"tphcm":          "TP. Hồ Chí Minh",
	"hồ chí minh":    "TP. Hồ Chí Minh",
	"sài gòn":        "TP. Hồ Chí Minh",
	"huế":            "Thừa Thiên Huế",
	"vũng tàu":       "Bà Rịa - Vũng Tàu",
	"bà rịa":         "Bà Rịa - Vũng Tàu",
	"buôn ma thuột":  "Đắk Lắk",
}

// byLength holds lowercase needles sorted longest first so the longest match
// wins (e.g. "Quảng Ninh" never loses to "Ninh Bình" fragments, aliases
// before substrings of other names).
var byLength []struct{ needle, canonical string }

var (
	communeRe = regexp.MustCompile(`(?:xã|phường|thị trấn|thôn|bản)\s+([\p{Lu}][\p{L}0-9]*(?:\s+[\p{Lu}][\p{L}0-9]*){0,3})`)
	routeRe   = regexp.MustCompile(`(?i)quốc lộ\s*(\d+[A-Za-z]?)`)
)

func init() {
	for _, p := range provinces {
		byLength = append(byLength, struct{ needle, canonical string }{strings.ToLower(p), p})
	}
	for alias, canonical := range provinceAliases {
		byLength = append(byLength, struct{ needle, canonical string }{alias, canonical})
	}
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i].needle) > len(byLength[j].needle)
	})
}

// ExtractLocation finds the province by longest-match against the canonical
// list and a finer locality (commune, village, national route) via auxiliary
// patterns.
func ExtractLocation(text string) Location {
	loc := Location{Province: matchProvince(text)}

	if m := communeRe.FindStringSubmatch(text); len(m) == 2 {
		loc.Commune = strings.TrimSpace(m[1])
	} else if m := routeRe.FindStringSubmatch(text); len(m) == 2 {
		loc.Commune = "Quốc lộ " + strings.ToUpper(m[1])
	}
	return loc
}

func matchProvince(text string) string {
	lower := strings.ToLower(text)
	for _, p := range byLength {
		if strings.Contains(lower, p.needle) {
			return p.canonical
		}
	}
	return ""
}
