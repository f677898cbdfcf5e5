package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Impact holds the figures extracted from article text. Casualty fields keep
// the maximum captured number per field so repeated mentions never undercount.
type Impact struct {
	Deaths           int     `json:"deaths,omitempty"`
	Missing          int     `json:"missing,omitempty"`
	Injured          int     `json:"injured,omitempty"`
	DamageBillionVND float64 `json:"damage_billion_vnd,omitempty"`
	Cause            string  `json:"cause,omitempty"`
	Agency           string  `json:"agency,omitempty"`
}

// numberAlt matches a figure written in digits or as a small Vietnamese
// number word ("ba người chết").
const numberAlt = `(\d+|một|hai|ba|bốn|năm|sáu|bảy|tám|chín|mười)`

var (
	deathsRe  = regexp.MustCompile(`(?i)` + numberAlt + `\s*người(?:\s+dân)?\s*(?:chết|thiệt mạng|tử vong|tử nạn)`)
	missingRe = regexp.MustCompile(`(?i)` + numberAlt + `\s*người(?:\s+dân)?\s*mất tích`)
	injuredRe = regexp.MustCompile(`(?i)` + numberAlt + `\s*người(?:\s+dân)?\s*bị thương`)

	// damageRe captures "<number> (tỷ|triệu) đồng"; both units normalise to
	// billions of VND.
	damageRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(tỷ|triệu)\s*đồng`)
)

var numberWords = map[string]float64{
	"một": 1, "hai": 2, "ba": 3, "bốn": 4, "năm": 5,
	"sáu": 6, "bảy": 7, "tám": 8, "chín": 9, "mười": 10,
}

// causeTerms are scanned in order; the first hit becomes the recorded cause.
var causeTerms = []string{
	"mưa lớn kéo dài",
	"hoàn lưu bão",
	"áp thấp nhiệt đới",
	"xả lũ",
	"triều cường",
	"dông lốc",
	"mưa lớn",
	"nắng nóng kéo dài",
}

// agencyTerms map a lowercase needle to the canonical agency name.
var agencyTerms = []struct {
	needle    string
	canonical string
}{
	{"trung tâm dự báo khí tượng thủy văn", "Trung tâm Dự báo Khí tượng Thủy văn Quốc gia"},
	{"ban chỉ đạo quốc gia về phòng chống thiên tai", "Ban Chỉ đạo Quốc gia về Phòng chống Thiên tai"},
	{"ban chỉ huy phòng chống thiên tai", "Ban Chỉ huy Phòng chống Thiên tai và Tìm kiếm Cứu nạn"},
	{"cục quản lý đê điều", "Cục Quản lý Đê điều và Phòng chống Thiên tai"},
	{"viện vật lý địa cầu", "Viện Vật lý Địa cầu"},
}

// ExtractImpact scans casualty and damage phrases. Each field takes the
// maximum captured number across all matches.
func ExtractImpact(text string) Impact {
	imp := Impact{
		Deaths:  maxCount(deathsRe, text),
		Missing: maxCount(missingRe, text),
		Injured: maxCount(injuredRe, text),
	}

	for _, m := range damageRe.FindAllStringSubmatch(text, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		if strings.EqualFold(m[2], "triệu") {
			v /= 1000
		}
		if v > imp.DamageBillionVND {
			imp.DamageBillionVND = v
		}
	}

	lower := strings.ToLower(text)
	for _, c := range causeTerms {
		if strings.Contains(lower, c) {
			imp.Cause = c
			break
		}
	}
	for _, a := range agencyTerms {
		if strings.Contains(lower, a.needle) {
			imp.Agency = a.canonical
			break
		}
	}
	return imp
}

func maxCount(re *regexp.Regexp, text string) int {
	best := 0
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		if int(v) > best {
			best = int(v)
		}
	}
	return best
}

// parseNumber handles digits with a Vietnamese decimal comma and small
// number words.
func parseNumber(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := numberWords[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
