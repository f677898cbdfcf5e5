package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractImpact_Casualties(t *testing.T) {
	t.Run("digits", func(t *testing.T) {
		imp := ExtractImpact("Bão số 4 làm 3 người chết, 5 người mất tích, 12 người bị thương")
		assert.Equal(t, 3, imp.Deaths)
		assert.Equal(t, 5, imp.Missing)
		assert.Equal(t, 12, imp.Injured)
	})

	t.Run("number words", func(t *testing.T) {
		imp := ExtractImpact("Lũ quét khiến ba người chết, hai người mất tích")
		assert.Equal(t, 3, imp.Deaths)
		assert.Equal(t, 2, imp.Missing)
	})

	t.Run("maximum per field across mentions", func(t *testing.T) {
		imp := ExtractImpact("Ban đầu 2 người chết; đến tối con số là 7 người chết")
		assert.Equal(t, 7, imp.Deaths)
	})

	t.Run("alternate death verbs", func(t *testing.T) {
		imp := ExtractImpact("4 người thiệt mạng do sạt lở, 1 người tử vong tại bệnh viện")
		assert.Equal(t, 4, imp.Deaths)
	})

	t.Run("no figures", func(t *testing.T) {
		imp := ExtractImpact("Mưa lớn gây ngập nhiều tuyến phố")
		assert.Zero(t, imp.Deaths)
		assert.Zero(t, imp.Missing)
		assert.Zero(t, imp.Injured)
	})
}

func TestExtractImpact_Damage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want float64
	}{
		{"billions", "Thiệt hại ước tính 120 tỷ đồng", 120},
		{"decimal comma billions", "Thiệt hại 1,5 tỷ đồng", 1.5},
		{"millions convert to billions", "Thiệt hại 500 triệu đồng", 0.5},
		{"max across mentions", "Ước tính 20 tỷ đồng, sau đó nâng lên 45 tỷ đồng", 45},
		{"none", "Chưa có thống kê thiệt hại", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			imp := ExtractImpact(tc.text)
			assert.InDelta(t, tc.want, imp.DamageBillionVND, 1e-9)
		})
	}
}

func TestExtractImpact_CauseAndAgency(t *testing.T) {
	imp := ExtractImpact("Theo Trung tâm Dự báo Khí tượng Thủy văn Quốc gia, mưa lớn kéo dài gây ngập diện rộng")
	assert.Equal(t, "mưa lớn kéo dài", imp.Cause)
	assert.Equal(t, "Trung tâm Dự báo Khí tượng Thủy văn Quốc gia", imp.Agency)
}

func TestExtractLocation(t *testing.T) {
	t.Run("province", func(t *testing.T) {
		loc := ExtractLocation("Bão số 4 đổ bộ Hà Tĩnh")
		assert.Equal(t, "Hà Tĩnh", loc.Province)
	})

	t.Run("longest name wins", func(t *testing.T) {
		loc := ExtractLocation("Ngập lụt tại Bà Rịa - Vũng Tàu sau mưa lớn")
		assert.Equal(t, "Bà Rịa - Vũng Tàu", loc.Province)
	})

	t.Run("alias", func(t *testing.T) {
		loc := ExtractLocation("Triều cường gây ngập nhiều tuyến đường TP.HCM")
		assert.Equal(t, "TP. Hồ Chí Minh", loc.Province)
	})

	t.Run("commune", func(t *testing.T) {
		loc := ExtractLocation("Sạt lở tại xã Trà Leng, huyện Nam Trà My, Quảng Nam")
		assert.Equal(t, "Quảng Nam", loc.Province)
		assert.Equal(t, "Trà Leng", loc.Commune)
	})

	t.Run("national route", func(t *testing.T) {
		loc := ExtractLocation("Sạt lở chia cắt quốc lộ 8A qua Hà Tĩnh")
		assert.Equal(t, "Hà Tĩnh", loc.Province)
		assert.Equal(t, "Quốc lộ 8A", loc.Commune)
	})

	t.Run("no province", func(t *testing.T) {
		loc := ExtractLocation("Mưa lớn diện rộng ở miền Bắc")
		assert.Empty(t, loc.Province)
	})
}
