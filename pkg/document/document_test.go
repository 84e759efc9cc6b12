package document

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPNG は指定サイズの単色PNG画像を生成する。
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuilder_GeneratesPDF(t *testing.T) {
	b, err := New(Options{FacilityName: "ShiftCare 障害者支援施設"})
	require.NoError(t, err)

	b.Header().
		Title("事故報告書").
		Subtitle(ExportDateLine("出力日", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))).
		Separator().
		KeyValueTable([]KV{
			{Label: "発生日時", Value: "2025年06月01日 10:30"},
			{Label: "発生場所", Value: "食堂"},
		}).
		Section("発生状況の詳細", "利用者が椅子から立ち上がる際にバランスを崩した。").
		Section("再発防止策", "").
		Footer(FooterText)

	data, err := b.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	transcript := b.Transcript()
	assert.Equal(t, "ShiftCare 障害者支援施設", transcript[0])
	assert.Equal(t, "事故報告書", transcript[1])
	assert.Equal(t, "出力日: 2025年06月01日", transcript[2])
	assert.Contains(t, transcript, "発生日時 2025年06月01日 10:30")
	assert.Contains(t, transcript, "記載なし")
	assert.Equal(t, FooterText, transcript[len(transcript)-1])
}

func TestBuilder_WrapsLongSections(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)

	body := strings.Repeat("夜間の巡回時に利用者の転倒を発見した。", 20)
	b.Section("発生状況の詳細", body)

	transcript := b.Transcript()
	require.Greater(t, len(transcript), 2)
	assert.Equal(t, "発生状況の詳細", transcript[0])
	assert.Equal(t, body, strings.Join(transcript[1:], ""))
}

func TestBuilder_ManyRowsPaginate(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)

	rows := make([][]string, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, []string{"山田花子", "支援員", "介護福祉士", "常勤", "40時間", "可"})
	}
	b.Table([]string{"氏名", "職種", "資格", "雇用形態", "週間勤務時間", "夜勤可否"},
		[]float64{80, 60, 120, 70, 80, 60}, rows)

	data, err := b.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Len(t, b.Transcript(), 121)
}

func TestBuilder_TableWithoutColumnsFails(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)

	_, err = b.Table(nil, nil, nil).Bytes()
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestNew_MissingFont(t *testing.T) {
	_, err := New(Options{FontPath: filepath.Join(t.TempDir(), "missing.ttf")})
	assert.Error(t, err)
}

func TestNew_WithLogo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(path, testPNG(t, 120, 40), 0o600))

	b, err := New(Options{LogoPath: path, FacilityName: "テスト施設"})
	require.NoError(t, err)

	data, err := b.Header().Title("防災訓練記録").Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestNormalizeLogo(t *testing.T) {
	t.Run("幅が上限を超える画像は縮小される", func(t *testing.T) {
		out, err := NormalizeLogo(testPNG(t, 800, 200))
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, MaxLogoWidth, img.Bounds().Dx())
		assert.Equal(t, 100, img.Bounds().Dy())
	})

	t.Run("小さい画像はそのままの大きさ", func(t *testing.T) {
		out, err := NormalizeLogo(testPNG(t, 100, 50))
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
	})

	t.Run("画像でないデータはエラー", func(t *testing.T) {
		_, err := NormalizeLogo([]byte("not an image"))
		assert.Error(t, err)
	})
}

func TestGridSizes(t *testing.T) {
	tests := []struct {
		name   string
		widths []float64
		want   []int
	}{
		{name: "勤務体制一覧表の列幅", widths: []float64{80, 60, 120, 70, 80, 60}, want: []int{2, 2, 2, 2, 2, 2}},
		{name: "幅に比例して配分", widths: []float64{1, 2, 3}, want: []int{3, 4, 5}},
		{name: "均等な2列", widths: []float64{1, 1}, want: []int{6, 6}},
		{name: "幅が0の場合は均等", widths: []float64{0, 0, 0}, want: []int{4, 4, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GridSizes(tt.widths)
			assert.Equal(t, tt.want, got)

			sum := 0
			for _, s := range got {
				sum += s
			}
			assert.Equal(t, 12, sum)
		})
	}
}

func TestFormatJapaneseDate(t *testing.T) {
	ts := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "2025年03月09日", FormatJapaneseDate(ts))
	assert.Equal(t, "2025年03月09日 14:05", FormatJapaneseDateTime(ts))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2025年06月01日 11:00", FormatTimestamp("2025-06-01T02:00:00Z"))
	assert.Equal(t, "不明", FormatTimestamp("不明"))
}
