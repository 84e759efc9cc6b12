package safety

import (
	"fmt"
	"time"

	safetydb "github.com/nao1215/shiftcare/internal/safety/db"
	"github.com/nao1215/shiftcare/pkg/document"
)

// wrapColumns は記録本文の折り返し桁数（半角換算）。
// 半角なら65文字、全角なら32文字で折り返し、A4・10ポイントの本文幅に収める。
const wrapColumns = 65

// footerText は防災・感染症記録の帳票のフッター。
const footerText = "ShiftCare - 防災・感染症記録管理システム"

func formatDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return document.FormatJapaneseDate(t)
}

// body は見出しとwrapColumns桁で折り返した本文を配置する。
func body(b *document.Builder, title, text string) {
	b.Heading(title)
	if text == "" {
		b.MutedLine("記載なし")
	} else {
		b.Paragraph(text, wrapColumns)
	}
	b.Spacer(3)
}

func closing(b *document.Builder, now time.Time) *document.Builder {
	return b.Separator().
		MutedLine("出力日: " + document.FormatJapaneseDateTime(now.In(document.Location))).
		Footer(footerText)
}

func composeDrill(b *document.Builder, d safetydb.Drill, now time.Time) *document.Builder {
	b.Header().
		Title("防災訓練記録").
		Separator().
		Line("実施日: " + formatDate(d.ConductedOn)).
		Line("訓練種別: " + DrillLabel(d.Type)).
		Line(fmt.Sprintf("参加人数: %d名", d.ParticipantsCount)).
		Line("記録者: " + d.ConductorName).
		Line("記録作成日: " + document.FormatJapaneseDate(now.In(document.Location))).
		Spacer(4)
	body(b, "訓練内容・評価・課題", d.Details)
	body(b, "改善策・今後の対応", d.Improvements)
	return closing(b, now)
}

// DrillPDF は防災訓練記録のPDFを生成する。
func DrillPDF(opts document.Options, d safetydb.Drill, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeDrill(b, d, now).Bytes()
}

func composeInfection(b *document.Builder, i safetydb.Infection, now time.Time) *document.Builder {
	b.Header().
		Title("感染症対応記録").
		Separator().
		Line("発生日: " + formatDate(i.OccurredOn)).
		Line("感染症種別: " + InfectionLabel(i.Type)).
		Line(fmt.Sprintf("発症者数: %d名", i.AffectedCount)).
		Line("記録者: " + i.ReporterName).
		Line("記録作成日: " + document.FormatJapaneseDate(now.In(document.Location))).
		Spacer(4)
	body(b, "対応内容", i.ResponseMeasures)
	body(b, "収束状況・教訓", i.Outcome)
	return closing(b, now)
}

// InfectionPDF は感染症対応記録のPDFを生成する。
func InfectionPDF(opts document.Options, i safetydb.Infection, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeInfection(b, i, now).Bytes()
}

// DrillFilename は drill-record-<実施日>.pdf を返す。
func DrillFilename(d safetydb.Drill) string {
	return fmt.Sprintf("drill-record-%s.pdf", d.ConductedOn)
}

// InfectionFilename は infection-record-<発生日>.pdf を返す。
func InfectionFilename(i safetydb.Infection) string {
	return fmt.Sprintf("infection-record-%s.pdf", i.OccurredOn)
}
