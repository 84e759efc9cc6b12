package safety

// 防災訓練の種別。
const (
	DrillFire         = "fire"
	DrillEarthquake   = "earthquake"
	DrillEvacuation   = "evacuation"
	DrillFirefighting = "firefighting"
	DrillOther        = "other"
)

// 感染症の種別。
const (
	InfectionInfluenza = "influenza"
	InfectionCOVID19   = "covid19"
	InfectionNorovirus = "norovirus"
	InfectionOther     = "other"
)

var drillLabels = map[string]string{
	DrillFire:         "火災避難訓練",
	DrillEarthquake:   "地震避難訓練",
	DrillEvacuation:   "避難誘導訓練",
	DrillFirefighting: "消火訓練",
	DrillOther:        "その他",
}

var infectionLabels = map[string]string{
	InfectionInfluenza: "インフルエンザ",
	InfectionCOVID19:   "COVID-19",
	InfectionNorovirus: "ノロウイルス",
	InfectionOther:     "その他",
}

// DrillLabel は訓練種別の表示名を返す。
func DrillLabel(t string) string {
	if l, ok := drillLabels[t]; ok {
		return l
	}
	return "不明"
}

// InfectionLabel は感染症種別の表示名を返す。
func InfectionLabel(t string) string {
	if l, ok := infectionLabels[t]; ok {
		return l
	}
	return "不明"
}
