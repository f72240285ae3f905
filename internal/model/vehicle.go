package model

// RiskStatus は異常スコアに基づくリスク区分。
type RiskStatus string

const (
	// RiskStatusOK は低リスク（anomaly_score <= 0.25）。
	RiskStatusOK RiskStatus = "ok"
	// RiskStatusWarning は中リスク（0.25 < anomaly_score <= 0.5）。
	RiskStatusWarning RiskStatus = "warning"
	// RiskStatusCritical は高リスク（anomaly_score > 0.5）。
	RiskStatusCritical RiskStatus = "critical"
	// RiskStatusUnknown はスコア未取得の車両に付与される。
	RiskStatusUnknown RiskStatus = "unknown"
)

// StatusForScore は異常スコアをリスク区分に変換する。
// 閾値はマスターエージェントの区分（> 0.5 critical、> 0.25 warning）と同一。
func StatusForScore(score float64) RiskStatus {
	switch {
	case score > 0.5:
		return RiskStatusCritical
	case score > 0.25:
		return RiskStatusWarning
	default:
		return RiskStatusOK
	}
}

// SubsystemScores はサブシステム別のサブスコア。
type SubsystemScores struct {
	Brakes     float64 `json:"brakes"`
	Engine     float64 `json:"engine"`
	Suspension float64 `json:"suspension"`
}

// VehicleSnapshot は単一車両の現在のヘルス状態を表す。
// RuleScore / ModelScore はスコアリング方式別の内訳で、
// 旧世代のスナップショットには含まれないことがある。
type VehicleSnapshot struct {
	VehicleID    string          `json:"vehicle_id"`
	AnomalyScore float64         `json:"anomaly_score"`
	Subsystems   SubsystemScores `json:"subsystems"`
	RuleScore    *float64        `json:"rule_score,omitempty"`
	ModelScore   *float64        `json:"ml_score,omitempty"`
	Status       RiskStatus      `json:"status"`
}

// HistoryPoint はヘルススナップショットの履歴1点を表す。
// 履歴は古い順に並び、直近N件（デフォルト20件）に制限される。
type HistoryPoint struct {
	Timestamp    string          `json:"timestamp"`
	AnomalyScore float64         `json:"anomaly_score"`
	Subsystems   SubsystemScores `json:"subsystems"`
	RuleScore    *float64        `json:"rule_score,omitempty"`
	ModelScore   *float64        `json:"ml_score,omitempty"`
}

// FleetVehicle はフリート一覧の1行。スコア未取得の車両はAnomalyScoreがnilになる。
type FleetVehicle struct {
	VehicleID    string     `json:"vehicle_id"`
	AnomalyScore *float64   `json:"anomaly_score"`
	Status       RiskStatus `json:"status"`
}

// RiskCounts はリスク区分別の車両台数。
type RiskCounts struct {
	OK       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// TopRiskVehicle はフリートサマリー内の高リスク車両1件。
type TopRiskVehicle struct {
	VehicleID    string   `json:"vehicle_id"`
	AnomalyScore *float64 `json:"anomaly_score"`
	Severity     string   `json:"severity"`
	Timestamp    string   `json:"timestamp"`
}

// FleetSummary は製造部門向けのフリートサマリー。
type FleetSummary struct {
	FleetSize int              `json:"fleet_size"`
	Counts    RiskCounts       `json:"counts"`
	TopRisk   []TopRiskVehicle `json:"top_risk"`
}

// ContactDecision はプロアクティブ連絡の要否判定結果。
type ContactDecision struct {
	VehicleID     string  `json:"vehicle_id"`
	AnomalyScore  float64 `json:"anomaly_score"`
	Severity      string  `json:"severity"`
	ShouldContact bool    `json:"should_contact"`
	Reason        string  `json:"reason"`
}

// EngagementResult はカスタマーエンゲージメントシミュレーションの結果。
// Action は "no_call" または "suggest_call"。Script は生成された会話スクリプトで、
// 表示前にサニタイズ済みの値が格納される。
type EngagementResult struct {
	VehicleID      string `json:"vehicle_id"`
	Action         string `json:"action"`
	DecisionReason string `json:"decision_reason,omitempty"`
	Message        string `json:"message,omitempty"`
	Script         string `json:"script,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// SlotOption は提案された予約枠1件。
type SlotOption struct {
	Label     string `json:"label"`
	SlotStart string `json:"start"`
	SlotEnd   string `json:"end"`
}

// ScheduleOffer はスケジューリングエージェントの枠提案結果。
// TotalSuggested / Available は旧バージョンのエージェントでは返されないため
// nil許容とする。
type ScheduleOffer struct {
	VehicleID      string       `json:"vehicle_id"`
	CenterID       string       `json:"center_id,omitempty"`
	Severity       string       `json:"severity,omitempty"`
	CanSchedule    bool         `json:"can_schedule"`
	Reason         string       `json:"reason,omitempty"`
	Options        []SlotOption `json:"options,omitempty"`
	TotalSuggested *int         `json:"total_suggested,omitempty"`
	Available      *int         `json:"available,omitempty"`
}

// BookingStatus は予約のライフサイクル状態。
type BookingStatus string

const (
	// BookingStatusProposed は提案済み（未確定）の予約。
	BookingStatusProposed BookingStatus = "proposed"
	// BookingStatusConfirmed は確定済みの予約。
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusCancelled はキャンセル済みの予約。
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking はサーバー側で作成された予約。クライアントは再取得によってのみ参照する。
type Booking struct {
	BookingID int64         `json:"booking_id"`
	VehicleID string        `json:"vehicle_id"`
	SlotStart string        `json:"slot_start"`
	SlotEnd   string        `json:"slot_end"`
	CenterID  string        `json:"center_id"`
	Status    BookingStatus `json:"status"`
}

// BookingConfirmation は予約確定エンドポイントの成功レスポンス。
type BookingConfirmation struct {
	BookingID   int64  `json:"booking_id"`
	Status      string `json:"status"`
	ConfirmedAt string `json:"confirmed_at"`
}
