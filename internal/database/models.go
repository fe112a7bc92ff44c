package database

import (
	"time"
)

// Category 大小分类
type Category string

const (
	CategoryBig   Category = "BIG"
	CategorySmall Category = "SMALL"
)

// Opposite 返回相反的分类
func (c Category) Opposite() Category {
	if c == CategoryBig {
		return CategorySmall
	}
	return CategoryBig
}

// String 实现 fmt.Stringer
func (c Category) String() string { return string(c) }

// Parity 单双
type Parity string

const (
	ParityEven Parity = "EVEN"
	ParityOdd  Parity = "ODD"
)

// Color 号码颜色
type Color string

const (
	ColorVioletRed   Color = "VIOLET-RED"
	ColorVioletGreen Color = "VIOLET-GREEN"
	ColorGreen       Color = "GREEN"
	ColorRed         Color = "RED"
)

// DrawResult 开奖记录（已归一化）
type DrawResult struct {
	Period     string    `json:"period" db:"period"`
	Number     int       `json:"number" db:"number"`
	Category   Category  `json:"result" db:"category"`
	Parity     Parity    `json:"parity" db:"parity"`
	Color      Color     `json:"color" db:"color"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
}

// NewDrawResult 根据期号和号码构造开奖记录，派生字段在这里统一计算
func NewDrawResult(period string, number int, observedAt time.Time) DrawResult {
	return DrawResult{
		Period:     period,
		Number:     number,
		Category:   CategoryOf(number),
		Parity:     ParityOf(number),
		Color:      ColorOf(number),
		ObservedAt: observedAt,
	}
}

// IsBig 是否为大
func (d DrawResult) IsBig() bool {
	return d.Category == CategoryBig
}

// CategoryOf 计算大小：5-9为大，0-4为小
func CategoryOf(number int) Category {
	if number >= 5 {
		return CategoryBig
	}
	return CategorySmall
}

// ParityOf 计算单双
func ParityOf(number int) Parity {
	if number%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// ColorOf 计算颜色
func ColorOf(number int) Color {
	switch number {
	case 0:
		return ColorVioletRed
	case 5:
		return ColorVioletGreen
	case 1, 3, 7, 9:
		return ColorGreen
	default:
		return ColorRed
	}
}

// OutcomeStatus 预测结果状态
type OutcomeStatus string

const (
	OutcomeWin  OutcomeStatus = "WIN"
	OutcomeLoss OutcomeStatus = "LOSS"
)

// PredictionRecord 预测记录模型（审计用，不用于恢复状态）
type PredictionRecord struct {
	ID                int64          `json:"id" db:"id"`
	TargetPeriod      string         `json:"target_period" db:"target_period"`
	PredictedCategory Category       `json:"predicted_category" db:"predicted_category"`
	Confidence        float64        `json:"confidence" db:"confidence"`
	AgreementRatio    int            `json:"agreement_ratio" db:"agreement_ratio"`
	ActualNumber      *int           `json:"actual_number" db:"actual_number"`
	ActualCategory    *Category      `json:"actual_category" db:"actual_category"`
	Status            *OutcomeStatus `json:"status" db:"status"`
	AlgorithmVersion  string         `json:"algorithm_version" db:"algorithm_version"`
	PredictedAt       time.Time      `json:"predicted_at" db:"predicted_at"`
	VerifiedAt        *time.Time     `json:"verified_at" db:"verified_at"`
}

// APIResponse 上游接口响应模型
type APIResponse struct {
	Data    *APIPage `json:"data"`
	Code    int      `json:"code"`
	Message string   `json:"msg"`
}

// APIPage 上游分页数据
type APIPage struct {
	List     []APIDrawData `json:"list"`
	PageNo   int           `json:"pageNo"`
	TotalNum int           `json:"totalPage"`
}

// APIDrawData 上游返回的单期开奖数据
type APIDrawData struct {
	IssueNumber string `json:"issueNumber"`
	Number      string `json:"number"`
	Color       string `json:"color"`
	Premium     string `json:"premium"`
	OpenTime    string `json:"openTime,omitempty"`
}
