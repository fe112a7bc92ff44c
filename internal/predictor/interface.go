package predictor

import (
	"errors"

	"wingo-bot/internal/database"
)

// ErrInsufficientData 历史数据不足，本轮不做预测也不做结算
var ErrInsufficientData = errors.New("insufficient data for prediction")

// MinHistorySize 集成预测所需的最少历史期数
const MinHistorySize = 20

// Predictor 预测算法接口
type Predictor interface {
	// Predict 根据历史数据进行预测，history按期号从新到旧排列
	Predict(history []database.DrawResult) (*EnsembleResult, error)

	// GetName 获取算法名称
	GetName() string

	// GetVersion 获取算法版本
	GetVersion() string

	// ValidateInput 验证输入数据
	ValidateInput(history []database.DrawResult) error

	// GetRequiredHistorySize 获取所需的历史数据大小
	GetRequiredHistorySize() int

	// GetSummary 获取预测器摘要信息
	GetSummary(history []database.DrawResult) map[string]interface{}
}
