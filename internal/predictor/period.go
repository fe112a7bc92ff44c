package predictor

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformedPeriod 期号格式无法解析
var ErrMalformedPeriod = errors.New("malformed period")

const (
	periodDateLayout        = "20060102"
	DefaultMaxDailySequence = 1440
	DefaultSequenceDigits   = 4
)

// Sequencer 期号生成器
// 期号格式：YYYYMMDD + 可选中缀 + 固定宽度的当日序号
type Sequencer struct {
	MaxDaily int
	Digits   int
}

// NewSequencer 创建期号生成器，非法参数使用默认值
func NewSequencer(maxDaily, digits int) Sequencer {
	if maxDaily <= 0 {
		maxDaily = DefaultMaxDailySequence
	}
	if digits <= 0 {
		digits = DefaultSequenceDigits
	}
	return Sequencer{MaxDaily: maxDaily, Digits: digits}
}

// Next 根据当前期号计算下一期期号，序号达到当日上限时进入下一天并从1开始
func (s Sequencer) Next(period string) (string, error) {
	if len(period) < len(periodDateLayout)+s.Digits {
		return "", fmt.Errorf("%w: %q is too short", ErrMalformedPeriod, period)
	}

	datePart := period[:len(periodDateLayout)]
	infix := period[len(periodDateLayout) : len(period)-s.Digits]
	seqPart := period[len(period)-s.Digits:]

	day, err := time.Parse(periodDateLayout, datePart)
	if err != nil {
		return "", fmt.Errorf("%w: bad date %q", ErrMalformedPeriod, datePart)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 0 {
		return "", fmt.Errorf("%w: bad sequence %q", ErrMalformedPeriod, seqPart)
	}

	if seq >= s.MaxDaily {
		day = day.AddDate(0, 0, 1)
		seq = 1
	} else {
		seq++
	}

	return fmt.Sprintf("%s%s%0*d", day.Format(periodDateLayout), infix, s.Digits, seq), nil
}

