package processor

import (
	"fmt"
	"regexp"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// FilterRules 车型过滤规则
type FilterRules struct {
	ExcludedTypes []string       // 直接排除的车型, 默认 S 与 Bus
	Suburban      *regexp.Regexp // 城郊线车次, 不论车型一律排除
	Threshold     int            // 车型记录数低于该值的被排除, 等于时保留
}

// DefaultFilterRules 返回默认过滤规则
func DefaultFilterRules() FilterRules {
	return FilterRules{
		ExcludedTypes: append([]string(nil), config.DefaultExcludedTypes...),
		Suburban:      regexp.MustCompile(config.DefaultSuburbanPattern),
		Threshold:     config.DefaultTrainTypeThreshold,
	}
}

// NewFilterRules 根据数据配置生成过滤规则
func NewFilterRules(dcfg *config.DataConfig, threshold int) (FilterRules, error) {
	pattern := config.DefaultSuburbanPattern
	excluded := config.DefaultExcludedTypes
	if dcfg != nil {
		if dcfg.SuburbanPattern != "" {
			pattern = dcfg.SuburbanPattern
		}
		excluded = dcfg.GetExcludedTypes()
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return FilterRules{}, fmt.Errorf("suburban pattern %q: %w", pattern, err)
	}
	if threshold < 0 {
		return FilterRules{}, fmt.Errorf("%w: threshold %d", ErrInvalidParam, threshold)
	}
	return FilterRules{
		ExcludedTypes: excluded,
		Suburban:      re,
		Threshold:     threshold,
	}, nil
}

// FilterTrainTypes 依次排除指定车型、城郊线车次以及低频车型
func FilterTrainTypes(df dataframe.DataFrame, rules FilterRules) (dataframe.DataFrame, error) {
	if err := requireColumns(df, "filter", ColTrainType, ColTrainName); err != nil {
		return dataframe.DataFrame{}, err
	}
	if rules.Suburban == nil {
		rules.Suburban = regexp.MustCompile(config.DefaultSuburbanPattern)
	}

	df = df.FilterAggregation(
		dataframe.And,
		dataframe.F{
			Colname:    ColTrainType,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return el.IsNA() || !utils.Contains(rules.ExcludedTypes, el.String())
			},
		},
		dataframe.F{
			Colname:    ColTrainName,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return el.IsNA() || !rules.Suburban.MatchString(el.String())
			},
		},
	)
	if err := frameErr(df, "filter"); err != nil {
		return dataframe.DataFrame{}, err
	}

	counts := ValueCounts(df.Col(ColTrainType))
	df = df.Filter(dataframe.F{
		Colname:    ColTrainType,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !el.IsNA() && counts[el.String()] >= rules.Threshold
		},
	})
	return df, frameErr(df, "filter")
}

// ValueCounts 统计每个取值出现的次数, 空值不计
func ValueCounts(s series.Series) map[string]int {
	counts := make(map[string]int)
	for i := 0; i < s.Len(); i++ {
		el := s.Elem(i)
		if el.IsNA() {
			continue
		}
		counts[el.String()]++
	}
	return counts
}
