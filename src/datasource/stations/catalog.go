// Package stations 读取车站目录 (type,id,nr,name,city)
package stations

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"RailDelayInsight/src/processor"
	"RailDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/unicode/norm"
)

// ColCity 是补充到聚合结果中的城市列
const ColCity = "city"

var catalogColumns = []string{"type", "id", "nr", "name", "city"}

// Station 车站目录中的一行
type Station struct {
	Type string
	ID   string
	Nr   string
	Name string
	City string
}

// Catalog 按站名索引的车站目录
type Catalog struct {
	stations []Station
	byName   map[string]int
}

// LoadCatalog 读取 csv 格式的车站目录
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开车站目录失败: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("解析车站目录失败: %w", df.Err)
	}
	if missing := utils.MissingColumns(df, catalogColumns); len(missing) > 0 {
		return nil, fmt.Errorf("车站目录 %s: %w: %s", path, processor.ErrMissingColumn, strings.Join(missing, ","))
	}

	return NewCatalog(frameToStations(df)), nil
}

func frameToStations(df dataframe.DataFrame) []Station {
	cols := make(map[string][]string, len(catalogColumns))
	for _, name := range catalogColumns {
		cols[name] = df.Col(name).Records()
	}
	stations := make([]Station, df.Nrow())
	for i := range stations {
		stations[i] = Station{
			Type: cols["type"][i],
			ID:   cols["id"][i],
			Nr:   cols["nr"][i],
			Name: cols["name"][i],
			City: cols["city"][i],
		}
	}
	return stations
}

// NewCatalog 建立站名索引, 重名时保留第一个有城市信息的车站
func NewCatalog(stations []Station) *Catalog {
	c := &Catalog{
		stations: stations,
		byName:   make(map[string]int, len(stations)),
	}
	for i, s := range stations {
		key := nameKey(s.Name)
		if key == "" {
			continue
		}
		if j, ok := c.byName[key]; ok && cityOf(stations[j]) != "" {
			continue
		}
		c.byName[key] = i
	}
	return c
}

// Len 返回车站数量
func (c *Catalog) Len() int { return len(c.stations) }

// Lookup 按站名查找车站
func (c *Catalog) Lookup(name string) (Station, bool) {
	i, ok := c.byName[nameKey(name)]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// City 返回站名对应的城市
func (c *Catalog) City(name string) (string, bool) {
	s, ok := c.Lookup(name)
	if !ok {
		return "", false
	}
	city := cityOf(s)
	return city, city != ""
}

// Enrich 根据线路标识中的站名为聚合结果增加 city 列, 查不到的为空值
func (c *Catalog) Enrich(agg dataframe.DataFrame, routeColumn string) (dataframe.DataFrame, error) {
	if routeColumn == "" {
		routeColumn = processor.DefaultRouteColumn
	}
	if agg.Err != nil {
		return dataframe.DataFrame{}, agg.Err
	}
	if !utils.HasColumn(agg, routeColumn) {
		return dataframe.DataFrame{}, fmt.Errorf("enrich: %w: %s", processor.ErrMissingColumn, routeColumn)
	}

	routes := agg.Col(routeColumn).Records()
	cities := make([]interface{}, len(routes))
	for i, key := range routes {
		parts, err := processor.ParseRouteKey(key)
		if err != nil {
			if errors.Is(err, processor.ErrBadRouteKey) {
				continue
			}
			return dataframe.DataFrame{}, err
		}
		if city, ok := c.City(parts.StationName); ok {
			cities[i] = city
		}
	}

	agg = agg.Mutate(series.New(cities, series.String, ColCity))
	if agg.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("enrich: %w", agg.Err)
	}
	return agg, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

func cityOf(s Station) string {
	city := strings.TrimSpace(s.City)
	if city == "NaN" {
		return ""
	}
	return city
}
