package racing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// StageData describes one rally stage from the catalog.
type StageData struct {
	StageID uint32  `json:"stage_id"`
	Name    string  `json:"name"`
	Length  float64 `json:"length"`
	Tarmac  uint32  `json:"tarmac"`
	Gravel  uint32  `json:"gravel"`
	Snow    uint32  `json:"snow"`
}

// Surface returns the stage's dominant surface type.
func (s *StageData) Surface() string {
	switch {
	case s.Gravel >= s.Tarmac && s.Gravel >= s.Snow:
		return "Gravel"
	case s.Tarmac >= s.Gravel && s.Tarmac >= s.Snow:
		return "Tarmac"
	default:
		return "Snow"
	}
}

// CarData describes one car from the catalog.
type CarData struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// StageWeather is one valid weather/sky/time-of-day combination recorded
// for a stage.
type StageWeather struct {
	StageID   uint32 `json:"stage_id"`
	TimeOfDay uint32 `json:"timeofday"`
	SkyType   uint32 `json:"skytype"`
	SkyCloud  uint32 `json:"skycloudtype"`
}

// Weight is a derived sort key used only for stable display ordering.
func (w StageWeather) Weight() uint32 {
	return w.SkyCloud<<8 | w.SkyType<<4 | w.TimeOfDay
}

var timeOfDayNames = []string{"Morning", "Noon", "Evening"}
var skyCloudNames = []string{"Clear", "PartCloud", "LightCloud", "HeavyCloud"}
var skyTypeNames = []string{
	"Crisp", "Hazy", "NoRain", "LightRain", "HeavyRain",
	"NoSnow", "LightSnow", "HeavySnow", "LightFog", "HeavyFog",
}

func pickName(names []string, i uint32) string {
	if int(i) < len(names) {
		return names[i]
	}
	return names[0]
}

// String renders the combination as the human-readable sky description.
func (w StageWeather) String() string {
	return fmt.Sprintf("%s %s %s",
		pickName(timeOfDayNames, w.TimeOfDay),
		pickName(skyCloudNames, w.SkyCloud),
		pickName(skyTypeNames, w.SkyType))
}

// DefaultSkyType marks a stage with no cataloged weather combinations.
const DefaultSkyType = "Default"

// Catalog is the static stage/car/weather data the randomer draws from.
type Catalog struct {
	Stages   []StageData
	Cars     []CarData
	weathers map[uint32][]StageWeather
}

// LoadCatalog reads stages.json, cars.json and stage_weathers.json from
// the data directory.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{weathers: make(map[uint32][]StageWeather)}

	if err := readJSON(filepath.Join(dir, "stages.json"), &c.Stages); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, "cars.json"), &c.Cars); err != nil {
		return nil, err
	}

	var weathers []StageWeather
	if err := readJSON(filepath.Join(dir, "stage_weathers.json"), &weathers); err != nil {
		return nil, err
	}
	for _, w := range weathers {
		c.weathers[w.StageID] = append(c.weathers[w.StageID], w)
	}
	for id := range c.weathers {
		ws := c.weathers[id]
		sort.Slice(ws, func(i, j int) bool { return ws[i].Weight() < ws[j].Weight() })
	}

	sort.Slice(c.Stages, func(i, j int) bool { return c.Stages[i].Name < c.Stages[j].Name })
	sort.Slice(c.Cars, func(i, j int) bool { return c.Cars[i].Name < c.Cars[j].Name })

	if len(c.Stages) == 0 || len(c.Cars) == 0 {
		return nil, fmt.Errorf("catalog in %s has no stages or no cars", dir)
	}
	return c, nil
}

// StageWeathers returns the combinations cataloged for a stage, ordered
// by display weight. Nil when the stage has none.
func (c *Catalog) StageWeathers(stageID uint32) []StageWeather {
	return c.weathers[stageID]
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return nil
}
