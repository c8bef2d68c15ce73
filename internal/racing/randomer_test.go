package racing

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return &Catalog{
		Stages: []StageData{
			{StageID: 1, Name: "Foxhill", Length: 4000, Gravel: 80, Tarmac: 20},
			{StageID: 2, Name: "Pine Pass", Length: 6200, Snow: 90, Gravel: 10},
		},
		Cars: []CarData{
			{ID: 1, Name: "Alpine GT"},
			{ID: 2, Name: "Quattro S1"},
		},
		weathers: map[uint32][]StageWeather{
			1: {
				{StageID: 1, TimeOfDay: 0, SkyType: 0, SkyCloud: 0},
				{StageID: 1, TimeOfDay: 1, SkyType: 3, SkyCloud: 2},
			},
		},
	}
}

func TestRandomizeDeterministicForFixedSeed(t *testing.T) {
	cat := testCatalog()
	a := NewRandomer(cat, rand.New(rand.NewSource(42))).Randomize()
	b := NewRandomer(cat, rand.New(rand.NewSource(42))).Randomize()
	assert.Equal(t, a, b)
}

func TestRandomizePopulatesEveryField(t *testing.T) {
	cat := testCatalog()
	r := NewRandomer(cat, rand.New(rand.NewSource(7))).WithName("daily").WithOwner("bot")

	for i := 0; i < 50; i++ {
		info := r.Randomize()
		assert.Equal(t, "daily", info.Name)
		assert.Equal(t, "bot", info.Owner)
		assert.NotEmpty(t, info.Stage)
		assert.NotEmpty(t, info.Car)
		assert.NotZero(t, info.StageLen)
		assert.Less(t, int(info.Wetness), len(WetnessNames))
		assert.Less(t, int(info.Weather), len(WeatherNames))
		assert.Less(t, int(info.Damage), len(DamageNames))
		assert.NotEmpty(t, info.SkyType)
	}
}

func TestRandomizeDefaultSkyWhenStageHasNoWeathers(t *testing.T) {
	cat := testCatalog()
	r := NewRandomer(cat, rand.New(rand.NewSource(1))).FixedStage("Pine Pass")

	info := r.Randomize()
	assert.Equal(t, "Pine Pass", info.Stage)
	assert.Equal(t, DefaultSkyType, info.SkyType)
}

func TestRandomizeFixedFieldsSurvive(t *testing.T) {
	cat := testCatalog()
	r := NewRandomer(cat, rand.New(rand.NewSource(3))).
		FixedStage("Foxhill").
		FixedCar("Alpine GT").
		FixedDamage(2)

	for i := 0; i < 20; i++ {
		info := r.Randomize()
		assert.Equal(t, "Foxhill", info.Stage)
		assert.Equal(t, uint32(1), info.StageID)
		assert.Equal(t, "Alpine GT", info.Car)
		assert.True(t, info.CarFixed)
		assert.Equal(t, uint32(2), info.Damage)
	}
}

func TestRandomizeFixedWeatherPinsDefaultMarker(t *testing.T) {
	cat := testCatalog()
	r := NewRandomer(cat, rand.New(rand.NewSource(3))).FixedWeather()

	info := r.Randomize()
	assert.Equal(t, DefaultSkyType, info.SkyType)
	assert.Zero(t, info.Weather)
	assert.Zero(t, info.Wetness)
}

func TestStageSurface(t *testing.T) {
	assert.Equal(t, "Gravel", (&StageData{Gravel: 60, Tarmac: 40}).Surface())
	assert.Equal(t, "Tarmac", (&StageData{Tarmac: 90, Snow: 10}).Surface())
	assert.Equal(t, "Snow", (&StageData{Snow: 70, Tarmac: 30, Gravel: 20}).Surface())
}

func TestStageWeatherWeightAndString(t *testing.T) {
	w := StageWeather{TimeOfDay: 1, SkyType: 3, SkyCloud: 2}
	assert.Equal(t, uint32(2<<8|3<<4|1), w.Weight())
	assert.Equal(t, "Noon LightCloud LightRain", w.String())
}

func writeCatalogFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "stages.json",
		`[{"stage_id":2,"name":"Bravo","length":5000,"gravel":100},
		  {"stage_id":1,"name":"Alpha","length":4000,"tarmac":100}]`)
	writeCatalogFile(t, dir, "cars.json",
		`[{"id":2,"name":"Beta Car"},{"id":1,"name":"Alpha Car"}]`)
	writeCatalogFile(t, dir, "stage_weathers.json",
		`[{"stage_id":1,"timeofday":2,"skytype":1,"skycloudtype":3},
		  {"stage_id":1,"timeofday":0,"skytype":0,"skycloudtype":0}]`)

	cat, err := LoadCatalog(dir)
	require.NoError(t, err)

	assert.Equal(t, "Alpha", cat.Stages[0].Name, "stages sorted by name")
	assert.Equal(t, "Alpha Car", cat.Cars[0].Name, "cars sorted by name")

	ws := cat.StageWeathers(1)
	require.Len(t, ws, 2)
	assert.Less(t, ws[0].Weight(), ws[1].Weight(), "weathers sorted by weight")
	assert.Nil(t, cat.StageWeathers(2))
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(t.TempDir())
	assert.Error(t, err)
}
