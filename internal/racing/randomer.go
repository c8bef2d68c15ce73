package racing

import (
	"math/rand"

	"github.com/openrally/rallyd/internal/protocol"
)

// Selection enumerations shared by the randomer and the REST facade.
var (
	WetnessNames = []string{"Dry", "Damp", "Wet"}
	WeatherNames = []string{"Good", "Random", "Bad"}
	DamageNames  = []string{"Off", "Safe", "Reduced", "Realistic"}
)

// RaceRandomer builds random race configurations from a catalog. It is
// deterministic for a fixed random source, which the daily challenge tests
// rely on. Fixed* setters pin individual fields against randomization.
type RaceRandomer struct {
	catalog *Catalog
	rng     *rand.Rand
	info    protocol.RaceInfo

	fixedStage   bool
	fixedWeather bool
	fixedCar     bool
	fixedDamage  bool
}

// NewRandomer creates a randomer over the catalog, drawing from rng.
func NewRandomer(catalog *Catalog, rng *rand.Rand) *RaceRandomer {
	return &RaceRandomer{catalog: catalog, rng: rng}
}

// WithName sets the race name carried on every generated config.
func (r *RaceRandomer) WithName(name string) *RaceRandomer {
	r.info.Name = name
	return r
}

// WithOwner sets the owner carried on every generated config.
func (r *RaceRandomer) WithOwner(owner string) *RaceRandomer {
	r.info.Owner = owner
	return r
}

// FixedStage pins the stage by name; unknown names pin the first stage.
func (r *RaceRandomer) FixedStage(name string) *RaceRandomer {
	idx := 0
	for i, s := range r.catalog.Stages {
		if s.Name == name {
			idx = i
			break
		}
	}
	r.applyStage(r.catalog.Stages[idx])
	r.fixedStage = true
	return r
}

// FixedCar pins the car by name; unknown names pin the first car.
func (r *RaceRandomer) FixedCar(name string) *RaceRandomer {
	idx := 0
	for i, c := range r.catalog.Cars {
		if c.Name == name {
			idx = i
			break
		}
	}
	r.info.CarFixed = true
	r.info.Car = r.catalog.Cars[idx].Name
	r.info.CarID = r.catalog.Cars[idx].ID
	r.fixedCar = true
	return r
}

// FixedWeather pins the default no-weather marker.
func (r *RaceRandomer) FixedWeather() *RaceRandomer {
	r.info.Weather = 0
	r.info.Wetness = 0
	r.info.SkyType = DefaultSkyType
	r.info.SkyTypeID = 0
	r.fixedWeather = true
	return r
}

// FixedDamage pins the damage model.
func (r *RaceRandomer) FixedDamage(damage uint32) *RaceRandomer {
	r.info.Damage = damage
	r.fixedDamage = true
	return r
}

func (r *RaceRandomer) applyStage(s StageData) {
	r.info.Stage = s.Name
	r.info.StageID = s.StageID
	r.info.StageType = s.Surface()
	r.info.StageLen = s.Length
}

// Randomize draws a fully populated race configuration. The effective
// stage's own cataloged weather combinations constrain the sky pick; a
// stage without any gets the default marker.
func (r *RaceRandomer) Randomize() protocol.RaceInfo {
	if !r.fixedStage {
		r.applyStage(r.catalog.Stages[r.rng.Intn(len(r.catalog.Stages))])
	}
	if !r.fixedWeather {
		r.info.Wetness = uint32(r.rng.Intn(len(WetnessNames)))
		r.info.Weather = uint32(r.rng.Intn(len(WeatherNames)))
		r.info.SkyType = DefaultSkyType
		r.info.SkyTypeID = 0
		if combos := r.catalog.StageWeathers(r.info.StageID); len(combos) > 0 {
			r.info.SkyTypeID = uint32(r.rng.Intn(len(combos)))
			r.info.SkyType = combos[r.info.SkyTypeID].String()
		}
	}
	if !r.fixedCar {
		r.info.CarFixed = false
		car := r.catalog.Cars[r.rng.Intn(len(r.catalog.Cars))]
		r.info.Car = car.Name
		r.info.CarID = car.ID
	}
	if !r.fixedDamage {
		r.info.Damage = uint32(r.rng.Intn(len(DamageNames)))
	}

	return r.info
}
