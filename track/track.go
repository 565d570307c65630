// Package track derives flight-path geometry from recorded positions:
// distance flown, net displacement, speed, and the altitude envelope.
// Sample positions are converted to ECEF so segment lengths are chord
// distances, which is accurate at telemetry cadence.
package track

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

const ftToKm = 0.0003048

// Summary describes the geometry of one mission's flight path.
type Summary struct {
	Samples         int       `json:"samples"`
	StartTime       time.Time `json:"start_time,omitzero"`
	EndTime         time.Time `json:"end_time,omitzero"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalPathKm     float64   `json:"total_path_km"`
	DisplacementKm  float64   `json:"displacement_km"`
	AvgSpeedKmh     float64   `json:"avg_speed_kmh"`
	MaxSpeedKmh     float64   `json:"max_speed_kmh"`
	MinAltitudeFt   float64   `json:"min_altitude_ft"`
	MaxAltitudeFt   float64   `json:"max_altitude_ft"`
}

// Summarize walks the store once and accumulates path geometry. An empty
// mission yields a zero Summary; a single sample yields zero distances.
func Summarize(store *timeseries.Store) Summary {
	n := store.Len()
	if n == 0 {
		return Summary{}
	}

	start, end, _ := store.TimeRange()
	sum := Summary{
		Samples:         n,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
	}

	first := store.PositionAt(0)
	sum.MinAltitudeFt = first.AltitudeFt
	sum.MaxAltitudeFt = first.AltitudeFt

	prev := ecefAt(store.TimeAt(0), first)
	prevTime := store.TimeAt(0)
	for i := 1; i < n; i++ {
		pos := store.PositionAt(i)
		if pos.AltitudeFt < sum.MinAltitudeFt {
			sum.MinAltitudeFt = pos.AltitudeFt
		}
		if pos.AltitudeFt > sum.MaxAltitudeFt {
			sum.MaxAltitudeFt = pos.AltitudeFt
		}

		ts := store.TimeAt(i)
		cur := ecefAt(ts, pos)
		segKm := cur.DistanceTo(prev)
		sum.TotalPathKm += segKm

		if dt := ts.Sub(prevTime).Hours(); dt > 0 {
			if speed := segKm / dt; speed > sum.MaxSpeedKmh {
				sum.MaxSpeedKmh = speed
			}
		}
		prev, prevTime = cur, ts
	}

	sum.DisplacementKm = ecefAt(end, store.PositionAt(n-1)).
		DistanceTo(ecefAt(start, first))
	if hours := end.Sub(start).Hours(); hours > 0 {
		sum.AvgSpeedKmh = sum.TotalPathKm / hours
	}
	return sum
}

// ecefAt converts a geodetic sample to ECEF kilometres. go-satellite's
// converters work via ECI at a Julian date, so the sample timestamp feeds
// both conversions and the rotation cancels out for a fixed position.
func ecefAt(ts time.Time, pos model.Position) Vec3 {
	year, month, day := ts.Date()
	hour, min, sec := ts.Clock()

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)

	obs := satellite.LatLong{
		Latitude:  pos.LatitudeDeg * satellite.DEG2RAD,
		Longitude: pos.LongitudeDeg * satellite.DEG2RAD,
	}
	eci := satellite.LLAToECI(obs, pos.AltitudeFt*ftToKm, jd)
	ecef := satellite.ECIToECEF(eci, gmst)
	return Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}
}
