package config

import (
	"errors"
	"time"
)

// Simulation drives cmd/simulate. Operation ratios are normalised to sum to 1.
type Simulation struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	DecisionRatio float64
	ReadRatio     float64
	PatientLimit  int
	ProviderLimit int
	DaysAhead     int
}

func LoadSimulation() (Simulation, error) {
	s := Simulation{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		DecisionRatio: getFloat("SIM_DECISION_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 500),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 10),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 7),
	}

	switch {
	case s.Workers <= 0:
		return s, errors.New("SIM_WORKERS must be > 0")
	case s.Duration <= 0:
		return s, errors.New("SIM_DURATION must be > 0")
	case s.DaysAhead <= 0:
		return s, errors.New("SIM_DAYS_AHEAD must be > 0")
	case s.BookingRatio < 0 || s.DecisionRatio < 0 || s.ReadRatio < 0:
		return s, errors.New("SIM_*_RATIO must not be negative")
	}

	total := s.BookingRatio + s.DecisionRatio + s.ReadRatio
	if total == 0 {
		return s, errors.New("at least one SIM_*_RATIO must be positive")
	}
	s.BookingRatio /= total
	s.DecisionRatio /= total
	s.ReadRatio /= total
	return s, nil
}
