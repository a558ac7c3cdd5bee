package domain

import "time"

// SensorReading — один замер телеметрии станка. Значение неизменяемое.
type SensorReading struct {
	MachineID        string    `json:"machine_id"`
	Timestamp        time.Time `json:"timestamp"`
	Temperature      float64   `json:"temperature"`
	Vibration        float64   `json:"vibration"`
	Pressure         float64   `json:"pressure"`
	PowerConsumption float64   `json:"power_consumption"`
}

// FeatureVector — упорядоченный набор признаков для модели.
type FeatureVector []float64

// PointFeatures возвращает вектор одного замера:
// temperature, vibration, pressure, power_consumption.
func (r SensorReading) PointFeatures() FeatureVector {
	return FeatureVector{r.Temperature, r.Vibration, r.Pressure, r.PowerConsumption}
}
