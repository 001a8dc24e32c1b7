package imu

// Vector is an (x, y, z) triple in physical units.
// It encodes as a JSON array, matching what the downstream plotting client expects.
type Vector [3]float64

// Sub returns v - o per axis.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Add returns v + o per axis.
func (v Vector) Add(o Vector) Vector {
	return Vector{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Scale returns v multiplied by k.
func (v Vector) Scale(k float64) Vector {
	return Vector{v[0] * k, v[1] * k, v[2] * k}
}

// Sample is one gyro/accel/temperature reading, and the JSON frame sent to
// stream clients.
type Sample struct {
	Gyro  Vector  `json:"gyro"`  // °/s
	Accel Vector  `json:"accel"` // g
	Temp  float64 `json:"temp"`  // °C
}
