// Package domain models the inputs and outputs of the next-day rain forecast.
//
// # Features
//
// The classifier was trained on daily station aggregates. Each prediction uses
// four features describing the previous days, always passed to the model in
// this column order:
//
//	precip_lag1    total precipitation yesterday, mm (never negative)
//	press_lag1     mean sea-level pressure yesterday, hPa (defaults to 1013.0)
//	precip_3d_sum  total precipitation over the last three days, mm
//	temp_lag1      mean air temperature yesterday, °C
//
// Validation is minimal: every value must be a finite number and precip_lag1
// must be zero or more. Pressure and temperature are not range-checked.
//
// # Output
//
// The model returns the probability of measurable rain tomorrow, a value in
// [0,1]. It is shown to users as a percentage with two decimals, e.g.
// "Probability: 28.91%".
package domain
